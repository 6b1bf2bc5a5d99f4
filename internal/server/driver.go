package server

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/parnlp/internal/adapter"
	"github.com/copyleftdev/parnlp/internal/derivcheck"
	"github.com/copyleftdev/parnlp/internal/nlp"
	"github.com/copyleftdev/parnlp/internal/problems"
	"github.com/copyleftdev/parnlp/internal/sparsity"
)

// consistencyTol bounds the accepted deviation between gathered and
// full-space results.
const consistencyTol = 1e-12

// ProblemRequest names a registered problem and how to split it.
type ProblemRequest struct {
	Problem string `json:"problem"`
	Size    int    `json:"size,omitempty"`
	NumProc int    `json:"num_proc,omitempty"`
}

// EvaluateRequest evaluates a split problem at X with multipliers Lambda.
// Missing vectors come from the problem's starting point; a missing
// ObjFactor is 1.
type EvaluateRequest struct {
	ProblemRequest
	X         []float64 `json:"x,omitempty"`
	Lambda    []float64 `json:"lambda,omitempty"`
	ObjFactor *float64  `json:"obj_factor,omitempty"`
}

// CheckRequest runs the derivative checker at X, or at the starting point.
type CheckRequest struct {
	Problem string    `json:"problem"`
	Size    int       `json:"size,omitempty"`
	X       []float64 `json:"x,omitempty"`
}

// ParticipantInfo describes one participant's share of a problem.
type ParticipantInfo struct {
	Partition nlp.Partition `json:"partition"`
	NNZJac    int           `json:"nnz_jac"`
	NNZHess   int           `json:"nnz_hess"`
}

// Description is the answer to a partitions request.
type Description struct {
	Problem      string            `json:"problem"`
	N            int               `json:"n"`
	M            int               `json:"m"`
	NNZJac       int               `json:"nnz_jac"`
	NNZHess      int               `json:"nnz_hess"`
	IndexStyle   string            `json:"index_style"`
	Participants []ParticipantInfo `json:"participants"`
	Verified     bool              `json:"verified"`
	VerifyError  string            `json:"verify_error,omitempty"`
}

// Deviations holds the largest absolute difference between gathered and
// full-space results, per output.
type Deviations struct {
	Objective   float64 `json:"objective"`
	Gradient    float64 `json:"gradient"`
	Constraints float64 `json:"constraints"`
	Jacobian    float64 `json:"jacobian"`
	Hessian     float64 `json:"hessian"`
	// Triplets compares the scattered local values with the full-space value
	// arrays position by position, so it also catches reordered entries.
	Triplets float64 `json:"triplets"`
}

func (d Deviations) max() float64 {
	return floats.Max([]float64{d.Objective, d.Gradient, d.Constraints, d.Jacobian, d.Hessian, d.Triplets})
}

// Evaluation is the answer to an evaluate request.
type Evaluation struct {
	Problem      string            `json:"problem"`
	Objective    float64           `json:"objective"`
	Participants []ParticipantInfo `json:"participants"`
	Deviations   Deviations        `json:"deviations"`
	Consistent   bool              `json:"consistent"`
}

// requestError marks a malformed request.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// problemFactory builds fresh instances of one problem, so every participant
// holds its own.
type problemFactory struct {
	name string
	size int
	info nlp.Info
}

func (s *Server) factory(name string, size int) (*problemFactory, nlp.Problem, error) {
	if name == "" {
		name = s.cfg.Problems.Default
	}
	if size == 0 {
		size = s.cfg.Problems.DefaultSize
	}
	// dense reassembly and finite differences are quadratic in size
	if size < 0 || size > s.cfg.Problems.MaxSize {
		return nil, nil, badRequest("size must be in [1,%d], got %d", s.cfg.Problems.MaxSize, size)
	}
	prob, err := problems.New(name, size)
	if err != nil {
		return nil, nil, badRequest("%v", err)
	}
	info, err := prob.Info()
	if err != nil {
		return nil, nil, err
	}
	return &problemFactory{name: name, size: size, info: info}, prob, nil
}

func (f *problemFactory) new() (nlp.Problem, error) {
	return problems.New(f.name, f.size)
}

func (s *Server) partitions(f *problemFactory, numProc int) ([]nlp.Partition, error) {
	if numProc == 0 {
		numProc = 1
	}
	if numProc < 0 || numProc > s.cfg.Problems.MaxProcs {
		return nil, badRequest("num_proc must be in [1,%d], got %d", s.cfg.Problems.MaxProcs, numProc)
	}
	return blockPartitions(f.info.N, f.info.M, numProc), nil
}

// blockPartitions splits [0,n) and [0,m) into numProc contiguous blocks.
func blockPartitions(n, m, numProc int) []nlp.Partition {
	parts := make([]nlp.Partition, numProc)
	for p := range parts {
		parts[p] = nlp.Partition{
			NumProc: numProc,
			ProcID:  p,
			NFirst:  p * n / numProc,
			NLast:   (p + 1) * n / numProc,
			MFirst:  p * m / numProc,
			MLast:   (p + 1) * m / numProc,
		}
	}
	return parts
}

// Describe reports every participant's share of the problem and whether the
// shares cover each variable, constraint and nonzero exactly once.
func (s *Server) Describe(req ProblemRequest) (*Description, error) {
	f, prob, err := s.factory(req.Problem, req.Size)
	if err != nil {
		return nil, err
	}
	parts, err := s.partitions(f, req.NumProc)
	if err != nil {
		return nil, err
	}

	desc := &Description{
		Problem:    f.name,
		N:          f.info.N,
		M:          f.info.M,
		NNZJac:     f.info.NNZJac,
		NNZHess:    f.info.NNZHess,
		IndexStyle: f.info.IndexStyle.String(),
	}

	w := adapter.NewWrapper(prob, s.opts...)
	if err := w.Verify(parts...); err != nil {
		desc.VerifyError = err.Error()
	} else {
		desc.Verified = true
	}

	for _, p := range parts {
		pp, err := s.participant(f)
		if err != nil {
			return nil, err
		}
		pinfo, err := pp.Info(p)
		if err != nil {
			return nil, err
		}
		desc.Participants = append(desc.Participants, ParticipantInfo{Partition: p, NNZJac: pinfo.NNZJac, NNZHess: pinfo.NNZHess})
	}
	return desc, nil
}

func (s *Server) participant(f *problemFactory) (nlp.PartitionedProblem, error) {
	prob, err := f.new()
	if err != nil {
		return nil, err
	}
	return adapter.New(s.cfg.AdapterConfig(), prob, s.opts...)
}

// point is one evaluation point in full space.
type point struct {
	x, lambda []float64
	objFactor float64
}

// outputs holds everything a problem reports at a point, in full space. The
// Jacobian and Hessian are assembled from triplets.
type outputs struct {
	objective   float64
	gradient    []float64
	constraints []float64
	jacobian    *mat.Dense
	hessian     *mat.Dense
	jacValues   []float64
	hessValues  []float64
}

// Evaluate runs every participant concurrently, each with its own problem
// instance and adapter, gathers their slices into full space and compares
// them with a full-space evaluation.
func (s *Server) Evaluate(ctx context.Context, req EvaluateRequest) (*Evaluation, error) {
	f, prob, err := s.factory(req.Problem, req.Size)
	if err != nil {
		return nil, err
	}
	parts, err := s.partitions(f, req.NumProc)
	if err != nil {
		return nil, err
	}
	pt, err := evaluationPoint(prob, f.info, req)
	if err != nil {
		return nil, err
	}

	want, err := fullSpace(prob, f.info, pt)
	if err != nil {
		return nil, err
	}

	results := make([]participantResult, len(parts))
	var wg sync.WaitGroup
	for i, p := range parts {
		wg.Add(1)
		go func(i int, p nlp.Partition) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return
			}
			pp, err := s.participant(f)
			if err != nil {
				results[i].err = err
				return
			}
			results[i] = runParticipant(pp, p, pt)
		}(i, p)
	}
	wg.Wait()

	got := outputs{
		gradient:    make([]float64, f.info.N),
		constraints: make([]float64, f.info.M),
	}
	var jr, jc, hr, hc []int
	var jv, hv []float64
	ev := &Evaluation{Problem: f.name, Objective: want.objective}
	for i, r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("participant %d: %w", parts[i].ProcID, r.err)
		}
		p := r.info.Partition
		copy(got.gradient[p.NFirst:p.NLast], r.gradient)
		copy(got.constraints[p.MFirst:p.MLast], r.constraints)
		for k := range r.jacRows {
			jr = append(jr, r.jacRows[k]+p.MFirst)
			jc = append(jc, r.jacCols[k])
		}
		jv = append(jv, r.jacValues...)
		for k := range r.hessRows {
			hr = append(hr, r.hessRows[k]+p.NFirst)
			hc = append(hc, r.hessCols[k])
		}
		hv = append(hv, r.hessValues...)

		ev.Deviations.Objective = math.Max(ev.Deviations.Objective, math.Abs(r.objective-want.objective))
		ev.Participants = append(ev.Participants, ParticipantInfo{Partition: p, NNZJac: r.info.NNZJac, NNZHess: r.info.NNZHess})
	}
	got.jacobian = derivcheck.Assemble(f.info.M, f.info.N, f.info.IndexStyle, jr, jc, jv)
	got.hessian = derivcheck.Assemble(f.info.N, f.info.N, f.info.IndexStyle, hr, hc, hv)

	ev.Deviations.Gradient = maxAbsDiff(got.gradient, want.gradient)
	ev.Deviations.Constraints = maxAbsDiff(got.constraints, want.constraints)
	ev.Deviations.Jacobian = maxAbsDiff(got.jacobian.RawMatrix().Data, want.jacobian.RawMatrix().Data)
	ev.Deviations.Hessian = maxAbsDiff(got.hessian.RawMatrix().Data, want.hessian.RawMatrix().Data)
	if ev.Deviations.Triplets, err = scatterDeviation(prob, parts, results, want); err != nil {
		return nil, err
	}
	ev.Consistent = len(jv) == f.info.NNZJac && len(hv) == f.info.NNZHess && ev.Deviations.max() <= consistencyTol

	s.logger.Info("Evaluated partitioned problem", map[string]interface{}{
		"problem":    f.name,
		"n":          f.info.N,
		"num_proc":   len(parts),
		"consistent": ev.Consistent,
	})
	return ev, nil
}

// scatterDeviation places every participant's values back at their global
// triplet positions and compares them with the full-space value arrays.
func scatterDeviation(prob nlp.Problem, parts []nlp.Partition, results []participantResult, want *outputs) (float64, error) {
	st, err := sparsity.NewHarvester(prob).Structure()
	if err != nil {
		return 0, err
	}
	jac := make([]float64, len(want.jacValues))
	hess := make([]float64, len(want.hessValues))
	for i, p := range parts {
		jm, err := st.JacobianMap(p)
		if err != nil {
			return 0, err
		}
		hm, err := st.HessianMap(p)
		if err != nil {
			return 0, err
		}
		if err := jm.Scatter(jac, results[i].jacValues); err != nil {
			return 0, err
		}
		if err := hm.Scatter(hess, results[i].hessValues); err != nil {
			return 0, err
		}
	}
	return math.Max(maxAbsDiff(jac, want.jacValues), maxAbsDiff(hess, want.hessValues)), nil
}

func maxAbsDiff(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, math.Inf(1))
}

func evaluationPoint(prob nlp.Problem, info nlp.Info, req EvaluateRequest) (point, error) {
	pt := point{x: req.X, lambda: req.Lambda, objFactor: 1}
	if req.ObjFactor != nil {
		pt.objFactor = *req.ObjFactor
	}
	if pt.x != nil && len(pt.x) != info.N {
		return pt, badRequest("x has length %d, want %d", len(pt.x), info.N)
	}
	if pt.lambda != nil && len(pt.lambda) != info.M {
		return pt, badRequest("lambda has length %d, want %d", len(pt.lambda), info.M)
	}

	init := nlp.StartInit{X: pt.x == nil, Lambda: pt.lambda == nil}
	if !init.X && !init.Lambda {
		return pt, nil
	}
	x, lambda := make([]float64, info.N), make([]float64, info.M)
	if err := prob.StartingPoint(init, x, nil, nil, lambda); err != nil {
		return pt, err
	}
	if init.X {
		pt.x = x
	}
	if init.Lambda {
		pt.lambda = lambda
	}
	return pt, nil
}

func fullSpace(prob nlp.Problem, info nlp.Info, pt point) (*outputs, error) {
	out := &outputs{
		gradient:    make([]float64, info.N),
		constraints: make([]float64, info.M),
	}
	var err error
	if out.objective, err = prob.Objective(pt.x, true); err != nil {
		return nil, err
	}
	if err := prob.Gradient(pt.x, false, out.gradient); err != nil {
		return nil, err
	}
	if err := prob.Constraints(pt.x, false, out.constraints); err != nil {
		return nil, err
	}

	jr, jc, jv := make([]int, info.NNZJac), make([]int, info.NNZJac), make([]float64, info.NNZJac)
	if err := prob.JacobianStructure(jr, jc); err != nil {
		return nil, err
	}
	if err := prob.JacobianValues(pt.x, false, jv); err != nil {
		return nil, err
	}
	hr, hc, hv := make([]int, info.NNZHess), make([]int, info.NNZHess), make([]float64, info.NNZHess)
	if err := prob.HessianStructure(hr, hc); err != nil {
		return nil, err
	}
	if err := prob.HessianValues(pt.x, false, pt.objFactor, pt.lambda, true, hv); err != nil {
		return nil, err
	}

	out.jacobian = derivcheck.Assemble(info.M, info.N, info.IndexStyle, jr, jc, jv)
	out.hessian = derivcheck.Assemble(info.N, info.N, info.IndexStyle, hr, hc, hv)
	out.jacValues, out.hessValues = jv, hv
	return out, nil
}

// participantResult is everything one participant computed, in local
// numbering.
type participantResult struct {
	info        nlp.PartitionInfo
	objective   float64
	gradient    []float64
	constraints []float64
	jacRows     []int
	jacCols     []int
	jacValues   []float64
	hessRows    []int
	hessCols    []int
	hessValues  []float64
	err         error
}

// runParticipant drives pp through one evaluation round the way a
// distributed solver would on participant p.
func runParticipant(pp nlp.PartitionedProblem, p nlp.Partition, pt point) participantResult {
	var r participantResult
	info, err := pp.Info(p)
	if err != nil {
		r.err = err
		return r
	}
	r.info = info
	r.gradient = make([]float64, p.NumVars())
	r.constraints = make([]float64, p.NumCons())
	r.jacRows, r.jacCols, r.jacValues = make([]int, info.NNZJac), make([]int, info.NNZJac), make([]float64, info.NNZJac)
	r.hessRows, r.hessCols, r.hessValues = make([]int, info.NNZHess), make([]int, info.NNZHess), make([]float64, info.NNZHess)

	steps := []func() error{
		func() (err error) { r.objective, err = pp.Objective(p, pt.x, true); return err },
		func() error { return pp.Gradient(p, pt.x, false, r.gradient) },
		func() error { return pp.Constraints(p, pt.x, false, r.constraints) },
		func() error { return pp.JacobianStructure(p, r.jacRows, r.jacCols) },
		func() error { return pp.JacobianValues(p, pt.x, false, r.jacValues) },
		func() error { return pp.HessianStructure(p, r.hessRows, r.hessCols) },
		func() error {
			return pp.HessianValues(p, pt.x, false, pt.objFactor, pt.lambda, true, r.hessValues)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			r.err = err
			return r
		}
	}
	return r
}

// Check runs the derivative checker on a registered problem with unit
// multipliers, so constraint curvature is checked too.
func (s *Server) Check(req CheckRequest) (*derivcheck.Report, error) {
	f, prob, err := s.factory(req.Problem, req.Size)
	if err != nil {
		return nil, err
	}

	x := req.X
	if x == nil {
		x = make([]float64, f.info.N)
		if err := prob.StartingPoint(nlp.StartInit{X: true}, x, nil, nil, nil); err != nil {
			return nil, err
		}
	} else if len(x) != f.info.N {
		return nil, badRequest("x has length %d, want %d", len(x), f.info.N)
	}

	lambda := make([]float64, f.info.M)
	floats.AddConst(1, lambda)
	return derivcheck.Check(prob, x, lambda, 1, s.cfg.CheckConfig())
}
