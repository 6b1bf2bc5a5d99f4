package adapter

import (
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/parnlp/internal/errors"
	"github.com/copyleftdev/parnlp/internal/nlp"
	"github.com/copyleftdev/parnlp/internal/sparsity"
)

const component = "adapter"

// Wrapper serves nlp.PartitionedProblem on top of a full-space nlp.Problem.
// The held problem always evaluates over the full space; the wrapper copies
// out the caller's slice. Sparse derivatives go through index maps built once,
// on the first structural need, for the first partition the wrapper sees.
//
// One Wrapper serves one participant and must be driven by one goroutine.
type Wrapper struct {
	problem   nlp.Problem
	harvester *sparsity.Harvester
	logger    *zap.Logger
	metrics   *Metrics
	recheck   bool

	maps indexMaps
	pool vectorPool
}

// indexMaps is unbuilt until built is set; after that nothing in it changes.
type indexMaps struct {
	built     bool
	partition nlp.Partition
	structure *sparsity.Structure
	jac       sparsity.IndexMap
	hess      sparsity.IndexMap
}

var _ nlp.PartitionedProblem = (*Wrapper)(nil)

// NewWrapper returns a Wrapper around p. The problem is not queried until the
// first call.
func NewWrapper(p nlp.Problem, opts ...Option) *Wrapper {
	o := buildOptions(opts)
	return &Wrapper{
		problem:   p,
		harvester: sparsity.NewHarvester(p),
		logger:    o.logger.Named(component),
		metrics:   o.metrics,
		recheck:   o.recheck,
	}
}

// begin validates p against the harvested problem and against the partition
// the index maps were built for.
func (w *Wrapper) begin(op string, p nlp.Partition) (nlp.Info, error) {
	w.metrics.evaluation(op)

	info, err := w.harvester.Harvest()
	if err != nil {
		return info, err
	}
	if err := p.Validate(info); err != nil {
		return info, err
	}
	if w.maps.built && p != w.maps.partition {
		return info, errors.Errorf(errors.KindPartitionGap,
			"partition %+v differs from %+v used to build the index maps", p, w.maps.partition)
	}
	return info, nil
}

// ensureMaps builds the index maps on first use. Later structural calls only
// recheck the problem size when rechecking is enabled.
func (w *Wrapper) ensureMaps(p nlp.Partition, structural bool) (*indexMaps, error) {
	if w.maps.built {
		if structural && w.recheck {
			if err := w.harvester.Recheck(); err != nil {
				return nil, err
			}
		}
		return &w.maps, nil
	}

	start := time.Now()
	s, err := w.harvester.Structure()
	if err != nil {
		return nil, err
	}
	jac, err := s.JacobianMap(p)
	if err != nil {
		return nil, err
	}
	hess, err := s.HessianMap(p)
	if err != nil {
		return nil, err
	}

	w.maps = indexMaps{built: true, partition: p, structure: s, jac: jac, hess: hess}
	took := time.Since(start)
	w.metrics.mapsBuilt(p.ProcID, took, len(jac), len(hess))
	w.logger.Debug("built index maps",
		zap.Int("proc_id", p.ProcID),
		zap.Int("num_proc", p.NumProc),
		zap.Int("nnz_jac_global", s.Info.NNZJac),
		zap.Int("nnz_jac_local", len(jac)),
		zap.Int("nnz_hess_global", s.Info.NNZHess),
		zap.Int("nnz_hess_local", len(hess)),
		zap.Duration("took", took),
	)
	return &w.maps, nil
}

func (w *Wrapper) fail(op string, p nlp.Partition, err error) error {
	var e *errors.Error
	if errors.As(err, &e) && e.Operation == "" {
		e.WithComponent(component).WithOperation(op)
	}
	kind := errors.KindOf(err)
	w.metrics.failure(op, kind)
	w.logger.Warn("partitioned call failed",
		zap.String("op", op),
		zap.Int("proc_id", p.ProcID),
		zap.Stringer("kind", kind),
		zap.Error(err),
	)
	return err
}

func evalErr(op string, err error) error {
	return errors.Wrap(err, errors.KindEvaluation, "serial problem").
		WithComponent(component).WithOperation(op)
}

func sizeErr(what string, got, want int) error {
	if got == want {
		return nil
	}
	return errors.Errorf(errors.KindSizeMismatch, "%s: length %d, want %d", what, got, want)
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Info reports the global sizes and the participant's local nonzero counts.
// It is the usual first structural query and builds the index maps.
func (w *Wrapper) Info(p nlp.Partition) (nlp.PartitionInfo, error) {
	const op = "Info"

	info, err := w.begin(op, p)
	if err != nil {
		return nlp.PartitionInfo{}, w.fail(op, p, err)
	}
	maps, err := w.ensureMaps(p, true)
	if err != nil {
		return nlp.PartitionInfo{}, w.fail(op, p, err)
	}

	return nlp.PartitionInfo{
		N:          info.N,
		M:          info.M,
		Partition:  p,
		NNZJac:     len(maps.jac),
		NNZHess:    len(maps.hess),
		IndexStyle: info.IndexStyle,
	}, nil
}

// Bounds fills the participant's variable and constraint bounds.
func (w *Wrapper) Bounds(p nlp.Partition, xL, xU, gL, gU []float64) error {
	const op = "Bounds"

	info, err := w.begin(op, p)
	if err != nil {
		return w.fail(op, p, err)
	}
	if err := firstErr(
		sizeErr("x lower bounds", len(xL), p.NumVars()),
		sizeErr("x upper bounds", len(xU), p.NumVars()),
		sizeErr("g lower bounds", len(gL), p.NumCons()),
		sizeErr("g upper bounds", len(gU), p.NumCons()),
	); err != nil {
		return w.fail(op, p, err)
	}

	fxL, fxU := w.pool.get(info.N), w.pool.get(info.N)
	fgL, fgU := w.pool.get(info.M), w.pool.get(info.M)
	defer w.pool.put(fxL, fxU, fgL, fgU)

	if err := w.problem.Bounds(fxL, fxU, fgL, fgU); err != nil {
		return w.fail(op, p, evalErr(op, err))
	}

	copy(xL, fxL[p.NFirst:p.NLast])
	copy(xU, fxU[p.NFirst:p.NLast])
	copy(gL, fgL[p.MFirst:p.MLast])
	copy(gU, fgU[p.MFirst:p.MLast])
	return nil
}

// StartingPoint fills the requested parts of the participant's starting
// point. Buffers for parts not requested by init are ignored.
func (w *Wrapper) StartingPoint(p nlp.Partition, init nlp.StartInit, x, zL, zU, lambda []float64) error {
	const op = "StartingPoint"

	info, err := w.begin(op, p)
	if err != nil {
		return w.fail(op, p, err)
	}

	var checks []error
	if init.X {
		checks = append(checks, sizeErr("x", len(x), p.NumVars()))
	}
	if init.Z {
		checks = append(checks, sizeErr("z lower", len(zL), p.NumVars()), sizeErr("z upper", len(zU), p.NumVars()))
	}
	if init.Lambda {
		checks = append(checks, sizeErr("lambda", len(lambda), p.NumCons()))
	}
	if err := firstErr(checks...); err != nil {
		return w.fail(op, p, err)
	}

	fx, fzL, fzU := w.pool.get(info.N), w.pool.get(info.N), w.pool.get(info.N)
	flambda := w.pool.get(info.M)
	defer w.pool.put(fx, fzL, fzU, flambda)

	if err := w.problem.StartingPoint(init, fx, fzL, fzU, flambda); err != nil {
		return w.fail(op, p, evalErr(op, err))
	}

	if init.X {
		copy(x, fx[p.NFirst:p.NLast])
	}
	if init.Z {
		copy(zL, fzL[p.NFirst:p.NLast])
		copy(zU, fzU[p.NFirst:p.NLast])
	}
	if init.Lambda {
		copy(lambda, flambda[p.MFirst:p.MLast])
	}
	return nil
}

// Objective returns the global objective value; it is not partitioned.
func (w *Wrapper) Objective(p nlp.Partition, x []float64, newX bool) (float64, error) {
	const op = "Objective"

	info, err := w.begin(op, p)
	if err != nil {
		return 0, w.fail(op, p, err)
	}
	if err := sizeErr("x", len(x), info.N); err != nil {
		return 0, w.fail(op, p, err)
	}

	f, err := w.problem.Objective(x, newX)
	if err != nil {
		return 0, w.fail(op, p, evalErr(op, err))
	}
	return f, nil
}

// Gradient fills the participant's slice of the objective gradient.
func (w *Wrapper) Gradient(p nlp.Partition, x []float64, newX bool, grad []float64) error {
	const op = "Gradient"

	info, err := w.begin(op, p)
	if err != nil {
		return w.fail(op, p, err)
	}
	if err := firstErr(sizeErr("x", len(x), info.N), sizeErr("gradient", len(grad), p.NumVars())); err != nil {
		return w.fail(op, p, err)
	}

	full := w.pool.get(info.N)
	defer w.pool.put(full)

	if err := w.problem.Gradient(x, newX, full); err != nil {
		return w.fail(op, p, evalErr(op, err))
	}
	copy(grad, full[p.NFirst:p.NLast])
	return nil
}

// Constraints fills the participant's slice of the constraint values.
func (w *Wrapper) Constraints(p nlp.Partition, x []float64, newX bool, g []float64) error {
	const op = "Constraints"

	info, err := w.begin(op, p)
	if err != nil {
		return w.fail(op, p, err)
	}
	if err := firstErr(sizeErr("x", len(x), info.N), sizeErr("constraints", len(g), p.NumCons())); err != nil {
		return w.fail(op, p, err)
	}

	full := w.pool.get(info.M)
	defer w.pool.put(full)

	if err := w.problem.Constraints(x, newX, full); err != nil {
		return w.fail(op, p, evalErr(op, err))
	}
	copy(g, full[p.MFirst:p.MLast])
	return nil
}

// JacobianStructure fills the local coordinates of the participant's
// Jacobian entries: rows relative to MFirst, columns global.
func (w *Wrapper) JacobianStructure(p nlp.Partition, iRow, jCol []int) error {
	const op = "JacobianStructure"

	if _, err := w.begin(op, p); err != nil {
		return w.fail(op, p, err)
	}
	maps, err := w.ensureMaps(p, true)
	if err != nil {
		return w.fail(op, p, err)
	}
	if err := maps.structure.JacobianCoords(p, maps.jac, iRow, jCol); err != nil {
		return w.fail(op, p, err)
	}
	return nil
}

// JacobianValues fills the participant's Jacobian values in the order of
// JacobianStructure.
func (w *Wrapper) JacobianValues(p nlp.Partition, x []float64, newX bool, values []float64) error {
	const op = "JacobianValues"

	info, err := w.begin(op, p)
	if err != nil {
		return w.fail(op, p, err)
	}
	maps, err := w.ensureMaps(p, false)
	if err != nil {
		return w.fail(op, p, err)
	}
	if err := firstErr(sizeErr("x", len(x), info.N), sizeErr("jacobian values", len(values), len(maps.jac))); err != nil {
		return w.fail(op, p, err)
	}

	full := w.pool.get(info.NNZJac)
	defer w.pool.put(full)

	if err := w.problem.JacobianValues(x, newX, full); err != nil {
		return w.fail(op, p, evalErr(op, err))
	}
	if err := maps.jac.Gather(values, full); err != nil {
		return w.fail(op, p, err)
	}
	return nil
}

// HessianStructure fills the local coordinates of the participant's Hessian
// entries: rows relative to NFirst, columns global.
func (w *Wrapper) HessianStructure(p nlp.Partition, iRow, jCol []int) error {
	const op = "HessianStructure"

	if _, err := w.begin(op, p); err != nil {
		return w.fail(op, p, err)
	}
	maps, err := w.ensureMaps(p, true)
	if err != nil {
		return w.fail(op, p, err)
	}
	if err := maps.structure.HessianCoords(p, maps.hess, iRow, jCol); err != nil {
		return w.fail(op, p, err)
	}
	return nil
}

// HessianValues fills the participant's Lagrangian Hessian values in the
// order of HessianStructure. lambda is full length.
func (w *Wrapper) HessianValues(p nlp.Partition, x []float64, newX bool, objFactor float64, lambda []float64, newLambda bool, values []float64) error {
	const op = "HessianValues"

	info, err := w.begin(op, p)
	if err != nil {
		return w.fail(op, p, err)
	}
	maps, err := w.ensureMaps(p, false)
	if err != nil {
		return w.fail(op, p, err)
	}
	if err := firstErr(
		sizeErr("x", len(x), info.N),
		sizeErr("lambda", len(lambda), info.M),
		sizeErr("hessian values", len(values), len(maps.hess)),
	); err != nil {
		return w.fail(op, p, err)
	}

	full := w.pool.get(info.NNZHess)
	defer w.pool.put(full)

	if err := w.problem.HessianValues(x, newX, objFactor, lambda, newLambda, full); err != nil {
		return w.fail(op, p, evalErr(op, err))
	}
	if err := maps.hess.Gather(values, full); err != nil {
		return w.fail(op, p, err)
	}
	return nil
}

// ScalingParameters slices the problem's scaling when it implements
// nlp.Scaler. Otherwise it reports objective scaling 1 and no vector scaling.
func (w *Wrapper) ScalingParameters(p nlp.Partition, xScaling, gScaling []float64) (nlp.Scaling, error) {
	const op = "ScalingParameters"

	info, err := w.begin(op, p)
	if err != nil {
		return nlp.Scaling{}, w.fail(op, p, err)
	}
	scaler, ok := w.problem.(nlp.Scaler)
	if !ok {
		return nlp.Scaling{Objective: 1}, nil
	}
	if err := firstErr(sizeErr("x scaling", len(xScaling), p.NumVars()), sizeErr("g scaling", len(gScaling), p.NumCons())); err != nil {
		return nlp.Scaling{}, w.fail(op, p, err)
	}

	fx, fg := w.pool.get(info.N), w.pool.get(info.M)
	defer w.pool.put(fx, fg)

	sc, err := scaler.ScalingParameters(fx, fg)
	if err != nil {
		return nlp.Scaling{}, w.fail(op, p, evalErr(op, err))
	}
	if sc.UseX {
		copy(xScaling, fx[p.NFirst:p.NLast])
	}
	if sc.UseG {
		copy(gScaling, fg[p.MFirst:p.MLast])
	}
	return sc, nil
}

// Finalize forwards the full-space solution unchanged.
func (w *Wrapper) Finalize(sol nlp.Solution) {
	w.problem.Finalize(sol)
}

// Intermediate forwards progress to the problem when it implements
// nlp.Monitor.
func (w *Wrapper) Intermediate(stats nlp.IterationStats) bool {
	if m, ok := w.problem.(nlp.Monitor); ok {
		return m.Intermediate(stats)
	}
	return true
}

// Verify checks that parts, the partitions of every participant, tile the
// problem and that their index maps cover each triplet exactly once. It does
// not touch this wrapper's own maps.
func (w *Wrapper) Verify(parts ...nlp.Partition) error {
	const op = "Verify"

	s, err := w.harvester.Structure()
	if err == nil {
		err = s.Verify(parts...)
	}
	if err != nil {
		var p nlp.Partition
		if w.maps.built {
			p = w.maps.partition
		}
		return w.fail(op, p, err)
	}
	return nil
}
