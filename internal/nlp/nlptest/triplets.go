// Package nlptest provides fixtures for testing code that drives nlp.Problem
// and nlp.PartitionedProblem implementations.
package nlptest

import (
	"fmt"
	"math"
	"testing"

	"github.com/copyleftdev/parnlp/internal/nlp"
)

// Triplets is an nlp.Problem whose sparsity is given explicitly. Values are
// cheap deterministic functions of the inputs, so tests can predict every
// slot of every output. Fields may be changed between calls to simulate a
// problem that redefines its structure.
type Triplets struct {
	N, M       int
	JacRows    []int
	JacCols    []int
	HessRows   []int
	HessCols   []int
	IndexStyle nlp.IndexStyle

	// Fail makes the named method return the error.
	Fail map[string]error

	Finalized *nlp.Solution
	Stats     []nlp.IterationStats
	StopAfter int // Intermediate returns false once this many reports arrived; 0 never stops
}

var (
	_ nlp.Problem = (*Triplets)(nil)
	_ nlp.Scaler  = (*Triplets)(nil)
	_ nlp.Monitor = (*Triplets)(nil)
)

func (p *Triplets) fail(method string) error {
	if p.Fail == nil {
		return nil
	}
	return p.Fail[method]
}

// Info implements nlp.Problem.
func (p *Triplets) Info() (nlp.Info, error) {
	if err := p.fail("Info"); err != nil {
		return nlp.Info{}, err
	}
	return nlp.Info{
		N:          p.N,
		M:          p.M,
		NNZJac:     len(p.JacRows),
		NNZHess:    len(p.HessRows),
		IndexStyle: p.IndexStyle,
	}, nil
}

// Bounds sets xL[i] = -i, xU[i] = i+1, gL[j] = -10(j+1), gU[j] = 10(j+1).
func (p *Triplets) Bounds(xL, xU, gL, gU []float64) error {
	if err := p.fail("Bounds"); err != nil {
		return err
	}
	for i := range xL {
		xL[i] = -float64(i)
		xU[i] = float64(i) + 1
	}
	for j := range gL {
		gL[j] = -10 * float64(j+1)
		gU[j] = 10 * float64(j+1)
	}
	return nil
}

// StartingPoint sets x[i] = 0.1(i+1), zL[i] = i, zU[i] = -i, lambda[j] = j+0.5.
func (p *Triplets) StartingPoint(init nlp.StartInit, x, zL, zU, lambda []float64) error {
	if err := p.fail("StartingPoint"); err != nil {
		return err
	}
	if init.X {
		for i := range x {
			x[i] = 0.1 * float64(i+1)
		}
	}
	if init.Z {
		for i := range zL {
			zL[i] = float64(i)
			zU[i] = -float64(i)
		}
	}
	if init.Lambda {
		for j := range lambda {
			lambda[j] = float64(j) + 0.5
		}
	}
	return nil
}

// Objective returns the sum of squares of x.
func (p *Triplets) Objective(x []float64, newX bool) (float64, error) {
	if err := p.fail("Objective"); err != nil {
		return 0, err
	}
	var f float64
	for _, v := range x {
		f += v * v
	}
	return f, nil
}

// Gradient sets grad = 2x.
func (p *Triplets) Gradient(x []float64, newX bool, grad []float64) error {
	if err := p.fail("Gradient"); err != nil {
		return err
	}
	for i, v := range x {
		grad[i] = 2 * v
	}
	return nil
}

// Constraints sets g[j] = (j+1) * x[j mod n].
func (p *Triplets) Constraints(x []float64, newX bool, g []float64) error {
	if err := p.fail("Constraints"); err != nil {
		return err
	}
	for j := range g {
		g[j] = float64(j+1) * x[j%len(x)]
	}
	return nil
}

// JacobianStructure copies JacRows and JacCols.
func (p *Triplets) JacobianStructure(iRow, jCol []int) error {
	if err := p.fail("JacobianStructure"); err != nil {
		return err
	}
	copy(iRow, p.JacRows)
	copy(jCol, p.JacCols)
	return nil
}

// JacobianValues sets values[k] = JacobianValue(k, x).
func (p *Triplets) JacobianValues(x []float64, newX bool, values []float64) error {
	if err := p.fail("JacobianValues"); err != nil {
		return err
	}
	for k := range values {
		values[k] = p.JacobianValue(k, x)
	}
	return nil
}

// JacobianValue is the value the fixture reports at global position k.
func (p *Triplets) JacobianValue(k int, x []float64) float64 {
	col := p.JacCols[k] - p.IndexStyle.Offset()
	return float64(k+1) + x[col]
}

// HessianStructure copies HessRows and HessCols.
func (p *Triplets) HessianStructure(iRow, jCol []int) error {
	if err := p.fail("HessianStructure"); err != nil {
		return err
	}
	copy(iRow, p.HessRows)
	copy(jCol, p.HessCols)
	return nil
}

// HessianValues sets values[k] = HessianValue(k, objFactor, lambda).
func (p *Triplets) HessianValues(x []float64, newX bool, objFactor float64, lambda []float64, newLambda bool, values []float64) error {
	if err := p.fail("HessianValues"); err != nil {
		return err
	}
	for k := range values {
		values[k] = p.HessianValue(k, objFactor, lambda)
	}
	return nil
}

// HessianValue is the value the fixture reports at global position k.
func (p *Triplets) HessianValue(k int, objFactor float64, lambda []float64) float64 {
	v := objFactor * float64(k+1)
	for _, l := range lambda {
		v += l
	}
	return v
}

// ScalingParameters reports objective scaling 2, xScaling[i] = i+1 and
// gScaling[j] = -(j+1).
func (p *Triplets) ScalingParameters(xScaling, gScaling []float64) (nlp.Scaling, error) {
	if err := p.fail("ScalingParameters"); err != nil {
		return nlp.Scaling{}, err
	}
	for i := range xScaling {
		xScaling[i] = float64(i + 1)
	}
	for j := range gScaling {
		gScaling[j] = -float64(j + 1)
	}
	return nlp.Scaling{Objective: 2, UseX: true, UseG: true}, nil
}

// Finalize records the solution.
func (p *Triplets) Finalize(sol nlp.Solution) {
	p.Finalized = &sol
}

// Intermediate records stats and stops after StopAfter reports.
func (p *Triplets) Intermediate(stats nlp.IterationStats) bool {
	p.Stats = append(p.Stats, stats)
	return p.StopAfter == 0 || len(p.Stats) < p.StopAfter
}

// Banded returns a Triplets problem with n variables, m = n-1 constraints, a
// bidiagonal Jacobian (row j touches j and j+1) and a lower-bidiagonal
// Hessian, listed row by row.
func Banded(n int) *Triplets {
	p := &Triplets{N: n, M: n - 1}
	for j := 0; j < n-1; j++ {
		p.JacRows = append(p.JacRows, j, j)
		p.JacCols = append(p.JacCols, j, j+1)
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			p.HessRows = append(p.HessRows, i)
			p.HessCols = append(p.HessCols, i-1)
		}
		p.HessRows = append(p.HessRows, i)
		p.HessCols = append(p.HessCols, i)
	}
	return p
}

// Seq returns the vector [start, start+step, ...] of length n.
func Seq(n int, start, step float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = start + float64(i)*step
	}
	return v
}

// AssertFloatsEqual fails t if got and want differ in length or by more than
// tol at any index.
func AssertFloatsEqual(t testing.TB, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// BlockPartitions splits [0,n) and [0,m) into numProc contiguous blocks with
// first = p*total/numProc.
func BlockPartitions(n, m, numProc int) []nlp.Partition {
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

// Name renders a partition for subtest names.
func Name(p nlp.Partition) string {
	return fmt.Sprintf("proc%d_of_%d_n[%d,%d)_m[%d,%d)", p.ProcID, p.NumProc, p.NFirst, p.NLast, p.MFirst, p.MLast)
}
