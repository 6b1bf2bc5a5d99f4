package derivcheck

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/parnlp/internal/errors"
	"github.com/copyleftdev/parnlp/internal/nlp"
	"github.com/copyleftdev/parnlp/internal/nlp/nlptest"
)

// product is min x0^2 + x1^2 s.t. x0*x1, with an optional wrong entry.
type product struct {
	*nlptest.Triplets
	bug string
}

func newProduct(bug string) *product {
	return &product{
		Triplets: &nlptest.Triplets{
			N: 2, M: 1,
			JacRows:  []int{0, 0},
			JacCols:  []int{0, 1},
			HessRows: []int{0, 1, 1},
			HessCols: []int{0, 0, 1},
		},
		bug: bug,
	}
}

func (p *product) Objective(x []float64, newX bool) (float64, error) {
	return x[0]*x[0] + x[1]*x[1], nil
}

func (p *product) Gradient(x []float64, newX bool, grad []float64) error {
	grad[0], grad[1] = 2*x[0], 2*x[1]
	if p.bug == "gradient" {
		grad[1] += 0.5
	}
	return nil
}

func (p *product) Constraints(x []float64, newX bool, g []float64) error {
	g[0] = x[0] * x[1]
	return nil
}

func (p *product) JacobianValues(x []float64, newX bool, values []float64) error {
	values[0], values[1] = x[1], x[0]
	if p.bug == "jacobian" {
		values[0] = x[0]
	}
	return nil
}

func (p *product) HessianValues(x []float64, newX bool, objFactor float64, lambda []float64, newLambda bool, values []float64) error {
	values[0] = 2 * objFactor
	values[1] = lambda[0]
	values[2] = 2 * objFactor
	if p.bug == "hessian" {
		values[1] = 0
	}
	return nil
}

func TestCheckAcceptsCorrectDerivatives(t *testing.T) {
	report, err := Check(newProduct(""), []float64{1.5, -2}, []float64{3}, 0.5, DefaultConfig())
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report.Mismatches)
	assert.Equal(t, 2+2+3, report.Checked)
	assert.Less(t, report.MaxRelErr, 1e-6)
}

func TestCheckFindsWrongEntries(t *testing.T) {
	tests := []struct {
		bug      string
		what     string
		row, col int
	}{
		{"gradient", "gradient", 0, 1},
		{"jacobian", "jacobian", 0, 0},
		{"hessian", "hessian", 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.bug, func(t *testing.T) {
			report, err := Check(newProduct(tt.bug), []float64{1.5, -2}, []float64{3}, 1, DefaultConfig())
			require.NoError(t, err)
			require.False(t, report.OK())

			var found bool
			for _, m := range report.Mismatches {
				if m.What == tt.what && m.Row == tt.row && m.Col == tt.col {
					found = true
				}
			}
			assert.True(t, found, "no %s mismatch at (%d,%d) in %+v", tt.what, tt.row, tt.col, report.Mismatches)
		})
	}
}

func TestCheckFindsMissingStructure(t *testing.T) {
	// the Jacobian declares only (0,0), so d g / d x1 is never reported
	p := newProduct("")
	p.JacRows, p.JacCols = []int{0}, []int{0}

	report, err := Check(&singleJacobian{p}, []float64{2, 3}, []float64{0}, 1, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, report.Mismatches, 1)
	m := report.Mismatches[0]
	assert.Equal(t, "jacobian", m.What)
	assert.Equal(t, [2]int{0, 1}, [2]int{m.Row, m.Col})
	assert.Zero(t, m.Analytic)
	assert.InDelta(t, 2.0, m.Approx, 1e-6)
}

type singleJacobian struct{ *product }

func (p *singleJacobian) JacobianValues(x []float64, newX bool, values []float64) error {
	values[0] = x[1]
	return nil
}

func TestCheckPropagatesErrors(t *testing.T) {
	p := newProduct("")
	_, err := Check(p, []float64{1}, []float64{0}, 1, DefaultConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSizeMismatch)

	cause := stderrors.New("domain error")
	failing := nlptest.Banded(3)
	failing.Fail = map[string]error{"Objective": cause}
	_, err = Check(failing, []float64{1, 2, 3}, []float64{0, 0}, 1, DefaultConfig())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, errors.ErrEvaluation)
	assert.Equal(t, "derivcheck.Check: objective: domain error", err.Error())
}

func TestAssemble(t *testing.T) {
	// Fortran triplets with a duplicate at (2,1)
	m := Assemble(2, 3, nlp.FortranStyle, []int{1, 2, 2}, []int{3, 1, 1}, []float64{4, 1, 2})

	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 4.0, m.At(0, 2))
	assert.Equal(t, 3.0, m.At(1, 0))
	assert.Equal(t, 0.0, m.At(0, 0))
}
