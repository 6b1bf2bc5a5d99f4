// Package derivcheck compares the analytic derivatives of an nlp.Problem
// against central finite differences.
//
// The gradient is checked against differences of Objective, the Jacobian
// against differences of Constraints and the Hessian of the Lagrangian
// against differences of the analytic Lagrangian gradient. Entries missing
// from a declared structure show up as mismatches at their coordinates.
package derivcheck

import (
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/parnlp/internal/errors"
	"github.com/copyleftdev/parnlp/internal/nlp"
)

const (
	component = "derivcheck"
	operation = "Check"
)

// evalErr marks a failed call into the checked problem.
func evalErr(err error, what string) error {
	return errors.Wrap(err, errors.KindEvaluation, what).
		WithComponent(component).WithOperation(operation)
}

// Config tunes Check.
type Config struct {
	// Tolerance is the largest accepted relative error |a-b|/max(1,|b|).
	Tolerance float64
	// Step is the finite-difference step; zero uses the formula default.
	Step float64
}

// DefaultConfig returns a tolerance of 1e-4 and the default step.
func DefaultConfig() Config {
	return Config{Tolerance: 1e-4}
}

// Mismatch is one derivative entry outside tolerance.
type Mismatch struct {
	What     string  `json:"what"`
	Row      int     `json:"row"`
	Col      int     `json:"col"`
	Analytic float64 `json:"analytic"`
	Approx   float64 `json:"approx"`
	RelErr   float64 `json:"rel_err"`
}

// Report summarizes a check.
type Report struct {
	Checked    int        `json:"checked"`
	MaxRelErr  float64    `json:"max_rel_err"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// OK reports whether every entry was within tolerance.
func (r *Report) OK() bool { return len(r.Mismatches) == 0 }

func (r *Report) compare(what string, row, col int, analytic, approx, tol float64) {
	r.Checked++
	rel := math.Abs(analytic-approx) / math.Max(1, math.Abs(approx))
	if rel > r.MaxRelErr {
		r.MaxRelErr = rel
	}
	if rel > tol {
		r.Mismatches = append(r.Mismatches, Mismatch{
			What: what, Row: row, Col: col, Analytic: analytic, Approx: approx, RelErr: rel,
		})
	}
}

// Check evaluates p's derivatives at x with multipliers lambda and objective
// factor objFactor. lambda must have length m.
func Check(p nlp.Problem, x, lambda []float64, objFactor float64, cfg Config) (*Report, error) {
	info, err := p.Info()
	if err != nil {
		return nil, evalErr(err, "info")
	}
	if len(x) != info.N || len(lambda) != info.M {
		return nil, errors.Errorf(errors.KindSizeMismatch,
			"x has length %d, lambda %d; want %d and %d", len(x), len(lambda), info.N, info.M).
			WithComponent(component).WithOperation(operation)
	}
	if info.N == 0 {
		return &Report{}, nil
	}

	c := checker{p: p, info: info, cfg: cfg, report: &Report{}}
	steps := []func([]float64, []float64, float64) error{c.gradient, c.jacobian, c.hessian}
	for _, step := range steps {
		if err := step(x, lambda, objFactor); err != nil {
			return nil, err
		}
	}
	return c.report, nil
}

type checker struct {
	p       nlp.Problem
	info    nlp.Info
	cfg     Config
	report  *Report
	evalErr error
}

func (c *checker) gradient(x, _ []float64, _ float64) error {
	analytic := make([]float64, c.info.N)
	if err := c.p.Gradient(x, true, analytic); err != nil {
		return evalErr(err, "gradient")
	}

	f := func(y []float64) float64 {
		v, err := c.p.Objective(y, true)
		if err != nil && c.evalErr == nil {
			c.evalErr = err
		}
		return v
	}
	approx := fd.Gradient(nil, f, x, &fd.Settings{Formula: fd.Central, Step: c.cfg.Step})
	if c.evalErr != nil {
		return evalErr(c.evalErr, "objective")
	}

	for i := range analytic {
		c.report.compare("gradient", 0, i, analytic[i], approx[i], c.cfg.Tolerance)
	}
	return nil
}

func (c *checker) jacobian(x, _ []float64, _ float64) error {
	if c.info.M == 0 {
		return nil
	}

	analytic, err := c.assembledJacobian(x)
	if err != nil {
		return err
	}

	approx := mat.NewDense(c.info.M, c.info.N, nil)
	fd.Jacobian(approx, func(y, xx []float64) {
		if err := c.p.Constraints(xx, true, y); err != nil && c.evalErr == nil {
			c.evalErr = err
		}
	}, x, &fd.JacobianSettings{Formula: fd.Central, Step: c.cfg.Step})
	if c.evalErr != nil {
		return evalErr(c.evalErr, "constraints")
	}

	for i := 0; i < c.info.M; i++ {
		for j := 0; j < c.info.N; j++ {
			c.report.compare("jacobian", i, j, analytic.At(i, j), approx.At(i, j), c.cfg.Tolerance)
		}
	}
	return nil
}

// assembledJacobian evaluates the Jacobian triplets and assembles them into
// a dense m x n matrix.
func (c *checker) assembledJacobian(x []float64) (*mat.Dense, error) {
	rows := make([]int, c.info.NNZJac)
	cols := make([]int, c.info.NNZJac)
	vals := make([]float64, c.info.NNZJac)
	if err := c.p.JacobianStructure(rows, cols); err != nil {
		return nil, evalErr(err, "jacobian structure")
	}
	if err := c.p.JacobianValues(x, true, vals); err != nil {
		return nil, evalErr(err, "jacobian values")
	}
	return Assemble(c.info.M, c.info.N, c.info.IndexStyle, rows, cols, vals), nil
}

func (c *checker) hessian(x, lambda []float64, objFactor float64) error {
	rows := make([]int, c.info.NNZHess)
	cols := make([]int, c.info.NNZHess)
	vals := make([]float64, c.info.NNZHess)
	if c.info.NNZHess > 0 {
		if err := c.p.HessianStructure(rows, cols); err != nil {
			return evalErr(err, "hessian structure")
		}
		if err := c.p.HessianValues(x, true, objFactor, lambda, true, vals); err != nil {
			return evalErr(err, "hessian values")
		}
	}
	lower := Assemble(c.info.N, c.info.N, c.info.IndexStyle, rows, cols, vals)

	gradL := func(y, xx []float64) {
		if err := c.lagrangianGradient(y, xx, lambda, objFactor); err != nil && c.evalErr == nil {
			c.evalErr = err
		}
	}
	approx := mat.NewDense(c.info.N, c.info.N, nil)
	fd.Jacobian(approx, gradL, x, &fd.JacobianSettings{Formula: fd.Central, Step: c.cfg.Step})
	if c.evalErr != nil {
		return evalErr(c.evalErr, "lagrangian gradient")
	}

	for i := 0; i < c.info.N; i++ {
		for j := 0; j <= i; j++ {
			sym := (approx.At(i, j) + approx.At(j, i)) / 2
			c.report.compare("hessian", i, j, lower.At(i, j), sym, c.cfg.Tolerance)
		}
	}
	return nil
}

// lagrangianGradient sets y = objFactor*grad f(x) + J(x)^T lambda.
func (c *checker) lagrangianGradient(y, x, lambda []float64, objFactor float64) error {
	if err := c.p.Gradient(x, true, y); err != nil {
		return err
	}
	for i := range y {
		y[i] *= objFactor
	}
	if c.info.M == 0 {
		return nil
	}

	jac, err := c.assembledJacobian(x)
	if err != nil {
		return err
	}
	var jtl mat.VecDense
	jtl.MulVec(jac.T(), mat.NewVecDense(len(lambda), lambda))
	for i := range y {
		y[i] += jtl.AtVec(i)
	}
	return nil
}

// Assemble builds a dense rows x cols matrix from triplets in the given index
// style. Duplicate coordinates are summed on conversion.
func Assemble(rows, cols int, style nlp.IndexStyle, iRow, jCol []int, values []float64) *mat.Dense {
	off := style.Offset()
	r := make([]int, len(iRow))
	c := make([]int, len(jCol))
	for k := range iRow {
		r[k] = iRow[k] - off
		c[k] = jCol[k] - off
	}

	return sparse.NewCOO(rows, cols, r, c, values).ToDense()
}
