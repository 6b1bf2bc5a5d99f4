package problems

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/parnlp/internal/nlp"
)

// Chain is a scalable banded problem with n >= 3 variables:
//
//	min  sum_i (x_i - 1)^2 + sum_{i<n-1} x_i*x_{i+1}
//	s.t. 0.5 <= x_j*x_{j+1} + x_{j+2}^2 <= 4,  j = 0..n-3
//	     -10 <= x <= 10
//
// Each constraint row has three nonzeros and the Hessian is lower
// bidiagonal, so every block split cuts through coupled entries.
type Chain struct {
	n int

	Solution *nlp.Solution
}

var (
	_ nlp.Problem = (*Chain)(nil)
	_ nlp.Scaler  = (*Chain)(nil)
)

// NewChain returns a chain problem with n variables.
func NewChain(n int) (*Chain, error) {
	if n < 3 {
		return nil, fmt.Errorf("chain problem needs at least 3 variables, got %d", n)
	}
	return &Chain{n: n}, nil
}

func (p *Chain) Info() (nlp.Info, error) {
	return nlp.Info{
		N:          p.n,
		M:          p.n - 2,
		NNZJac:     3 * (p.n - 2),
		NNZHess:    2*p.n - 1,
		IndexStyle: nlp.CStyle,
	}, nil
}

func (p *Chain) Bounds(xL, xU, gL, gU []float64) error {
	for i := range xL {
		xL[i], xU[i] = -10, 10
	}
	for j := range gL {
		gL[j], gU[j] = 0.5, 4
	}
	return nil
}

func (p *Chain) StartingPoint(init nlp.StartInit, x, zL, zU, lambda []float64) error {
	if init.X {
		for i := range x {
			x[i] = 0.5
		}
	}
	if init.Z {
		clear(zL)
		clear(zU)
	}
	if init.Lambda {
		clear(lambda)
	}
	return nil
}

func (p *Chain) Objective(x []float64, newX bool) (float64, error) {
	f := floats.Dot(x[:p.n-1], x[1:])
	for _, v := range x {
		f += (v - 1) * (v - 1)
	}
	return f, nil
}

func (p *Chain) Gradient(x []float64, newX bool, grad []float64) error {
	for i, v := range x {
		grad[i] = 2 * (v - 1)
		if i > 0 {
			grad[i] += x[i-1]
		}
		if i < p.n-1 {
			grad[i] += x[i+1]
		}
	}
	return nil
}

func (p *Chain) Constraints(x []float64, newX bool, g []float64) error {
	for j := range g {
		g[j] = x[j]*x[j+1] + x[j+2]*x[j+2]
	}
	return nil
}

// JacobianStructure lists row j as (j,j), (j,j+1), (j,j+2).
func (p *Chain) JacobianStructure(iRow, jCol []int) error {
	for j := 0; j < p.n-2; j++ {
		for d := 0; d < 3; d++ {
			iRow[3*j+d], jCol[3*j+d] = j, j+d
		}
	}
	return nil
}

func (p *Chain) JacobianValues(x []float64, newX bool, values []float64) error {
	for j := 0; j < p.n-2; j++ {
		values[3*j] = x[j+1]
		values[3*j+1] = x[j]
		values[3*j+2] = 2 * x[j+2]
	}
	return nil
}

// HessianStructure lists row 0 as (0,0) and row i > 0 as (i,i-1), (i,i).
func (p *Chain) HessianStructure(iRow, jCol []int) error {
	iRow[0], jCol[0] = 0, 0
	for i := 1; i < p.n; i++ {
		iRow[2*i-1], jCol[2*i-1] = i, i-1
		iRow[2*i], jCol[2*i] = i, i
	}
	return nil
}

func (p *Chain) HessianValues(x []float64, newX bool, objFactor float64, lambda []float64, newLambda bool, values []float64) error {
	values[0] = 2 * objFactor
	for i := 1; i < p.n; i++ {
		off := objFactor
		if i-1 < len(lambda) {
			off += lambda[i-1]
		}
		diag := 2 * objFactor
		if i >= 2 {
			diag += 2 * lambda[i-2]
		}
		values[2*i-1] = off
		values[2*i] = diag
	}
	return nil
}

// ScalingParameters scales the objective by 1/n and leaves x and g alone.
func (p *Chain) ScalingParameters(xScaling, gScaling []float64) (nlp.Scaling, error) {
	for i := range xScaling {
		xScaling[i] = 1
	}
	for j := range gScaling {
		gScaling[j] = 1
	}
	return nlp.Scaling{Objective: 1 / float64(p.n)}, nil
}

func (p *Chain) Finalize(sol nlp.Solution) {
	p.Solution = &sol
}
