package problems

import (
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/parnlp/internal/nlp"
)

// HS071 is problem 71 of the Hock-Schittkowski collection:
//
//	min  x0*x3*(x0+x1+x2) + x2
//	s.t. x0*x1*x2*x3 >= 25
//	     x0^2 + x1^2 + x2^2 + x3^2 = 40
//	     1 <= x <= 5
//
// The Jacobian is dense (8 entries) and the Hessian lower triangle is dense
// (10 entries).
type HS071 struct {
	Solution *nlp.Solution
}

var _ nlp.Problem = (*HS071)(nil)

func (p *HS071) Info() (nlp.Info, error) {
	return nlp.Info{N: 4, M: 2, NNZJac: 8, NNZHess: 10, IndexStyle: nlp.CStyle}, nil
}

func (p *HS071) Bounds(xL, xU, gL, gU []float64) error {
	for i := range xL {
		xL[i], xU[i] = 1, 5
	}
	gL[0], gU[0] = 25, nlp.Infinity
	gL[1], gU[1] = 40, 40
	return nil
}

func (p *HS071) StartingPoint(init nlp.StartInit, x, zL, zU, lambda []float64) error {
	if init.X {
		copy(x, []float64{1, 5, 5, 1})
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

func (p *HS071) Objective(x []float64, newX bool) (float64, error) {
	return x[0]*x[3]*floats.Sum(x[:3]) + x[2], nil
}

func (p *HS071) Gradient(x []float64, newX bool, grad []float64) error {
	s := floats.Sum(x[:3])
	grad[0] = x[0]*x[3] + x[3]*s
	grad[1] = x[0] * x[3]
	grad[2] = x[0]*x[3] + 1
	grad[3] = x[0] * s
	return nil
}

func (p *HS071) Constraints(x []float64, newX bool, g []float64) error {
	g[0] = floats.Prod(x)
	g[1] = floats.Dot(x, x)
	return nil
}

func (p *HS071) JacobianStructure(iRow, jCol []int) error {
	k := 0
	for row := 0; row < 2; row++ {
		for col := 0; col < 4; col++ {
			iRow[k], jCol[k] = row, col
			k++
		}
	}
	return nil
}

func (p *HS071) JacobianValues(x []float64, newX bool, values []float64) error {
	values[0] = x[1] * x[2] * x[3]
	values[1] = x[0] * x[2] * x[3]
	values[2] = x[0] * x[1] * x[3]
	values[3] = x[0] * x[1] * x[2]

	for i := 0; i < 4; i++ {
		values[4+i] = 2 * x[i]
	}
	return nil
}

// HessianStructure lists the lower triangle row by row.
func (p *HS071) HessianStructure(iRow, jCol []int) error {
	k := 0
	for row := 0; row < 4; row++ {
		for col := 0; col <= row; col++ {
			iRow[k], jCol[k] = row, col
			k++
		}
	}
	return nil
}

func (p *HS071) HessianValues(x []float64, newX bool, objFactor float64, lambda []float64, newLambda bool, values []float64) error {
	// objective
	values[0] = objFactor * 2 * x[3]
	values[1] = objFactor * x[3]
	values[2] = 0
	values[3] = objFactor * x[3]
	values[4] = 0
	values[5] = 0
	values[6] = objFactor * (2*x[0] + x[1] + x[2])
	values[7] = objFactor * x[0]
	values[8] = objFactor * x[0]
	values[9] = 0

	// x0*x1*x2*x3
	values[1] += lambda[0] * x[2] * x[3]
	values[3] += lambda[0] * x[1] * x[3]
	values[4] += lambda[0] * x[0] * x[3]
	values[6] += lambda[0] * x[1] * x[2]
	values[7] += lambda[0] * x[0] * x[2]
	values[8] += lambda[0] * x[0] * x[1]

	// sum of squares
	values[0] += lambda[1] * 2
	values[2] += lambda[1] * 2
	values[5] += lambda[1] * 2
	values[9] += lambda[1] * 2
	return nil
}

func (p *HS071) Finalize(sol nlp.Solution) {
	p.Solution = &sol
}
