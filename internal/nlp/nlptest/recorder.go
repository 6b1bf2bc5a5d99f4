package nlptest

import "github.com/copyleftdev/parnlp/internal/nlp"

// Recorder wraps an nlp.Problem and counts calls per method name.
type Recorder struct {
	nlp.Problem
	Calls map[string]int
}

// NewRecorder wraps p.
func NewRecorder(p nlp.Problem) *Recorder {
	return &Recorder{Problem: p, Calls: make(map[string]int)}
}

func (r *Recorder) Info() (nlp.Info, error) {
	r.Calls["Info"]++
	return r.Problem.Info()
}

func (r *Recorder) Objective(x []float64, newX bool) (float64, error) {
	r.Calls["Objective"]++
	return r.Problem.Objective(x, newX)
}

func (r *Recorder) Gradient(x []float64, newX bool, grad []float64) error {
	r.Calls["Gradient"]++
	return r.Problem.Gradient(x, newX, grad)
}

func (r *Recorder) Constraints(x []float64, newX bool, g []float64) error {
	r.Calls["Constraints"]++
	return r.Problem.Constraints(x, newX, g)
}

func (r *Recorder) JacobianStructure(iRow, jCol []int) error {
	r.Calls["JacobianStructure"]++
	return r.Problem.JacobianStructure(iRow, jCol)
}

func (r *Recorder) JacobianValues(x []float64, newX bool, values []float64) error {
	r.Calls["JacobianValues"]++
	return r.Problem.JacobianValues(x, newX, values)
}

func (r *Recorder) HessianStructure(iRow, jCol []int) error {
	r.Calls["HessianStructure"]++
	return r.Problem.HessianStructure(iRow, jCol)
}

func (r *Recorder) HessianValues(x []float64, newX bool, objFactor float64, lambda []float64, newLambda bool, values []float64) error {
	r.Calls["HessianValues"]++
	return r.Problem.HessianValues(x, newX, objFactor, lambda, newLambda, values)
}
