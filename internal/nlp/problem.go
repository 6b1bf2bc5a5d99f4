// Package nlp defines the two capability interfaces of an evaluable nonlinear
// program: a full-space Problem, as a serial modelling layer implements it, and
// a PartitionedProblem, as a distributed interior-point solver drives it.
//
// Sparse derivatives use coordinate format. A structure call fills the row and
// column arrays once; value calls then fill values in the same order. Row and
// column numbers follow the problem's IndexStyle.
package nlp

import "math"

// Infinity is the bound magnitude treated as "no bound".
var Infinity = math.Inf(1)

// IndexStyle is the numbering convention of triplet coordinates.
type IndexStyle int

const (
	// CStyle numbers rows and columns from 0.
	CStyle IndexStyle = 0
	// FortranStyle numbers rows and columns from 1.
	FortranStyle IndexStyle = 1
)

// Offset returns the value added to a 0-based index in this style.
func (s IndexStyle) Offset() int {
	if s == FortranStyle {
		return 1
	}
	return 0
}

// String implements fmt.Stringer.
func (s IndexStyle) String() string {
	if s == FortranStyle {
		return "fortran"
	}
	return "c"
}

// Info describes the size and sparsity counts of a full-space problem.
type Info struct {
	N          int        // number of variables
	M          int        // number of constraints
	NNZJac     int        // structural nonzeros of the constraint Jacobian
	NNZHess    int        // structural nonzeros of the lower triangle of the Lagrangian Hessian
	IndexStyle IndexStyle // numbering of triplet coordinates
}

// PartitionInfo is Info scoped to one participant. N and M stay global; the
// nonzero counts are the participant's local counts.
type PartitionInfo struct {
	N, M       int
	Partition  Partition
	NNZJac     int
	NNZHess    int
	IndexStyle IndexStyle
}

// StartInit selects which starting values the solver requests.
type StartInit struct {
	X      bool
	Z      bool // bound multipliers zL and zU
	Lambda bool
}

// Scaling holds user-provided scaling. XScaling and GScaling are filled into
// caller buffers; only the flags and the objective factor travel here.
type Scaling struct {
	Objective float64
	UseX      bool
	UseG      bool
}

// SolverReturn is the termination status reported to Finalize.
type SolverReturn int

const (
	Success SolverReturn = iota
	MaxIterExceeded
	StopAtTinyStep
	StopAtAcceptablePoint
	LocalInfeasibility
	UserRequestedStop
	DivergingIterates
	RestorationFailure
	ErrorInStepComputation
	InvalidNumberDetected
	InternalError
)

// String implements fmt.Stringer.
func (r SolverReturn) String() string {
	switch r {
	case Success:
		return "success"
	case MaxIterExceeded:
		return "max_iter_exceeded"
	case StopAtTinyStep:
		return "stop_at_tiny_step"
	case StopAtAcceptablePoint:
		return "stop_at_acceptable_point"
	case LocalInfeasibility:
		return "local_infeasibility"
	case UserRequestedStop:
		return "user_requested_stop"
	case DivergingIterates:
		return "diverging_iterates"
	case RestorationFailure:
		return "restoration_failure"
	case ErrorInStepComputation:
		return "error_in_step_computation"
	case InvalidNumberDetected:
		return "invalid_number_detected"
	default:
		return "internal_error"
	}
}

// Solution is the full-space final iterate handed to Finalize.
type Solution struct {
	Status    SolverReturn
	X         []float64
	ZL, ZU    []float64
	G         []float64
	Lambda    []float64
	Objective float64
}

// AlgorithmMode tells whether an iteration belongs to the regular or the
// restoration phase.
type AlgorithmMode int

const (
	RegularMode AlgorithmMode = iota
	RestorationPhaseMode
)

// IterationStats is the progress report passed to Intermediate.
type IterationStats struct {
	Mode               AlgorithmMode
	Iter               int
	Objective          float64
	InfPr, InfDu       float64
	Mu                 float64
	DNorm              float64
	RegularizationSize float64
	AlphaDu, AlphaPr   float64
	LSTrials           int
}

// Problem is the full-space capability. All vectors are full length: n for
// variables, m for constraints, Info().NNZJac/NNZHess for derivative values.
// newX is false when x equals the previous call's x; newLambda likewise.
type Problem interface {
	Info() (Info, error)
	Bounds(xL, xU, gL, gU []float64) error
	StartingPoint(init StartInit, x, zL, zU, lambda []float64) error
	Objective(x []float64, newX bool) (float64, error)
	Gradient(x []float64, newX bool, grad []float64) error
	Constraints(x []float64, newX bool, g []float64) error
	JacobianStructure(iRow, jCol []int) error
	JacobianValues(x []float64, newX bool, values []float64) error
	// HessianStructure reports the lower triangle only (row >= col).
	HessianStructure(iRow, jCol []int) error
	HessianValues(x []float64, newX bool, objFactor float64, lambda []float64, newLambda bool, values []float64) error
	Finalize(sol Solution)
}

// Scaler is implemented by problems that supply their own scaling.
type Scaler interface {
	ScalingParameters(xScaling, gScaling []float64) (Scaling, error)
}

// Monitor is implemented by problems that observe solver progress. Returning
// false asks the solver to stop.
type Monitor interface {
	Intermediate(stats IterationStats) bool
}

// PartitionedProblem is the capability a distributed solver drives. Every call
// names the caller's partition. x and lambda inputs are full length; outputs
// are local: NumVars() long for variable quantities, NumCons() long for
// constraint quantities and PartitionInfo.NNZJac/NNZHess long for derivative
// triplets. The objective value and objective scaling are global scalars.
// Triplet rows are shifted to the partition's first constraint (Jacobian) or
// first variable (Hessian); triplet columns keep full-space numbering.
type PartitionedProblem interface {
	Info(p Partition) (PartitionInfo, error)
	Bounds(p Partition, xL, xU, gL, gU []float64) error
	StartingPoint(p Partition, init StartInit, x, zL, zU, lambda []float64) error
	Objective(p Partition, x []float64, newX bool) (float64, error)
	Gradient(p Partition, x []float64, newX bool, grad []float64) error
	Constraints(p Partition, x []float64, newX bool, g []float64) error
	JacobianStructure(p Partition, iRow, jCol []int) error
	JacobianValues(p Partition, x []float64, newX bool, values []float64) error
	HessianStructure(p Partition, iRow, jCol []int) error
	HessianValues(p Partition, x []float64, newX bool, objFactor float64, lambda []float64, newLambda bool, values []float64) error
	ScalingParameters(p Partition, xScaling, gScaling []float64) (Scaling, error)
	Finalize(sol Solution)
	Intermediate(stats IterationStats) bool
}
