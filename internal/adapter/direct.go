package adapter

import (
	"go.uber.org/zap"

	"github.com/copyleftdev/parnlp/internal/errors"
	"github.com/copyleftdev/parnlp/internal/nlp"
	"github.com/copyleftdev/parnlp/internal/sparsity"
)

// direct is the full-space variant: the caller is the only participant, so
// local and global numbering coincide and buffers go straight to the problem.
type direct struct {
	problem   nlp.Problem
	harvester *sparsity.Harvester
	logger    *zap.Logger
	metrics   *Metrics
	recheck   bool
}

var _ nlp.PartitionedProblem = (*direct)(nil)

func newDirect(p nlp.Problem, opts ...Option) *direct {
	o := buildOptions(opts)
	return &direct{
		problem:   p,
		harvester: sparsity.NewHarvester(p),
		logger:    o.logger.Named(component).With(zap.String("mode", string(ModeFull))),
		metrics:   o.metrics,
		recheck:   o.recheck,
	}
}

func (d *direct) begin(op string, p nlp.Partition, structural bool) (nlp.Info, error) {
	d.metrics.evaluation(op)

	// Recheck harvests on first use, so Info is queried once per call.
	if structural && d.recheck {
		if err := d.harvester.Recheck(); err != nil {
			return nlp.Info{}, d.fail(op, err)
		}
	}
	info, err := d.harvester.Harvest()
	if err != nil {
		return info, d.fail(op, err)
	}
	if !p.IsWhole(info) {
		return info, d.fail(op, errors.Errorf(errors.KindPartitionGap,
			"full-space mode serves only the whole problem, got %+v", p))
	}
	return info, nil
}

func (d *direct) fail(op string, err error) error {
	var e *errors.Error
	if errors.As(err, &e) && e.Operation == "" {
		e.WithComponent(component).WithOperation(op)
	}
	d.metrics.failure(op, errors.KindOf(err))
	d.logger.Warn("full-space call failed", zap.String("op", op), zap.Error(err))
	return err
}

func (d *direct) eval(op string, err error) error {
	if err == nil {
		return nil
	}
	return d.fail(op, evalErr(op, err))
}

func (d *direct) Info(p nlp.Partition) (nlp.PartitionInfo, error) {
	info, err := d.begin("Info", p, true)
	if err != nil {
		return nlp.PartitionInfo{}, err
	}
	return nlp.PartitionInfo{
		N:          info.N,
		M:          info.M,
		Partition:  p,
		NNZJac:     info.NNZJac,
		NNZHess:    info.NNZHess,
		IndexStyle: info.IndexStyle,
	}, nil
}

func (d *direct) Bounds(p nlp.Partition, xL, xU, gL, gU []float64) error {
	const op = "Bounds"
	info, err := d.begin(op, p, false)
	if err != nil {
		return err
	}
	if err := firstErr(
		sizeErr("x lower bounds", len(xL), info.N), sizeErr("x upper bounds", len(xU), info.N),
		sizeErr("g lower bounds", len(gL), info.M), sizeErr("g upper bounds", len(gU), info.M),
	); err != nil {
		return d.fail(op, err)
	}
	return d.eval(op, d.problem.Bounds(xL, xU, gL, gU))
}

func (d *direct) StartingPoint(p nlp.Partition, init nlp.StartInit, x, zL, zU, lambda []float64) error {
	const op = "StartingPoint"
	info, err := d.begin(op, p, false)
	if err != nil {
		return err
	}
	var checks []error
	if init.X {
		checks = append(checks, sizeErr("x", len(x), info.N))
	}
	if init.Z {
		checks = append(checks, sizeErr("z lower", len(zL), info.N), sizeErr("z upper", len(zU), info.N))
	}
	if init.Lambda {
		checks = append(checks, sizeErr("lambda", len(lambda), info.M))
	}
	if err := firstErr(checks...); err != nil {
		return d.fail(op, err)
	}
	return d.eval(op, d.problem.StartingPoint(init, x, zL, zU, lambda))
}

func (d *direct) Objective(p nlp.Partition, x []float64, newX bool) (float64, error) {
	const op = "Objective"
	info, err := d.begin(op, p, false)
	if err != nil {
		return 0, err
	}
	if err := sizeErr("x", len(x), info.N); err != nil {
		return 0, d.fail(op, err)
	}
	f, err := d.problem.Objective(x, newX)
	return f, d.eval(op, err)
}

func (d *direct) Gradient(p nlp.Partition, x []float64, newX bool, grad []float64) error {
	const op = "Gradient"
	info, err := d.begin(op, p, false)
	if err != nil {
		return err
	}
	if err := firstErr(sizeErr("x", len(x), info.N), sizeErr("gradient", len(grad), info.N)); err != nil {
		return d.fail(op, err)
	}
	return d.eval(op, d.problem.Gradient(x, newX, grad))
}

func (d *direct) Constraints(p nlp.Partition, x []float64, newX bool, g []float64) error {
	const op = "Constraints"
	info, err := d.begin(op, p, false)
	if err != nil {
		return err
	}
	if err := firstErr(sizeErr("x", len(x), info.N), sizeErr("constraints", len(g), info.M)); err != nil {
		return d.fail(op, err)
	}
	return d.eval(op, d.problem.Constraints(x, newX, g))
}

func (d *direct) JacobianStructure(p nlp.Partition, iRow, jCol []int) error {
	const op = "JacobianStructure"
	info, err := d.begin(op, p, true)
	if err != nil {
		return err
	}
	if err := firstErr(sizeErr("jacobian rows", len(iRow), info.NNZJac), sizeErr("jacobian columns", len(jCol), info.NNZJac)); err != nil {
		return d.fail(op, err)
	}
	return d.eval(op, d.problem.JacobianStructure(iRow, jCol))
}

func (d *direct) JacobianValues(p nlp.Partition, x []float64, newX bool, values []float64) error {
	const op = "JacobianValues"
	info, err := d.begin(op, p, false)
	if err != nil {
		return err
	}
	if err := firstErr(sizeErr("x", len(x), info.N), sizeErr("jacobian values", len(values), info.NNZJac)); err != nil {
		return d.fail(op, err)
	}
	return d.eval(op, d.problem.JacobianValues(x, newX, values))
}

func (d *direct) HessianStructure(p nlp.Partition, iRow, jCol []int) error {
	const op = "HessianStructure"
	info, err := d.begin(op, p, true)
	if err != nil {
		return err
	}
	if err := firstErr(sizeErr("hessian rows", len(iRow), info.NNZHess), sizeErr("hessian columns", len(jCol), info.NNZHess)); err != nil {
		return d.fail(op, err)
	}
	return d.eval(op, d.problem.HessianStructure(iRow, jCol))
}

func (d *direct) HessianValues(p nlp.Partition, x []float64, newX bool, objFactor float64, lambda []float64, newLambda bool, values []float64) error {
	const op = "HessianValues"
	info, err := d.begin(op, p, false)
	if err != nil {
		return err
	}
	if err := firstErr(
		sizeErr("x", len(x), info.N),
		sizeErr("lambda", len(lambda), info.M),
		sizeErr("hessian values", len(values), info.NNZHess),
	); err != nil {
		return d.fail(op, err)
	}
	return d.eval(op, d.problem.HessianValues(x, newX, objFactor, lambda, newLambda, values))
}

func (d *direct) ScalingParameters(p nlp.Partition, xScaling, gScaling []float64) (nlp.Scaling, error) {
	const op = "ScalingParameters"
	info, err := d.begin(op, p, false)
	if err != nil {
		return nlp.Scaling{}, err
	}
	scaler, ok := d.problem.(nlp.Scaler)
	if !ok {
		return nlp.Scaling{Objective: 1}, nil
	}
	if err := firstErr(sizeErr("x scaling", len(xScaling), info.N), sizeErr("g scaling", len(gScaling), info.M)); err != nil {
		return nlp.Scaling{}, d.fail(op, err)
	}
	sc, err := scaler.ScalingParameters(xScaling, gScaling)
	return sc, d.eval(op, err)
}

func (d *direct) Finalize(sol nlp.Solution) {
	d.problem.Finalize(sol)
}

func (d *direct) Intermediate(stats nlp.IterationStats) bool {
	if m, ok := d.problem.(nlp.Monitor); ok {
		return m.Intermediate(stats)
	}
	return true
}
