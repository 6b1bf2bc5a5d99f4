package adapter

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/parnlp/internal/errors"
	"github.com/copyleftdev/parnlp/internal/nlp"
	"github.com/copyleftdev/parnlp/internal/nlp/nlptest"
)

func TestNewSelectsVariant(t *testing.T) {
	prob := nlptest.Banded(4)

	pp, err := New(DefaultConfig(), prob)
	require.NoError(t, err)
	assert.IsType(t, &Wrapper{}, pp)

	pp, err = New(Config{}, prob)
	require.NoError(t, err)
	assert.IsType(t, &Wrapper{}, pp)

	pp, err = New(Config{Mode: ModeFull}, prob)
	require.NoError(t, err)
	assert.IsType(t, &direct{}, pp)

	_, err = New(Config{Mode: "mpi"}, prob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	assert.Contains(t, err.Error(), "adapter.New")

	_, err = New(DefaultConfig(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestNewOptionsOverrideConfig(t *testing.T) {
	pp, err := New(Config{Mode: ModePartitioned, CheckStructure: true}, nlptest.Banded(4), WithStructureCheck(false))
	require.NoError(t, err)
	assert.False(t, pp.(*Wrapper).recheck)
}

func TestDirectForwardsWholeProblem(t *testing.T) {
	prob := nlptest.Banded(5)
	info := fullSpace(t, prob)
	pp, err := New(Config{Mode: ModeFull, CheckStructure: true}, prob)
	require.NoError(t, err)
	p := nlp.Whole(info)

	pinfo, err := pp.Info(p)
	require.NoError(t, err)
	assert.Equal(t, info.NNZJac, pinfo.NNZJac)
	assert.Equal(t, info.NNZHess, pinfo.NNZHess)
	assert.Equal(t, p, pinfo.Partition)

	iRow, jCol := make([]int, info.NNZJac), make([]int, info.NNZJac)
	require.NoError(t, pp.JacobianStructure(p, iRow, jCol))
	assert.Equal(t, prob.JacRows, iRow)

	x := nlptest.Seq(info.N, 0.5, 0.5)
	lambda := nlptest.Seq(info.M, 1, 1)
	hess := make([]float64, info.NNZHess)
	require.NoError(t, pp.HessianValues(p, x, true, 2, lambda, true, hess))
	for k := range hess {
		assert.Equal(t, prob.HessianValue(k, 2, lambda), hess[k])
	}

	xS, gS := make([]float64, info.N), make([]float64, info.M)
	sc, err := pp.ScalingParameters(p, xS, gS)
	require.NoError(t, err)
	assert.Equal(t, 2.0, sc.Objective)
	assert.Equal(t, 5.0, xS[4])
}

func TestDirectRejectsProperPartition(t *testing.T) {
	prob := nlptest.Banded(4)
	pp, err := New(Config{Mode: ModeFull}, prob)
	require.NoError(t, err)

	p := nlptest.BlockPartitions(4, 3, 2)[0]
	_, err = pp.Info(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPartitionGap))
}

func TestDirectChecksSizes(t *testing.T) {
	prob := nlptest.Banded(4)
	info := fullSpace(t, prob)
	pp, err := New(Config{Mode: ModeFull}, prob)
	require.NoError(t, err)
	p := nlp.Whole(info)

	values := []float64{9, 9}
	err = pp.JacobianValues(p, nlptest.Seq(4, 1, 1), true, values)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSizeMismatch))
	assert.Equal(t, []float64{9, 9}, values)
}

func TestDirectStructureRecheck(t *testing.T) {
	prob := nlptest.Banded(4)
	info := fullSpace(t, prob)
	pp, err := New(Config{Mode: ModeFull, CheckStructure: true}, prob)
	require.NoError(t, err)
	p := nlp.Whole(info)

	_, err = pp.Info(p)
	require.NoError(t, err)

	prob.N = 5
	_, err = pp.Info(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProblemSizeMismatch))
}

func TestDirectQueriesInfoOncePerStructuralCall(t *testing.T) {
	rec := nlptest.NewRecorder(nlptest.Banded(4))
	pp, err := New(Config{Mode: ModeFull, CheckStructure: true}, rec)
	require.NoError(t, err)

	p := nlp.Partition{NumProc: 1, NLast: 4, MLast: 3}
	pinfo, err := pp.Info(p)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Calls["Info"])

	require.NoError(t, pp.JacobianStructure(p, make([]int, pinfo.NNZJac), make([]int, pinfo.NNZJac)))
	assert.Equal(t, 2, rec.Calls["Info"])

	_, err = pp.Objective(p, nlptest.Seq(4, 1, 1), true)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Calls["Info"])
}

func TestMetricsRecordMapBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	prob := nlptest.Banded(6)
	p := nlptest.BlockPartitions(6, 5, 2)[1]

	w := NewWrapper(prob, WithMetrics(metrics))
	pinfo, err := w.Info(p)
	require.NoError(t, err)
	_, err = w.Info(p)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.evaluations.WithLabelValues("Info")))
	assert.Equal(t, float64(pinfo.NNZJac), testutil.ToFloat64(metrics.nonzeros.WithLabelValues("jacobian", "1")))
	assert.Equal(t, float64(pinfo.NNZHess), testutil.ToFloat64(metrics.nonzeros.WithLabelValues("hessian", "1")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "parnlp_index_map_build_seconds")
	assert.Contains(t, names, "parnlp_evaluations_total")
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.evaluation("Info")
		m.failure("Info", errors.KindEvaluation)
	})
}
