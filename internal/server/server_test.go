package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/parnlp/internal/adapter"
	"github.com/copyleftdev/parnlp/internal/config"
	"github.com/copyleftdev/parnlp/internal/logging"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second

	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"

	cfg.Adapter.Mode = string(adapter.ModePartitioned)
	cfg.Adapter.CheckStructure = true

	cfg.Problems.Default = "chain"
	cfg.Problems.DefaultSize = 10
	cfg.Problems.MaxSize = 64
	cfg.Problems.MaxProcs = 8
	cfg.Problems.FDTolerance = 1e-4

	return cfg
}

func testServer(t *testing.T, cfg *config.Config, opts ...adapter.Option) (*Server, chi.Router) {
	t.Helper()
	srv := NewServer(cfg, logging.New(logging.ErrorLevel, io.Discard), opts...)
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r
}

func post(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPartitionsEndpoint(t *testing.T) {
	_, r := testServer(t, testConfig(t))

	rec := post(t, r, "/api/v1/partitions", ProblemRequest{Problem: "chain", Size: 10, NumProc: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var desc Description
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&desc))
	assert.Equal(t, 10, desc.N)
	assert.Equal(t, 8, desc.M)
	assert.True(t, desc.Verified, desc.VerifyError)
	require.Len(t, desc.Participants, 3)

	var nnzJac, nnzHess int
	for i, p := range desc.Participants {
		assert.Equal(t, i, p.Partition.ProcID)
		assert.Equal(t, i*10/3, p.Partition.NFirst)
		nnzJac += p.NNZJac
		nnzHess += p.NNZHess
	}
	assert.Equal(t, desc.NNZJac, nnzJac)
	assert.Equal(t, desc.NNZHess, nnzHess)
}

func TestEvaluateEndpointIsConsistent(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, r := testServer(t, testConfig(t), adapter.WithMetrics(adapter.NewMetrics(reg)))

	tests := []struct {
		name string
		req  EvaluateRequest
	}{
		{"chain split four ways", EvaluateRequest{ProblemRequest: ProblemRequest{Problem: "chain", Size: 11, NumProc: 4}}},
		{"hs071 split in two", EvaluateRequest{
			ProblemRequest: ProblemRequest{Problem: "hs071", NumProc: 2},
			X:              []float64{1.1, 4.2, 3.9, 1.5},
			Lambda:         []float64{-0.5, 2},
		}},
		{"defaults", EvaluateRequest{}},
		{"more participants than variables", EvaluateRequest{ProblemRequest: ProblemRequest{Problem: "hs071", NumProc: 6}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, r, "/api/v1/evaluate", tt.req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var ev Evaluation
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&ev))
			assert.True(t, ev.Consistent, "%+v", ev.Deviations)
			assert.Zero(t, ev.Deviations.Jacobian)
			assert.Zero(t, ev.Deviations.Hessian)
		})
	}

	assert.Equal(t, float64(4+2+1+6), evaluations(t, reg, "HessianValues"))
}

// evaluations reads parnlp_evaluations_total for op from reg.
func evaluations(t *testing.T, reg *prometheus.Registry, op string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "parnlp_evaluations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "op" && l.GetValue() == op {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestEvaluateEndpointRejectsBadInput(t *testing.T) {
	_, r := testServer(t, testConfig(t))

	tests := []struct {
		name string
		body interface{}
	}{
		{"unknown problem", EvaluateRequest{ProblemRequest: ProblemRequest{Problem: "rosenbrock"}}},
		{"too large", EvaluateRequest{ProblemRequest: ProblemRequest{Problem: "chain", Size: 100000}}},
		{"negative size", EvaluateRequest{ProblemRequest: ProblemRequest{Problem: "chain", Size: -3}}},
		{"too many participants", EvaluateRequest{ProblemRequest: ProblemRequest{NumProc: 9}}},
		{"short x", EvaluateRequest{ProblemRequest: ProblemRequest{Problem: "hs071"}, X: []float64{1, 2}}},
		{"malformed", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, r, "/api/v1/evaluate", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestFullModeServesOneParticipant(t *testing.T) {
	cfg := testConfig(t)
	cfg.Adapter.Mode = string(adapter.ModeFull)
	_, r := testServer(t, cfg)

	rec := post(t, r, "/api/v1/evaluate", EvaluateRequest{ProblemRequest: ProblemRequest{Problem: "hs071", NumProc: 1}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = post(t, r, "/api/v1/evaluate", EvaluateRequest{ProblemRequest: ProblemRequest{Problem: "hs071", NumProc: 2}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "partition_gap", body["kind"])
}

func TestCheckEndpoint(t *testing.T) {
	_, r := testServer(t, testConfig(t))

	for _, name := range []string{"hs071", "chain"} {
		rec := post(t, r, "/api/v1/check", CheckRequest{Problem: name, Size: 6})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var report struct {
			Checked    int           `json:"checked"`
			Mismatches []interface{} `json:"mismatches"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
		assert.Positive(t, report.Checked)
		assert.Empty(t, report.Mismatches, name)
	}
}

func rpc(t *testing.T, r http.Handler, method string, params ...interface{}) map[string]interface{} {
	t.Helper()
	rec := post(t, r, "/rpc", map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "2.0", resp["jsonrpc"])
	return resp
}

func TestJSONRPC(t *testing.T) {
	_, r := testServer(t, testConfig(t))

	t.Run("describe", func(t *testing.T) {
		resp := rpc(t, r, "partition.describe", ProblemRequest{Problem: "hs071", NumProc: 2})
		result, ok := resp["result"].(map[string]interface{})
		require.True(t, ok, "%v", resp)
		assert.Equal(t, true, result["verified"])
		assert.Len(t, result["participants"], 2)
	})

	t.Run("evaluate", func(t *testing.T) {
		resp := rpc(t, r, "partition.evaluate", EvaluateRequest{ProblemRequest: ProblemRequest{Problem: "chain", Size: 7, NumProc: 3}})
		result, ok := resp["result"].(map[string]interface{})
		require.True(t, ok, "%v", resp)
		assert.Equal(t, true, result["consistent"])
	})

	t.Run("check", func(t *testing.T) {
		resp := rpc(t, r, "problem.check", CheckRequest{Problem: "hs071"})
		_, ok := resp["result"].(map[string]interface{})
		assert.True(t, ok, "%v", resp)
	})

	t.Run("unknown method", func(t *testing.T) {
		resp := rpc(t, r, "solver.run")
		rpcErr := resp["error"].(map[string]interface{})
		assert.Equal(t, float64(rpcMethodNotFound), rpcErr["code"])
	})

	t.Run("missing params", func(t *testing.T) {
		resp := rpc(t, r, "partition.describe")
		rpcErr := resp["error"].(map[string]interface{})
		assert.Equal(t, float64(rpcInvalidParams), rpcErr["code"])
	})

	t.Run("wrong version", func(t *testing.T) {
		rec := post(t, r, "/rpc", map[string]interface{}{"jsonrpc": "1.0", "id": 2, "method": "problem.check"})
		var resp map[string]interface{}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		rpcErr := resp["error"].(map[string]interface{})
		assert.Equal(t, float64(rpcInvalidRequest), rpcErr["code"])
	})
}

func TestBlockPartitionsTile(t *testing.T) {
	parts := blockPartitions(7, 3, 4)
	require.Len(t, parts, 4)
	assert.Equal(t, 0, parts[0].NFirst)
	assert.Equal(t, 7, parts[3].NLast)
	assert.Equal(t, 3, parts[3].MLast)
	for i := 1; i < len(parts); i++ {
		assert.Equal(t, parts[i-1].NLast, parts[i].NFirst)
		assert.Equal(t, parts[i-1].MLast, parts[i].MFirst)
	}
}
