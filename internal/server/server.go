package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/parnlp/internal/adapter"
	"github.com/copyleftdev/parnlp/internal/config"
	"github.com/copyleftdev/parnlp/internal/errors"
	"github.com/copyleftdev/parnlp/internal/logging"
)

// Logger defines the logging interface used by the server
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Server exposes partition descriptions, simulated multi-participant
// evaluations and derivative checks of the registered problems over HTTP and
// JSON-RPC. Every request builds its own problems and adapters, so a Server
// holds no per-request state.
type Server struct {
	cfg    *config.Config
	logger Logger
	opts   []adapter.Option
}

// NewServer creates a new server instance. opts are passed to every adapter
// the server builds.
func NewServer(cfg *config.Config, logger Logger, opts ...adapter.Option) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		opts:   opts,
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/partitions", s.handlePartitions)
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/check", s.handleCheck)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// JSON-RPC 2.0 error codes
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

// handleJSONRPC handles JSON-RPC 2.0 requests. Params are a one-element
// array holding the request object.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      interface{}       `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "partition.describe":
		var req ProblemRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.Describe(req)
		}
	case "partition.evaluate":
		var req EvaluateRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.Evaluate(r.Context(), req)
		}
	case "problem.check":
		var req CheckRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.Check(req)
		}
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := rpcServerError
		var re *requestError
		if errors.As(err, &re) || errors.HTTPStatus(err) == http.StatusBadRequest {
			code = rpcInvalidParams
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func decodeParams(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return badRequest("missing required parameters")
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return badRequest("invalid parameter format: %v", err)
	}
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// respond writes result as JSON, or err with a status derived from its kind.
func (s *Server) respond(w http.ResponseWriter, result interface{}, err error) {
	if err != nil {
		status := errors.HTTPStatus(err)
		var re *requestError
		if errors.As(err, &re) {
			status = http.StatusBadRequest
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("Request failed", map[string]interface{}{"error": err.Error()})
		}
		errors.WriteJSON(w, status, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// handlePartitions handles POST /api/v1/partitions
func (s *Server) handlePartitions(w http.ResponseWriter, r *http.Request) {
	var req ProblemRequest
	if err := decodeBody(r, &req); err != nil {
		s.respond(w, nil, err)
		return
	}
	desc, err := s.Describe(req)
	s.respond(w, desc, err)
}

// handleEvaluate handles POST /api/v1/evaluate
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respond(w, nil, err)
		return
	}
	ev, err := s.Evaluate(r.Context(), req)
	s.respond(w, ev, err)
}

// handleCheck handles POST /api/v1/check
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeBody(r, &req); err != nil {
		s.respond(w, nil, err)
		return
	}
	report, err := s.Check(req)
	s.respond(w, report, err)
}
