package errors

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/copyleftdev/parnlp/internal/logging"
)

// RecoveryMiddleware returns a middleware that turns a panic in a handler
// into a logged 500 response.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("Recovered from panic", map[string]interface{}{
					"error":      rec,
					"stack":      string(debug.Stack()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"request_id": middleware.GetReqID(r.Context()),
				})
				WriteJSON(w, http.StatusInternalServerError, New(KindUnknown, "internal error"))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// HTTPStatus maps an error's kind to a response status. Contract violations
// by the caller are 4xx; evaluation failures are 422 since the request was
// well formed but the problem could not be evaluated there.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindPartitionGap, KindSizeMismatch, KindProblemSizeMismatch, KindInvalidArgument:
		return http.StatusBadRequest
	case KindEvaluation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes err as {"error": ..., "kind": ...} with the given status.
func WriteJSON(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"kind":  KindOf(err).String(),
	})
}
