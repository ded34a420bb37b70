// errors.go maps the engine's typed error taxonomy onto the wire's status
// code and JSON error envelope ({"error": {"code","message","details?"}}).
//
// © 2025 kvshard authors. MIT License.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Voskan/kvshard/pkg/kvengine"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps an engine error Kind to its HTTP status code.
func statusFor(kind kvengine.Kind) int {
	switch kind {
	case kvengine.KindBadRequest:
		return http.StatusBadRequest
	case kvengine.KindUnauthorized:
		return http.StatusUnauthorized
	case kvengine.KindNotFound:
		return http.StatusNotFound
	case kvengine.KindConflict:
		return http.StatusConflict
	case kvengine.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case kvengine.KindOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the standard JSON error envelope. Overloaded
// responses carry Retry-After: 0 so clients fail over to another replica
// instead of backing off against this one.
func writeError(w http.ResponseWriter, err *kvengine.Error) {
	status := statusFor(err.Kind)
	if err.Kind == kvengine.KindOverloaded {
		w.Header().Set("Retry-After", "0")
	}
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(err.Kind),
		Message: err.Message,
		Details: err.Details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
