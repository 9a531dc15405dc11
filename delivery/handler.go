package delivery

import (
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"login-handshake/delivery/model"
)

const maxBodyBytes = 1_048_576 // 1MB limit

// HTTPEndpoint holds the application dependencies and the live login flows.
type HTTPEndpoint struct {
	app   AppDependencies
	flows *flowRegistry
}

func (h *HTTPEndpoint) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPEndpoint) logger() *zap.Logger {
	if l := h.app.Logger(); l != nil {
		return l
	}
	return zap.NewNop()
}

// decodeBody reads a JSON request body into v, answering 400 itself when
// the body is unusable.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body", "REQUEST_ERROR")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, message, errorType string) {
	writeJSON(w, status, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:      code,
			Message:   message,
			ErrorType: errorType,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
