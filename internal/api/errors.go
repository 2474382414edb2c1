package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/studyflow/internal/ai"
	"github.com/p-n-ai/studyflow/internal/progression"
)

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

// writeError maps an error kind to a status code. Internal details of
// unclassified errors are logged, not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := progression.KindOf(err)
	body := errorBody{Error: err.Error(), Kind: kind.String()}
	status := http.StatusInternalServerError

	switch kind {
	case progression.KindNotFound:
		status = http.StatusNotFound
		body.Error = "not found"
	case progression.KindValidation:
		status = http.StatusBadRequest
	case progression.KindTransient:
		status = http.StatusServiceUnavailable
		body.Error = "temporarily unavailable, please retry"
		body.Retryable = true
	case progression.KindUpstreamGeneration:
		status = http.StatusBadGateway
		body.Error = "Failed to generate learning path."
		var ue *ai.UpstreamError
		if errors.As(err, &ue) {
			body.Error = ue.Message
		}
		body.Retryable = errors.Is(err, ai.ErrRateLimited) || errors.Is(err, ai.ErrUnavailable)
	default:
		body.Error = "internal error"
		body.Kind = ""
	}

	if status >= 500 {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"user_id", UserID(r.Context()),
			"request_id", RequestID(r.Context()),
			"kind", kind.String(),
			"error", err,
		)
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &validationError{msg: "invalid request body: " + err.Error()}
	}
	return nil
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return progression.ErrValidation }
