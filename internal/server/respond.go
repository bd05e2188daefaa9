package server

import (
	"encoding/json"
	"net/http"

	apperrors "ai-pipeline/internal/common/errors"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps any error to the taxonomy's HTTP status and the
// {error, details?, retryAdvice?} body shape.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	std := apperrors.FromError(err)

	s.logger.Warn("request failed", map[string]interface{}{
		"code":      string(std.Code),
		"category":  apperrors.GetErrorCategory(std.Code),
		"retryable": apperrors.IsRetryableErrorCode(std.Code),
	})

	body := map[string]interface{}{"error": std.Message}
	if std.Details != "" {
		body["details"] = std.Details
	}
	if advice := apperrors.RetryAdvice(std.Code); advice != "" {
		body["retryAdvice"] = advice
	}

	writeJSON(w, apperrors.HTTPStatus(std.Code), body)
}
