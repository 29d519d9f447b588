package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"archie-core-sync-layer/internal/domain"

	"github.com/rs/zerolog"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code domain.Code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// statusFor maps an error code to an HTTP status.
func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeValidation, domain.CodeInvalidShop, domain.CodeInviteInvalid, domain.CodeStateMismatch:
		return http.StatusBadRequest
	case domain.CodeSignatureInvalid, domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeNeedsReinstall:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeAlreadyExists, domain.CodeAlreadyRunning, domain.CodeJobRunning,
		domain.CodePaused, domain.CodeDisabled:
		return http.StatusConflict
	case domain.CodeStateExpired:
		return http.StatusGone
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeTokenExchange, domain.CodeUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err as a coded error body. Internal failures are
// logged and rendered without detail.
func respondError(w http.ResponseWriter, logger zerolog.Logger, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := statusFor(code)
	detail := errorDetail{Code: code, Message: err.Error()}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		detail.Field = ve.Field
		detail.Message = ve.Message
	}
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Str("code", string(code)).Msg("Request failed")
		if status == http.StatusInternalServerError {
			detail.Message = "internal error"
		}
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewValidationError("body", "invalid JSON body")
	}
	return nil
}

// queryInt returns the integer query parameter key, or def when absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(key, "must be a non-negative integer")
	}
	return n, nil
}
