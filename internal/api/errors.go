package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"campus-chat/internal/chat"
	myMiddleware "campus-chat/internal/middleware"

	"github.com/go-playground/validator/v10"
)

const (
	codeInvalidRequest = "invalid_request"
	codeUnauthorized   = "unauthorized"
	codeForbidden      = "forbidden"
	codeNotFound       = "not_found"
	codeUnavailable    = "unavailable"
	codeInternal       = "internal_error"
	codeUnsupported    = "unsupported_type"
)

type errorResponse = myMiddleware.ErrorResponse

// classify maps a domain error to its HTTP status and wire code.
func classify(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, chat.ErrInvalidRequest), errors.As(err, &verrs):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, chat.ErrNotParticipant):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, chat.ErrConversationNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, chat.ErrTransientStore):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// publicMessage hides internal details of infrastructure failures.
func publicMessage(status int, err error) string {
	switch status {
	case http.StatusInternalServerError:
		return "unexpected error"
	case http.StatusServiceUnavailable:
		return "storage temporarily unavailable, retry later"
	default:
		return err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: code, Message: publicMessage(status, err)})
}

func logLevelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelDebug
}
