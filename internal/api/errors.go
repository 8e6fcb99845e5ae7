package api

import (
	"fmt"
	"log/slog"
	"net/http"
)

// ErrorKind is the closed set of failure classes surfaced by the API. Each
// kind maps to exactly one HTTP status at the boundary.
type ErrorKind int

const (
	// KindValidation covers missing or malformed request fields. Never retried.
	KindValidation ErrorKind = iota
	// KindToken covers invalid, expired, or malformed bearer tokens.
	KindToken
	// KindAuthConfig covers a credential subsystem that failed to initialize.
	KindAuthConfig
	// KindForbidden covers verified callers outside the allow-list.
	KindForbidden
	// KindStorage covers failures from the storage collaborator. Aborts the
	// remaining upload steps, not retried.
	KindStorage
	// KindRegistry covers server-registry update failures. Logged by the
	// caller and swallowed; must never affect the response.
	KindRegistry
	// KindInternal is the final safety net for unexpected failures.
	KindInternal
)

// Error pairs a stable user-visible message with its failure class and the
// underlying cause. The cause is logged and exposed in the response body
// only in development mode.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func storageError(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

func internalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// writeAPIError maps an Error onto the wire exhaustively by kind. Storage
// and internal failures carry a details field in development mode only.
func (h *Handler) writeAPIError(w http.ResponseWriter, logger *slog.Logger, apiErr *Error) {
	switch apiErr.Kind {
	case KindValidation:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: apiErr.Message})
	case KindToken:
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: apiErr.Message})
	case KindAuthConfig:
		logger.Error("auth subsystem unavailable", "error", apiErr.Err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: apiErr.Message})
	case KindForbidden:
		writeJSON(w, http.StatusForbidden, errorBody{Error: apiErr.Message})
	case KindRegistry:
		// Registry failures are swallowed at the call site; reaching the
		// boundary with one is a programming error.
		logger.Error("registry error escaped to HTTP boundary", "error", apiErr.Err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: apiErr.Message})
	case KindStorage, KindInternal:
		logger.Error(apiErr.Message, "error", apiErr.Err)
		body := errorBody{Error: apiErr.Message}
		if h.DevMode && apiErr.Err != nil {
			body.Details = apiErr.Err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, body)
	}
}
