package api

import (
	"context"
	"net/http"
	"strings"

	"mediadrop/internal/auth"
)

type contextKey string

const identityContextKey contextKey = "verifiedIdentity"

// ContextWithIdentity stores the verified identity in the provided context.
func ContextWithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the verified identity from context if present.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(auth.Identity)
	return identity, ok
}

// ExtractToken pulls the bearer token from the Authorization header.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// requireAuthorizedIdentity ensures the request carries a verified identity
// that passed the allow-list check.
func (h *Handler) requireAuthorizedIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return auth.Identity{}, false
	}
	if !identity.IsAuthorized {
		h.writeAPIError(w, h.requestLogger(r), &Error{Kind: KindForbidden, Message: "forbidden"})
		return auth.Identity{}, false
	}
	return identity, true
}
