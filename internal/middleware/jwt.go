package myMiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"campus-chat/internal/identity"
)

type contextKey string

// ErrorResponse is the JSON error body shared by every handler.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

const IdentityKey contextKey = "identity"

// TokenValidator decouples the middleware from how tokens are checked.
type TokenValidator interface {
	Validate(tokenString string) (identity.Identity, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Handle rejects requests without a valid bearer token. Browsers cannot set headers on a
// websocket upgrade, so the token may also come as ?token=.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			writeUnauthorized(w, "missing authentication token")
			return
		}

		id, err := am.validator.Validate(tokenString)
		if err != nil {
			writeUnauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func WithIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

func IdentityFrom(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(identity.Identity)
	return id, ok
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "unauthorized", Message: msg})
}
