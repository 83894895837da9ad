package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var ErrMissingToken = errors.New("missing bearer token")

type contextKey struct{}

// TokenFromRequest extracts a bearer credential from the Authorization
// header, falling back to the "token" query parameter (browsers cannot set
// headers on websocket upgrades).
func TokenFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		if token := strings.TrimSpace(authHeader[7:]); token != "" {
			return token
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Authenticate validates the request's bearer credential.
func (a *Authenticator) Authenticate(r *http.Request) (*Claims, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, ErrMissingToken
	}
	return a.ValidateToken(token)
}

// WithClaims stores validated claims on the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext returns the claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok && claims != nil
}
