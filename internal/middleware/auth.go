// Package middleware resolves the caller's identity once per request at the
// HTTP boundary and threads it through the request context. Components never
// read tokens themselves; they receive a Principal.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"teamchat/internal/identity"
)

type contextKey string

const principalKey contextKey = "principal"

// TokenValidator decouples this package from the identity service.
type TokenValidator interface {
	ValidateToken(tokenString string) (identity.Principal, error)
}

type Auth struct {
	validator TokenValidator
}

func NewAuth(v TokenValidator) *Auth {
	return &Auth{validator: v}
}

// token reads a bearer header, falling back to the token query parameter.
// The query-param path exists for direct image fetches, which cannot set
// headers.
func token(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

// Require rejects requests without a valid token.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts := token(r)
		if ts == "" {
			http.Error(w, "missing authentication token", http.StatusUnauthorized)
			return
		}
		p, err := a.validator.ValidateToken(ts)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Optional resolves the token when present but lets anonymous requests
// through; read paths degrade to empty results instead of erroring.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ts := token(r); ts != "" {
			if p, err := a.validator.ValidateToken(ts); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal injects a resolved principal.
func WithPrincipal(ctx context.Context, p identity.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the request principal, or a zero (anonymous)
// principal when none was resolved.
func PrincipalFrom(ctx context.Context) identity.Principal {
	if p, ok := ctx.Value(principalKey).(identity.Principal); ok {
		return p
	}
	return identity.Principal{}
}
