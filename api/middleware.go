package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/leave-engine/leave"
)

// TokenValidator turns a bearer token into the calling Principal.
type TokenValidator interface {
	ValidateToken(token string) (leave.Principal, error)
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p leave.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller attached by RequireAuth or OptionalAuth.
// The zero Principal means anonymous.
func PrincipalFrom(ctx context.Context) leave.Principal {
	p, _ := ctx.Value(principalKey{}).(leave.Principal)
	return p
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required", nil)
				return
			}
			p, err := tokens.ValidateToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid token", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuth attaches the caller when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearerToken(r); token != "" {
				if p, err := tokens.ValidateToken(token); err == nil {
					r = r.WithContext(withPrincipal(r.Context(), p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
