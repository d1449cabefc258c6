package middleware

import (
	"context"
	"net/http"

	"github.com/gatherhall/server/internal/api/problem"
	"github.com/gatherhall/server/internal/auth"
)

const claimsKey contextKey = "auth_claims"

// Authenticate validates the bearer token and stores the session claims in
// the request context.
func Authenticate(jwtManager *auth.JWTManager, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, env)
				return
			}

			claims, err := jwtManager.Validate(token)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, env)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole gates a route on the authenticated role. It must run inside
// Authenticate.
func RequireRole(env string, allowed ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", auth.ErrMissingToken, env)
				return
			}
			if !auth.HasRole(claims.Role, allowed...) {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", nil, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithClaims stores session claims in the context.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the session claims, or nil outside Authenticate.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}
