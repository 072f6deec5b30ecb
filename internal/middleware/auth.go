package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lotuscare/facility-directory/internal/auth"
)

// Identity validates an optional JWT bearer token and stores its claims in
// the request context. Browsing must work with zero capability, so a
// missing header passes through anonymously; only a present-but-invalid
// token is rejected.
func Identity(logger *zap.Logger, jwtSecret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				logger.Warn("Invalid Authorization header format")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ValidateJWT(parts[1], jwtSecret)
			if err != nil {
				logger.Warn("Invalid JWT token", zap.Error(err))
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), auth.ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

// IdentityEmail extracts the authenticated email from the request context,
// or "" for anonymous viewers.
func IdentityEmail(ctx context.Context) string {
	if claims, ok := ctx.Value(auth.ContextKeyClaims).(*auth.Claims); ok {
		return claims.Email
	}
	return ""
}
