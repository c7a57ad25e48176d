package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/klarolink/notifications/internal/auth"
	"github.com/klarolink/notifications/pkg/response"
)

type contextKey string

const SubjectKey contextKey = "subject"

// AdminAuth requires a bearer token carrying the admin role
func AdminAuth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := jwtManager.ValidateAdminToken(parts[1])
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				response.Unauthorized(w, "token has expired")
				return
			case errors.Is(err, auth.ErrNotAdmin):
				response.Forbidden(w, "admin access required")
				return
			case err != nil:
				response.Unauthorized(w, "invalid token")
				return
			}

			setSubject(r.Context(), claims.Subject)
			ctx := context.WithValue(r.Context(), SubjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject extracts the authenticated subject from context
func GetSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(SubjectKey).(string)
	return subject, ok && subject != ""
}
