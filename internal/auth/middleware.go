package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/medianamer-platform/medianamer/internal/api"
)

type contextKey string

const userClaimsKey contextKey = "user_claims"

func Middleware(m *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := m.Validate(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), userClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Publisher records security-relevant auth events. Satisfied by audit.Bus.
type Publisher interface {
	PublishEvent(ctx context.Context, ownerID, eventType, severity, resourceID, details string) error
}

// RequireAdmin rejects non-admin tokens and records each denial as a
// permission_denied audit event. Must run after Middleware. A nil publisher
// skips the event.
func RequireAdmin(pub Publisher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil || !claims.Admin {
				if pub != nil {
					ownerID := ""
					if claims != nil {
						ownerID = claims.UserID
					}
					details := fmt.Sprintf("admin access denied: %s %s", r.Method, r.URL.Path)
					if err := pub.PublishEvent(r.Context(), ownerID, "permission_denied", "warn", "", details); err != nil {
						slog.Warn("publishing audit event failed", "error", err, "event_type", "permission_denied")
					}
				}
				api.HandleError(w, api.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(userClaimsKey).(*Claims)
	return claims
}
