package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pratik-mahalle/farmlink/internal/auth"
	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
	"github.com/pratik-mahalle/farmlink/internal/pkg/utils"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user id
	UserIDKey ContextKey = "userID"
)

// AuthMiddleware returns a middleware that validates bearer JWTs and puts
// the token subject in the request context as the user id.
func AuthMiddleware(jwtSecret, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				utils.WriteError(w, errors.Unauthorized("Missing authentication token"))
				return
			}

			claims, err := auth.ParseClaims(tokenStr, jwtSecret, issuer)
			if err != nil {
				utils.WriteError(w, errors.Unauthorized("Invalid or expired token"))
				return
			}

			AddLogField(w, "user_id", claims.UserID())
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID())))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// WithUserID returns a copy of ctx carrying the user id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID extracts the user ID from the request context
func GetUserID(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
