package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"ecdar-gateway/pkg/config"
	"ecdar-gateway/pkg/utils"

	"github.com/rs/zerolog"
)

// ContextKey is the type of request context keys set by this package
type ContextKey string

const (
	UserContextKey ContextKey = "user_id"

	// userSlotKey points at the access logger's user id field
	userSlotKey ContextKey = "user_slot"
)

// AuthMiddleware requires a valid Bearer access token and puts the caller's
// user id into the request context.
func AuthMiddleware(cfg *config.Config, logger zerolog.Logger) func(http.Handler) http.Handler {
	jwtService := utils.NewJWTService(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.WriteUnauthorizedResponse(w, "Missing authorization header")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				utils.WriteUnauthorizedResponse(w, "Invalid authorization header format")
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected token")
				utils.WriteUnauthorizedResponse(w, "Invalid token: "+err.Error())
				return
			}

			if slot, ok := r.Context().Value(userSlotKey).(*int64); ok {
				*slot = claims.UserID
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID returns ctx carrying the authenticated user id
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserContextKey, userID)
}

func withUserSlot(ctx context.Context, slot *int64) context.Context {
	return context.WithValue(ctx, userSlotKey, slot)
}

// GetUserIDFromContext returns the authenticated user id, if any
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserContextKey).(int64)
	return id, ok && id > 0
}

// RequireUserID returns the authenticated user id or an error
func RequireUserID(ctx context.Context) (int64, error) {
	id, ok := GetUserIDFromContext(ctx)
	if !ok {
		return 0, fmt.Errorf("user not authenticated")
	}
	return id, nil
}
