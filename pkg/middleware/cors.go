package middleware

import (
	"net/http"

	"ecdar-gateway/pkg/config"

	"github.com/go-chi/cors"
)

// CORS allows the configured origins. A wildcard origin disables credentials.
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-Id",
			"X-Requested-With",
		},
		ExposedHeaders: []string{
			"X-Request-Id",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}

	if len(cfg.AllowedOrigins) == 0 || containsOrigin(cfg.AllowedOrigins, "*") {
		corsOptions.AllowedOrigins = []string{"*"}
		corsOptions.AllowCredentials = false
	}

	return cors.Handler(corsOptions)
}

func containsOrigin(origins []string, origin string) bool {
	for _, o := range origins {
		if o == origin {
			return true
		}
	}
	return false
}
