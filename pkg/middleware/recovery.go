package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"ecdar-gateway/pkg/config"
	"ecdar-gateway/pkg/utils"

	"github.com/rs/zerolog"
)

// Recovery turns a panic into a 500 response and logs the stack
func Recovery(cfg *config.Config, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					stack := debug.Stack()
					logger.Error().
						Str("panic", fmt.Sprint(err)).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Bytes("stack", stack).
						Msg("recovered from panic")

					if cfg.IsDevelopment() {
						utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
							"INTERNAL",
							fmt.Sprintf("Internal server error: %v", err),
							string(stack))
					} else {
						utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
