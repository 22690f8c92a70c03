package middleware

import (
	"net/http"
	"strings"

	"ecdar-gateway/pkg/utils"
)

// DefaultMaxBodySize caps request bodies; component data can be large
const DefaultMaxBodySize = 4 << 20

// ContentTypeJSON requires application/json on requests that carry a body
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			// bodyless actions such as /send are allowed without a content type
			if r.ContentLength == 0 && r.Header.Get("Content-Type") == "" {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" {
				utils.WriteBadRequestResponse(w, "Content-Type header is required")
				return
			}

			if !strings.HasPrefix(strings.ToLower(contentType), "application/json") {
				utils.WriteBadRequestResponse(w, "Content-Type must be application/json")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// MaxBodySize limits the request body to maxBytes
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
