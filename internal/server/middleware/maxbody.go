package middleware

import (
	"net/http"
)

// MaxBodySize is the default maximum request body size (32 MB).
const MaxBodySize = 32 << 20

// MaxBody limits the body of POST, PUT and PATCH requests. If maxSize is 0,
// MaxBodySize is used.
func MaxBody(maxSize int64) Middleware {
	if maxSize <= 0 {
		maxSize = MaxBodySize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			}
			next.ServeHTTP(w, r)
		})
	}
}
