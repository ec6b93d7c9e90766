package middleware

import (
	"net/http"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
)

// Recovery turns a panicking handler into a 500 response and logs the panic
// with its stack.
func Recovery(logger log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := errors.SafeExecute(r.Method+" "+r.URL.Path, func() error {
				next.ServeHTTP(w, r)
				return nil
			})

			var pe *errors.PanicError
			if errors.As(err, &pe) {
				logger.Error("panic recovered",
					"error", pe.Error(),
					"stack", pe.StackTrace,
					"operation", pe.Operation,
					"method", r.Method,
					"path", r.URL.Path,
				)

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		})
	}
}
