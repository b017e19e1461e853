// Package recovery converts handler panics into 500 responses so one bad
// request cannot take the daemon down.
package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/chatvault/chatvault/internal/api/respond"
)

// Middleware recovers panics from downstream handlers, logs the stack, and
// answers with a generic 500.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			log.Error().
				Interface("panic", rec).
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Str("remote", r.RemoteAddr).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			respond.WriteError(w, http.StatusInternalServerError, "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}
