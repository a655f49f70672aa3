package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// CodePanic is the error code returned when a handler panics.
const CodePanic = "internal_error"

// Recover turns a handler panic into a 500 error envelope. The stack is logged
// with the request id and caller, never sent to the client.
func Recover(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				requestID, _ := r.Context().Value(RequestIDKey).(string)
				log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", debug.Stack()).
					Msg("Handler panicked")
				WriteError(w, r, http.StatusInternalServerError, CodePanic, "internal error", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
