package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// callerSlot lets CallerAuth, which runs inside Logger, report the recovered
// caller back to the access log.
type callerSlot struct {
	addr common.Address
}

const callerSlotKey contextKey = "caller-slot"

func reportCaller(ctx context.Context, addr common.Address) {
	if slot, ok := ctx.Value(callerSlotKey).(*callerSlot); ok {
		slot.addr = addr
	}
}

// Logger writes one access log line per request with the request id and, for
// signed requests, the caller address.
func Logger(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID, _ := r.Context().Value(RequestIDKey).(string)

			slot := &callerSlot{}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), callerSlotKey, slot)))

			evt := log.Debug()
			switch {
			case rec.status >= 500:
				evt = log.Error()
			case rec.status >= 400:
				evt = log.Warn()
			case r.Method != http.MethodGet:
				evt = log.Info()
			}
			if slot.addr != (common.Address{}) {
				evt = evt.Str("caller", slot.addr.Hex())
			}
			evt.
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Int64("bytes", rec.bytes).
				Dur("latency", time.Since(start)).
				Msg("Request served")
		})
	}
}
