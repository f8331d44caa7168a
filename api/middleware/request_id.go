package middleware

import (
	"context"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jasskhinda/facility-billing/pkg/logger"
)

const (
	requestIDHeader    = "X-Request-Id"
	cloudTraceHeader   = "X-Cloud-Trace-Context"
	maxRequestIDLength = 128
)

// RequestID tags every request with an id that is echoed in the response
// header, the error envelope and every log line. A usable caller id wins,
// then the Cloud Run trace id, then a fresh uuid.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := inboundRequestID(r.Header)
			w.Header().Set(requestIDHeader, id)

			ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func inboundRequestID(h http.Header) string {
	if id := strings.TrimSpace(h.Get(requestIDHeader)); printableToken(id) {
		return id
	}
	// TRACE_ID/SPAN_ID;o=OPTIONS
	trace, _, _ := strings.Cut(h.Get(cloudTraceHeader), "/")
	if trace = strings.TrimSpace(trace); printableToken(trace) {
		return trace
	}
	return uuid.NewString()
}

func printableToken(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	return strings.IndexFunc(id, func(c rune) bool { return c < '!' || c > '~' }) < 0
}
