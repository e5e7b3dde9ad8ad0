package server

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmmcquay/katago-web/internal/logging"
	"github.com/dmmcquay/katago-web/internal/ratelimit"
)

// RequestID stores a request ID in the context, taken from X-Request-ID
// when the client sends one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" || len(rid) > 64 {
			rid = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := logging.ContextWithRequestID(r.Context(), rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLog logs each API request at info and everything else at debug.
func AccessLog(logger logging.ContextLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			reqLog := logger.WithContext(r.Context())
			args := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start).String(),
			}
			if strings.HasPrefix(r.URL.Path, "/api/") {
				reqLog.Info("Request completed", args...)
			} else {
				reqLog.Debug("Request completed", args...)
			}
		})
	}
}

// PrometheusMiddleware records request counts and latencies. Static files
// share one path label.
func PrometheusMiddleware(recorder Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap ResponseWriter to capture status code
			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			recorder.RecordHTTPRequest(
				r.Method,
				routeLabel(r.URL.Path),
				strconv.Itoa(wrapped.statusCode),
				time.Since(start).Seconds(),
			)
		})
	}
}

func routeLabel(p string) string {
	switch {
	case strings.HasPrefix(p, "/api/katago/"):
		switch p {
		case "/api/katago/status", "/api/katago/analyze", "/api/katago/analyze-position",
			"/api/katago/start", "/api/katago/stop":
			return p
		}
		return "/api/other"
	case p == "/health", p == "/ready", p == "/metrics":
		return p
	default:
		return "static"
	}
}

// RateLimitMiddleware applies the limiter to API routes, keyed by client IP.
// A nil limiter allows everything.
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			err := limiter.Allow(clientIP(r), r.URL.Path)
			var limitErr *ratelimit.LimitError
			if errors.As(err, &limitErr) {
				secs := int(math.Ceil(limitErr.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: err.Error(), Code: "rate_limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
		w.ResponseWriter.WriteHeader(statusCode)
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
