package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/auth"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

type contextKey string

const contextKeyClaims contextKey = "session_claims"

// requestIDMiddleware keeps a sane client X-Request-ID or mints one, and puts
// a request-scoped logger into the context.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := logger.WithContext(r.Context(), s.logger.With(logger.RequestID(id)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// loggingMiddleware writes one access line per request. 5xx are errors.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.FromContext(r.Context()).LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.Status()),
			slog.Int("bytes", rec.bytes),
			logger.Latency(time.Since(start)),
			slog.String("ip", s.clientIP(r)),
		)
	})
}

// recoveryMiddleware turns a handler panic into a 500 when nothing was
// written yet. http.ErrAbortHandler is re-raised for net/http.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.FromContext(r.Context()).Error("panic recovered",
				slog.Any("panic", v),
				slog.String("path", r.URL.Path),
				slog.String("stack", string(debug.Stack())),
			)
			if rec.status == 0 {
				writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

// corsMiddleware answers preflights itself. The origin list is resolved once.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	anyOrigin := false
	origins := make(map[string]struct{}, len(s.config.AllowedOrigins))
	for _, o := range s.config.AllowedOrigins {
		if o == "*" {
			anyOrigin = true
		}
		origins[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			_, listed := origins[origin]

			h := w.Header()
			switch {
			case anyOrigin:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "" && listed:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			if h.Get("Access-Control-Allow-Origin") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+InitDataHeader+", X-Request-ID")
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware implements per-IP rate limiting on /api.
// A failing shared limiter lets the request through.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)

		ok, err := s.deps.RateLimiter.Allow(r.Context(), ip)
		if err != nil {
			logger.FromContext(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
			ok = true
		}
		if !ok {
			w.Header().Set("Retry-After", retryAfterSeconds(s.config.RateLimitWindow))
			writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests from this IP, please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds the request context so store calls give up in time.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	if s.config.RequestTimeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	if s.config.MaxBodyBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires a valid session token. Every failure produces the
// same 401 body.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			writeUnauthorized(w)
			return
		}

		claims, err := s.deps.Sessions.Validate(strings.TrimSpace(token))
		if err != nil {
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(logger.AccountID(claims.AccountID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// statusRecorder remembers the status and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Status is 200 when the handler wrote nothing explicit.
func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// clientIP extracts the client IP from the request. Proxy headers are only
// honoured when the server sits behind a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	if s.config.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// claimsFrom returns the session claims set by authMiddleware.
func claimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(contextKeyClaims).(*auth.Claims)
	return c, ok && c != nil
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
