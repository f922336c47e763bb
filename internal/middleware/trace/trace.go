// Package trace tags every request with an id, attaches a request-scoped
// logger to its context and logs start and completion.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"budget/internal/log"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDHeader echoes the request id back to the client.
const RequestIDHeader = "X-Request-ID"

type Middleware struct {
	logger    *log.Logger
	extractIP func(*http.Request) string

	totalRequests int64
	lastDuration  int64 // microseconds
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests    int64
	LastResponseTime time.Duration
}

func NewMiddleware(logger *log.Logger, extractIP func(*http.Request) string) *Middleware {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Middleware{
		logger:    logger.WithComponent(log.ComponentHTTP),
		extractIP: extractIP,
	}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	sl := log.NewStructuredLogger(m.logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = GenerateRequestID()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = log.WithLogger(ctx, m.logger.With(log.FieldRequestID, requestID))
		r = r.WithContext(ctx)
		w.Header().Set(RequestIDHeader, requestID)

		sl.LogHTTPStart(ctx, r, requestID, clientIP)
		atomic.AddInt64(&m.totalRequests, 1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		atomic.StoreInt64(&m.lastDuration, duration.Microseconds())
		sl.LogHTTPEnd(ctx, r, requestID, rw.statusCode, duration.Milliseconds(), clientIP)
	})
}

// responseWriter captures the status code. It forwards Flush so streaming
// handlers keep working behind the middleware.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:    atomic.LoadInt64(&m.totalRequests),
		LastResponseTime: time.Duration(atomic.LoadInt64(&m.lastDuration)) * time.Microsecond,
	}
}
