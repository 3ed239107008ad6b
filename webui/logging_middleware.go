package webui

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDHeader carries the request ID back to the client.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the ID assigned by LoggingMiddleware, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LoggingMiddleware logs every HTTP request with method, path, status and
// duration, and tags it with a request ID.
type LoggingMiddleware struct {
	logger       *zap.Logger
	skipPaths    map[string]bool
	logUserAgent bool
}

// LoggingMiddlewareConfig holds configuration for the LoggingMiddleware
type LoggingMiddlewareConfig struct {
	// SkipPaths are paths to skip logging (default: none)
	SkipPaths []string

	// LogUserAgent whether to include user agent in logs (default: false)
	LogUserAgent bool
}

// NewLoggingMiddleware creates a LoggingMiddleware. A nil logger discards entries.
func NewLoggingMiddleware(logger *zap.Logger, config LoggingMiddlewareConfig) *LoggingMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}

	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return &LoggingMiddleware{
		logger:       logger,
		skipPaths:    skipPaths,
		logUserAgent: config.LogUserAgent,
	}
}

// Handler wraps next with request logging.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		state := &requestState{}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(context.WithValue(ctx, requestStateKey{}, state))

		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriterWrapper{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", ClientIP(r)),
			zap.Int64("bytes", wrapped.bytesWritten),
		}
		if m.logUserAgent {
			fields = append(fields, zap.String("user_agent", r.UserAgent()))
		}
		if state.identity != "" {
			fields = append(fields, zap.String("identity", state.identity))
		}
		if ce := m.logger.Check(levelForStatus(wrapped.statusCode), "http request"); ce != nil {
			ce.Write(fields...)
		}
	})
}

func levelForStatus(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

// WriteHeader captures the status code
func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write captures the bytes written and ensures header is written
func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher if the underlying writer supports it
func (w *responseWriterWrapper) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the WebSocket upgrader take over the connection.
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", w.ResponseWriter)
	}
	if !w.wroteHeader {
		w.statusCode = http.StatusSwitchingProtocols
		w.wroteHeader = true
	}
	return hijacker.Hijack()
}

// ClientIP extracts the client IP from the request
// Checks X-Forwarded-For and X-Real-IP headers first for proxied requests
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
