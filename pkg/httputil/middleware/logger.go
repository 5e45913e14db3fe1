package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edgeflare/sqlgate/pkg/httputil"
)

// ResponseRecorder captures what the gateway answered: the status, the body
// size and the session resolved further down the chain.
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	Bytes      int
	// Session is filled in by the Session middleware.
	Session     httputil.Session
	wroteHeader bool
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rr *ResponseRecorder) WriteHeader(statusCode int) {
	if rr.wroteHeader {
		return
	}
	rr.wroteHeader = true
	rr.StatusCode = statusCode
	rr.ResponseWriter.WriteHeader(statusCode)
}

func (rr *ResponseRecorder) Write(b []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.Bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rr *ResponseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// LoggerOptions defines configuration for the logger middleware.
type LoggerOptions struct {
	// Logger defaults to zap.L().
	Logger *zap.Logger
	Format func(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field
}

func accessFields(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("req_id", reqID),
		zap.Int("status", rec.StatusCode),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("query", r.URL.RawQuery),
		zap.Int("bytes", rec.Bytes),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
		zap.Duration("latency", latency),
	}
}

// LoggerWithOptions logs one access line per request, at warn level for
// client errors and error level for server errors. Handlers further down
// reach a logger tagged with the request ID through httputil.Logger.
func LoggerWithOptions(options *LoggerOptions) func(http.Handler) http.Handler {
	opts := LoggerOptions{Logger: zap.L(), Format: accessFields}
	if options != nil {
		if options.Logger != nil {
			opts.Logger = options.Logger
		}
		if options.Format != nil {
			opts.Format = options.Format
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, nested := r.Context().Value(httputil.LogEntryCtxKey).(*zap.Logger); nested {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			reqID, ok := r.Context().Value(httputil.RequestIDCtxKey).(string)
			if !ok {
				reqID = uuid.Nil.String()
			}

			rec := NewResponseRecorder(w)
			ctx := context.WithValue(r.Context(), httputil.LogEntryCtxKey, opts.Logger.With(zap.String("req_id", reqID)))
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			fields := opts.Format(reqID, rec, r, time.Since(start))
			user := "anonymous"
			if rec.Session.Authenticated() {
				user = rec.Session.User
				fields = append(fields, zap.String("auth", rec.Session.Method), zap.Bool("sys_admin", rec.Session.IsSysAdmin))
			}
			fields = append(fields, zap.String("user", user))

			level := zapcore.InfoLevel
			switch {
			case rec.StatusCode >= http.StatusInternalServerError:
				level = zapcore.ErrorLevel
			case rec.StatusCode >= http.StatusBadRequest:
				level = zapcore.WarnLevel
			}
			opts.Logger.Log(level, "response", fields...)
		})
	}
}
