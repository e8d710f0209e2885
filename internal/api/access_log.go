package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"signaldesk/pkg/signaldesk"
)

// requestRecord wraps the response writer and collects what handlers learn
// about a request, so the access log line can describe the outcome.
type requestRecord struct {
	middleware.WrapResponseWriter
	symbol    string
	errorCode signaldesk.ErrorCode
	errorMsg  string
	attrs     []any
}

func (rec *requestRecord) Flush() {
	if flusher, ok := rec.WrapResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func recordOf(w http.ResponseWriter) *requestRecord {
	rec, _ := w.(*requestRecord)
	return rec
}

// noteSymbol records the ticker a request is about.
func noteSymbol(w http.ResponseWriter, symbol string) {
	if rec := recordOf(w); rec != nil {
		if symbol = strings.ToUpper(strings.TrimSpace(symbol)); symbol != "" {
			rec.symbol = symbol
		}
	}
}

// noteFailure records the error code and message sent to the client.
func noteFailure(w http.ResponseWriter, code signaldesk.ErrorCode, message string) {
	if rec := recordOf(w); rec != nil {
		rec.errorCode = code
		rec.errorMsg = message
	}
}

// noteAttrs adds key/value pairs to the access log line.
func noteAttrs(w http.ResponseWriter, attrs ...any) {
	if rec := recordOf(w); rec != nil {
		rec.attrs = append(rec.attrs, attrs...)
	}
}

// accessLevel picks the log level for a finished request. Provider and market
// failures are the remote side's problem and log at warn; broken configuration,
// storage and panics log at error.
func accessLevel(status int, code signaldesk.ErrorCode) slog.Level {
	switch code {
	case signaldesk.ErrCodeRateLimited, signaldesk.ErrCodeUpstreamUnavailable,
		signaldesk.ErrCodeNoUsableModel, signaldesk.ErrCodeMalformedResponse:
		return slog.LevelWarn
	case signaldesk.ErrCodeConfiguration, signaldesk.ErrCodeDatabase, signaldesk.ErrCodeInternal:
		return slog.LevelError
	}
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func accessLogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &requestRecord{WrapResponseWriter: middleware.NewWrapResponseWriter(w, r.ProtoMajor)}
			noteSymbol(rec, r.URL.Query().Get("symbol"))

			next.ServeHTTP(rec, r)

			status := rec.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []any{
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"route", routePattern(r),
				"path", r.URL.Path,
				"status", status,
				"bytes", rec.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			}
			if rec.symbol != "" {
				fields = append(fields, "symbol", rec.symbol)
			}
			if rec.errorCode != "" {
				fields = append(fields, "error_code", string(rec.errorCode))
			}
			if rec.errorMsg != "" {
				fields = append(fields, "error_message", rec.errorMsg)
			}
			fields = append(fields, rec.attrs...)

			logger.Log(r.Context(), accessLevel(status, rec.errorCode), "api request", fields...)
		})
	}
}

func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				fields := []any{
					"request_id", middleware.GetReqID(r.Context()),
					"route", routePattern(r),
					"panic", fmt.Sprint(recovered),
					"stack", string(debug.Stack()),
				}
				if rec := recordOf(w); rec != nil && rec.symbol != "" {
					fields = append(fields, "symbol", rec.symbol)
				}
				logger.Error("handler panicked", fields...)

				if rec := recordOf(w); rec != nil && rec.Status() != 0 {
					return
				}
				writeErrorResponse(w, r, http.StatusInternalServerError,
					signaldesk.NewError(signaldesk.ErrCodeInternal, "internal server error"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
