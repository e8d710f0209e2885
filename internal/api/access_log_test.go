package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"signaldesk/pkg/signaldesk"
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

// useDefaultLogger installs logger as slog's default for routers built without a core.
func useDefaultLogger(t *testing.T, logger *slog.Logger) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(logger)
	t.Cleanup(func() { slog.SetDefault(old) })
}

func assertLogContains(t *testing.T, logs string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(logs, want) {
			t.Fatalf("expected %q in logs, got %q", want, logs)
		}
	}
}

func TestAccessLogHealthRequest(t *testing.T) {
	logger, buf := captureLogger()
	router := setupRouter(t, routerOptions{logger: logger})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("User-Agent", "signaldesk-test-agent")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	assertLogContains(t, buf.String(),
		"level=INFO", `msg="api request"`, "method=GET", "route=/api/health", "path=/api/health",
		"status=200", "request_id=", "duration_ms=", "user_agent=signaldesk-test-agent",
	)
	if strings.Contains(buf.String(), "error_code=") {
		t.Fatalf("successful request should carry no error code: %q", buf.String())
	}
}

func TestAccessLogBadRequest(t *testing.T) {
	logger, buf := captureLogger()
	router := setupRouter(t, routerOptions{logger: logger})

	rr := doRequest(router, http.MethodGet, "/api/indicators", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	assertLogContains(t, buf.String(),
		"level=WARN", "status=400", "error_code=INVALID_INPUT", `error_message="symbol is required"`,
	)
}

func TestAccessLogAnalysisOutcome(t *testing.T) {
	logger, buf := captureLogger()
	router := setupRouter(t, routerOptions{
		logger:   logger,
		provider: &fakeProvider{text: `{"action":"sell","signal_level":"strong","reasoning":"Lower highs."}`},
	})

	rr := doRequest(router, http.MethodPost, "/api/analysis", map[string]any{"symbol": "tsla"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	assertLogContains(t, buf.String(),
		`msg="api request"`, "symbol=TSLA", "analysis_id=1", "provider=fake", "model=fake-1",
		"action=sell", "signal_level=strong",
	)
}

func TestAccessLogUpstreamFailureIsWarn(t *testing.T) {
	logger, buf := captureLogger()
	router := setupRouter(t, routerOptions{logger: logger, provider: &fakeProvider{text: "not json"}})

	rr := doRequest(router, http.MethodPost, "/api/analysis", map[string]any{"symbol": "nvda"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}

	logs := buf.String()
	assertLogContains(t, logs, "symbol=NVDA", "error_code=MALFORMED_RESPONSE", "ai response unparseable", "run_id=")
	for _, line := range strings.Split(logs, "\n") {
		if strings.Contains(line, `msg="api request"`) && !strings.Contains(line, "level=WARN") {
			t.Fatalf("provider failure should log at warn: %q", line)
		}
	}
}

func TestAccessLogRecoversPanic(t *testing.T) {
	logger, buf := captureLogger()
	useDefaultLogger(t, logger)

	router := NewRouter(nil)
	rr := doRequest(router, http.MethodGet, "/api/analysis/history?symbol=aapl", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"error_code":"INTERNAL_ERROR"`) {
		t.Fatalf("expected structured error response, got %q", rr.Body.String())
	}

	assertLogContains(t, buf.String(),
		`msg="handler panicked"`, "symbol=AAPL", "stack=",
		"level=ERROR", "status=500", "error_code=INTERNAL_ERROR",
	)
}

func TestAccessLogUsesCoreLogger(t *testing.T) {
	logger, buf := captureLogger()
	router := setupRouter(t, routerOptions{logger: logger})

	defaultLogger, defaultBuf := captureLogger()
	useDefaultLogger(t, defaultLogger)

	rr := doRequest(router, http.MethodGet, "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	assertLogContains(t, buf.String(), `msg="api request"`)
	if defaultBuf.Len() != 0 {
		t.Fatalf("expected nothing written to slog default, got %q", defaultBuf.String())
	}
}

func TestAccessLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		code   signaldesk.ErrorCode
		want   slog.Level
	}{
		{http.StatusOK, "", slog.LevelInfo},
		{http.StatusNotFound, signaldesk.ErrCodeNotFound, slog.LevelWarn},
		{http.StatusTooManyRequests, signaldesk.ErrCodeRateLimited, slog.LevelWarn},
		{http.StatusBadGateway, signaldesk.ErrCodeUpstreamUnavailable, slog.LevelWarn},
		{http.StatusBadGateway, signaldesk.ErrCodeNoUsableModel, slog.LevelWarn},
		{http.StatusInternalServerError, signaldesk.ErrCodeConfiguration, slog.LevelError},
		{http.StatusInternalServerError, signaldesk.ErrCodeDatabase, slog.LevelError},
		{http.StatusInternalServerError, "", slog.LevelError},
		{http.StatusBadRequest, "", slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := accessLevel(tt.status, tt.code); got != tt.want {
			t.Errorf("accessLevel(%d, %q) = %v, want %v", tt.status, tt.code, got, tt.want)
		}
	}
}

func TestNotesIgnorePlainWriters(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	noteSymbol(rr, "AAPL")
	noteFailure(rr, signaldesk.ErrCodeInternal, "boom")
	noteAttrs(rr, "k", "v")
	if rr.Code != http.StatusOK || rr.Body.Len() != 0 {
		t.Fatal("notes must not touch a plain writer")
	}
}
