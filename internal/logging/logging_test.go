package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"signaldesk/pkg/signaldesk"
)

func marketToday() string {
	return time.Now().In(signaldesk.MarketLocation()).Format(sessionDayLayout)
}

// fixedClock returns a clock reading the given market-local wall time.
func fixedClock(t *testing.T, value string) func() time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, signaldesk.MarketLocation())
	if err != nil {
		t.Fatalf("parse clock: %v", err)
	}
	return func() time.Time { return ts }
}

func TestSessionWriterWritesMarketDayFile(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewSessionWriter(dir, 0)
	if err != nil {
		t.Fatalf("NewSessionWriter: %v", err)
	}
	defer writer.Close()

	if writer.keep != defaultKeepFiles {
		t.Fatalf("keep = %d", writer.keep)
	}
	if _, err := writer.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	path := filepath.Join(dir, "signaldesk-"+marketToday()+".log")
	if writer.Path() != path {
		t.Fatalf("path = %s, want %s", writer.Path(), path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("log content = %q", data)
	}
}

func TestSessionWriterFollowsMarketDayNotUTC(t *testing.T) {
	dir := t.TempDir()
	// 21:30 in New York is already the next day in UTC.
	writer, err := newSessionWriter(dir, 5, fixedClock(t, "2024-06-03 21:30"))
	if err != nil {
		t.Fatalf("newSessionWriter: %v", err)
	}
	defer writer.Close()

	if _, err := writer.Write([]byte("after close\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(writer.Path()) != "signaldesk-2024-06-03.log" {
		t.Fatalf("path = %s", writer.Path())
	}

	writer.now = fixedClock(t, "2024-06-04 09:30")
	if _, err := writer.Write([]byte("open\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(writer.Path()) != "signaldesk-2024-06-04.log" {
		t.Fatalf("expected a new file at the next session, got %s", writer.Path())
	}
	data, err := os.ReadFile(filepath.Join(dir, "signaldesk-2024-06-03.log"))
	if err != nil || string(data) != "after close\n" {
		t.Fatalf("previous session file = %q, %v", data, err)
	}
}

func TestSessionWriterKeepsNewestFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"signaldesk-2024-05-29.log",
		"signaldesk-2024-05-30.log",
		"signaldesk-2024-05-31.log",
		"signaldesk-notes.log",
		"other-2024-01-01.log",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	writer, err := newSessionWriter(dir, 2, fixedClock(t, "2024-06-03 10:00"))
	if err != nil {
		t.Fatalf("newSessionWriter: %v", err)
	}
	defer writer.Close()
	if _, err := writer.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := map[string]bool{
		"signaldesk-2024-05-29.log": false,
		"signaldesk-2024-05-30.log": false,
		"signaldesk-2024-05-31.log": true,
		"signaldesk-2024-06-03.log": true,
		"signaldesk-notes.log":      true,
		"other-2024-01-01.log":      true,
	}
	for name, exists := range want {
		_, err := os.Stat(filepath.Join(dir, name))
		if exists != (err == nil) {
			t.Errorf("%s exists=%v, want %v", name, err == nil, exists)
		}
	}
}

func TestSessionWriterCloseTwice(t *testing.T) {
	writer, err := NewSessionWriter(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("NewSessionWriter: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := (&SessionWriter{}).Close(); err != nil {
		t.Fatalf("zero Close: %v", err)
	}
}

func TestNewLoggerLevelAndFormat(t *testing.T) {
	t.Setenv(envLogLevel, "")
	t.Setenv(envLogFormat, "")
	defer slog.SetDefault(slog.Default())

	var console bytes.Buffer
	dir := t.TempDir()
	logger, writer, err := NewLogger(Options{Dir: dir, Level: "warn", Format: "json", Console: &console})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer writer.Close()

	logger.Info("dropped")
	logger.Warn("kept", "symbol", "AAPL")

	out := console.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"service":"signaldesk"`) {
		t.Fatalf("expected json record with service attr, got %s", out)
	}

	data, err := os.ReadFile(writer.Path())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "kept") {
		t.Fatalf("file log missing record")
	}
}

func TestNewLoggerRedactsCredentials(t *testing.T) {
	t.Setenv(envLogLevel, "")
	t.Setenv(envLogFormat, "")
	defer slog.SetDefault(slog.Default())

	var console bytes.Buffer
	logger, writer, err := NewLogger(Options{Dir: t.TempDir(), Console: &console})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer writer.Close()

	logger.Info("provider configured", "provider", "gemini", "api_key", "AIza-secret", "Authorization", "Bearer sk-secret")
	out := console.String()
	if strings.Contains(out, "secret") {
		t.Fatalf("credentials leaked: %s", out)
	}
	if !strings.Contains(out, "api_key="+redacted) || !strings.Contains(out, "provider=gemini") {
		t.Fatalf("unexpected record: %s", out)
	}
}

func TestNewLoggerEnvOverrides(t *testing.T) {
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envLogFormat, "text")
	defer slog.SetDefault(slog.Default())

	var console bytes.Buffer
	logger, writer, err := NewLogger(Options{Dir: t.TempDir(), Level: "error", Format: "json", Console: &console})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer writer.Close()

	logger.Debug("prompt body")
	if !strings.Contains(console.String(), "msg=\"prompt body\"") {
		t.Fatalf("expected text debug record, got %s", console.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"-4":      slog.LevelDebug,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in, slog.LevelInfo); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
