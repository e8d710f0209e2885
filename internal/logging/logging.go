package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"signaldesk/pkg/signaldesk"
)

const (
	filePrefix       = "signaldesk-"
	fileSuffix       = ".log"
	sessionDayLayout = "2006-01-02"
	defaultKeepFiles = 10
	redacted         = "[redacted]"
)

const (
	envLogLevel  = "SIGNALDESK_LOG_LEVEL"
	envLogFormat = "SIGNALDESK_LOG_FORMAT"
)

// secretAttrKeys never reach a log sink with their value.
var secretAttrKeys = map[string]struct{}{
	"api_key":        {},
	"apikey":         {},
	"authorization":  {},
	"x-api-key":      {},
	"x-goog-api-key": {},
}

// SessionWriter appends to one file per market trading day, named
// signaldesk-YYYY-MM-DD.log with the day taken in market time, so a session
// that runs past local midnight stays in one file. Only the newest keep
// files survive a day change.
type SessionWriter struct {
	dir  string
	keep int
	loc  *time.Location
	now  func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewSessionWriter opens today's session file in dir. keep <= 0 keeps ten files.
func NewSessionWriter(dir string, keep int) (*SessionWriter, error) {
	return newSessionWriter(dir, keep, time.Now)
}

func newSessionWriter(dir string, keep int, now func() time.Time) (*SessionWriter, error) {
	if keep <= 0 {
		keep = defaultKeepFiles
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &SessionWriter{
		dir:  dir,
		keep: keep,
		loc:  signaldesk.MarketLocation(),
		now:  now,
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openSession(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer, switching files when the market day changes.
func (w *SessionWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openSession(); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

// Close closes the current session file.
func (w *SessionWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Path returns the file records are currently written to.
func (w *SessionWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionPath(w.day)
}

func (w *SessionWriter) sessionPath(day string) string {
	return filepath.Join(w.dir, filePrefix+day+fileSuffix)
}

// openSession must be called with mu held.
func (w *SessionWriter) openSession() error {
	day := w.now().In(w.loc).Format(sessionDayLayout)
	if day == w.day && w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.sessionPath(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = file
	w.day = day
	w.prune()
	return nil
}

// prune removes session files beyond the newest keep. Files not named like
// a session are left alone.
func (w *SessionWriter) prune() {
	matches, err := filepath.Glob(filepath.Join(w.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return
	}
	var days []string
	for _, path := range matches {
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), filePrefix), fileSuffix)
		if _, err := time.Parse(sessionDayLayout, day); err == nil {
			days = append(days, day)
		}
	}
	if len(days) <= w.keep {
		return
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	for _, day := range days[w.keep:] {
		if day == w.day {
			continue
		}
		_ = os.Remove(w.sessionPath(day))
	}
}

// Options configures NewLogger. Environment variables override Level and Format.
type Options struct {
	Dir    string
	Level  string
	Format string
	// KeepFiles is the number of session files retained; 0 means ten.
	KeepFiles int
	// Console receives a copy of every record; nil means stdout.
	Console io.Writer
}

// NewLogger creates a slog.Logger writing to the console and the session
// file, and installs it as the default logger.
func NewLogger(opts Options) (*slog.Logger, *SessionWriter, error) {
	writer, err := NewSessionWriter(opts.Dir, opts.KeepFiles)
	if err != nil {
		return nil, nil, err
	}
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	level := ParseLevel(opts.Level, slog.LevelInfo)
	if env := strings.TrimSpace(os.Getenv(envLogLevel)); env != "" {
		level = ParseLevel(env, level)
	}
	format := opts.Format
	if env := strings.TrimSpace(os.Getenv(envLogFormat)); env != "" {
		format = env
	}

	logger := slog.New(newHandler(io.MultiWriter(console, writer), level, format)).With("service", "signaldesk")
	slog.SetDefault(logger)
	return logger, writer, nil
}

// ParseLevel maps a level name or number onto slog.Level, returning fallback
// for anything it does not recognize.
func ParseLevel(value string, fallback slog.Level) slog.Level {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "":
		return fallback
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if i, err := strconv.Atoi(value); err == nil {
		return slog.Level(i)
	}
	return fallback
}

func newHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	options := &slog.HandlerOptions{Level: level, ReplaceAttr: redactSecrets}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, options)
	}
	return slog.NewTextHandler(w, options)
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretAttrKeys[strings.ToLower(a.Key)]; ok && a.Value.String() != "" {
		return slog.String(a.Key, redacted)
	}
	return a
}
