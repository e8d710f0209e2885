package signaldesk

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// setupTestDB creates a temporary database for testing and returns a Core instance.
// The caller should defer cleanup() to remove the temp file.
func setupTestDB(t *testing.T) (*Core, func()) {
	t.Helper()
	return setupTestCore(t, Options{})
}

// setupTestCore opens a Core on a temp database with the given options.
func setupTestCore(t *testing.T, opts Options) (*Core, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "signaldesk-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	opts.DBPath = filepath.Join(tmpDir, "test.db")
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	core, err := OpenWithOptions(opts)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to open test db: %v", err)
	}

	cleanup := func() {
		core.Close()
		os.RemoveAll(tmpDir)
	}

	return core, cleanup
}

// stubMarket is a MarketDataProvider backed by fixed data that counts calls.
type stubMarket struct {
	mu          sync.Mutex
	quote       Quote
	history     []PriceBar
	err         error
	quoteCalls  int
	historyCall int
}

func (s *stubMarket) GetQuote(_ context.Context, symbol string) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quoteCalls++
	if s.err != nil {
		return Quote{}, s.err
	}
	q := s.quote
	q.Symbol = symbol
	return q, nil
}

func (s *stubMarket) GetHistory(_ context.Context, _ string, _ int) ([]PriceBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyCall++
	if s.err != nil {
		return nil, s.err
	}
	return append([]PriceBar(nil), s.history...), nil
}

func (s *stubMarket) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quoteCalls, s.historyCall
}

// floatEquals checks if two floats are approximately equal.
func floatEquals(a, b, epsilon float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}

// assertFloatEquals fails the test if the floats are not approximately equal.
func assertFloatEquals(t *testing.T, got, want float64, msg string) {
	t.Helper()
	if !floatEquals(got, want, 0.001) {
		t.Errorf("%s: got %.4f, want %.4f", msg, got, want)
	}
}

// assertNoError fails the test if err is not nil.
func assertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// assertErrorCode fails the test unless err carries the given code.
func assertErrorCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !IsErrorCode(err, code) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}
