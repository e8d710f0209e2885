package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingWarmer struct {
	mu      sync.Mutex
	symbols []string
	fail    map[string]bool
	block   chan struct{}
	entered chan struct{}
}

func (r *recordingWarmer) WarmMarketData(ctx context.Context, symbol string) error {
	if r.entered != nil {
		select {
		case r.entered <- struct{}{}:
		default:
		}
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols = append(r.symbols, symbol)
	if r.fail[symbol] {
		return errors.New("upstream down")
	}
	return nil
}

func (r *recordingWarmer) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.symbols...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunNowWarmsEverySymbol(t *testing.T) {
	t.Parallel()

	warmer := &recordingWarmer{fail: map[string]bool{"MSFT": true}}
	w := NewCacheWarmer(context.Background(), warmer, []string{"aapl", " msft", "", "AAPL", "spy"}, discardLogger())
	w.RunNow()

	if got := strings.Join(warmer.seen(), ","); got != "AAPL,MSFT,SPY" {
		t.Fatalf("warmed %s", got)
	}
}

func TestRegisterValidatesSpecAndSymbols(t *testing.T) {
	t.Parallel()

	w := NewCacheWarmer(context.Background(), &recordingWarmer{}, nil, discardLogger())
	if err := w.Register("0 */30 * * * *"); err == nil {
		t.Fatal("expected error without symbols")
	}

	w = NewCacheWarmer(context.Background(), &recordingWarmer{}, []string{"AAPL"}, discardLogger())
	if err := w.Register("every now and then"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
	// Five-field specs are rejected because the seconds field is required.
	if err := w.Register("*/5 * * * *"); err == nil {
		t.Fatal("expected error for five-field cron expression")
	}
	if err := w.Register("0 */30 9-16 * * MON-FRI"); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func TestScheduledRunFires(t *testing.T) {
	t.Parallel()

	warmer := &recordingWarmer{}
	w := NewCacheWarmer(context.Background(), warmer, []string{"QQQ"}, discardLogger())
	if err := w.Register("* * * * * *"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	w.Start()
	defer w.Stop()

	deadline := time.After(3 * time.Second)
	for len(warmer.seen()) == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduled warm-up did not run")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestRunNowSkipsOverlappingRun(t *testing.T) {
	t.Parallel()

	warmer := &recordingWarmer{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	w := NewCacheWarmer(context.Background(), warmer, []string{"AAPL"}, discardLogger())

	done := make(chan struct{})
	go func() {
		w.RunNow()
		close(done)
	}()

	<-warmer.entered
	w.RunNow()
	close(warmer.block)
	<-done

	if got := warmer.seen(); len(got) != 1 {
		t.Fatalf("expected a single warm-up, got %v", got)
	}
}

func TestStopCancelsInFlightRun(t *testing.T) {
	t.Parallel()

	warmer := &recordingWarmer{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	w := NewCacheWarmer(context.Background(), warmer, []string{"AAPL", "MSFT"}, discardLogger())

	done := make(chan struct{})
	go func() {
		w.RunNow()
		close(done)
	}()
	<-warmer.entered
	w.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	if got := warmer.seen(); len(got) != 0 {
		t.Fatalf("cancelled run should not record symbols, got %v", got)
	}
}
