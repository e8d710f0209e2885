package signaldesk

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DefaultCacheTTL is how long stored market data counts as fresh.
const DefaultCacheTTL = 2 * time.Hour

// CacheStore persists market data payloads keyed by (symbol, kind).
type CacheStore interface {
	Get(ctx context.Context, symbol, kind string) (CacheEntry, bool, error)
	// Put inserts or replaces the entry for (symbol, kind).
	Put(ctx context.Context, entry CacheEntry) error
}

type sqliteCacheStore struct {
	db *sql.DB
}

func newSQLiteCacheStore(db *sql.DB) *sqliteCacheStore {
	return &sqliteCacheStore{db: db}
}

func (s *sqliteCacheStore) Get(ctx context.Context, symbol, kind string) (CacheEntry, bool, error) {
	var (
		payload   string
		fetchedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, fetched_at FROM market_data_cache
		WHERE symbol = ? AND data_kind = ?
	`, symbol, kind).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, WrapError(ErrCodeDatabase, "read market data cache", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return CacheEntry{}, false, WrapError(ErrCodeDatabase, "parse cache timestamp", err)
	}
	return CacheEntry{Symbol: symbol, Kind: kind, Payload: []byte(payload), FetchedAt: ts}, true, nil
}

func (s *sqliteCacheStore) Put(ctx context.Context, entry CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_data_cache (symbol, data_kind, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol, data_kind) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at
	`, entry.Symbol, entry.Kind, string(entry.Payload), entry.FetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return WrapError(ErrCodeDatabase, "write market data cache", err)
	}
	return nil
}

// MarketCache applies the freshness window on top of a CacheStore.
type MarketCache struct {
	store CacheStore
	ttl   time.Duration
	now   func() time.Time
}

// NewMarketCache wraps store with a freshness window of ttl.
func NewMarketCache(store CacheStore, ttl time.Duration) *MarketCache {
	return &MarketCache{store: store, ttl: defaultDuration(ttl, DefaultCacheTTL), now: time.Now}
}

// Get returns the payload for (symbol, kind) if it was fetched less than the
// freshness window ago. Stale or missing entries report ok=false.
func (m *MarketCache) Get(ctx context.Context, symbol, kind string) ([]byte, bool, error) {
	entry, ok, err := m.store.Get(ctx, symbol, kind)
	if err != nil || !ok {
		return nil, false, err
	}
	if m.now().Sub(entry.FetchedAt) >= m.ttl {
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// Put stores payload for (symbol, kind), replacing any previous entry.
func (m *MarketCache) Put(ctx context.Context, symbol, kind string, payload []byte, fetchedAt time.Time) error {
	return m.store.Put(ctx, CacheEntry{Symbol: symbol, Kind: kind, Payload: payload, FetchedAt: fetchedAt})
}
