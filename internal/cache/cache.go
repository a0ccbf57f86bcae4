// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache persists upstream search responses in SQLite so repeat
// queries short-circuit the provider. It stores verbatim result lists
// keyed by (query, count) with a TTL; it is a fetch cache, not an index.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/internal/source"
	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

const dbFile = "responses.db"

// DefaultTTL bounds how long a cached response stays servable.
const DefaultTTL = time.Hour

// Store manages the response cache database.
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

// NewStore opens or creates the cache database at dir/responses.db and
// bootstraps the schema. A non-positive ttl uses DefaultTTL.
func NewStore(dir string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	s := &Store{db: db, ttl: ttl}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS responses (
			query TEXT NOT NULL,
			count INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (query, count)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_created ON responses(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Get returns the cached results for (query, count) if present and
// fresh. The second return reports a hit.
func (s *Store) Get(ctx context.Context, query string, count int) ([]types.SearchResult, bool, error) {
	var payload string
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM responses WHERE query = ? AND count = ?`,
		query, count,
	).Scan(&payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache: %w", err)
	}

	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil || time.Since(created) > s.ttl {
		// Stale or unparseable rows are treated as misses; Put
		// overwrites them on the next fetch.
		return nil, false, nil
	}

	var results []types.SearchResult
	if err := json.Unmarshal([]byte(payload), &results); err != nil {
		return nil, false, nil
	}
	return results, true, nil
}

// Put stores (or replaces) the results for (query, count).
func (s *Store) Put(ctx context.Context, query string, count int, results []types.SearchResult) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding cache payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO responses (query, count, payload, created_at) VALUES (?, ?, ?, ?)`,
		query, count, string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// Purge drops every cached response and reports how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses`)
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

// Provider decorates a source.Provider with the cache: hits skip the
// network entirely, misses fetch through and populate the cache.
// Cache write failures degrade to uncached behavior rather than
// failing the fetch.
type Provider struct {
	inner source.Provider
	store *Store
}

// Wrap returns a caching provider. A nil store returns inner unchanged.
func Wrap(inner source.Provider, store *Store) source.Provider {
	if store == nil {
		return inner
	}
	return &Provider{inner: inner, store: store}
}

// Name returns the decorated provider's identifier.
func (p *Provider) Name() string { return p.inner.Name() + "+cache" }

// Fetch serves from the cache when possible.
func (p *Provider) Fetch(ctx context.Context, query string, count int) ([]types.SearchResult, error) {
	if results, hit, err := p.store.Get(ctx, query, count); err == nil && hit {
		return results, nil
	}

	results, err := p.inner.Fetch(ctx, query, count)
	if err != nil {
		return nil, err
	}
	_ = p.store.Put(ctx, query, count, results)
	return results, nil
}
