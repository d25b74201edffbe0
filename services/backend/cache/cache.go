// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides the query result cache backed by BadgerDB.
//
// Results are keyed by the SHA-256 of the executed SQL and stored as
// snappy-compressed JSON with a TTL. Expired entries remain visible to
// Stats until the janitor sweeps them, and the sweep also evicts the
// least recently accessed entries once the cache grows past its size
// budget.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang/snappy"
)

const (
	// DefaultTTL is how long a cached result stays servable
	// (CACHE_TTL_SECONDS).
	DefaultTTL = time.Hour

	// DefaultMaxEntries is the cache size budget (MAX_CACHE_SIZE).
	DefaultMaxEntries = 1000

	// defaultSweepInterval is how often the janitor prunes the cache.
	defaultSweepInterval = 5 * time.Minute

	// evictionSlack is how far below the budget a size eviction cuts,
	// so back-to-back sweeps don't each evict a single entry.
	evictionSlack = 10

	keyPrefix = "q:"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config holds configuration for the query cache.
type Config struct {
	// Path is the directory for cache files (CACHE_DIR).
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes. The cache is disposable,
	// so this defaults to false.
	SyncWrites bool

	// TTL is the lifetime of a cached result.
	// Default: 1h (CACHE_TTL_SECONDS).
	TTL time.Duration

	// MaxEntries is the size budget enforced by the janitor.
	// Default: 1000 (MAX_CACHE_SIZE).
	MaxEntries int

	// SweepInterval is how often the janitor runs. Set to 0 to disable;
	// Sweep can still be invoked directly.
	SweepInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable value log data
	// before the janitor triggers BadgerDB GC. Default: 0.5.
	GCDiscardRatio float64

	// Logger for cache operations. If nil, BadgerDB's internal logging
	// is disabled and operations log through slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns production defaults. Path must still be set.
func DefaultConfig() Config {
	return Config{
		TTL:            DefaultTTL,
		MaxEntries:     DefaultMaxEntries,
		SweepInterval:  defaultSweepInterval,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing. The
// janitor is disabled so tests drive Sweep explicitly.
func InMemoryConfig() Config {
	return Config{
		InMemory:       true,
		TTL:            DefaultTTL,
		MaxEntries:     DefaultMaxEntries,
		GCDiscardRatio: 0.5,
	}
}

// ConfigFromEnv builds a Config from the cache environment surface.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if dir := os.Getenv("CACHE_DIR"); dir != "" {
		cfg.Path = dir
	} else {
		cfg.Path = "data/cache"
	}
	cfg.TTL = time.Duration(envInt("CACHE_TTL_SECONDS", int(DefaultTTL/time.Second))) * time.Second
	cfg.MaxEntries = envInt("MAX_CACHE_SIZE", DefaultMaxEntries)
	return cfg
}

func (c *Config) applyDefaults() {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.GCDiscardRatio == 0 {
		c.GCDiscardRatio = 0.5
	}
}

// -----------------------------------------------------------------------------
// Entries
// -----------------------------------------------------------------------------

// Entry is a cached query result.
//
// Data and Metadata hold the result rows and shape as the JSON the
// executor produced, so handlers can re-embed them without another
// marshal round.
type Entry struct {
	SQL          string          `json:"sql_query"`
	Data         json.RawMessage `json:"data"`
	Metadata     json.RawMessage `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	AccessCount  int64           `json:"access_count"`
	LastAccessed time.Time       `json:"last_accessed"`
}

// Stats summarizes cache occupancy and usage.
type Stats struct {
	TotalEntries   int     `json:"total_entries"`
	TotalAccesses  int64   `json:"total_accesses"`
	AvgAccesses    float64 `json:"avg_accesses"`
	ActiveEntries  int     `json:"active_entries"`
	ExpiredEntries int     `json:"expired_entries"`
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store is the BadgerDB-backed query result cache.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	db      *badger.DB
	cfg     Config
	logger  *slog.Logger
	janitor *Janitor
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open creates and opens the query cache.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory when
//	InMemory is set, and starts the janitor when SweepInterval is
//	positive. Creates the directory if it doesn't exist.
//
// Outputs:
//
//	*Store - The opened cache. Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent cache")
	}
	cfg.applyDefaults()

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		db:     db,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "query_cache")),
	}

	if cfg.SweepInterval > 0 {
		s.janitor = newJanitor(s, cfg.SweepInterval, s.logger)
		s.janitor.Start()
	}

	return s, nil
}

// Close stops the janitor and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.janitor != nil {
		s.janitor.Stop()
	}
	return s.db.Close()
}

// Key returns the cache key for a SQL statement. The statement is
// normalized first (case folded, runs of whitespace collapsed) so
// formatting-only variants of the same query share one entry.
func Key(sql string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(sql), " "))
	sum := sha256.Sum256([]byte(norm))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get looks up the cached result for a SQL statement.
//
// A hit bumps the entry's access count and last-accessed stamp. Expired
// entries report a miss but stay in place for the janitor, matching how
// Stats counts them.
func (s *Store) Get(ctx context.Context, sql string) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	key := []byte(Key(sql))
	var entry *Entry
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		e, err := decodeEntry(item)
		if err != nil {
			return err
		}
		if !e.ExpiresAt.After(time.Now()) {
			return nil
		}

		e.AccessCount++
		e.LastAccessed = time.Now().UTC()
		raw, err := encodeEntry(e)
		if err != nil {
			return err
		}
		if err := txn.Set(key, raw); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return entry, entry != nil, nil
}

// Put stores a query result. An existing entry for the same SQL is
// replaced and its access count starts over.
func (s *Store) Put(ctx context.Context, sql string, data, metadata json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	entry := &Entry{
		SQL:          sql,
		Data:         data,
		Metadata:     metadata,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.TTL),
		LastAccessed: now,
	}
	raw, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(Key(sql)), raw)
	})
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Stats scans the cache and reports occupancy, including entries that
// have expired but not yet been swept.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	var st Stats
	now := time.Now()
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			e, err := decodeEntry(it.Item())
			if err != nil {
				return err
			}
			st.TotalEntries++
			st.TotalAccesses += e.AccessCount
			if e.ExpiresAt.After(now) {
				st.ActiveEntries++
			} else {
				st.ExpiredEntries++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}

	if st.TotalEntries > 0 {
		st.AvgAccesses = float64(st.TotalAccesses) / float64(st.TotalEntries)
	}
	return st, nil
}

// Clear removes every cached entry and reports how many were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	keys, err := s.collectKeys()
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := s.deleteKeys(keys); err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return len(keys), nil
}

// -----------------------------------------------------------------------------
// Internal Methods
// -----------------------------------------------------------------------------

func (s *Store) collectKeys() ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// deleteKeys removes keys through a write batch, which splits the work
// into as many transactions as BadgerDB needs.
func (s *Store) deleteKeys(keys [][]byte) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func encodeEntry(e *Entry) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

func decodeEntry(item *badger.Item) (*Entry, error) {
	compressed, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
