// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// SweepStats reports what a sweep removed.
type SweepStats struct {
	Expired int
	Evicted int
}

// Sweep prunes the cache: expired entries go first, then the least
// recently accessed entries until the live count sits evictionSlack
// below MaxEntries.
func (s *Store) Sweep(ctx context.Context) (SweepStats, error) {
	if err := ctx.Err(); err != nil {
		return SweepStats{}, err
	}

	type liveEntry struct {
		key          []byte
		lastAccessed time.Time
	}

	var expired [][]byte
	var live []liveEntry
	now := time.Now()

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			e, err := decodeEntry(item)
			if err != nil {
				return err
			}
			if e.ExpiresAt.After(now) {
				live = append(live, liveEntry{
					key:          item.KeyCopy(nil),
					lastAccessed: e.LastAccessed,
				})
			} else {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return SweepStats{}, err
	}

	var stats SweepStats
	if len(expired) > 0 {
		if err := s.deleteKeys(expired); err != nil {
			return stats, err
		}
		stats.Expired = len(expired)
	}

	if len(live) > s.cfg.MaxEntries {
		sort.Slice(live, func(i, j int) bool {
			return live[i].lastAccessed.Before(live[j].lastAccessed)
		})

		n := len(live) - s.cfg.MaxEntries + evictionSlack
		if n > len(live) {
			n = len(live)
		}
		victims := make([][]byte, 0, n)
		for _, le := range live[:n] {
			victims = append(victims, le.key)
		}
		if err := s.deleteKeys(victims); err != nil {
			return stats, err
		}
		stats.Evicted = n
	}

	return stats, nil
}

// Janitor periodically sweeps the cache and, for persistent caches,
// triggers BadgerDB value log garbage collection.
type Janitor struct {
	store    *Store
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

func newJanitor(store *Store, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Start begins periodic sweeping.
func (j *Janitor) Start() {
	go j.run()
}

// Stop halts sweeping and waits for the loop to finish. Safe to call
// more than once.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCh)
		<-j.doneCh
	})
}

func (j *Janitor) run() {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.tick()
		}
	}
}

func (j *Janitor) tick() {
	stats, err := j.store.Sweep(context.Background())
	if err != nil {
		j.logger.Warn("cache sweep failed", slog.String("error", err.Error()))
		return
	}
	if stats.Expired > 0 || stats.Evicted > 0 {
		j.logger.Debug("cache sweep",
			slog.Int("expired", stats.Expired),
			slog.Int("evicted", stats.Evicted))
	}

	if !j.store.cfg.InMemory {
		j.runValueLogGC()
	}
}

func (j *Janitor) runValueLogGC() {
	// RunValueLogGC returns ErrNoRewrite when there is nothing to collect.
	err := j.store.db.RunValueLogGC(j.store.cfg.GCDiscardRatio)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		j.logger.Warn("cache value log GC error", slog.String("error", err.Error()))
	}
}
