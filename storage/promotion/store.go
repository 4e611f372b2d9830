// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package promotion implements the Promotion Store of spec §4.7: a durable
// (page_signature, frame_hash, label_key) → winning-selector record with
// success/failure counters, a fixed demotion rule, and LRU eviction against
// a configured row budget.
//
// Grounded on router_cache.go's BadgerDB persistence idiom and
// graph/snapshot.go's key-prefix-plus-metadata-record convention
// (graph:snap:{hash}:... here becomes selector/promo/v1/{page}/{frame}/{label}),
// including its prefix-scan iterator shape for List/evict-by-budget.
package promotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/selectorengine/core/enginetypes"
	"github.com/selectorengine/core/storage/badgerkv"
)

// keyPrefix is the versioned BadgerDB key namespace for promotion rows,
// mirroring graph/snapshot.go's "graph:snap:" convention.
const keyPrefix = "selector/promo/v1/"

var errMiss = errors.New("promotion: miss")

// Store persists Promotion rows keyed by (PageSignature, FrameHash, LabelKey).
type Store struct {
	db        *badgerkv.DB
	rowBudget int
	logger    *slog.Logger
	clock     enginetypes.Clock
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the store's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the store's timestamp source, for deterministic tests.
func WithClock(c enginetypes.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New builds a Store backed by db, evicting down to rowBudget rows whenever
// a write would exceed it.
func New(db *badgerkv.DB, rowBudget int, opts ...Option) *Store {
	s := &Store{db: db, rowBudget: rowBudget, logger: slog.Default(), clock: enginetypes.RealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func rowKey(pageSignature, frameHash, labelKey string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%s", keyPrefix, pageSignature, frameHash, labelKey))
}

// Lookup returns the promotion row for the given triple, if any. A demoted
// row is still returned — callers decide whether to honor it; spec §4.7
// leaves demotion as "excluded from the fusion boost," not "deleted."
func (s *Store) Lookup(ctx context.Context, pageSignature, frameHash, labelKey string) (*enginetypes.Promotion, bool, error) {
	key := rowKey(pageSignature, frameHash, labelKey)
	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errMiss
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, errMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("promotion lookup: %w", err)
	}
	var p enginetypes.Promotion
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("promotion decode: %w", err)
	}
	return &p, true, nil
}

// RecordSuccess creates or updates a promotion row after a synthesized
// selector was verified and used successfully, then enforces the row
// budget.
func (s *Store) RecordSuccess(ctx context.Context, pageSignature, frameHash, labelKey, winningXPath, strategy string) error {
	return s.update(ctx, pageSignature, frameHash, labelKey, func(p *enginetypes.Promotion) {
		p.WinningXPath = winningXPath
		p.Strategy = strategy
		p.SuccessCount++
		p.Demoted = false
	})
}

// RecordFailure increments the failure counter of the promotion row (creating
// the row if it does not exist) and applies the spec §3/§4.7 demotion rule
// (failure_count > success_count + 3).
func (s *Store) RecordFailure(ctx context.Context, pageSignature, frameHash, labelKey string) error {
	return s.update(ctx, pageSignature, frameHash, labelKey, func(p *enginetypes.Promotion) {
		p.FailureCount++
		p.Demoted = p.ShouldDemote()
	})
}

func (s *Store) update(ctx context.Context, pageSignature, frameHash, labelKey string, mutate func(*enginetypes.Promotion)) error {
	key := rowKey(pageSignature, frameHash, labelKey)
	now := s.clock()

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		p := enginetypes.Promotion{PageSignature: pageSignature, FrameHash: frameHash, LabelKey: labelKey}
		item, err := txn.Get(key)
		switch {
		case err == nil:
			raw, cerr := item.ValueCopy(nil)
			if cerr != nil {
				return cerr
			}
			if jerr := json.Unmarshal(raw, &p); jerr != nil {
				return jerr
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// new row
		default:
			return err
		}

		mutate(&p)
		p.LastUsedNs = now

		data, merr := json.Marshal(p)
		if merr != nil {
			return merr
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("promotion update: %w", err)
	}
	return s.enforceBudget(ctx)
}

// enforceBudget scans all promotion rows and deletes the least-recently-used
// ones past s.rowBudget, mirroring graph/snapshot.go's prefix-scan List
// pattern.
func (s *Store) enforceBudget(ctx context.Context) error {
	if s.rowBudget <= 0 {
		return nil
	}
	rows, err := s.all(ctx)
	if err != nil {
		return err
	}
	if len(rows) <= s.rowBudget {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].p.LastUsedNs < rows[j].p.LastUsedNs })
	toEvict := rows[:len(rows)-s.rowBudget]

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		for _, r := range toEvict {
			if derr := txn.Delete(r.key); derr != nil && !errors.Is(derr, badger.ErrKeyNotFound) {
				return derr
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("promotion evict: %w", err)
	}
	s.logger.Debug("promotion store: evicted rows over budget", slog.Int("evicted", len(toEvict)))
	return nil
}

type promotionRow struct {
	key []byte
	p   enginetypes.Promotion
}

func (s *Store) all(ctx context.Context) ([]promotionRow, error) {
	var rows []promotionRow
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(keyPrefix)); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			item := it.Item()
			key := bytes.Clone(item.Key())
			var p enginetypes.Promotion
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				s.logger.Warn("promotion store: skipping corrupt row", slog.String("key", string(key)))
				continue
			}
			rows = append(rows, promotionRow{key: key, p: p})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("promotion scan: %w", err)
	}
	return rows, nil
}

// List returns every persisted promotion row, for the promotions
// inspection CLI (selectorengine promotions inspect).
func (s *Store) List(ctx context.Context) ([]enginetypes.Promotion, error) {
	rows, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]enginetypes.Promotion, len(rows))
	for i, r := range rows {
		out[i] = r.p
	}
	return out, nil
}

// Count returns the current number of persisted promotion rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	rows, err := s.all(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
