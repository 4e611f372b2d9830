// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerkv is a thin, shared wrapper around a single BadgerDB
// instance, grounded on the teacher's services/trace/storage/badger.DB
// helper (referenced, but not itself retrieved, by router_cache.go's
// WithTxn/WithReadTxn call shape): one open handle per on-disk path, a
// context-aware read/write transaction helper, and nothing else. Both the
// embedding cache cold tier and the promotion store open their own DB
// instance at a distinct path and share this wrapper's transaction idiom.
package badgerkv

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// DB wraps a single *badger.DB opened at a caller-chosen path.
type DB struct {
	inner *badger.DB
}

// Open opens (creating if absent) a BadgerDB at dir. Badger's own internal
// logger is silenced; callers observe failures through returned errors and
// their own structured logger instead.
func Open(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerkv: open %s: %w", dir, err)
	}
	return &DB{inner: bdb}, nil
}

// Close releases the underlying BadgerDB handle.
func (d *DB) Close() error {
	return d.inner.Close()
}

// WithReadTxn runs fn inside a read-only Badger transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.inner.View(fn)
}

// WithTxn runs fn inside a read-write Badger transaction, committing on a
// nil return and rolling back otherwise.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.inner.Update(fn)
}

// RunValueLogGC runs one pass of Badger's value-log garbage collection,
// per the spec's periodic cold-tier maintenance requirement. A
// badger.ErrNoRewrite return means there was nothing to reclaim; that is
// not an error condition for the caller.
func (d *DB) RunValueLogGC(discardRatio float64) error {
	err := d.inner.RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}
