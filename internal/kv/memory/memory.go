// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package memory is an in-process kv backend built on copy-on-write
// B-trees. Scans iterate a snapshot, so writers never wait on readers.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/tidwall/btree"

	"github.com/sigil-dev/securegraph/internal/kv"
)

func init() {
	kv.RegisterBackend("memory", func(kv.BackendConfig) (kv.Backend, error) {
		return New(), nil
	})
}

type item struct {
	key   []byte
	ts    int64
	value []byte
}

func itemLess(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Backend keeps every table in memory.
type Backend struct {
	mu     sync.RWMutex
	tables map[string]*btree.BTreeG[item]
}

var _ kv.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{tables: make(map[string]*btree.BTreeG[item])}
}

func (b *Backend) CreateTable(_ context.Context, table string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tables[table]; !ok {
		b.tables[table] = btree.NewBTreeG[item](itemLess)
	}
	return nil
}

func (b *Backend) TableExists(_ context.Context, table string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.tables[table]
	return ok, nil
}

func (b *Backend) Apply(ctx context.Context, table string, writes []kv.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	tree, ok := b.tables[table]
	if !ok {
		return kv.TableNotFound(table)
	}
	for _, w := range writes {
		if w.Delete {
			tree.Delete(item{key: w.Key})
			continue
		}
		tree.Set(item{
			key:   bytes.Clone(w.Key),
			ts:    w.Timestamp,
			value: bytes.Clone(w.Value),
		})
	}
	return nil
}

func (b *Backend) Scan(ctx context.Context, table string, start, end []byte) (kv.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	tree, ok := b.tables[table]
	var snapshot *btree.BTreeG[item]
	if ok {
		snapshot = tree.Copy()
	}
	b.mu.RUnlock()
	if !ok {
		return nil, kv.TableNotFound(table)
	}
	return newCursor(snapshot, start, end), nil
}

func (b *Backend) DeleteRange(ctx context.Context, table string, start, end []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	tree, ok := b.tables[table]
	if !ok {
		return kv.TableNotFound(table)
	}
	var doomed []item
	tree.Ascend(item{key: start}, func(it item) bool {
		if end != nil && bytes.Compare(it.key, end) >= 0 {
			return false
		}
		doomed = append(doomed, it)
		return true
	})
	for _, it := range doomed {
		tree.Delete(it)
	}
	return nil
}

func (b *Backend) Close() error {
	return nil
}

type cursor struct {
	iter    btree.IterG[item]
	end     []byte
	started bool
	start   []byte
	done    bool
	cur     kv.Entry
}

func newCursor(tree *btree.BTreeG[item], start, end []byte) *cursor {
	return &cursor{iter: tree.Iter(), start: start, end: end}
}

func (c *cursor) Next() bool {
	if c.done {
		return false
	}
	var ok bool
	if !c.started {
		c.started = true
		ok = c.iter.Seek(item{key: c.start})
	} else {
		ok = c.iter.Next()
	}
	if !ok {
		c.finish()
		return false
	}
	it := c.iter.Item()
	if c.end != nil && bytes.Compare(it.key, c.end) >= 0 {
		c.finish()
		return false
	}
	c.cur = kv.Entry{Key: it.key, Timestamp: it.ts, Value: it.value}
	return true
}

func (c *cursor) finish() {
	if !c.done {
		c.done = true
		c.iter.Release()
	}
}

func (c *cursor) Entry() kv.Entry { return c.cur }
func (c *cursor) Err() error      { return nil }

func (c *cursor) Close() error {
	c.finish()
	return nil
}
