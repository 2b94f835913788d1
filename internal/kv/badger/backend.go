// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/sigil-dev/securegraph/internal/kv"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// Key layout:
//
//	m\x00{table}                 table marker
//	d\x00{table}\x00{cell key}   cell; value is an 8-byte timestamp then the payload
const (
	metaPrefix = "m\x00"
	dataPrefix = "d\x00"
)

func init() {
	kv.RegisterBackend("badger", func(cfg kv.BackendConfig) (kv.Backend, error) {
		c := DefaultConfig()
		c.Path = cfg.Path
		c.InMemory = cfg.Path == ""
		c.SyncWrites = cfg.SyncWrites
		c.Logger = cfg.Logger
		if cfg.GCInterval > 0 {
			c.GCInterval = cfg.GCInterval
		}
		if cfg.GCDiscardRatio > 0 {
			c.GCDiscardRatio = cfg.GCDiscardRatio
		}
		return Open(c)
	})
}

// Backend stores all tables in one BadgerDB keyspace.
type Backend struct {
	db *badger.DB
	gc *gcRunner
}

var _ kv.Backend = (*Backend)(nil)

// Open opens the database and starts value log GC when configured.
func Open(cfg Config) (*Backend, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	b := &Backend{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		b.gc = runner
		runner.start()
	}
	return b, nil
}

func (b *Backend) CreateTable(ctx context.Context, table string) error {
	if strings.IndexByte(table, 0) >= 0 {
		return sgerr.New(sgerr.CodeKVMutationInvalidInput, "badger: table name contains NUL", sgerr.FieldTable(table))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(table), nil)
	})
}

func (b *Backend) TableExists(ctx context.Context, table string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	exists := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(metaKey(table))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// Apply commits writes in one transaction, splitting only when the batch
// exceeds BadgerDB's transaction size limit.
func (b *Backend) Apply(ctx context.Context, table string, writes []kv.Write) error {
	if err := b.requireTable(ctx, table); err != nil {
		return err
	}
	prefix := tablePrefix(table)
	txn := b.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for _, w := range writes {
		err := applyWrite(txn, prefix, w)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return err
			}
			txn = b.db.NewTransaction(true)
			err = applyWrite(txn, prefix, w)
		}
		if err != nil {
			return err
		}
	}
	return txn.Commit()
}

func applyWrite(txn *badger.Txn, prefix []byte, w kv.Write) error {
	key := append(bytes.Clone(prefix), w.Key...)
	if w.Delete {
		return txn.Delete(key)
	}
	val := make([]byte, 8+len(w.Value))
	binary.BigEndian.PutUint64(val, uint64(w.Timestamp))
	copy(val[8:], w.Value)
	return txn.Set(key, val)
}

func (b *Backend) Scan(ctx context.Context, table string, start, end []byte) (kv.Cursor, error) {
	if err := b.requireTable(ctx, table); err != nil {
		return nil, err
	}
	prefix := tablePrefix(table)
	txn := b.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	it.Seek(append(bytes.Clone(prefix), start...))

	var limit []byte
	if end != nil {
		limit = append(bytes.Clone(prefix), end...)
	}
	return &cursor{txn: txn, it: it, prefix: prefix, limit: limit}, nil
}

func (b *Backend) DeleteRange(ctx context.Context, table string, start, end []byte) error {
	cur, err := b.Scan(ctx, table, start, end)
	if err != nil {
		return err
	}
	var keys [][]byte
	for cur.Next() {
		keys = append(keys, cur.Entry().Key)
	}
	if err := cur.Err(); err != nil {
		_ = cur.Close()
		return err
	}
	_ = cur.Close()

	writes := make([]kv.Write, len(keys))
	for i, k := range keys {
		writes[i] = kv.Write{Key: k, Delete: true}
	}
	return b.Apply(ctx, table, writes)
}

func (b *Backend) Close() error {
	if b.gc != nil {
		b.gc.stop()
	}
	return b.db.Close()
}

func (b *Backend) requireTable(ctx context.Context, table string) error {
	ok, err := b.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		return kv.TableNotFound(table)
	}
	return nil
}

func metaKey(table string) []byte {
	return []byte(metaPrefix + table)
}

func tablePrefix(table string) []byte {
	return []byte(dataPrefix + table + "\x00")
}

type cursor struct {
	txn    *badger.Txn
	it     *badger.Iterator
	prefix []byte
	limit  []byte

	started bool
	closed  bool
	cur     kv.Entry
	err     error
}

func (c *cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if c.started {
		c.it.Next()
	}
	c.started = true
	if !c.it.Valid() {
		return false
	}
	item := c.it.Item()
	key := item.KeyCopy(nil)
	if c.limit != nil && bytes.Compare(key, c.limit) >= 0 {
		return false
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		c.err = err
		return false
	}
	if len(val) < 8 {
		c.err = sgerr.New(sgerr.CodeKVKeyDecodeInvalidFormat, "badger: stored value is missing its timestamp")
		return false
	}
	c.cur = kv.Entry{
		Key:       key[len(c.prefix):],
		Timestamp: int64(binary.BigEndian.Uint64(val[:8])),
		Value:     val[8:],
	}
	return true
}

func (c *cursor) Entry() kv.Entry { return c.cur }
func (c *cursor) Err() error      { return c.err }

func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.it.Close()
	c.txn.Discard()
	return nil
}
