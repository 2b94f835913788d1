// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kv

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// Entry is a stored cell in encoded form, as handed to and from backends.
type Entry struct {
	Key       []byte
	Timestamp int64
	Value     []byte
}

// Write is a put, or a delete when Delete is set, of one encoded key.
type Write struct {
	Key       []byte
	Timestamp int64
	Value     []byte
	Delete    bool
}

// Cursor walks entries in ascending key order.
type Cursor interface {
	Next() bool
	Entry() Entry
	Err() error
	Close() error
}

// Backend is an ordered byte-keyed store partitioned into tables. Keys are
// compared with bytes.Compare. A backend keeps one entry per key; a put
// replaces it.
type Backend interface {
	// CreateTable is idempotent.
	CreateTable(ctx context.Context, table string) error
	TableExists(ctx context.Context, table string) (bool, error)
	// Apply writes all entries atomically, in order.
	Apply(ctx context.Context, table string, writes []Write) error
	// Scan returns entries with start <= key < end. A nil end is unbounded.
	Scan(ctx context.Context, table string, start, end []byte) (Cursor, error)
	// DeleteRange removes entries with start <= key < end.
	DeleteRange(ctx context.Context, table string, start, end []byte) error
	Close() error
}

// BackendConfig carries the settings a backend factory may use.
type BackendConfig struct {
	// Path is the directory or file the backend persists to. Empty means
	// in-memory where the backend supports it.
	Path           string
	SyncWrites     bool
	GCInterval     time.Duration
	GCDiscardRatio float64
	Logger         *slog.Logger
}

// BackendFactory opens a backend.
type BackendFactory func(cfg BackendConfig) (Backend, error)

var (
	backendFactories = map[string]BackendFactory{}
	factoriesMu      sync.RWMutex
)

// RegisterBackend registers a factory for a named backend. Backend packages
// call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, factory BackendFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	backendFactories[name] = factory
}

// Backends lists the registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveBackend returns the effective backend name, defaulting to "memory".
func resolveBackend(name string) string {
	if name == "" {
		return "memory"
	}
	return name
}

// OpenBackend opens the named backend.
func OpenBackend(name string, cfg BackendConfig) (Backend, error) {
	name = resolveBackend(name)

	factoriesMu.RLock()
	factory, ok := backendFactories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, sgerr.Errorf(sgerr.CodeKVBackendUnsupported, "unsupported kv backend: %q", name)
	}

	b, err := factory(cfg)
	if err != nil {
		return nil, sgerr.Wrap(err, sgerr.CodeKVBackendFailure, "opening kv backend", sgerr.FieldBackend(name))
	}
	return b, nil
}

// Open opens the named backend and returns a client over it.
func Open(name string, cfg BackendConfig) (*Client, error) {
	b, err := OpenBackend(name, cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(b, WithLogger(cfg.Logger)), nil
}

// TableNotFound is the error backends return for operations on a table that
// was never created.
func TableNotFound(table string) error {
	return sgerr.New(sgerr.CodeKVTableNotFound, "kv: table does not exist", sgerr.FieldTable(table))
}

// SliceCursor is a Cursor over entries already in memory.
type SliceCursor struct {
	entries []Entry
	pos     int
}

func NewSliceCursor(entries []Entry) *SliceCursor {
	return &SliceCursor{entries: entries, pos: -1}
}

func (c *SliceCursor) Next() bool {
	if c.pos+1 >= len(c.entries) {
		c.pos = len(c.entries)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Entry() Entry { return c.entries[c.pos] }
func (c *SliceCursor) Err() error   { return nil }
func (c *SliceCursor) Close() error { return nil }
