// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kv

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

const compactBatchSize = 1000

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client enforces cell visibility and row deletion on top of a Backend. It
// is safe for concurrent use.
type Client struct {
	backend Backend
	logger  *slog.Logger

	lastTimestamp atomic.Int64

	mu     sync.Mutex
	tables map[string]*tableState
}

type tableState struct {
	rowDeletionOnce sync.Once
	rowDeletionErr  error
	rowDeletion     atomic.Bool
}

func NewClient(b Backend, opts ...Option) *Client {
	c := &Client{
		backend: b,
		logger:  slog.Default(),
		tables:  make(map[string]*tableState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateTable(ctx context.Context, table string) error {
	if table == "" {
		return sgerr.New(sgerr.CodeKVMutationInvalidInput, "kv: table name must not be empty")
	}
	if err := c.backend.CreateTable(ctx, table); err != nil {
		return sgerr.Wrap(err, sgerr.CodeKVTableCreateFailure, "creating table", sgerr.FieldTable(table))
	}
	return nil
}

func (c *Client) TableExists(ctx context.Context, table string) (bool, error) {
	ok, err := c.backend.TableExists(ctx, table)
	if err != nil {
		return false, sgerr.Wrap(err, sgerr.CodeKVBackendReadFailure, "checking table", sgerr.FieldTable(table))
	}
	return ok, nil
}

// AttachRowDeletion enables row deletion semantics on table: a deletion
// marker hides every cell of its row written at or before the marker. The
// setup runs at most once per table per client.
func (c *Client) AttachRowDeletion(ctx context.Context, table string) error {
	st := c.table(table)
	st.rowDeletionOnce.Do(func() {
		ok, err := c.TableExists(ctx, table)
		if err != nil {
			st.rowDeletionErr = err
			return
		}
		if !ok {
			st.rowDeletionErr = TableNotFound(table)
			return
		}
		st.rowDeletion.Store(true)
		c.logger.Debug("row deletion attached", slog.String("table", table))
	})
	return st.rowDeletionErr
}

// RowDeletionAttached reports whether AttachRowDeletion succeeded for table.
func (c *Client) RowDeletionAttached(table string) bool {
	return c.table(table).rowDeletion.Load()
}

// DeleteRows physically removes every cell in the rows selected by r.
func (c *Client) DeleteRows(ctx context.Context, table string, r Range) error {
	start, end := r.bounds()
	if err := c.backend.DeleteRange(ctx, table, start, end); err != nil {
		return sgerr.Wrap(err, sgerr.CodeKVBackendFailure, "deleting rows", sgerr.FieldTable(table))
	}
	return nil
}

// Compact purges rows hidden by deletion markers and returns the number of
// cells removed. It must not run concurrently with writes to the same rows.
func (c *Client) Compact(ctx context.Context, table string) (int, error) {
	cursor, err := c.backend.Scan(ctx, table, nil, nil)
	if err != nil {
		return 0, sgerr.Wrap(err, sgerr.CodeKVBackendReadFailure, "compacting", sgerr.FieldTable(table))
	}
	src := &rowSource{ctx: ctx, cursor: cursor, table: table}
	defer func() { _ = cursor.Close() }()

	var (
		batch  []Write
		purged int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.backend.Apply(ctx, table, batch); err != nil {
			return sgerr.Wrap(err, sgerr.CodeKVBackendFailure, "compacting", sgerr.FieldTable(table))
		}
		purged += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		row, err := src.readRawRow()
		if err != nil {
			return purged, err
		}
		if row == nil {
			break
		}
		deletedAt, ok := deletionTimestamp(row)
		if !ok {
			continue
		}
		for _, cell := range row {
			if cell.Key.Timestamp > deletedAt {
				continue
			}
			batch = append(batch, Write{
				Key:    EncodeKey(cell.Key.Row, cell.Key.Family, cell.Key.Qualifier, cell.Key.Visibility),
				Delete: true,
			})
		}
		if len(batch) >= compactBatchSize {
			if err := flush(); err != nil {
				return purged, err
			}
		}
	}
	if err := flush(); err != nil {
		return purged, err
	}
	c.logger.Info("table compacted", slog.String("table", table), slog.Int("purged", purged))
	return purged, nil
}

// Close closes the backend.
func (c *Client) Close() error {
	return c.backend.Close()
}

func (c *Client) table(name string) *tableState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.tables[name]
	if !ok {
		st = &tableState{}
		c.tables[name] = st
	}
	return st
}

// timestamp returns a strictly increasing write timestamp.
func (c *Client) timestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := c.lastTimestamp.Load()
		if now <= last {
			now = last + 1
		}
		if c.lastTimestamp.CompareAndSwap(last, now) {
			return now
		}
	}
}

func validateMutation(m *Mutation) error {
	if m == nil || m.Row == "" {
		return sgerr.New(sgerr.CodeKVMutationInvalidInput, "kv: mutation row must not be empty")
	}
	for _, u := range m.Updates {
		if err := visibility.Validate(u.Visibility); err != nil {
			return sgerr.New(sgerr.CodeKVMutationInvalidInput, "kv: invalid cell visibility: "+err.Error(),
				sgerr.FieldRow(m.Row), sgerr.FieldVisibility(string(u.Visibility)))
		}
	}
	return nil
}

func deletionTimestamp(row []Cell) (int64, bool) {
	var (
		at    int64
		found bool
	)
	for _, c := range row {
		if c.IsDeleteRowMarker() && (!found || c.Key.Timestamp > at) {
			at = c.Key.Timestamp
			found = true
		}
	}
	return at, found
}
