// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kv

import (
	"context"
	"sync"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

const defaultMaxPendingWrites = 10000

// WriterOption configures a BatchWriter.
type WriterOption func(*BatchWriter)

// WithMaxPendingWrites sets how many cell writes are buffered before the
// writer flushes on its own.
func WithMaxPendingWrites(n int) WriterOption {
	return func(w *BatchWriter) {
		if n > 0 {
			w.maxPending = n
		}
	}
}

// BatchWriter buffers mutations for one table. Each cell update is stamped
// when it is added, so later additions win over earlier ones. It is safe
// for concurrent use.
type BatchWriter struct {
	client     *Client
	table      string
	maxPending int

	mu      sync.Mutex
	pending []Write
	closed  bool
}

func (c *Client) NewBatchWriter(table string, opts ...WriterOption) *BatchWriter {
	w := &BatchWriter{client: c, table: table, maxPending: defaultMaxPendingWrites}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// AddMutations validates and buffers ms. Nothing is buffered when any
// mutation is invalid.
func (w *BatchWriter) AddMutations(ctx context.Context, ms ...*Mutation) error {
	for _, m := range ms {
		if err := validateMutation(m); err != nil {
			return sgerr.With(err, sgerr.FieldTable(w.table))
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return sgerr.New(sgerr.CodeKVWriterClosed, "kv: batch writer is closed", sgerr.FieldTable(w.table))
	}
	for _, m := range ms {
		for _, u := range m.Updates {
			w.pending = append(w.pending, Write{
				Key:       EncodeKey(m.Row, u.Family, u.Qualifier, u.Visibility),
				Timestamp: w.client.timestamp(),
				Value:     u.Value,
				Delete:    u.Delete,
			})
		}
	}
	if len(w.pending) >= w.maxPending {
		return w.flushLocked(ctx)
	}
	return nil
}

// Flush writes everything buffered. On failure the buffer is kept so a
// later Flush retries it.
func (w *BatchWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// Close flushes and rejects further mutations. Closing twice is a no-op.
func (w *BatchWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	err := w.flushLocked(ctx)
	w.closed = true
	return err
}

// Pending returns the number of buffered cell writes.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *BatchWriter) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := w.client.backend.Apply(ctx, w.table, w.pending); err != nil {
		return sgerr.Wrap(err, sgerr.CodeKVBackendFailure, "flushing batch", sgerr.FieldTable(w.table))
	}
	w.pending = w.pending[:0]
	return nil
}
