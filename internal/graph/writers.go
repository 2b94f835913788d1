// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sigil-dev/securegraph/internal/kv"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// destinationWriter owns the batch writer of one table. mu serializes
// enqueue plus the optional flush; the writer itself is created on first
// use.
type destinationWriter struct {
	client     *kv.Client
	table      string
	maxPending int

	mu     sync.Mutex
	initMu sync.Mutex
	writer atomic.Pointer[kv.BatchWriter]
}

func newDestinationWriter(client *kv.Client, table string, maxPending int) *destinationWriter {
	return &destinationWriter{client: client, table: table, maxPending: maxPending}
}

func (d *destinationWriter) get() *kv.BatchWriter {
	if w := d.writer.Load(); w != nil {
		return w
	}
	d.initMu.Lock()
	defer d.initMu.Unlock()
	if w := d.writer.Load(); w != nil {
		return w
	}
	var opts []kv.WriterOption
	if d.maxPending > 0 {
		opts = append(opts, kv.WithMaxPendingWrites(d.maxPending))
	}
	w := d.client.NewBatchWriter(d.table, opts...)
	d.writer.Store(w)
	return w
}

func (d *destinationWriter) add(ctx context.Context, autoFlush bool, ms ...*kv.Mutation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.get()
	if err := w.AddMutations(ctx, ms...); err != nil {
		return writeFailure(err, d.table)
	}
	if autoFlush {
		if err := w.Flush(ctx); err != nil {
			return writeFailure(err, d.table)
		}
	}
	return nil
}

func (d *destinationWriter) flush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w := d.writer.Load(); w != nil {
		if err := w.Flush(ctx); err != nil {
			return writeFailure(err, d.table)
		}
	}
	return nil
}

// close flushes and closes the writer. A later add opens a new one.
func (d *destinationWriter) close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initMu.Lock()
	defer d.initMu.Unlock()
	w := d.writer.Swap(nil)
	if w == nil {
		return nil
	}
	if err := w.Close(ctx); err != nil {
		return writeFailure(err, d.table)
	}
	return nil
}

func writeFailure(err error, table string) error {
	if sgerr.HasCode(err, sgerr.CodeKVMutationInvalidInput) {
		return err
	}
	return sgerr.Wrap(err, sgerr.CodeGraphBackendWriteFailure, "writing mutations", sgerr.FieldTable(table))
}

// graphWriters routes builder output to the graph's three tables.
type graphWriters struct {
	autoFlush bool
	vertices  *destinationWriter
	edges     *destinationWriter
	data      *destinationWriter
}

var _ Sink = (*graphWriters)(nil)

func (w *graphWriters) AppendVertexMutation(ctx context.Context, ms ...*kv.Mutation) error {
	return w.vertices.add(ctx, w.autoFlush, ms...)
}

func (w *graphWriters) AppendEdgeMutation(ctx context.Context, ms ...*kv.Mutation) error {
	return w.edges.add(ctx, w.autoFlush, ms...)
}

func (w *graphWriters) AppendDataMutation(ctx context.Context, ms ...*kv.Mutation) error {
	return w.data.add(ctx, w.autoFlush, ms...)
}

// flush drains data first so references never point at unwritten
// payloads.
func (w *graphWriters) flush(ctx context.Context) error {
	for _, d := range []*destinationWriter{w.data, w.vertices, w.edges} {
		if err := d.flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (w *graphWriters) close(ctx context.Context) error {
	var errs []error
	for _, d := range []*destinationWriter{w.data, w.vertices, w.edges} {
		if err := d.close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return sgerr.Join(errs...)
	}
	return nil
}
