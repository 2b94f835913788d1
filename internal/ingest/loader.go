// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package ingest bulk-loads elements straight into the graph tables. It
// shares the graph's mutation builder but bypasses the graph's writers and
// search index, so loaded elements must be indexed separately.
package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sigil-dev/securegraph/internal/graph"
	"github.com/sigil-dev/securegraph/internal/kv"
	"github.com/sigil-dev/securegraph/internal/serializer"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

type Options struct {
	Serializer                graph.ValueSerializer
	Blobs                     graph.BlobStore
	MaxStreamingTableDataSize int64
	MaxPendingWrites          int
	Logger                    *slog.Logger
}

// Stats counts what a Loader has written.
type Stats struct {
	Vertices int
	Edges    int
}

// Loader writes elements to the vertex, edge and data tables of a graph
// through its own batch writers.
type Loader struct {
	mu       sync.Mutex
	vertices *kv.BatchWriter
	edges    *kv.BatchWriter
	data     *kv.BatchWriter
	builder  *graph.MutationBuilder
	logger   *slog.Logger
	stats    Stats
}

var _ graph.Sink = (*Loader)(nil)

// NewLoader returns a loader writing to the tables of g. The tables must
// already exist, which graph.Open guarantees.
func NewLoader(client *kv.Client, g *graph.Graph, opts Options) *Loader {
	var wopts []kv.WriterOption
	if opts.MaxPendingWrites > 0 {
		wopts = append(wopts, kv.WithMaxPendingWrites(opts.MaxPendingWrites))
	}
	if opts.Serializer == nil {
		opts.Serializer = serializer.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	l := &Loader{
		vertices: client.NewBatchWriter(g.VerticesTable(), wopts...),
		edges:    client.NewBatchWriter(g.EdgesTable(), wopts...),
		data:     client.NewBatchWriter(g.DataTable(), wopts...),
		logger:   opts.Logger,
	}
	l.builder = graph.NewMutationBuilder(l, opts.Serializer, opts.Blobs, opts.MaxStreamingTableDataSize)
	return l
}

func (l *Loader) AppendVertexMutation(ctx context.Context, m ...*kv.Mutation) error {
	return l.vertices.AddMutations(ctx, m...)
}

func (l *Loader) AppendEdgeMutation(ctx context.Context, m ...*kv.Mutation) error {
	return l.edges.AddMutations(ctx, m...)
}

func (l *Loader) AppendDataMutation(ctx context.Context, m ...*kv.Mutation) error {
	return l.data.AddMutations(ctx, m...)
}

// PrepareVertex starts a vertex that Save writes to the vertex table.
func (l *Loader) PrepareVertex(id string, vis visibility.Visibility) *graph.ElementBuilder[*graph.Vertex] {
	return graph.NewVertexBuilder(id, vis, func(ctx context.Context, v *graph.Vertex) error {
		if err := l.builder.SaveVertex(ctx, v); err != nil {
			return sgerr.With(err, sgerr.FieldOperation("ingest_vertex"))
		}
		l.mu.Lock()
		l.stats.Vertices++
		l.mu.Unlock()
		return nil
	})
}

// PrepareEdge starts an edge between two vertex ids. The vertices are not
// read; their rows only receive the adjacency cells.
func (l *Loader) PrepareEdge(id, outVertexID, inVertexID, label string, vis visibility.Visibility) *graph.ElementBuilder[*graph.Edge] {
	return graph.NewEdgeBuilder(id, outVertexID, inVertexID, label, vis, func(ctx context.Context, e *graph.Edge) error {
		if err := l.builder.SaveEdge(ctx, e); err != nil {
			return sgerr.With(err, sgerr.FieldOperation("ingest_edge"))
		}
		l.mu.Lock()
		l.stats.Edges++
		l.mu.Unlock()
		return nil
	})
}

func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Flush writes every buffered mutation, data first so that no property
// reference is visible before its payload.
func (l *Loader) Flush(ctx context.Context) error {
	for _, w := range []*kv.BatchWriter{l.data, l.vertices, l.edges} {
		if err := w.Flush(ctx); err != nil {
			return sgerr.Wrap(err, sgerr.CodeIngestLoadFailure, "flushing loader")
		}
	}
	return nil
}

// Close flushes and closes the loader's writers.
func (l *Loader) Close(ctx context.Context) error {
	var errs []error
	for _, w := range []*kv.BatchWriter{l.data, l.vertices, l.edges} {
		if err := w.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return sgerr.Wrap(sgerr.Join(errs...), sgerr.CodeIngestLoadFailure, "closing loader")
	}
	st := l.Stats()
	l.logger.Info("ingest finished", slog.Int("vertices", st.Vertices), slog.Int("edges", st.Edges))
	return nil
}
