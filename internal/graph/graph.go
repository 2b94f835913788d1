// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package graph stores a property graph on a kv.Client. Vertices, edges
// and every property value carry their own visibility; reads only see what
// the caller's authorizations satisfy, and anything else is
// indistinguishable from absence.
package graph

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sigil-dev/securegraph/internal/kv"
	"github.com/sigil-dev/securegraph/internal/serializer"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// DefaultTablePrefix names the graph tables when Options leaves it empty.
const DefaultTablePrefix = "securegraph"

// ValueSerializer encodes property values and metadata maps.
type ValueSerializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(b []byte) (any, error)
}

// BlobStore keeps streamed values above the data table limit.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Options configures a Graph. The zero value is usable.
type Options struct {
	TablePrefix string
	// AutoFlush flushes the destination writer after every enqueue.
	AutoFlush bool
	// UseServerSideRowFilter drops rows without a readable signal cell in
	// the scan layer. Reconstruction rejects them either way.
	UseServerSideRowFilter    bool
	MaxStreamingTableDataSize int64
	MaxPendingWrites          int

	Serializer  ValueSerializer
	Blobs       BlobStore
	SearchIndex SearchIndex
	IDGenerator IDGenerator
	Logger      *slog.Logger
}

type tableNames struct {
	vertices string
	edges    string
	data     string
}

func newTableNames(prefix string) tableNames {
	if prefix == "" {
		prefix = DefaultTablePrefix
	}
	return tableNames{
		vertices: prefix + "_v",
		edges:    prefix + "_e",
		data:     prefix + "_d",
	}
}

// Graph is safe for concurrent use.
type Graph struct {
	client     *kv.Client
	tables     tableNames
	serializer ValueSerializer
	blobs      BlobStore
	index      SearchIndex
	ids        IDGenerator
	logger     *slog.Logger
	rowFilter  bool

	writers *graphWriters
	builder *MutationBuilder
}

// Open creates the graph tables when missing and enables row deletion on
// them.
func Open(ctx context.Context, client *kv.Client, opts Options) (*Graph, error) {
	g := &Graph{
		client:     client,
		tables:     newTableNames(opts.TablePrefix),
		serializer: opts.Serializer,
		blobs:      opts.Blobs,
		index:      opts.SearchIndex,
		ids:        opts.IDGenerator,
		logger:     opts.Logger,
		rowFilter:  opts.UseServerSideRowFilter,
	}
	if g.serializer == nil {
		g.serializer = serializer.New()
	}
	if g.index == nil {
		g.index = DefaultSearchIndex{}
	}
	if g.ids == nil {
		g.ids = UUIDGenerator{}
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}

	for _, table := range []string{g.tables.vertices, g.tables.edges, g.tables.data} {
		exists, err := client.TableExists(ctx, table)
		if err != nil {
			return nil, sgerr.Wrap(err, sgerr.CodeGraphOpenFailure, "checking graph table", sgerr.FieldTable(table))
		}
		if !exists {
			if err := client.CreateTable(ctx, table); err != nil {
				return nil, sgerr.Wrap(err, sgerr.CodeGraphOpenFailure, "creating graph table", sgerr.FieldTable(table))
			}
			g.logger.Info("graph table created", slog.String("table", table))
		}
		if err := client.AttachRowDeletion(ctx, table); err != nil {
			return nil, sgerr.Wrap(err, sgerr.CodeGraphOpenFailure, "attaching row deletion", sgerr.FieldTable(table))
		}
	}

	g.writers = &graphWriters{
		autoFlush: opts.AutoFlush,
		vertices:  newDestinationWriter(client, g.tables.vertices, opts.MaxPendingWrites),
		edges:     newDestinationWriter(client, g.tables.edges, opts.MaxPendingWrites),
		data:      newDestinationWriter(client, g.tables.data, opts.MaxPendingWrites),
	}
	g.builder = NewMutationBuilder(g.writers, g.serializer, g.blobs, opts.MaxStreamingTableDataSize)
	return g, nil
}

// VerticesTable, EdgesTable and DataTable name the backing tables.
func (g *Graph) VerticesTable() string { return g.tables.vertices }
func (g *Graph) EdgesTable() string    { return g.tables.edges }
func (g *Graph) DataTable() string     { return g.tables.data }

func (g *Graph) SearchIndex() SearchIndex { return g.index }

// PrepareVertex starts a new vertex. An empty id is replaced with a
// generated one.
func (g *Graph) PrepareVertex(id string, vis visibility.Visibility) *ElementBuilder[*Vertex] {
	if id == "" {
		id = g.ids.NextID()
	}
	return NewVertexBuilder(id, vis, func(ctx context.Context, v *Vertex) (err error) {
		ctx, end := startOp(ctx, "SaveVertex", attribute.String("vertex_id", v.id))
		defer func() { end(err) }()

		if err := g.builder.SaveVertex(ctx, v); err != nil {
			return sgerr.With(err, sgerr.FieldElementID(v.id), sgerr.FieldOperation("save_vertex"))
		}
		if err := g.index.AddElement(ctx, v, v.auths); err != nil {
			return indexFailure(err, v.id, "save_vertex")
		}
		g.logger.Debug("vertex saved", slog.String("vertex_id", v.id))
		return nil
	})
}

func (g *Graph) AddVertex(ctx context.Context, id string, vis visibility.Visibility, auths visibility.Authorizations) (*Vertex, error) {
	return g.PrepareVertex(id, vis).Save(ctx, auths)
}

// PrepareEdge starts a new edge from out to in. Saving it also records the
// edge on both vertex rows and on the given vertex values.
func (g *Graph) PrepareEdge(id string, out, in *Vertex, label string, vis visibility.Visibility) *ElementBuilder[*Edge] {
	if id == "" {
		id = g.ids.NextID()
	}
	var outID, inID string
	if out != nil {
		outID = out.id
	}
	if in != nil {
		inID = in.id
	}
	return g.prepareEdge(id, outID, inID, label, vis, out, in)
}

// PrepareEdgeByID is PrepareEdge for callers holding only vertex ids.
func (g *Graph) PrepareEdgeByID(id, outVertexID, inVertexID, label string, vis visibility.Visibility) *ElementBuilder[*Edge] {
	if id == "" {
		id = g.ids.NextID()
	}
	return g.prepareEdge(id, outVertexID, inVertexID, label, vis, nil, nil)
}

func (g *Graph) prepareEdge(id, outID, inID, label string, vis visibility.Visibility, out, in *Vertex) *ElementBuilder[*Edge] {
	return NewEdgeBuilder(id, outID, inID, label, vis, func(ctx context.Context, e *Edge) (err error) {
		ctx, end := startOp(ctx, "SaveEdge", attribute.String("edge_id", e.id))
		defer func() { end(err) }()

		if err := g.builder.SaveEdge(ctx, e); err != nil {
			return sgerr.With(err, sgerr.FieldElementID(e.id), sgerr.FieldOperation("save_edge"))
		}
		if out != nil {
			out.addOutEdge(e)
		}
		if in != nil {
			in.addInEdge(e)
		}
		if err := g.index.AddElement(ctx, e, e.auths); err != nil {
			return indexFailure(err, e.id, "save_edge")
		}
		g.logger.Debug("edge saved",
			slog.String("edge_id", e.id),
			slog.String("out_vertex_id", e.outVertexID),
			slog.String("in_vertex_id", e.inVertexID),
			slog.String("label", e.label),
		)
		return nil
	})
}

func (g *Graph) AddEdge(ctx context.Context, id string, out, in *Vertex, label string, vis visibility.Visibility, auths visibility.Authorizations) (*Edge, error) {
	return g.PrepareEdge(id, out, in, label, vis).Save(ctx, auths)
}

// Flush writes every buffered mutation and flushes the search index.
func (g *Graph) Flush(ctx context.Context) error {
	if err := g.writers.flush(ctx); err != nil {
		return err
	}
	if err := g.index.Flush(ctx); err != nil {
		return sgerr.Wrap(err, sgerr.CodeSearchIndexFailure, "flushing search index")
	}
	return nil
}

// Close flushes and closes the writers and the search index. The kv client
// stays open; it belongs to the caller.
func (g *Graph) Close(ctx context.Context) error {
	var errs []error
	if err := g.writers.close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := g.index.Close(); err != nil {
		errs = append(errs, sgerr.Wrap(err, sgerr.CodeSearchIndexFailure, "closing search index"))
	}
	if len(errs) > 0 {
		return sgerr.Join(errs...)
	}
	return nil
}

// ClearData deletes every row of the graph tables and clears the search
// index.
func (g *Graph) ClearData(ctx context.Context) error {
	if err := g.writers.flush(ctx); err != nil {
		return err
	}
	for _, table := range []string{g.tables.data, g.tables.edges, g.tables.vertices} {
		if err := g.client.DeleteRows(ctx, table, kv.Range{}); err != nil {
			return sgerr.With(err, sgerr.FieldOperation("clear_data"))
		}
	}
	if err := g.index.ClearData(ctx); err != nil {
		return sgerr.Wrap(err, sgerr.CodeSearchIndexFailure, "clearing search index")
	}
	g.logger.Info("graph data cleared", slog.String("vertices_table", g.tables.vertices))
	return nil
}

// Compact purges rows hidden by deletion markers from every graph table.
func (g *Graph) Compact(ctx context.Context) (int, error) {
	if err := g.writers.flush(ctx); err != nil {
		return 0, err
	}
	total := 0
	for _, table := range []string{g.tables.vertices, g.tables.edges, g.tables.data} {
		n, err := g.client.Compact(ctx, table)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// IsVisibilityValid reports whether auths can read vis.
func (g *Graph) IsVisibilityValid(vis visibility.Visibility, auths visibility.Authorizations) (bool, error) {
	return auths.CanRead(vis)
}

func indexFailure(err error, id, op string) error {
	return sgerr.Wrap(err, sgerr.CodeSearchIndexFailure, "updating search index",
		sgerr.FieldElementID(id), sgerr.FieldOperation(op))
}
