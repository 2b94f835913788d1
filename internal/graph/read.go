// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sigil-dev/securegraph/internal/kv"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// scanSetup is the configuration surface shared by kv.Scanner and
// kv.BatchScanner.
type scanSetup interface {
	FetchColumnFamily(family string)
	SetRowFilter(f kv.RowFilter)
}

func (g *Graph) table(kind ElementKind) string {
	if kind == KindEdge {
		return g.tables.edges
	}
	return g.tables.vertices
}

func (g *Graph) applyFetchHints(s scanSetup, kind ElementKind, hints FetchHints) {
	for _, fam := range hints.families(kind) {
		s.FetchColumnFamily(fam)
	}
	if g.rowFilter {
		if kind == KindEdge {
			s.SetRowFilter(kv.HasFamily(CFEdgeSignal))
		} else {
			s.SetRowFilter(kv.HasFamily(CFVertexSignal))
		}
	}
}

// batchThreads sizes batch reads: one worker per ten ranges, between one
// and ten.
func batchThreads(n int) int {
	return min(max(1, n/10), 10)
}

func (g *Graph) vertexBuilder(hints FetchHints, auths visibility.Authorizations) func([]kv.Cell) (*Vertex, bool, error) {
	return func(row []kv.Cell) (*Vertex, bool, error) {
		v, err := g.makeVertex(row, hints, auths)
		return v, v != nil, err
	}
}

func (g *Graph) edgeBuilder(hints FetchHints, auths visibility.Authorizations) func([]kv.Cell) (*Edge, bool, error) {
	return func(row []kv.Cell) (*Edge, bool, error) {
		e, err := g.makeEdge(row, hints, auths)
		return e, e != nil, err
	}
}

func (g *Graph) scanVertices(ctx context.Context, r kv.Range, hints FetchHints, auths visibility.Authorizations) (*Iterator[*Vertex], error) {
	s := g.client.NewScanner(g.tables.vertices, auths)
	s.SetRange(r)
	g.applyFetchHints(s, KindVertex, hints)
	rows, err := s.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return rowElements(ctx, KindVertex, rows, g.vertexBuilder(hints, auths)), nil
}

func (g *Graph) scanEdges(ctx context.Context, r kv.Range, hints FetchHints, auths visibility.Authorizations) (*Iterator[*Edge], error) {
	s := g.client.NewScanner(g.tables.edges, auths)
	s.SetRange(r)
	g.applyFetchHints(s, KindEdge, hints)
	rows, err := s.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return rowElements(ctx, KindEdge, rows, g.edgeBuilder(hints, auths)), nil
}

func idRanges(ids []string, rowKey func(string) string) []kv.Range {
	seen := make(map[string]struct{}, len(ids))
	ranges := make([]kv.Range, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ranges = append(ranges, kv.ExactRow(rowKey(id)))
	}
	return ranges
}

// GetVertex returns the vertex, or nil when it does not exist or auths
// cannot see it.
func (g *Graph) GetVertex(ctx context.Context, id string, hints FetchHints, auths visibility.Authorizations) (*Vertex, error) {
	it, err := g.scanVertices(ctx, kv.ExactRow(VertexRowKey(id)), hints, auths)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	if it.Next() {
		return it.Value(), nil
	}
	return nil, it.Err()
}

// GetVertices scans every vertex in id order.
func (g *Graph) GetVertices(ctx context.Context, hints FetchHints, auths visibility.Authorizations) (*Iterator[*Vertex], error) {
	return g.GetVerticesInRange(ctx, "", "", hints, auths)
}

// GetVerticesInRange scans vertices with ids from startID through endID.
// Empty bounds are open. The end bound also admits ids that extend endID
// with characters sorting before '~'.
func (g *Graph) GetVerticesInRange(ctx context.Context, startID, endID string, hints FetchHints, auths visibility.Authorizations) (*Iterator[*Vertex], error) {
	return g.scanVertices(ctx, elementRange(VertexRowPrefix, VertexRowAfterPrefix, startID, endID), hints, auths)
}

// GetVerticesByID reads the given vertices in parallel. Results arrive in
// no particular order; missing and hidden ids are skipped.
func (g *Graph) GetVerticesByID(ctx context.Context, ids []string, hints FetchHints, auths visibility.Authorizations) (*Iterator[*Vertex], error) {
	ranges := idRanges(ids, VertexRowKey)
	if len(ranges) == 0 {
		return emptyIterator[*Vertex](), nil
	}
	bs := g.client.NewBatchScanner(g.tables.vertices, auths, batchThreads(len(ranges)))
	bs.SetRanges(ranges)
	g.applyFetchHints(bs, KindVertex, hints)
	rows, err := bs.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return rowElements(ctx, KindVertex, rows, g.vertexBuilder(hints, auths)), nil
}

func (g *Graph) GetEdge(ctx context.Context, id string, hints FetchHints, auths visibility.Authorizations) (*Edge, error) {
	it, err := g.scanEdges(ctx, kv.ExactRow(EdgeRowKey(id)), hints, auths)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	if it.Next() {
		return it.Value(), nil
	}
	return nil, it.Err()
}

func (g *Graph) GetEdges(ctx context.Context, hints FetchHints, auths visibility.Authorizations) (*Iterator[*Edge], error) {
	return g.GetEdgesInRange(ctx, "", "", hints, auths)
}

func (g *Graph) GetEdgesInRange(ctx context.Context, startID, endID string, hints FetchHints, auths visibility.Authorizations) (*Iterator[*Edge], error) {
	return g.scanEdges(ctx, elementRange(EdgeRowPrefix, EdgeRowAfterPrefix, startID, endID), hints, auths)
}

func (g *Graph) GetEdgesByID(ctx context.Context, ids []string, hints FetchHints, auths visibility.Authorizations) (*Iterator[*Edge], error) {
	ranges := idRanges(ids, EdgeRowKey)
	if len(ranges) == 0 {
		return emptyIterator[*Edge](), nil
	}
	bs := g.client.NewBatchScanner(g.tables.edges, auths, batchThreads(len(ranges)))
	bs.SetRanges(ranges)
	g.applyFetchHints(bs, KindEdge, hints)
	rows, err := bs.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return rowElements(ctx, KindEdge, rows, g.edgeBuilder(hints, auths)), nil
}

func elementRange(prefix, after, startID, endID string) kv.Range {
	r := kv.Range{Start: prefix + startID, End: after}
	if endID != "" {
		r.End = prefix + endID + rangeEndSuffix
	}
	return r
}

// VertexEdges reads the edges in dir recorded on v. v must have been read
// with the matching edge reference hints.
func (g *Graph) VertexEdges(ctx context.Context, v *Vertex, dir Direction, hints FetchHints, auths visibility.Authorizations) (*Iterator[*Edge], error) {
	return g.GetEdgesByID(ctx, v.EdgeIDs(dir), hints, auths)
}

// AdjacentVertices reads the vertices on the other end of v's edges in dir.
func (g *Graph) AdjacentVertices(ctx context.Context, v *Vertex, dir Direction, hints FetchHints, auths visibility.Authorizations) (*Iterator[*Vertex], error) {
	return g.GetVerticesByID(ctx, v.VertexIDs(dir), hints, auths)
}

// EdgeVertex reads the endpoint of e in dir.
func (g *Graph) EdgeVertex(ctx context.Context, e *Edge, dir Direction, hints FetchHints, auths visibility.Authorizations) (*Vertex, error) {
	id := e.VertexID(dir)
	if id == "" {
		return nil, nil
	}
	return g.GetVertex(ctx, id, hints, auths)
}

// OtherVertex reads the endpoint of e opposite vertexID.
func (g *Graph) OtherVertex(ctx context.Context, e *Edge, vertexID string, hints FetchHints, auths visibility.Authorizations) (*Vertex, error) {
	id, err := e.OtherVertexID(vertexID)
	if err != nil {
		return nil, err
	}
	return g.GetVertex(ctx, id, hints, auths)
}

// FindRelatedEdges returns the ids of the edges whose endpoints both lie in
// vertexIDs. Every such edge is recorded as an out reference on one of the
// vertices, so only out references are read.
func (g *Graph) FindRelatedEdges(ctx context.Context, vertexIDs []string, auths visibility.Authorizations) (ids []string, err error) {
	ctx, end := startOp(ctx, "FindRelatedEdges", attribute.Int("vertex_count", len(vertexIDs)))
	defer func() { end(err) }()

	ranges := idRanges(vertexIDs, VertexRowKey)
	if len(ranges) == 0 {
		return nil, nil
	}
	set := make(map[string]struct{}, len(vertexIDs))
	for _, id := range vertexIDs {
		set[id] = struct{}{}
	}

	bs := g.client.NewBatchScanner(g.tables.vertices, auths, batchThreads(len(ranges)))
	bs.SetRanges(ranges)
	g.applyFetchHints(bs, KindVertex, FetchOutEdgeRefs)
	rows, err := bs.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]struct{})
	for rows.Next() {
		for _, c := range rows.Row() {
			if c.Key.Family != CFOutEdge {
				continue
			}
			info, err := ParseEdgeInfo(c.Value)
			if err != nil {
				return nil, err
			}
			if _, ok := set[info.VertexID]; ok {
				found[c.Key.Qualifier] = struct{}{}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ids = make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
