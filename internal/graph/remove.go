// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sigil-dev/securegraph/internal/kv"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// RemoveVertex removes every edge of v visible to auths, then deletes the
// vertex row.
func (g *Graph) RemoveVertex(ctx context.Context, v *Vertex, auths visibility.Authorizations) (err error) {
	if v == nil {
		return sgerr.New(sgerr.CodeGraphElementInvalidInput, "vertex is required")
	}
	ctx, end := startOp(ctx, "RemoveVertex", attribute.String("vertex_id", v.id))
	defer func() { end(err) }()

	if err := g.index.RemoveElement(ctx, v, auths); err != nil {
		return indexFailure(err, v.id, "remove_vertex")
	}

	withRefs := v
	if !v.hints.Has(FetchEdgeRefs) {
		withRefs, err = g.GetVertex(ctx, v.id, FetchEdgeRefs, auths)
		if err != nil {
			return err
		}
	}
	if withRefs != nil {
		edges, err := g.GetEdgesByID(ctx, withRefs.EdgeIDs(DirectionBoth), FetchNone, auths)
		if err != nil {
			return err
		}
		all, err := Collect(edges)
		if err != nil {
			return err
		}
		for _, e := range all {
			if err := g.RemoveEdge(ctx, e, auths); err != nil {
				return err
			}
		}
	}

	if err := g.writers.AppendVertexMutation(ctx, kv.NewDeleteRowMutation(VertexRowKey(v.id))); err != nil {
		return sgerr.With(err, sgerr.FieldElementID(v.id), sgerr.FieldOperation("remove_vertex"))
	}
	g.logger.Debug("vertex removed", slog.String("vertex_id", v.id))
	return nil
}

// RemoveEdge deletes the adjacency cells on both endpoints and the edge
// row. The endpoints need not be visible to auths.
func (g *Graph) RemoveEdge(ctx context.Context, e *Edge, auths visibility.Authorizations) (err error) {
	if e == nil {
		return sgerr.New(sgerr.CodeGraphElementInvalidInput, "edge is required")
	}
	ctx, end := startOp(ctx, "RemoveEdge", attribute.String("edge_id", e.id))
	defer func() { end(err) }()

	if err := g.index.RemoveElement(ctx, e, auths); err != nil {
		return indexFailure(err, e.id, "remove_edge")
	}

	out := kv.NewMutation(VertexRowKey(e.outVertexID))
	out.PutDelete(CFOutEdge, e.id, e.vis)
	in := kv.NewMutation(VertexRowKey(e.inVertexID))
	in.PutDelete(CFInEdge, e.id, e.vis)
	if err := g.writers.AppendVertexMutation(ctx, out, in); err != nil {
		return sgerr.With(err, sgerr.FieldElementID(e.id), sgerr.FieldOperation("remove_edge"))
	}
	if err := g.writers.AppendEdgeMutation(ctx, kv.NewDeleteRowMutation(EdgeRowKey(e.id))); err != nil {
		return sgerr.With(err, sgerr.FieldElementID(e.id), sgerr.FieldOperation("remove_edge"))
	}
	g.logger.Debug("edge removed", slog.String("edge_id", e.id))
	return nil
}

// RemoveProperty deletes every readable value of el with key and name.
func (g *Graph) RemoveProperty(ctx context.Context, el Element, key, name string, auths visibility.Authorizations) error {
	var props []*Property
	for _, p := range el.Properties() {
		if p.matches(key, name) {
			props = append(props, p)
		}
	}
	return g.removeProperties(ctx, el, props, auths)
}

// RemovePropertyByName deletes every readable value of name on el.
func (g *Graph) RemovePropertyByName(ctx context.Context, el Element, name string, auths visibility.Authorizations) error {
	return g.removeProperties(ctx, el, el.PropertiesByName(name), auths)
}

func (g *Graph) removeProperties(ctx context.Context, el Element, props []*Property, auths visibility.Authorizations) (err error) {
	if len(props) == 0 {
		return nil
	}
	ctx, end := startOp(ctx, "RemoveProperty", attribute.String("element_id", el.ID()))
	defer func() { end(err) }()

	base := el.base()
	m := kv.NewMutation(rowKeyFor(base.kind, base.id))
	for _, p := range props {
		g.builder.PropertyDelete(m, p)
	}
	if err := g.appendElementMutation(ctx, base.kind, m); err != nil {
		return sgerr.With(err, sgerr.FieldElementID(base.id), sgerr.FieldOperation("remove_property"))
	}
	for _, p := range props {
		base.removeProperty(p)
		if err := g.index.RemoveProperty(ctx, el, p, auths); err != nil {
			return indexFailure(err, base.id, "remove_property")
		}
	}
	return nil
}
