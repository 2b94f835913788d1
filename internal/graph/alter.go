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

type alterPropertyVisibility struct {
	key      string
	name     string
	existing *visibility.Visibility
	vis      visibility.Visibility
}

type alterPropertyMetadata struct {
	key          string
	name         string
	vis          *visibility.Visibility
	metadataName string
	value        any
}

// ExistingElementMutation collects edits to an element that was read from
// the graph. Save applies them in a fixed order: metadata, property
// visibilities, property values, element visibility.
type ExistingElementMutation[T Element] struct {
	g         *Graph
	el        T
	props     []*Property
	alterVis  []alterPropertyVisibility
	alterMeta []alterPropertyMetadata
	newVis    *visibility.Visibility
	err       error
}

// PrepareMutation starts a mutation of el.
func PrepareMutation[T Element](g *Graph, el T) *ExistingElementMutation[T] {
	return &ExistingElementMutation[T]{g: g, el: el}
}

func (g *Graph) PrepareVertexMutation(v *Vertex) *ExistingElementMutation[*Vertex] {
	return PrepareMutation(g, v)
}

func (g *Graph) PrepareEdgeMutation(e *Edge) *ExistingElementMutation[*Edge] {
	return PrepareMutation(g, e)
}

// Element returns the element being mutated.
func (m *ExistingElementMutation[T]) Element() T {
	return m.el
}

func (m *ExistingElementMutation[T]) SetProperty(name string, value any, vis visibility.Visibility) *ExistingElementMutation[T] {
	return m.AddPropertyValueWithMetadata(DefaultPropertyKey, name, value, nil, vis)
}

func (m *ExistingElementMutation[T]) SetPropertyWithMetadata(name string, value any, metadata map[string]any, vis visibility.Visibility) *ExistingElementMutation[T] {
	return m.AddPropertyValueWithMetadata(DefaultPropertyKey, name, value, metadata, vis)
}

func (m *ExistingElementMutation[T]) AddPropertyValue(key, name string, value any, vis visibility.Visibility) *ExistingElementMutation[T] {
	return m.AddPropertyValueWithMetadata(key, name, value, nil, vis)
}

func (m *ExistingElementMutation[T]) AddPropertyValueWithMetadata(key, name string, value any, metadata map[string]any, vis visibility.Visibility) *ExistingElementMutation[T] {
	if m.err != nil {
		return m
	}
	if err := validateNewProperty(name, value, vis); err != nil {
		m.err = sgerr.With(err, sgerr.FieldElementID(m.el.ID()))
		return m
	}
	m.props = append(m.props, NewProperty(key, name, value, metadata, vis))
	return m
}

// AlterPropertyVisibility moves the first property with key and name to
// vis.
func (m *ExistingElementMutation[T]) AlterPropertyVisibility(key, name string, vis visibility.Visibility) *ExistingElementMutation[T] {
	m.alterVis = append(m.alterVis, alterPropertyVisibility{key: key, name: name, vis: vis})
	return m
}

// AlterPropertyVisibilityOf moves the property identified by (key, name,
// existing) to vis.
func (m *ExistingElementMutation[T]) AlterPropertyVisibilityOf(key, name string, existing, vis visibility.Visibility) *ExistingElementMutation[T] {
	m.alterVis = append(m.alterVis, alterPropertyVisibility{key: key, name: name, existing: &existing, vis: vis})
	return m
}

func (m *ExistingElementMutation[T]) AlterPropertyMetadata(key, name, metadataName string, value any) *ExistingElementMutation[T] {
	m.alterMeta = append(m.alterMeta, alterPropertyMetadata{key: key, name: name, metadataName: metadataName, value: value})
	return m
}

func (m *ExistingElementMutation[T]) AlterPropertyMetadataOf(key, name string, vis visibility.Visibility, metadataName string, value any) *ExistingElementMutation[T] {
	m.alterMeta = append(m.alterMeta, alterPropertyMetadata{key: key, name: name, vis: &vis, metadataName: metadataName, value: value})
	return m
}

func (m *ExistingElementMutation[T]) AlterElementVisibility(vis visibility.Visibility) *ExistingElementMutation[T] {
	m.newVis = &vis
	return m
}

func (m *ExistingElementMutation[T]) Save(ctx context.Context, auths visibility.Authorizations) (T, error) {
	if m.err == nil {
		m.err = m.validate()
	}
	if m.err != nil {
		var zero T
		return zero, m.err
	}
	if err := m.g.saveExistingElementMutation(ctx, m.el, m.mutationSet(), auths); err != nil {
		var zero T
		return zero, err
	}
	return m.el, nil
}

func (m *ExistingElementMutation[T]) validate() error {
	for _, a := range m.alterVis {
		if err := visibility.Validate(a.vis); err != nil {
			return err
		}
	}
	if m.newVis != nil {
		return visibility.Validate(*m.newVis)
	}
	return nil
}

// mutationSet erases the element type so the save path is not generic.
func (m *ExistingElementMutation[T]) mutationSet() mutationSet {
	return mutationSet{props: m.props, alterVis: m.alterVis, alterMeta: m.alterMeta, newVis: m.newVis}
}

type mutationSet struct {
	props     []*Property
	alterVis  []alterPropertyVisibility
	alterMeta []alterPropertyMetadata
	newVis    *visibility.Visibility
}

func (g *Graph) appendElementMutation(ctx context.Context, kind ElementKind, ms ...*kv.Mutation) error {
	if kind == KindEdge {
		return g.writers.AppendEdgeMutation(ctx, ms...)
	}
	return g.writers.AppendVertexMutation(ctx, ms...)
}

func (g *Graph) saveExistingElementMutation(ctx context.Context, el Element, set mutationSet, auths visibility.Authorizations) (err error) {
	ctx, end := startOp(ctx, "SaveExistingElement",
		attribute.String("element_id", el.ID()),
		attribute.String("kind", string(el.Kind())),
	)
	defer func() { end(err) }()

	fail := func(err error, op string) error {
		return sgerr.With(err, sgerr.FieldElementID(el.ID()), sgerr.FieldOperation(op))
	}
	base := el.base()
	rowKey := rowKeyFor(base.kind, base.id)

	if len(set.alterMeta) > 0 {
		var edits MetadataEdits
		for _, a := range set.alterMeta {
			if err := g.builder.AlterPropertyMetadata(&edits, el, a.key, a.name, a.vis, a.metadataName, a.value); err != nil {
				return fail(err, "alter_property_metadata")
			}
		}
		m := kv.NewMutation(rowKey)
		if err := g.builder.PutMetadataEdits(m, &edits); err != nil {
			return fail(err, "alter_property_metadata")
		}
		if m.Len() > 0 {
			if err := g.appendElementMutation(ctx, base.kind, m); err != nil {
				return fail(err, "alter_property_metadata")
			}
		}
		edits.Apply()
	}

	if len(set.alterVis) > 0 {
		m := kv.NewMutation(rowKey)
		var replaced []*Property
		for _, a := range set.alterVis {
			old, err := g.builder.AlterPropertyVisibility(ctx, m, el, a.key, a.name, a.existing, a.vis)
			if err != nil {
				return fail(err, "alter_property_visibility")
			}
			if old != nil {
				replaced = append(replaced, old)
			}
		}
		if m.Len() > 0 {
			if err := g.appendElementMutation(ctx, base.kind, m); err != nil {
				return fail(err, "alter_property_visibility")
			}
		}
		for _, old := range replaced {
			if err := g.index.RemoveProperty(ctx, el, old, auths); err != nil {
				return indexFailure(err, base.id, "alter_property_visibility")
			}
		}
	}

	if len(set.props) > 0 {
		m := kv.NewMutation(rowKey)
		for _, p := range set.props {
			if err := g.builder.PropertyPut(ctx, m, rowKey, p); err != nil {
				return fail(err, "set_property")
			}
		}
		if err := g.appendElementMutation(ctx, base.kind, m); err != nil {
			return fail(err, "set_property")
		}
		for _, p := range set.props {
			base.putProperty(p)
		}
	}

	if set.newVis != nil {
		if err := g.alterElementVisibility(ctx, el, *set.newVis); err != nil {
			return fail(err, "alter_element_visibility")
		}
	}

	if err := g.index.AddElement(ctx, el, auths); err != nil {
		return indexFailure(err, base.id, "save_existing_element")
	}
	g.logger.Debug("element mutation saved",
		slog.String("element_id", base.id),
		slog.String("kind", string(base.kind)),
	)
	return nil
}

func (g *Graph) alterElementVisibility(ctx context.Context, el Element, newVis visibility.Visibility) error {
	base := el.base()
	if e, ok := el.(*Edge); ok {
		var refs []*kv.Mutation
		out := kv.NewMutation(VertexRowKey(e.outVertexID))
		if g.builder.AlterEdgeVertexRef(out, e, DirectionOut, newVis) {
			refs = append(refs, out)
		}
		in := kv.NewMutation(VertexRowKey(e.inVertexID))
		if g.builder.AlterEdgeVertexRef(in, e, DirectionIn, newVis) {
			refs = append(refs, in)
		}
		if len(refs) > 0 {
			if err := g.writers.AppendVertexMutation(ctx, refs...); err != nil {
				return err
			}
		}
	}

	m := kv.NewMutation(rowKeyFor(base.kind, base.id))
	if g.builder.AlterElementVisibility(m, el, newVis) {
		if err := g.appendElementMutation(ctx, base.kind, m); err != nil {
			return err
		}
	}
	base.vis = newVis
	return nil
}
