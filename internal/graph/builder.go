// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"bytes"
	"context"
	"io"
	"maps"

	"github.com/sigil-dev/securegraph/internal/kv"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// DefaultMaxStreamingTableDataSize is the largest streamed payload kept in
// the data table. Larger payloads go to the blob store.
const DefaultMaxStreamingTableDataSize int64 = 10 * 1024 * 1024

// Sink receives the row mutations produced by a MutationBuilder, routed by
// destination table.
type Sink interface {
	AppendVertexMutation(ctx context.Context, m ...*kv.Mutation) error
	AppendEdgeMutation(ctx context.Context, m ...*kv.Mutation) error
	AppendDataMutation(ctx context.Context, m ...*kv.Mutation) error
}

// MutationBuilder turns element edits into row mutations. It performs no
// reads; streamed values are the only payloads it writes outside the sink.
type MutationBuilder struct {
	sink             Sink
	serializer       ValueSerializer
	blobs            BlobStore
	maxTableDataSize int64
}

// NewMutationBuilder returns a builder writing to sink. blobs may be nil
// when no streamed value exceeds maxTableDataSize.
func NewMutationBuilder(sink Sink, serializer ValueSerializer, blobs BlobStore, maxTableDataSize int64) *MutationBuilder {
	if maxTableDataSize <= 0 {
		maxTableDataSize = DefaultMaxStreamingTableDataSize
	}
	return &MutationBuilder{
		sink:             sink,
		serializer:       serializer,
		blobs:            blobs,
		maxTableDataSize: maxTableDataSize,
	}
}

// SaveVertex writes the signal cell and every property of a new vertex.
func (b *MutationBuilder) SaveVertex(ctx context.Context, v *Vertex) error {
	rowKey := VertexRowKey(v.id)
	m := kv.NewMutation(rowKey)
	m.Put(CFVertexSignal, "", v.vis, nil)
	if err := b.addProperties(ctx, m, rowKey, v.props); err != nil {
		return sgerr.With(err, sgerr.FieldElementID(v.id))
	}
	return b.sink.AppendVertexMutation(ctx, m)
}

// SaveEdge writes the edge row and the adjacency cells on both endpoint
// vertex rows.
func (b *MutationBuilder) SaveEdge(ctx context.Context, e *Edge) error {
	rowKey := EdgeRowKey(e.id)
	m := kv.NewMutation(rowKey)
	m.Put(CFEdgeSignal, e.label, e.vis, nil)
	m.Put(CFOutVertex, e.outVertexID, e.vis, nil)
	m.Put(CFInVertex, e.inVertexID, e.vis, nil)
	if err := b.addProperties(ctx, m, rowKey, e.props); err != nil {
		return sgerr.With(err, sgerr.FieldElementID(e.id))
	}
	if err := b.sink.AppendEdgeMutation(ctx, m); err != nil {
		return err
	}

	out := kv.NewMutation(VertexRowKey(e.outVertexID))
	out.Put(CFOutEdge, e.id, e.vis, EdgeInfo{Label: e.label, VertexID: e.inVertexID}.Bytes())
	in := kv.NewMutation(VertexRowKey(e.inVertexID))
	in.Put(CFInEdge, e.id, e.vis, EdgeInfo{Label: e.label, VertexID: e.outVertexID}.Bytes())
	return b.sink.AppendVertexMutation(ctx, out, in)
}

func (b *MutationBuilder) addProperties(ctx context.Context, m *kv.Mutation, rowKey string, props []*Property) error {
	for _, p := range props {
		if err := b.PropertyPut(ctx, m, rowKey, p); err != nil {
			return err
		}
	}
	return nil
}

// PropertyPut adds the value cell of p, and its metadata cell when the
// metadata is not empty, to m.
func (b *MutationBuilder) PropertyPut(ctx context.Context, m *kv.Mutation, rowKey string, p *Property) error {
	if err := validatePropertyName(p.name); err != nil {
		return err
	}
	value, err := p.Value()
	if err != nil {
		return err
	}
	if value == nil {
		return sgerr.New(sgerr.CodeGraphElementInvalidInput, "property value must not be nil",
			sgerr.Field("property_name", p.name))
	}

	var cell []byte
	if sv, ok := value.(*StreamingValue); ok {
		cell, err = b.saveStreamingValue(ctx, rowKey, p, sv)
	} else {
		cell, err = encodeInlineValue(b.serializer, value)
	}
	if err != nil {
		return sgerr.With(err, sgerr.Field("property_name", p.name))
	}
	m.Put(CFProperty, p.qualifier(), p.vis, cell)
	return b.PropertyMetadataPut(m, p)
}

// PropertyMetadataPut adds the metadata cell of p to m. Empty metadata
// writes nothing.
func (b *MutationBuilder) PropertyMetadataPut(m *kv.Mutation, p *Property) error {
	meta, err := p.metadataMap()
	if err != nil {
		return err
	}
	return b.putMetadata(m, p, meta)
}

func (b *MutationBuilder) putMetadata(m *kv.Mutation, p *Property, meta map[string]any) error {
	if len(meta) == 0 {
		return nil
	}
	raw, err := b.serializer.Serialize(meta)
	if err != nil {
		return sgerr.With(err, sgerr.Field("property_name", p.name))
	}
	m.Put(CFPropertyMetadata, p.qualifier(), p.vis, raw)
	return nil
}

// PropertyDelete removes the value and metadata cells of p.
func (b *MutationBuilder) PropertyDelete(m *kv.Mutation, p *Property) {
	q := p.qualifier()
	m.PutDelete(CFProperty, q, p.vis)
	m.PutDelete(CFPropertyMetadata, q, p.vis)
}

// AlterElementVisibility rewrites the cells of el's row that carry the
// element visibility. It reports false and leaves m untouched when newVis
// equals the current visibility.
func (b *MutationBuilder) AlterElementVisibility(m *kv.Mutation, el Element, newVis visibility.Visibility) bool {
	e := el.base()
	if e.vis == newVis {
		return false
	}
	switch x := el.(type) {
	case *Vertex:
		m.PutDelete(CFVertexSignal, "", e.vis)
		m.Put(CFVertexSignal, "", newVis, nil)
	case *Edge:
		m.PutDelete(CFEdgeSignal, x.label, e.vis)
		m.PutDelete(CFOutVertex, x.outVertexID, e.vis)
		m.PutDelete(CFInVertex, x.inVertexID, e.vis)
		m.Put(CFEdgeSignal, x.label, newVis, nil)
		m.Put(CFOutVertex, x.outVertexID, newVis, nil)
		m.Put(CFInVertex, x.inVertexID, newVis, nil)
	}
	return true
}

// AlterEdgeVertexRef rewrites the adjacency cell of e on the endpoint in
// dir, which must be DirectionOut or DirectionIn. m must target that
// endpoint's row.
func (b *MutationBuilder) AlterEdgeVertexRef(m *kv.Mutation, e *Edge, dir Direction, newVis visibility.Visibility) bool {
	if e.vis == newVis {
		return false
	}
	switch dir {
	case DirectionOut:
		m.PutDelete(CFOutEdge, e.id, e.vis)
		m.Put(CFOutEdge, e.id, newVis, EdgeInfo{Label: e.label, VertexID: e.inVertexID}.Bytes())
	case DirectionIn:
		m.PutDelete(CFInEdge, e.id, e.vis)
		m.Put(CFInEdge, e.id, newVis, EdgeInfo{Label: e.label, VertexID: e.outVertexID}.Bytes())
	default:
		return false
	}
	return true
}

// AlterPropertyVisibility moves the property located by (key, name,
// existing) to newVis. A nil existing matches the first property with key
// and name. It returns the replaced identity, or nil when the visibility
// is unchanged.
func (b *MutationBuilder) AlterPropertyVisibility(ctx context.Context, m *kv.Mutation, el Element, key, name string, existing *visibility.Visibility, newVis visibility.Visibility) (*Property, error) {
	if err := requirePropertyMetadata(el); err != nil {
		return nil, err
	}
	p := findProperty(el, key, name, existing)
	if p == nil {
		return nil, propertyNotFound(el, key, name, existing)
	}
	if p.vis == newVis {
		return nil, nil
	}
	old := NewProperty(p.key, p.name, nil, nil, p.vis)
	b.PropertyDelete(m, p)
	p.setVisibility(newVis)
	if err := b.PropertyPut(ctx, m, m.Row, p); err != nil {
		p.setVisibility(old.vis)
		return nil, err
	}
	el.base().resort()
	return old, nil
}

// MetadataEdits stages metadata changes per property. Several edits of one
// property produce a single cell, and the element's properties only change
// once Apply is called.
type MetadataEdits struct {
	order []*Property
	maps  map[*Property]map[string]any
}

// Apply installs the staged maps on their properties.
func (e *MetadataEdits) Apply() {
	for _, p := range e.order {
		p.setMetadata(e.maps[p])
	}
}

// AlterPropertyMetadata stages one metadata entry on the located property.
// PutMetadataEdits writes the staged maps.
func (b *MutationBuilder) AlterPropertyMetadata(edits *MetadataEdits, el Element, key, name string, vis *visibility.Visibility, metadataName string, value any) error {
	if err := requirePropertyMetadata(el); err != nil {
		return err
	}
	p := findProperty(el, key, name, vis)
	if p == nil {
		return propertyNotFound(el, key, name, vis)
	}
	meta, ok := edits.maps[p]
	if !ok {
		current, err := p.metadataMap()
		if err != nil {
			return err
		}
		meta = maps.Clone(current)
		if meta == nil {
			meta = make(map[string]any)
		}
		if edits.maps == nil {
			edits.maps = make(map[*Property]map[string]any)
		}
		edits.maps[p] = meta
		edits.order = append(edits.order, p)
	}
	meta[metadataName] = value
	return nil
}

// PutMetadataEdits adds the metadata cells staged in edits to m.
func (b *MutationBuilder) PutMetadataEdits(m *kv.Mutation, edits *MetadataEdits) error {
	for _, p := range edits.order {
		if err := b.putMetadata(m, p, edits.maps[p]); err != nil {
			return err
		}
	}
	return nil
}

// requirePropertyMetadata rejects rewrites of properties whose metadata was
// never read: writing them back would drop the stored metadata.
func requirePropertyMetadata(el Element) error {
	const need = FetchProperties | FetchPropertyMetadata
	if hints := el.FetchHints(); !hints.Has(need) {
		return sgerr.New(sgerr.CodeGraphElementInvalidInput,
			"altering a property requires an element read with properties and property metadata",
			sgerr.FieldElementID(el.ID()), sgerr.Field("fetch_hints", hints.String()))
	}
	return nil
}

func (b *MutationBuilder) saveStreamingValue(ctx context.Context, rowKey string, p *Property, sv *StreamingValue) ([]byte, error) {
	src, err := sv.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	head, err := io.ReadAll(io.LimitReader(src, b.maxTableDataSize+1))
	if err != nil {
		return nil, sgerr.Wrap(err, sgerr.CodeGraphStreamingReadFailure, "reading streaming value")
	}

	ref := streamRef{
		Visibility:  string(p.vis),
		ValueType:   sv.ValueType,
		SearchIndex: sv.SearchIndex,
	}
	if int64(len(head)) <= b.maxTableDataSize {
		ref.Row = dataRowKey(rowKey, p.name, p.key)
		ref.Length = int64(len(head))
		dm := kv.NewMutation(ref.Row)
		dm.Put(CFData, "", p.vis, head)
		if err := b.sink.AppendDataMutation(ctx, dm); err != nil {
			return nil, err
		}
		p.setValue(newStoredStream(sv.ValueType, sv.SearchIndex, ref.Length, func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(head)), nil
		}))
		return encodeStreamRef(valueTagTable, ref)
	}

	if b.blobs == nil {
		return nil, sgerr.New(sgerr.CodeGraphValueEncodeFailure, "streaming value exceeds the data table limit and no blob store is configured",
			sgerr.Field("limit", b.maxTableDataSize))
	}
	ref.Blob = blobKey(rowKey, p.name, p.key, p.vis)
	n, err := b.blobs.Put(ctx, ref.Blob, io.MultiReader(bytes.NewReader(head), src))
	if err != nil {
		return nil, err
	}
	ref.Length = n
	blobs := b.blobs
	p.setValue(newStoredStream(sv.ValueType, sv.SearchIndex, n, func(ctx context.Context) (io.ReadCloser, error) {
		return blobs.Open(ctx, ref.Blob)
	}))
	return encodeStreamRef(valueTagBlob, ref)
}

func findProperty(el Element, key, name string, vis *visibility.Visibility) *Property {
	if vis == nil {
		return el.Property(key, name)
	}
	return el.PropertyWithVisibility(key, name, *vis)
}

func propertyNotFound(el Element, key, name string, vis *visibility.Visibility) error {
	fields := []sgerr.Attr{
		sgerr.FieldElementID(el.ID()),
		sgerr.Field("property_key", key),
		sgerr.Field("property_name", name),
	}
	if vis != nil {
		fields = append(fields, sgerr.FieldVisibility(string(*vis)))
	}
	return sgerr.New(sgerr.CodeGraphPropertyAlterNotFound, "could not find property", fields...)
}

// ElementBuilder collects the visibility and properties of a new element
// until Save.
type ElementBuilder[T Element] struct {
	id    string
	vis   visibility.Visibility
	props []*Property
	err   error
	save  func(ctx context.Context, b *ElementBuilder[T], auths visibility.Authorizations) (T, error)
}

// NewVertexBuilder returns a builder whose Save hands the new vertex to
// save.
func NewVertexBuilder(id string, vis visibility.Visibility, save func(ctx context.Context, v *Vertex) error) *ElementBuilder[*Vertex] {
	return &ElementBuilder[*Vertex]{
		id:  id,
		vis: vis,
		save: func(ctx context.Context, b *ElementBuilder[*Vertex], auths visibility.Authorizations) (*Vertex, error) {
			v := newVertex(b.id, b.vis, b.props, FetchAll, auths)
			if err := save(ctx, v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// NewEdgeBuilder returns a builder whose Save hands the new edge to save.
func NewEdgeBuilder(id, outVertexID, inVertexID, label string, vis visibility.Visibility, save func(ctx context.Context, e *Edge) error) *ElementBuilder[*Edge] {
	b := &ElementBuilder[*Edge]{
		id:  id,
		vis: vis,
		save: func(ctx context.Context, b *ElementBuilder[*Edge], auths visibility.Authorizations) (*Edge, error) {
			e := newEdge(b.id, outVertexID, inVertexID, label, b.vis, b.props, FetchAll, auths)
			if err := save(ctx, e); err != nil {
				return nil, err
			}
			return e, nil
		},
	}
	if outVertexID == "" || inVertexID == "" {
		b.err = sgerr.New(sgerr.CodeGraphElementInvalidInput, "edge requires an out vertex and an in vertex",
			sgerr.FieldElementID(id))
	}
	return b
}

func (b *ElementBuilder[T]) ID() string                        { return b.id }
func (b *ElementBuilder[T]) Visibility() visibility.Visibility { return b.vis }

// SetProperty sets the value of name under the default key.
func (b *ElementBuilder[T]) SetProperty(name string, value any, vis visibility.Visibility) *ElementBuilder[T] {
	return b.AddPropertyValueWithMetadata(DefaultPropertyKey, name, value, nil, vis)
}

func (b *ElementBuilder[T]) SetPropertyWithMetadata(name string, value any, metadata map[string]any, vis visibility.Visibility) *ElementBuilder[T] {
	return b.AddPropertyValueWithMetadata(DefaultPropertyKey, name, value, metadata, vis)
}

// AddPropertyValue adds one value of a multi-valued property. Values of the
// same name are told apart by key.
func (b *ElementBuilder[T]) AddPropertyValue(key, name string, value any, vis visibility.Visibility) *ElementBuilder[T] {
	return b.AddPropertyValueWithMetadata(key, name, value, nil, vis)
}

func (b *ElementBuilder[T]) AddPropertyValueWithMetadata(key, name string, value any, metadata map[string]any, vis visibility.Visibility) *ElementBuilder[T] {
	if b.err != nil {
		return b
	}
	if err := validateNewProperty(name, value, vis); err != nil {
		b.err = sgerr.With(err, sgerr.FieldElementID(b.id))
		return b
	}
	p := NewProperty(key, name, value, metadata, vis)
	for i, existing := range b.props {
		if existing.matches(key, name) && existing.vis == vis {
			b.props[i] = p
			return b
		}
	}
	b.props = append(b.props, p)
	return b
}

// Save validates the collected input and stores the element.
func (b *ElementBuilder[T]) Save(ctx context.Context, auths visibility.Authorizations) (T, error) {
	if b.err == nil {
		b.err = visibility.Validate(b.vis)
	}
	if b.err != nil {
		var zero T
		return zero, b.err
	}
	return b.save(ctx, b, auths)
}

func validateNewProperty(name string, value any, vis visibility.Visibility) error {
	if err := validatePropertyName(name); err != nil {
		return err
	}
	if value == nil {
		return sgerr.New(sgerr.CodeGraphElementInvalidInput, "property value must not be nil",
			sgerr.Field("property_name", name))
	}
	return visibility.Validate(vis)
}
