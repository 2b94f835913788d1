// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/securegraph/internal/graph"
	"github.com/sigil-dev/securegraph/internal/kv"
	"github.com/sigil-dev/securegraph/internal/serializer"
)

type recordingSink struct {
	vertices []*kv.Mutation
	edges    []*kv.Mutation
	data     []*kv.Mutation
}

func (s *recordingSink) AppendVertexMutation(_ context.Context, m ...*kv.Mutation) error {
	s.vertices = append(s.vertices, m...)
	return nil
}

func (s *recordingSink) AppendEdgeMutation(_ context.Context, m ...*kv.Mutation) error {
	s.edges = append(s.edges, m...)
	return nil
}

func (s *recordingSink) AppendDataMutation(_ context.Context, m ...*kv.Mutation) error {
	s.data = append(s.data, m...)
	return nil
}

func TestMutationBuilder_SaveVertex(t *testing.T) {
	sink := &recordingSink{}
	b := graph.NewMutationBuilder(sink, serializer.New(), nil, 0)
	ctx := context.Background()

	_, err := graph.NewVertexBuilder("v1", visA, func(ctx context.Context, v *graph.Vertex) error {
		return b.SaveVertex(ctx, v)
	}).
		SetPropertyWithMetadata("name", "alice", map[string]any{"m": 1}, visB).
		Save(ctx, authsA)
	require.NoError(t, err)

	require.Len(t, sink.vertices, 1)
	m := sink.vertices[0]
	assert.Equal(t, "Vv1", m.Row)
	require.Len(t, m.Updates, 3)
	assert.Equal(t, kv.ColumnUpdate{Family: graph.CFVertexSignal, Visibility: visA, Value: []byte{}}, m.Updates[0])
	assert.Equal(t, graph.CFProperty, m.Updates[1].Family)
	assert.Equal(t, graph.PropertyQualifier("name", ""), m.Updates[1].Qualifier)
	assert.Equal(t, visB, m.Updates[1].Visibility)
	assert.Equal(t, graph.CFPropertyMetadata, m.Updates[2].Family)
	assert.Empty(t, sink.edges)
	assert.Empty(t, sink.data)
}

func TestMutationBuilder_SaveEdge(t *testing.T) {
	sink := &recordingSink{}
	b := graph.NewMutationBuilder(sink, serializer.New(), nil, 0)

	_, err := graph.NewEdgeBuilder("e1", "v1", "v2", "knows", visA, func(ctx context.Context, e *graph.Edge) error {
		return b.SaveEdge(ctx, e)
	}).Save(context.Background(), authsA)
	require.NoError(t, err)

	require.Len(t, sink.edges, 1)
	edge := sink.edges[0]
	assert.Equal(t, "Ee1", edge.Row)
	require.Len(t, edge.Updates, 3)
	assert.Equal(t, graph.CFEdgeSignal, edge.Updates[0].Family)
	assert.Equal(t, "knows", edge.Updates[0].Qualifier)
	assert.Equal(t, "v1", edge.Updates[1].Qualifier)
	assert.Equal(t, "v2", edge.Updates[2].Qualifier)

	require.Len(t, sink.vertices, 2)
	out, in := sink.vertices[0], sink.vertices[1]
	assert.Equal(t, "Vv1", out.Row)
	assert.Equal(t, graph.CFOutEdge, out.Updates[0].Family)
	info, err := graph.ParseEdgeInfo(out.Updates[0].Value)
	require.NoError(t, err)
	assert.Equal(t, graph.EdgeInfo{Label: "knows", VertexID: "v2"}, info)

	assert.Equal(t, "Vv2", in.Row)
	assert.Equal(t, graph.CFInEdge, in.Updates[0].Family)
	info, err = graph.ParseEdgeInfo(in.Updates[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "v1", info.VertexID)
}

func TestMutationBuilder_UnchangedVisibilityWritesNothing(t *testing.T) {
	sink := &recordingSink{}
	b := graph.NewMutationBuilder(sink, serializer.New(), nil, 0)
	ctx := context.Background()

	v, err := graph.NewVertexBuilder("v1", visA, func(ctx context.Context, v *graph.Vertex) error {
		return b.SaveVertex(ctx, v)
	}).SetProperty("name", "x", visA).Save(ctx, authsA)
	require.NoError(t, err)

	m := kv.NewMutation("Vv1")
	assert.False(t, b.AlterElementVisibility(m, v, visA))
	old, err := b.AlterPropertyVisibility(ctx, m, v, "", "name", nil, visA)
	require.NoError(t, err)
	assert.Nil(t, old)
	assert.Zero(t, m.Len())

	assert.True(t, b.AlterElementVisibility(m, v, visB))
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Updates[0].Delete)
	assert.Equal(t, visA, m.Updates[0].Visibility)
	assert.Equal(t, visB, m.Updates[1].Visibility)
}

func TestMutationBuilder_PropertyDelete(t *testing.T) {
	b := graph.NewMutationBuilder(&recordingSink{}, serializer.New(), nil, 0)
	m := kv.NewMutation("Vv1")
	b.PropertyDelete(m, graph.NewProperty("k", "name", "x", nil, visA))

	require.Len(t, m.Updates, 2)
	for _, u := range m.Updates {
		assert.True(t, u.Delete)
		assert.Equal(t, graph.PropertyQualifier("name", "k"), u.Qualifier)
		assert.Equal(t, visA, u.Visibility)
	}
}

func TestMutationBuilder_StreamingWithoutBlobStore(t *testing.T) {
	sink := &recordingSink{}
	b := graph.NewMutationBuilder(sink, serializer.New(), nil, 4)

	_, err := graph.NewVertexBuilder("v1", visA, func(ctx context.Context, v *graph.Vertex) error {
		return b.SaveVertex(ctx, v)
	}).SetProperty("doc", graph.NewStreamingValueBytes([]byte("too large"), "text/plain"), visA).
		Save(context.Background(), authsA)
	require.Error(t, err)
	assert.Empty(t, sink.vertices)
}

func TestMutationBuilder_AlterPropertyMetadataStagesUntilApply(t *testing.T) {
	sink := &recordingSink{}
	b := graph.NewMutationBuilder(sink, serializer.New(), nil, 0)
	ctx := context.Background()

	v, err := graph.NewVertexBuilder("v1", visA, func(ctx context.Context, v *graph.Vertex) error {
		return b.SaveVertex(ctx, v)
	}).
		SetPropertyWithMetadata("name", "alice", map[string]any{"k1": 1}, visA).
		Save(ctx, authsA)
	require.NoError(t, err)

	var edits graph.MetadataEdits
	require.NoError(t, b.AlterPropertyMetadata(&edits, v, "", "name", nil, "k2", 2))
	require.NoError(t, b.AlterPropertyMetadata(&edits, v, "", "name", nil, "k3", 3))

	md, err := v.Property("", "name").Metadata()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k1": 1}, md, "staged edits stay off the property")

	m := kv.NewMutation("Vv1")
	require.NoError(t, b.PutMetadataEdits(m, &edits))
	require.Len(t, m.Updates, 1, "one metadata cell per property")
	assert.Equal(t, graph.CFPropertyMetadata, m.Updates[0].Family)

	edits.Apply()
	md, err = v.Property("", "name").Metadata()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k1": 1, "k2": 2, "k3": 3}, md)
}
