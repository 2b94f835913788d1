// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ingest_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/securegraph/internal/blob"
	"github.com/sigil-dev/securegraph/internal/graph"
	"github.com/sigil-dev/securegraph/internal/ingest"
	"github.com/sigil-dev/securegraph/internal/kv"
	"github.com/sigil-dev/securegraph/internal/kv/memory"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

var authsA = visibility.NewAuthorizations("a")

func newLoader(t *testing.T) (*graph.Graph, *ingest.Loader) {
	t.Helper()
	client := kv.NewClient(memory.New())
	t.Cleanup(func() { _ = client.Close() })
	g, err := graph.Open(context.Background(), client, graph.Options{AutoFlush: true})
	require.NoError(t, err)
	return g, ingest.NewLoader(client, g, ingest.Options{Blobs: blob.NewMemory()})
}

func TestLoader_Builders(t *testing.T) {
	g, l := newLoader(t)
	ctx := context.Background()

	_, err := l.PrepareVertex("v1", "a").SetProperty("name", "alice", "a").Save(ctx, authsA)
	require.NoError(t, err)
	_, err = l.PrepareVertex("v2", "a").Save(ctx, authsA)
	require.NoError(t, err)
	_, err = l.PrepareEdge("e1", "v1", "v2", "knows", "a").Save(ctx, authsA)
	require.NoError(t, err)

	// Nothing is visible until the loader flushes.
	v, err := g.GetVertex(ctx, "v1", graph.FetchAll, authsA)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, l.Close(ctx))
	assert.Equal(t, ingest.Stats{Vertices: 2, Edges: 1}, l.Stats())

	v, err = g.GetVertex(ctx, "v1", graph.FetchAll, authsA)
	require.NoError(t, err)
	require.NotNil(t, v)
	name, err := v.PropertyValue("name")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	assert.Equal(t, []string{"e1"}, v.EdgeIDs(graph.DirectionOut))

	e, err := g.GetEdge(ctx, "e1", graph.FetchAll, authsA)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "knows", e.Label())
}

func TestLoader_Load(t *testing.T) {
	g, l := newLoader(t)
	ctx := context.Background()

	input := `
{"type":"vertex","id":"v1","visibility":"a","properties":[{"name":"age","value":42,"visibility":"a","metadata":{"score":0.5}}]}
{"type":"vertex","id":"v2","visibility":"a","properties":[{"key":"k1","name":"tag","value":"x","visibility":"a"},{"key":"k2","name":"tag","value":"y","visibility":"a"}]}

{"type":"edge","id":"e1","out":"v1","in":"v2","label":"knows","visibility":"a","properties":[{"name":"weight","value":1.5,"visibility":"a"}]}
`
	require.NoError(t, l.Load(ctx, strings.NewReader(input)))
	require.NoError(t, l.Flush(ctx))

	v1, err := g.GetVertex(ctx, "v1", graph.FetchAll, authsA)
	require.NoError(t, err)
	require.NotNil(t, v1)
	age, err := v1.PropertyValue("age")
	require.NoError(t, err)
	assert.Equal(t, int64(42), age)
	md, err := v1.Property("", "age").Metadata()
	require.NoError(t, err)
	assert.Equal(t, 0.5, md["score"])

	v2, err := g.GetVertex(ctx, "v2", graph.FetchAll, authsA)
	require.NoError(t, err)
	tags, err := v2.PropertyValues("tag")
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y"}, tags)

	e1, err := g.GetEdge(ctx, "e1", graph.FetchAll, authsA)
	require.NoError(t, err)
	weight, err := e1.PropertyValue("weight")
	require.NoError(t, err)
	assert.Equal(t, 1.5, weight)
}

func TestLoader_GeneratedIDs(t *testing.T) {
	g, l := newLoader(t)
	ctx := context.Background()
	require.NoError(t, l.Load(ctx, strings.NewReader(`{"type":"vertex","visibility":"a"}`)))
	require.NoError(t, l.Flush(ctx))

	it, err := g.GetVertices(ctx, graph.FetchAll, authsA)
	require.NoError(t, err)
	all, err := graph.Collect(it)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].ID(), 32)
}

func TestLoader_InvalidRecords(t *testing.T) {
	cases := map[string]string{
		"bad json":       `{"type":`,
		"unknown field":  `{"type":"vertex","id":"v1","colour":"red"}`,
		"unknown type":   `{"type":"hyperedge","id":"h1"}`,
		"edge endpoints": `{"type":"edge","id":"e1","label":"knows"}`,
		"visibility":     `{"type":"vertex","id":"v1","visibility":"a&"}`,
		"property name":  `{"type":"vertex","id":"v1","properties":[{"name":"","value":1}]}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, l := newLoader(t)
			err := l.Load(context.Background(), strings.NewReader("\n"+input))
			require.Error(t, err)
			assert.True(t, ingest.IsRecordError(err), "code %s", sgerr.CodeOf(err))
			assert.Equal(t, 2, sgerr.FieldsOf(err)["line"])
		})
	}
}

func TestLoader_StreamingValues(t *testing.T) {
	client := kv.NewClient(memory.New())
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	store := blob.NewMemory()
	g, err := graph.Open(ctx, client, graph.Options{Blobs: store})
	require.NoError(t, err)
	l := ingest.NewLoader(client, g, ingest.Options{Blobs: store, MaxStreamingTableDataSize: 4})

	_, err = l.PrepareVertex("v1", "a").
		SetProperty("doc", graph.NewStreamingValueBytes([]byte("large payload"), "text/plain"), "a").
		Save(ctx, authsA)
	require.NoError(t, err)
	require.NoError(t, l.Close(ctx))

	v, err := g.GetVertex(ctx, "v1", graph.FetchAll, authsA)
	require.NoError(t, err)
	raw, err := v.PropertyValue("doc")
	require.NoError(t, err)
	b, err := raw.(*graph.StreamingValue).ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "large payload", string(b))
}
