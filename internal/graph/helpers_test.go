// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/securegraph/internal/blob"
	"github.com/sigil-dev/securegraph/internal/graph"
	"github.com/sigil-dev/securegraph/internal/kv"
	"github.com/sigil-dev/securegraph/internal/kv/memory"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

var (
	visA    = visibility.Visibility("a")
	visB    = visibility.Visibility("b")
	authsA  = visibility.NewAuthorizations("a")
	authsB  = visibility.NewAuthorizations("b")
	authsAB = visibility.NewAuthorizations("a", "b")
)

type testGraph struct {
	*graph.Graph
	client *kv.Client
}

func newTestGraph(t *testing.T, configure ...func(*graph.Options)) *testGraph {
	t.Helper()
	client := kv.NewClient(memory.New())
	t.Cleanup(func() { _ = client.Close() })

	opts := graph.Options{
		AutoFlush:              true,
		UseServerSideRowFilter: true,
		Blobs:                  blob.NewMemory(),
	}
	for _, fn := range configure {
		fn(&opts)
	}
	g, err := graph.Open(context.Background(), client, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close(context.Background()) })
	return &testGraph{Graph: g, client: client}
}

func (tg *testGraph) addVertex(t *testing.T, id string, vis visibility.Visibility) *graph.Vertex {
	t.Helper()
	v, err := tg.AddVertex(context.Background(), id, vis, authsA)
	require.NoError(t, err)
	return v
}

func (tg *testGraph) addEdge(t *testing.T, id string, out, in *graph.Vertex, label string, vis visibility.Visibility) *graph.Edge {
	t.Helper()
	e, err := tg.AddEdge(context.Background(), id, out, in, label, vis, authsA)
	require.NoError(t, err)
	return e
}

func (tg *testGraph) vertex(t *testing.T, id string, auths visibility.Authorizations) *graph.Vertex {
	t.Helper()
	v, err := tg.GetVertex(context.Background(), id, graph.FetchAll, auths)
	require.NoError(t, err)
	return v
}

func (tg *testGraph) edge(t *testing.T, id string, auths visibility.Authorizations) *graph.Edge {
	t.Helper()
	e, err := tg.GetEdge(context.Background(), id, graph.FetchAll, auths)
	require.NoError(t, err)
	return e
}

// ids drains it and returns the element ids in iteration order. An error
// is returned as a single "error: ..." entry so the assertion shows it.
func ids[T graph.Element](it *graph.Iterator[T], err error) []string {
	if err != nil {
		return []string{"error: " + err.Error()}
	}
	all, err := graph.Collect(it)
	if err != nil {
		return []string{"error: " + err.Error()}
	}
	out := make([]string, 0, len(all))
	for _, el := range all {
		out = append(out, el.ID())
	}
	return out
}

func sortedIDs[T graph.Element](it *graph.Iterator[T], err error) []string {
	out := ids(it, err)
	sort.Strings(out)
	return out
}

func value(t *testing.T, p *graph.Property) any {
	t.Helper()
	require.NotNil(t, p)
	v, err := p.Value()
	require.NoError(t, err)
	return v
}
