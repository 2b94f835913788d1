// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/securegraph/internal/graph"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// diamond builds v1->v2->v4 and v1->v3->v4.
func diamond(t *testing.T) *testGraph {
	t.Helper()
	tg := newTestGraph(t)
	v1 := tg.addVertex(t, "v1", visA)
	v2 := tg.addVertex(t, "v2", visA)
	v3 := tg.addVertex(t, "v3", visA)
	v4 := tg.addVertex(t, "v4", visA)
	tg.addEdge(t, "e1", v1, v2, "knows", visA)
	tg.addEdge(t, "e2", v1, v3, "knows", visA)
	tg.addEdge(t, "e3", v2, v4, "knows", visA)
	tg.addEdge(t, "e4", v3, v4, "knows", visA)
	return tg
}

func TestFindPaths_Diamond(t *testing.T) {
	tg := diamond(t)
	ctx := context.Background()

	paths, err := tg.FindPaths(ctx, "v1", "v4", 2, authsA)
	require.NoError(t, err)
	assert.ElementsMatch(t, []graph.Path{{"v1", "v2", "v4"}, {"v1", "v3", "v4"}}, paths)

	paths, err = tg.FindPaths(ctx, "v1", "v4", 1, authsA)
	require.NoError(t, err)
	assert.Empty(t, paths)

	paths, err = tg.FindPaths(ctx, "v4", "v1", 2, authsA)
	require.NoError(t, err)
	assert.ElementsMatch(t, []graph.Path{{"v4", "v2", "v1"}, {"v4", "v3", "v1"}}, paths,
		"edges are followed in both directions by default")

	paths, err = tg.FindPaths(ctx, "v4", "v1", 2, authsA, graph.WithDirection(graph.DirectionOut))
	require.NoError(t, err)
	assert.Empty(t, paths)

	paths, err = tg.FindPaths(ctx, "v4", "v1", 2, authsA, graph.WithDirection(graph.DirectionIn))
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestFindPaths_LongerPathsIncluded(t *testing.T) {
	tg := diamond(t)
	ctx := context.Background()
	v1 := tg.vertex(t, "v1", authsA)
	v4 := tg.vertex(t, "v4", authsA)
	v5 := tg.addVertex(t, "v5", visA)
	tg.addEdge(t, "e5", v1, v4, "knows", visA)
	tg.addEdge(t, "e6", v4, v5, "knows", visA)
	tg.addEdge(t, "e7", v5, v1, "knows", visA)

	out := graph.WithDirection(graph.DirectionOut)
	paths, err := tg.FindPaths(ctx, "v1", "v4", 3, authsA, out)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, graph.Path{"v1", "v4"}, paths[0], "shortest first")

	paths, err = tg.FindPaths(ctx, "v1", "v5", 3, authsA, out)
	require.NoError(t, err)
	assert.ElementsMatch(t, []graph.Path{
		{"v1", "v4", "v5"},
		{"v1", "v2", "v4", "v5"},
		{"v1", "v3", "v4", "v5"},
	}, paths)
}

func TestFindPaths_MultiplePaths(t *testing.T) {
	tg := newTestGraph(t)
	ctx := context.Background()
	v1 := tg.addVertex(t, "v1", visA)
	v2 := tg.addVertex(t, "v2", visA)
	v3 := tg.addVertex(t, "v3", visA)
	v4 := tg.addVertex(t, "v4", visA)
	v5 := tg.addVertex(t, "v5", visA)
	tg.addEdge(t, "e1", v1, v4, "knows", visA)
	tg.addEdge(t, "e2", v1, v3, "knows", visA)
	tg.addEdge(t, "e3", v3, v4, "knows", visA)
	tg.addEdge(t, "e4", v2, v3, "knows", visA)
	tg.addEdge(t, "e5", v4, v2, "knows", visA)
	tg.addEdge(t, "e6", v2, v5, "knows", visA)

	paths, err := tg.FindPaths(ctx, "v1", "v2", 2, authsA)
	require.NoError(t, err)
	assert.ElementsMatch(t, []graph.Path{{"v1", "v3", "v2"}, {"v1", "v4", "v2"}}, paths)

	paths, err = tg.FindPaths(ctx, "v1", "v2", 3, authsA)
	require.NoError(t, err)
	require.Len(t, paths, 4)
	assert.Len(t, paths[0], 3)
	assert.Len(t, paths[1], 3)
	assert.ElementsMatch(t, []graph.Path{
		{"v1", "v3", "v2"},
		{"v1", "v4", "v2"},
		{"v1", "v3", "v4", "v2"},
		{"v1", "v4", "v3", "v2"},
	}, paths)

	paths, err = tg.FindPaths(ctx, "v1", "v5", 2, authsA)
	require.NoError(t, err)
	assert.Empty(t, paths)

	paths, err = tg.FindPaths(ctx, "v1", "v5", 3, authsA)
	require.NoError(t, err)
	assert.ElementsMatch(t, []graph.Path{{"v1", "v3", "v2", "v5"}, {"v1", "v4", "v2", "v5"}}, paths)

	paths, err = tg.FindPaths(ctx, "v1", "v2", 3, authsA, graph.WithDirection(graph.DirectionOut))
	require.NoError(t, err)
	assert.Equal(t, []graph.Path{{"v1", "v4", "v2"}, {"v1", "v3", "v4", "v2"}}, paths)
}

func TestFindPaths_Visibility(t *testing.T) {
	tg := diamond(t)
	ctx := context.Background()
	_, err := tg.PrepareVertexMutation(tg.vertex(t, "v2", authsA)).AlterElementVisibility(visB).Save(ctx, authsA)
	require.NoError(t, err)

	paths, err := tg.FindPaths(ctx, "v1", "v4", 2, authsA)
	require.NoError(t, err)
	assert.Equal(t, []graph.Path{{"v1", "v3", "v4"}}, paths)

	paths, err = tg.FindPaths(ctx, "v1", "v2", 2, authsA)
	require.NoError(t, err)
	assert.Nil(t, paths)

	paths, err = tg.FindPaths(ctx, "v1", "v4", 2, authsB)
	require.NoError(t, err)
	assert.Nil(t, paths)
}

func TestFindPaths_Edges(t *testing.T) {
	tg := diamond(t)
	ctx := context.Background()

	paths, err := tg.FindPaths(ctx, "v1", "v1", 0, authsA)
	require.NoError(t, err)
	assert.Equal(t, []graph.Path{{"v1"}}, paths)

	paths, err = tg.FindPaths(ctx, "v1", "missing", 3, authsA)
	require.NoError(t, err)
	assert.Nil(t, paths)

	_, err = tg.FindPaths(ctx, "v1", "v4", -1, authsA)
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeGraphPathInvalidInput))
}
