// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"github.com/sigil-dev/securegraph/internal/kv"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// MakeVertex exposes row reconstruction to the external tests.
func (g *Graph) MakeVertex(row []kv.Cell, hints FetchHints, auths visibility.Authorizations) (*Vertex, error) {
	return g.makeVertex(row, hints, auths)
}

func (g *Graph) MakeEdge(row []kv.Cell, hints FetchHints, auths visibility.Authorizations) (*Edge, error) {
	return g.makeEdge(row, hints, auths)
}

var (
	EncodeInlineValue = encodeInlineValue
	BatchThreads      = batchThreads
)

func (h FetchHints) Families(kind ElementKind) []string {
	return h.families(kind)
}
