// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import "strings"

// FetchHints selects which parts of an element a read loads. Data for an
// absent hint is neither fetched nor reconstructed.
type FetchHints uint8

const (
	FetchProperties FetchHints = 1 << iota
	FetchPropertyMetadata
	FetchInEdgeRefs
	FetchOutEdgeRefs
)

const (
	FetchNone     FetchHints = 0
	FetchEdgeRefs            = FetchInEdgeRefs | FetchOutEdgeRefs
	FetchAll                 = FetchProperties | FetchPropertyMetadata | FetchEdgeRefs
)

func (h FetchHints) Has(f FetchHints) bool {
	return h&f == f
}

func (h FetchHints) String() string {
	switch h {
	case FetchNone:
		return "none"
	case FetchAll:
		return "all"
	}
	var parts []string
	for _, p := range []struct {
		hint FetchHints
		name string
	}{
		{FetchProperties, "properties"},
		{FetchPropertyMetadata, "property_metadata"},
		{FetchInEdgeRefs, "in_edge_refs"},
		{FetchOutEdgeRefs, "out_edge_refs"},
	} {
		if h.Has(p.hint) {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, ",")
}

// families lists the column families a scan for kind must fetch. A nil
// result means every family.
func (h FetchHints) families(kind ElementKind) []string {
	if h == FetchAll {
		return nil
	}
	var fams []string
	if kind == KindVertex {
		fams = append(fams, CFVertexSignal)
		if h.Has(FetchInEdgeRefs) {
			fams = append(fams, CFInEdge)
		}
		if h.Has(FetchOutEdgeRefs) {
			fams = append(fams, CFOutEdge)
		}
	} else {
		fams = append(fams, CFEdgeSignal, CFOutVertex, CFInVertex)
	}
	if h.Has(FetchProperties) {
		fams = append(fams, CFProperty)
	}
	if h.Has(FetchPropertyMetadata) {
		fams = append(fams, CFPropertyMetadata)
	}
	return fams
}
