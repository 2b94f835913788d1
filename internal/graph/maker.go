// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"github.com/sigil-dev/securegraph/internal/kv"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// propertyAccumulator collects the cells of one property while a row is
// reconstructed.
type propertyAccumulator struct {
	name     string
	key      string
	vis      visibility.Visibility
	value    []byte
	metadata []byte
	hasValue bool
}

// propertyCell identifies one property inside a row.
type propertyCell struct {
	qualifier string
	vis       visibility.Visibility
}

// elementMaker rebuilds one element from the visible cells of its row in a
// single pass.
type elementMaker struct {
	dec    valueDecoder
	hints  FetchHints
	auths  visibility.Authorizations
	signal string

	id        string
	vis       visibility.Visibility
	hasSignal bool
	props     map[propertyCell]*propertyAccumulator

	// type specific state
	outEdges    map[string]EdgeInfo
	inEdges     map[string]EdgeInfo
	outVertexID string
	inVertexID  string
	label       string
}

func newElementMaker(dec valueDecoder, kind ElementKind, hints FetchHints, auths visibility.Authorizations) *elementMaker {
	signal := CFVertexSignal
	if kind == KindEdge {
		signal = CFEdgeSignal
	}
	return &elementMaker{
		dec:    dec,
		hints:  hints,
		auths:  auths,
		signal: signal,
		props:  make(map[propertyCell]*propertyAccumulator),
	}
}

// consume processes the row. It reports false when the row does not
// describe a live element: it is tombstoned or carries no readable signal.
func (m *elementMaker) consume(row []kv.Cell) (bool, error) {
	for _, c := range row {
		if m.id == "" {
			m.id = idFromRowKey(c.Key.Row)
		}
		if c.IsDeleteRowMarker() {
			return false, nil
		}
		switch c.Key.Family {
		case CFProperty:
			if err := m.extractPropertyData(c); err != nil {
				return false, err
			}
			continue
		case CFPropertyMetadata:
			m.extractPropertyMetadata(c)
			continue
		case m.signal:
			m.vis = c.Key.Visibility
			m.hasSignal = true
		}
		if err := m.processColumn(c); err != nil {
			return false, err
		}
	}
	return m.hasSignal, nil
}

func (m *elementMaker) accumulator(c kv.Cell) *propertyAccumulator {
	pc := propertyCell{qualifier: c.Key.Qualifier, vis: c.Key.Visibility}
	acc, ok := m.props[pc]
	if !ok {
		acc = &propertyAccumulator{vis: c.Key.Visibility}
		m.props[pc] = acc
	}
	return acc
}

func (m *elementMaker) extractPropertyData(c kv.Cell) error {
	name, key, err := ParsePropertyQualifier(c.Key.Qualifier)
	if err != nil {
		return sgerr.With(err, sgerr.FieldRow(c.Key.Row))
	}
	acc := m.accumulator(c)
	acc.name = name
	acc.key = key
	acc.value = c.Value
	acc.hasValue = true
	return nil
}

func (m *elementMaker) extractPropertyMetadata(c kv.Cell) {
	m.accumulator(c).metadata = c.Value
}

func (m *elementMaker) processColumn(c kv.Cell) error {
	switch c.Key.Family {
	case CFOutEdge, CFInEdge:
		info, err := ParseEdgeInfo(c.Value)
		if err != nil {
			return sgerr.With(err, sgerr.FieldRow(c.Key.Row), sgerr.Field("edge_id", c.Key.Qualifier))
		}
		if c.Key.Family == CFOutEdge {
			if m.outEdges == nil {
				m.outEdges = make(map[string]EdgeInfo)
			}
			m.outEdges[c.Key.Qualifier] = info
		} else {
			if m.inEdges == nil {
				m.inEdges = make(map[string]EdgeInfo)
			}
			m.inEdges[c.Key.Qualifier] = info
		}
	case CFOutVertex:
		m.outVertexID = c.Key.Qualifier
	case CFInVertex:
		m.inVertexID = c.Key.Qualifier
	case CFEdgeSignal:
		if m.signal == CFEdgeSignal {
			m.label = c.Key.Qualifier
		}
	}
	return nil
}

// properties materializes the accumulated properties. Metadata without a
// value cell is dropped.
func (m *elementMaker) properties() []*Property {
	out := make([]*Property, 0, len(m.props))
	for _, acc := range m.props {
		if !acc.hasValue {
			continue
		}
		out = append(out, newLazyProperty(m.dec, acc.key, acc.name, acc.vis, acc.value, acc.metadata))
	}
	return out
}

func (m *elementMaker) makeVertex(row []kv.Cell) (*Vertex, error) {
	ok, err := m.consume(row)
	if err != nil || !ok {
		return nil, err
	}
	v := newVertex(m.id, m.vis, m.properties(), m.hints, m.auths)
	for id, info := range m.outEdges {
		v.outEdges[id] = info
	}
	for id, info := range m.inEdges {
		v.inEdges[id] = info
	}
	return v, nil
}

func (m *elementMaker) makeEdge(row []kv.Cell) (*Edge, error) {
	ok, err := m.consume(row)
	if err != nil || !ok {
		return nil, err
	}
	return newEdge(m.id, m.outVertexID, m.inVertexID, m.label, m.vis, m.properties(), m.hints, m.auths), nil
}

// makeVertex and makeEdge adapt a maker to one row.
func (g *Graph) makeVertex(row []kv.Cell, hints FetchHints, auths visibility.Authorizations) (*Vertex, error) {
	return newElementMaker(&readDecoder{g: g, auths: auths}, KindVertex, hints, auths).makeVertex(row)
}

func (g *Graph) makeEdge(row []kv.Cell, hints FetchHints, auths visibility.Authorizations) (*Edge, error) {
	return newElementMaker(&readDecoder{g: g, auths: auths}, KindEdge, hints, auths).makeEdge(row)
}
