// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package kv is a client for a sorted wide-column store with cell-level
// visibility. Cells are addressed by (row, family, qualifier, visibility),
// kept in that order, and filtered on read against the caller's
// authorizations. Storage engines plug in through Backend.
package kv

import (
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// Row deletion marker layout. A row carrying this cell is deleted as of the
// marker's timestamp once AttachRowDeletion has run for its table.
const (
	DeleteRowFamily    = ""
	DeleteRowQualifier = ""
	DeleteRowValue     = "DEL_ROW"
)

// Key addresses one cell.
type Key struct {
	Row        string
	Family     string
	Qualifier  string
	Visibility visibility.Visibility
	Timestamp  int64
}

// Cell is a stored key and its value.
type Cell struct {
	Key   Key
	Value []byte
}

// IsDeleteRowMarker reports whether c is a row deletion marker.
func (c Cell) IsDeleteRowMarker() bool {
	return c.Key.Family == DeleteRowFamily &&
		c.Key.Qualifier == DeleteRowQualifier &&
		string(c.Value) == DeleteRowValue
}

// ColumnUpdate is one put or delete inside a Mutation.
type ColumnUpdate struct {
	Family     string
	Qualifier  string
	Visibility visibility.Visibility
	Value      []byte
	Delete     bool
}

// Mutation groups the updates for a single row. Updates apply in order.
type Mutation struct {
	Row     string
	Updates []ColumnUpdate
}

func NewMutation(row string) *Mutation {
	return &Mutation{Row: row}
}

// NewDeleteRowMutation returns a mutation that writes the row deletion
// marker for row.
func NewDeleteRowMutation(row string) *Mutation {
	m := NewMutation(row)
	m.Put(DeleteRowFamily, DeleteRowQualifier, visibility.Empty, []byte(DeleteRowValue))
	return m
}

func (m *Mutation) Put(family, qualifier string, vis visibility.Visibility, value []byte) {
	if value == nil {
		value = []byte{}
	}
	m.Updates = append(m.Updates, ColumnUpdate{
		Family:     family,
		Qualifier:  qualifier,
		Visibility: vis,
		Value:      value,
	})
}

// PutDelete removes the cell with exactly this family, qualifier and
// visibility.
func (m *Mutation) PutDelete(family, qualifier string, vis visibility.Visibility) {
	m.Updates = append(m.Updates, ColumnUpdate{
		Family:     family,
		Qualifier:  qualifier,
		Visibility: vis,
		Delete:     true,
	})
}

func (m *Mutation) Len() int {
	return len(m.Updates)
}
