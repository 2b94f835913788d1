// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kv

// Range selects rows in [Start, End). An empty Start begins at the first
// row; an empty End is unbounded.
type Range struct {
	Start string
	End   string
}

// ExactRow selects the single row named row.
func ExactRow(row string) Range {
	return Range{Start: row, End: row + "\x00"}
}

// PrefixRange selects every row that starts with prefix and sorts before
// prefix+"\xff".
func PrefixRange(prefix string) Range {
	return Range{Start: prefix, End: prefix + "\xff"}
}

func (r Range) bounds() (start, end []byte) {
	start = rowBound(r.Start)
	if r.End != "" {
		end = rowBound(r.End)
	}
	return start, end
}

// Contains reports whether row falls inside r.
func (r Range) Contains(row string) bool {
	if row < r.Start {
		return false
	}
	return r.End == "" || row < r.End
}
