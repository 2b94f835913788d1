// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package visibility implements cell-level visibility labels and the
// authorization sets that are evaluated against them.
//
// A label is a boolean expression over authorization tokens:
//
//	secret&(ops|"team:red")
//
// "&" is AND, "|" is OR and parentheses group. The two operators cannot be
// mixed at one nesting level without parentheses. Tokens made of characters
// outside [A-Za-z0-9_-:./] must be double-quoted; inside quotes only \" and
// \\ are valid escapes. The empty label is readable by everyone.
package visibility

import (
	"sort"
	"strings"
)

// Visibility is an immutable label expression. Equality is string equality.
type Visibility string

// Empty is the label that every caller can read.
const Empty Visibility = ""

func (v Visibility) String() string {
	return string(v)
}

func (v Visibility) IsEmpty() bool {
	return v == ""
}

// Validate reports whether v parses.
func Validate(v Visibility) error {
	if v.IsEmpty() {
		return nil
	}
	_, err := Parse(v)
	return err
}

// And returns the conjunction of the non-empty labels in vs. Duplicates are
// collapsed and the operands are sorted so that equal inputs produce equal
// output regardless of order.
func And(vs ...Visibility) Visibility {
	seen := make(map[Visibility]struct{}, len(vs))
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		if v.IsEmpty() {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		parts = append(parts, string(v))
	}
	switch len(parts) {
	case 0:
		return Empty
	case 1:
		return Visibility(parts[0])
	}
	sort.Strings(parts)
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteByte('(')
		b.WriteString(p)
		b.WriteByte(')')
	}
	return Visibility(b.String())
}

// Quote returns token in a form usable inside a label. Bare tokens are
// returned unchanged.
func Quote(token string) string {
	if token != "" && isBareToken(token) {
		return token
	}
	var b strings.Builder
	b.Grow(len(token) + 2)
	b.WriteByte('"')
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

func isBareToken(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '-', c == ':', c == '.', c == '/':
		return true
	}
	return false
}
