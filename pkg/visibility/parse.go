// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package visibility

import (
	"strings"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

type nodeKind int

const (
	nodeToken nodeKind = iota
	nodeAnd
	nodeOr
)

type node struct {
	kind     nodeKind
	token    string
	children []*node
}

func (n *node) eval(a Authorizations) bool {
	switch n.kind {
	case nodeToken:
		return a.Contains(n.token)
	case nodeAnd:
		for _, c := range n.children {
			if !c.eval(a) {
				return false
			}
		}
		return true
	default:
		for _, c := range n.children {
			if c.eval(a) {
				return true
			}
		}
		return false
	}
}

// Expression is a parsed label.
type Expression struct {
	source Visibility
	root   *node
}

// Parse parses v. The empty label parses to an expression that is always
// satisfied.
func Parse(v Visibility) (*Expression, error) {
	if v.IsEmpty() {
		return &Expression{}, nil
	}
	p := &parser{src: string(v)}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.src) {
		return nil, p.fail("unbalanced parenthesis")
	}
	return &Expression{source: v, root: root}, nil
}

// Evaluate reports whether a satisfies the expression.
func (e *Expression) Evaluate(a Authorizations) bool {
	if e.root == nil {
		return true
	}
	return e.root.eval(a)
}

func (e *Expression) String() string {
	return string(e.source)
}

// Tokens returns the distinct tokens referenced by the expression.
func (e *Expression) Tokens() []string {
	var out []string
	seen := map[string]struct{}{}
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.kind == nodeToken {
			if _, ok := seen[n.token]; !ok {
				seen[n.token] = struct{}{}
				out = append(out, n.token)
			}
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(e.root)
	return out
}

type parser struct {
	src string
	pos int
}

func (p *parser) fail(msg string) error {
	return sgerr.New(sgerr.CodeVisibilityParseInvalidFormat, "visibility: "+msg,
		sgerr.FieldVisibility(p.src),
		sgerr.Field("offset", p.pos),
	)
}

func (p *parser) parseExpr() (*node, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	children := []*node{first}
	var op byte
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ')' {
			break
		}
		if c != '&' && c != '|' {
			return nil, p.fail("unexpected character " + string(c))
		}
		if op != 0 && op != c {
			return nil, p.fail("cannot mix & and | without parentheses")
		}
		op = c
		p.pos++
		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		children = append(children, term)
	}
	if len(children) == 1 {
		return first, nil
	}
	kind := nodeAnd
	if op == '|' {
		kind = nodeOr
	}
	return &node{kind: kind, children: children}, nil
}

func (p *parser) parseTerm() (*node, error) {
	if p.pos >= len(p.src) {
		return nil, p.fail("missing term")
	}
	switch c := p.src[p.pos]; {
	case c == '(':
		p.pos++
		if p.pos < len(p.src) && p.src[p.pos] == ')' {
			return nil, p.fail("empty parentheses")
		}
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return nil, p.fail("unbalanced parenthesis")
		}
		p.pos++
		return n, nil
	case c == '"':
		return p.parseQuoted()
	case isTokenChar(c):
		start := p.pos
		for p.pos < len(p.src) && isTokenChar(p.src[p.pos]) {
			p.pos++
		}
		return &node{kind: nodeToken, token: p.src[start:p.pos]}, nil
	default:
		return nil, p.fail("unexpected character " + string(c))
	}
}

func (p *parser) parseQuoted() (*node, error) {
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '\\':
			if p.pos+1 >= len(p.src) {
				return nil, p.fail("dangling escape")
			}
			next := p.src[p.pos+1]
			if next != '"' && next != '\\' {
				return nil, p.fail("invalid escape")
			}
			b.WriteByte(next)
			p.pos += 2
		case '"':
			p.pos++
			if b.Len() == 0 {
				return nil, p.fail("empty quoted token")
			}
			return &node{kind: nodeToken, token: b.String()}, nil
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return nil, p.fail("unterminated quoted token")
}
