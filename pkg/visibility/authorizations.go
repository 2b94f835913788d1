// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package visibility

import (
	"sort"
	"strings"
)

// Authorizations is an immutable set of tokens held by a caller. The zero
// value holds no tokens.
type Authorizations struct {
	tokens map[string]struct{}
}

func NewAuthorizations(tokens ...string) Authorizations {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	return Authorizations{tokens: set}
}

func (a Authorizations) Contains(token string) bool {
	_, ok := a.tokens[token]
	return ok
}

func (a Authorizations) Len() int {
	return len(a.tokens)
}

// Tokens returns the tokens in sorted order.
func (a Authorizations) Tokens() []string {
	out := make([]string, 0, len(a.tokens))
	for t := range a.tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// CanRead evaluates v against the set. A malformed label is an error, never
// a denial.
func (a Authorizations) CanRead(v Visibility) (bool, error) {
	if v.IsEmpty() {
		return true, nil
	}
	expr, err := Parse(v)
	if err != nil {
		return false, err
	}
	return expr.Evaluate(a), nil
}

// Equals reports whether the two sets share at least one token. Callers use
// it as an overlap test; it is not set equality.
func (a Authorizations) Equals(other Authorizations) bool {
	small, large := a.tokens, other.tokens
	if len(small) > len(large) {
		small, large = large, small
	}
	for t := range small {
		if _, ok := large[t]; ok {
			return true
		}
	}
	return false
}

func (a Authorizations) String() string {
	return strings.Join(a.Tokens(), ",")
}

// Evaluator caches parse results for one authorization set. It is not safe
// for concurrent use; scans create one each.
type Evaluator struct {
	auths Authorizations
	cache map[Visibility]bool
}

func NewEvaluator(a Authorizations) *Evaluator {
	return &Evaluator{auths: a, cache: make(map[Visibility]bool)}
}

func (e *Evaluator) CanRead(v Visibility) (bool, error) {
	if v.IsEmpty() {
		return true, nil
	}
	if ok, hit := e.cache[v]; hit {
		return ok, nil
	}
	ok, err := e.auths.CanRead(v)
	if err != nil {
		return false, err
	}
	e.cache[v] = ok
	return ok, nil
}
