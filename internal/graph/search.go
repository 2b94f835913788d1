// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"context"

	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// SearchIndex is told about every successful mutation. AddElement runs
// after a save or alteration, RemoveElement before a removal and
// RemoveProperty after a property is deleted or moved to another
// visibility.
type SearchIndex interface {
	AddElement(ctx context.Context, el Element, auths visibility.Authorizations) error
	RemoveElement(ctx context.Context, el Element, auths visibility.Authorizations) error
	RemoveProperty(ctx context.Context, el Element, p *Property, auths visibility.Authorizations) error
	Flush(ctx context.Context) error
	ClearData(ctx context.Context) error
	Close() error
}

// CandidateSource is implemented by indexes that can narrow a free-text
// query to element ids. ok is false when the index cannot answer, in which
// case the query scans every element. Candidates are only a superset: the
// query pipeline re-checks every element it fetches.
type CandidateSource interface {
	Candidates(ctx context.Context, kind ElementKind, query string, auths visibility.Authorizations) (ids []string, ok bool, err error)
}

// DefaultSearchIndex indexes nothing. Queries fall back to scanning.
type DefaultSearchIndex struct{}

var _ SearchIndex = DefaultSearchIndex{}

func (DefaultSearchIndex) AddElement(context.Context, Element, visibility.Authorizations) error {
	return nil
}

func (DefaultSearchIndex) RemoveElement(context.Context, Element, visibility.Authorizations) error {
	return nil
}

func (DefaultSearchIndex) RemoveProperty(context.Context, Element, *Property, visibility.Authorizations) error {
	return nil
}

func (DefaultSearchIndex) Flush(context.Context) error     { return nil }
func (DefaultSearchIndex) ClearData(context.Context) error { return nil }
func (DefaultSearchIndex) Close() error                    { return nil }
