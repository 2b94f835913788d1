// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"cmp"
	"maps"
	"sync"

	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// DefaultPropertyKey is the key used by SetProperty.
const DefaultPropertyKey = ""

// Property is one value of a named property on one element, identified by
// (key, name, visibility). Values and metadata read from storage are decoded
// on first access.
type Property struct {
	key  string
	name string
	vis  visibility.Visibility

	dec         valueDecoder
	rawValue    []byte
	rawMetadata []byte

	mu          sync.Mutex
	value       any
	valueErr    error
	valueLoaded bool
	metadata    map[string]any
	metaErr     error
	metaLoaded  bool
}

// NewProperty returns a property holding an already decoded value.
func NewProperty(key, name string, value any, metadata map[string]any, vis visibility.Visibility) *Property {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Property{
		key:         key,
		name:        name,
		vis:         vis,
		value:       value,
		valueLoaded: true,
		metadata:    metadata,
		metaLoaded:  true,
	}
}

func newLazyProperty(dec valueDecoder, key, name string, vis visibility.Visibility, rawValue, rawMetadata []byte) *Property {
	return &Property{
		key:         key,
		name:        name,
		vis:         vis,
		dec:         dec,
		rawValue:    rawValue,
		rawMetadata: rawMetadata,
	}
}

func (p *Property) Key() string                       { return p.key }
func (p *Property) Name() string                      { return p.name }
func (p *Property) Visibility() visibility.Visibility { return p.vis }

// Value returns the decoded value. A malformed stored value yields a
// graph.value.decode.invalid_format error.
func (p *Property) Value() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.valueLoaded {
		p.value, p.valueErr = p.dec.decodeValue(p.rawValue)
		p.valueLoaded = true
	}
	return p.value, p.valueErr
}

// Metadata returns a copy of the property metadata.
func (p *Property) Metadata() (map[string]any, error) {
	m, err := p.metadataMap()
	if err != nil {
		return nil, err
	}
	return maps.Clone(m), nil
}

func (p *Property) metadataMap() (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.metaLoaded {
		p.metadata, p.metaErr = p.dec.decodeMetadata(p.rawMetadata)
		if p.metadata == nil && p.metaErr == nil {
			p.metadata = make(map[string]any)
		}
		p.metaLoaded = true
	}
	return p.metadata, p.metaErr
}

func (p *Property) setMetadata(meta map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metadata = meta
	p.metaErr = nil
	p.metaLoaded = true
}

func (p *Property) setVisibility(vis visibility.Visibility) {
	p.vis = vis
}

func (p *Property) setValue(v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = v
	p.valueErr = nil
	p.valueLoaded = true
}

func (p *Property) qualifier() string {
	return PropertyQualifier(p.name, p.key)
}

func (p *Property) matches(key, name string) bool {
	return p.key == key && p.name == name
}

// compareProperties orders properties by key, then name, then visibility.
func compareProperties(a, b *Property) int {
	if c := cmp.Compare(a.key, b.key); c != 0 {
		return c
	}
	if c := cmp.Compare(a.name, b.name); c != 0 {
		return c
	}
	return cmp.Compare(a.vis, b.vis)
}
