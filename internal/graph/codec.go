// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"strings"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// Row key prefixes. The "after" prefixes sort directly behind every row of
// their kind and close open-ended range scans.
const (
	VertexRowPrefix      = "V"
	VertexRowAfterPrefix = "W"
	EdgeRowPrefix        = "E"
	EdgeRowAfterPrefix   = "F"
	DataRowPrefix        = "D"
)

// Column families.
const (
	CFVertexSignal     = "V"
	CFEdgeSignal       = "E"
	CFOutEdge          = "EOUT"
	CFInEdge           = "EIN"
	CFOutVertex        = "VOUT"
	CFInVertex         = "VIN"
	CFProperty         = "PROP"
	CFPropertyMetadata = "PROPMETA"
	CFData             = "D"
)

// ValueSeparator joins the parts of a property qualifier and of a data row
// key. Property names must not contain it.
const ValueSeparator = "\x1f"

// rangeEndSuffix closes the range scan for an explicit end id.
const rangeEndSuffix = "~"

func VertexRowKey(id string) string { return VertexRowPrefix + id }

func EdgeRowKey(id string) string { return EdgeRowPrefix + id }

func rowKeyFor(kind ElementKind, id string) string {
	if kind == KindEdge {
		return EdgeRowKey(id)
	}
	return VertexRowKey(id)
}

// idFromRowKey strips the one-byte kind prefix.
func idFromRowKey(row string) string {
	if row == "" {
		return ""
	}
	return row[1:]
}

// PropertyQualifier builds the column qualifier of a property cell.
func PropertyQualifier(name, key string) string {
	return name + ValueSeparator + key
}

// ParsePropertyQualifier splits a property qualifier at the first
// separator into name and key.
func ParsePropertyQualifier(q string) (name, key string, err error) {
	i := strings.Index(q, ValueSeparator)
	if i < 0 {
		return "", "", sgerr.New(sgerr.CodeGraphQualifierDecodeInvalidFormat,
			"invalid property column qualifier", sgerr.Field("qualifier", q))
	}
	return q[:i], q[i+len(ValueSeparator):], nil
}

// dataRowKey is the data table row holding a streamed property value.
func dataRowKey(elementRowKey, name, key string) string {
	return DataRowPrefix + elementRowKey + ValueSeparator + name + ValueSeparator + key
}

func validatePropertyName(name string) error {
	if name == "" {
		return sgerr.New(sgerr.CodeGraphElementInvalidInput, "property name must not be empty")
	}
	if strings.Contains(name, ValueSeparator) {
		return sgerr.New(sgerr.CodeGraphElementInvalidInput, "property name must not contain the value separator",
			sgerr.Field("property_name", name))
	}
	return nil
}
