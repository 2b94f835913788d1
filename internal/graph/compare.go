// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"cmp"
	"math"
	"reflect"
	"strings"
	"time"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// CompareOp is a predicate operator for HasCompare.
type CompareOp int

const (
	Equal CompareOp = iota
	NotEqual
	GreaterThan
	GreaterThanEqual
	LessThan
	LessThanEqual
	In
)

var compareOpNames = map[CompareOp]string{
	Equal:            "=",
	NotEqual:         "!=",
	GreaterThan:      ">",
	GreaterThanEqual: ">=",
	LessThan:         "<",
	LessThanEqual:    "<=",
	In:               "in",
}

func (op CompareOp) String() string {
	if s, ok := compareOpNames[op]; ok {
		return s
	}
	return "unknown"
}

// ParseCompareOp accepts the symbolic form returned by String, plus the
// names eq, ne, gt, gte, lt and lte.
func ParseCompareOp(s string) (CompareOp, error) {
	switch strings.ToLower(s) {
	case "=", "==", "eq", "":
		return Equal, nil
	case "!=", "<>", "ne":
		return NotEqual, nil
	case ">", "gt":
		return GreaterThan, nil
	case ">=", "gte":
		return GreaterThanEqual, nil
	case "<", "lt":
		return LessThan, nil
	case "<=", "lte":
		return LessThanEqual, nil
	case "in":
		return In, nil
	}
	return 0, sgerr.New(sgerr.CodeGraphQueryInvalidInput, "unknown compare operator", sgerr.Field("op", s))
}

// evaluate applies op to one property value.
func (op CompareOp) evaluate(value, target any) bool {
	switch op {
	case Equal:
		return valuesEqual(value, target)
	case NotEqual:
		return !valuesEqual(value, target)
	case In:
		rv := reflect.ValueOf(target)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return valuesEqual(value, target)
		}
		for i := range rv.Len() {
			if valuesEqual(value, rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}
	c, ok := compareValues(value, target)
	if !ok {
		return false
	}
	switch op {
	case GreaterThan:
		return c > 0
	case GreaterThanEqual:
		return c >= 0
	case LessThan:
		return c < 0
	case LessThanEqual:
		return c <= 0
	}
	return false
}

func valuesEqual(a, b any) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values of compatible types. Numbers of any Go
// kind compare by value, strings lexicographically and times
// chronologically. ok is false for any other pairing.
func compareValues(a, b any) (int, bool) {
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			return an.compare(bn), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y), true
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

// number keeps integers exact and falls back to float64 for mixed
// comparisons.
type number struct {
	kind byte // 'i', 'u' or 'f'
	i    int64
	u    uint64
	f    float64
}

func toNumber(v any) (number, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{kind: 'i', i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{kind: 'u', u: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return number{kind: 'f', f: rv.Float()}, true
	}
	return number{}, false
}

func (n number) float() float64 {
	switch n.kind {
	case 'i':
		return float64(n.i)
	case 'u':
		return float64(n.u)
	}
	return n.f
}

func (n number) compare(o number) int {
	switch {
	case n.kind == 'i' && o.kind == 'i':
		return cmp.Compare(n.i, o.i)
	case n.kind == 'u' && o.kind == 'u':
		return cmp.Compare(n.u, o.u)
	case n.kind == 'i' && o.kind == 'u':
		if n.i < 0 || o.u > math.MaxInt64 {
			return -1
		}
		return cmp.Compare(uint64(n.i), o.u)
	case n.kind == 'u' && o.kind == 'i':
		return -o.compare(n)
	}
	return cmp.Compare(n.float(), o.float())
}
