// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package visibility_test

import (
	"testing"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanReadTruthTable(t *testing.T) {
	tests := []struct {
		name  string
		auths []string
		vis   visibility.Visibility
		want  bool
	}{
		{name: "empty label, no auths", vis: "", want: true},
		{name: "single token held", auths: []string{"a"}, vis: "a", want: true},
		{name: "single token missing", auths: []string{"b"}, vis: "a", want: false},
		{name: "and satisfied", auths: []string{"a", "b"}, vis: "a&b", want: true},
		{name: "and partial", auths: []string{"a"}, vis: "a&b", want: false},
		{name: "or either", auths: []string{"b"}, vis: "a|b", want: true},
		{name: "or none", auths: []string{"c"}, vis: "a|b", want: false},
		{name: "nested or", auths: []string{"a", "c"}, vis: "a&(b|c)", want: true},
		{name: "nested or unsatisfied", auths: []string{"b", "c"}, vis: "a&(b|c)", want: false},
		{name: "nested and", auths: []string{"c"}, vis: "(a&b)|c", want: true},
		{name: "redundant parens", auths: []string{"a"}, vis: "((a))", want: true},
		{name: "quoted token", auths: []string{"team red"}, vis: `"team red"`, want: true},
		{name: "quoted escapes", auths: []string{`a"b\c`}, vis: `"a\"b\\c"`, want: true},
		{name: "token punctuation", auths: []string{"org:unit/x.y-z_1"}, vis: "org:unit/x.y-z_1", want: true},
		{name: "case sensitive", auths: []string{"A"}, vis: "a", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := visibility.NewAuthorizations(tt.auths...).CanRead(tt.vis)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsMalformedExpressions(t *testing.T) {
	bad := []visibility.Visibility{
		"a&b|c",
		"a|b&c",
		"()",
		"a&",
		"|a",
		"(a",
		"a)",
		"a b",
		`""`,
		`"abc`,
		`"a\x"`,
		"a&&b",
		"a!",
	}

	for _, v := range bad {
		t.Run(string(v), func(t *testing.T) {
			_, err := visibility.Parse(v)
			require.Error(t, err)
			assert.True(t, sgerr.HasCode(err, sgerr.CodeVisibilityParseInvalidFormat))

			_, err = visibility.NewAuthorizations("a", "b", "c").CanRead(v)
			require.Error(t, err, "malformed labels must not be treated as deny")
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, visibility.Validate(""))
	assert.NoError(t, visibility.Validate("a&(b|c)"))
	assert.Error(t, visibility.Validate("a&b|c"))
}

func TestExpressionTokens(t *testing.T) {
	expr, err := visibility.Parse(`a&(b|"c d")&a`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c d"}, expr.Tokens())
	assert.Equal(t, `a&(b|"c d")&a`, expr.String())
}

func TestAuthorizationsEqualsIsOverlap(t *testing.T) {
	ab := visibility.NewAuthorizations("a", "b")
	bc := visibility.NewAuthorizations("b", "c")
	cd := visibility.NewAuthorizations("c", "d")

	assert.True(t, ab.Equals(bc))
	assert.True(t, bc.Equals(ab))
	assert.False(t, ab.Equals(cd))
	assert.False(t, ab.Equals(visibility.NewAuthorizations()))
	assert.False(t, visibility.Authorizations{}.Equals(ab))
}

func TestAuthorizationsTokensSortedAndDeduplicated(t *testing.T) {
	a := visibility.NewAuthorizations("z", "a", "a", "")
	assert.Equal(t, []string{"a", "z"}, a.Tokens())
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, "a,z", a.String())
}

func TestAnd(t *testing.T) {
	assert.Equal(t, visibility.Empty, visibility.And())
	assert.Equal(t, visibility.Empty, visibility.And("", ""))
	assert.Equal(t, visibility.Visibility("a"), visibility.And("", "a", "a"))
	assert.Equal(t, visibility.Visibility("(a)&(b|c)"), visibility.And("b|c", "", "a"))

	v := visibility.And("a|b", "c&d")
	require.NoError(t, visibility.Validate(v))

	ok, err := visibility.NewAuthorizations("b", "c", "d").CanRead(v)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = visibility.NewAuthorizations("a", "c").CanRead(v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "abc", visibility.Quote("abc"))
	assert.Equal(t, `"a b"`, visibility.Quote("a b"))
	assert.Equal(t, `"a\"b\\"`, visibility.Quote(`a"b\`))

	token := `weird "token" \ here`
	ok, err := visibility.NewAuthorizations(token).CanRead(visibility.Visibility(visibility.Quote(token)))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluatorCachesResults(t *testing.T) {
	e := visibility.NewEvaluator(visibility.NewAuthorizations("a"))

	for range 2 {
		ok, err := e.CanRead("a|b")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := e.CanRead("b")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.CanRead("a&b|c")
	assert.Error(t, err)
}
