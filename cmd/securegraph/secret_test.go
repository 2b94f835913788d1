// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/sigil-dev/securegraph/internal/config"
	"github.com/sigil-dev/securegraph/internal/secrets"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

func TestSecretCommands(t *testing.T) {
	isolateHome(t)
	keyring.MockInit()

	out, err := execute(t, "alice-token\n", "secret", "set", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "keyring://securegraph/alice")

	got, err := secrets.NewKeyringStore().Get(secretService, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice-token", got)

	out, err = execute(t, "", "secret", "delete", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted secret: alice")

	_, err = execute(t, "", "secret", "delete", "alice")
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeSecretNotFound))
}

func TestSecretSet_EmptyInput(t *testing.T) {
	isolateHome(t)
	keyring.MockInit()

	for _, in := range []string{"", "   \n"} {
		_, err := execute(t, in, "secret", "set", "alice")
		require.Error(t, err)
		assert.True(t, sgerr.HasCode(err, sgerr.CodeCLIInputInvalid))
	}
}

func TestWireServer_KeyringToken(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, secrets.NewKeyringStore().Set(secretService, "alice", "from-keyring"))

	ctx := context.Background()
	cfg := defaultConfig(t)
	cfg.Auth.Tokens = []config.TokenConfig{
		{Token: "keyring://securegraph/alice", Principal: "alice", Authorizations: []string{"a"}},
	}

	app, err := WireGraph(ctx, cfg, t.TempDir(), nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(ctx)) }()
	require.NoError(t, app.WireServer(cfg))

	_, err = app.Graph.AddVertex(ctx, "v1", "a", visibility.NewAuthorizations("a"))
	require.NoError(t, err)

	for token, want := range map[string]int{
		"from-keyring":                http.StatusOK,
		"keyring://securegraph/alice": http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/vertices/v1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		app.Server.Handler().ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, token)
	}
}

func TestWireServer_UnresolvableToken(t *testing.T) {
	keyring.MockInit()

	ctx := context.Background()
	cfg := defaultConfig(t)
	cfg.Auth.Tokens = []config.TokenConfig{
		{Token: "keyring://securegraph/missing", Principal: "alice"},
	}

	app, err := WireGraph(ctx, cfg, t.TempDir(), nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(ctx)) }()

	err = app.WireServer(cfg)
	require.Error(t, err)
	assert.True(t, sgerr.IsNotFound(err))
	assert.Nil(t, app.Server)
}
