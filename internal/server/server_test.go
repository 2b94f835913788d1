// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/securegraph/internal/server"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_New(t *testing.T) {
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
	})
	require.NoError(t, err)
	defer srv.Close()
	assert.NotNil(t, srv)
	assert.NotNil(t, srv.API())
}

func TestServer_New_EmptyListenAddr(t *testing.T) {
	_, err := server.New(server.Config{})
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeServerConfigInvalid), "expected CodeServerConfigInvalid, got %s", sgerr.CodeOf(err))
	assert.Contains(t, err.Error(), "listen address is required")
}

func TestServer_New_InvalidRateLimit(t *testing.T) {
	_, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		RateLimit:  server.RateLimitConfig{RequestsPerSecond: 5},
	})
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeServerConfigInvalid))
}

func TestServer_HealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestServer_OpenAPISpec(t *testing.T) {
	srv := newTestServer(t)
	srv.RegisterGraph(newTestGraph(t))

	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "openapi")

	body := w.Body.String()
	for _, path := range []string{"/api/v1/vertices", "/api/v1/edges/{id}", "/api/v1/query", "/api/v1/paths"} {
		assert.Contains(t, body, path)
	}
	assert.Contains(t, body, "create-vertex")
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "securegraph_http_requests_total")
	assert.Contains(t, body, `route="/health"`)
	assert.Contains(t, body, "go_goroutines")
}

func TestServer_CORSHeaders(t *testing.T) {
	srv, err := server.New(server.Config{
		ListenAddr:  "127.0.0.1:0",
		CORSOrigins: []string{"https://app.example.com"},
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/vertices", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_GracefulShutdown(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// Wait for context cancellation to trigger shutdown.
	<-ctx.Done()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down within timeout")
	}
}

func TestServer_Start_ListenFailure(t *testing.T) {
	srv, err := server.New(server.Config{ListenAddr: "not-an-address"})
	require.NoError(t, err)

	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeServerStartFailure))
}

func TestServer_RateLimit(t *testing.T) {
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		RateLimit:  server.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2},
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	srv.RegisterGraph(newTestGraph(t))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/vertices/missing", nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)

	// Health is never limited.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_PublicEndpointsSkipAuth(t *testing.T) {
	srv, err := server.New(server.Config{
		ListenAddr:     "127.0.0.1:0",
		TokenValidator: server.NewStaticTokenValidator([]server.StaticToken{{Token: "t1", Principal: "alice"}}),
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	for _, path := range []string{"/health", "/openapi.json", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)
			assert.NotEqual(t, http.StatusUnauthorized, w.Code, "public path %s should not require auth", path)
		})
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	srv, err := server.New(server.Config{
		ListenAddr:     "127.0.0.1:0",
		TokenValidator: server.NewStaticTokenValidator([]server.StaticToken{{Token: "valid-token", Principal: "alice"}}),
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	srv.RegisterGraph(newTestGraph(t))

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", "authorization header required"},
		{"no prefix", "valid-token", "invalid authorization header format"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty bearer", "Bearer ", "invalid authorization header format"},
		{"bearer lowercase", "bearer valid-token", "invalid authorization header format"},
		{"wrong token", "Bearer wrong-token", "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/vertices/v1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp["error"])
		})
	}
}

type forbiddenValidator struct{}

func (forbiddenValidator) ValidateToken(context.Context, string) (*server.AuthenticatedUser, error) {
	return nil, sgerr.New(sgerr.CodeServerAuthForbidden, "token revoked")
}

func TestAuthMiddleware_ForbiddenToken_Returns403(t *testing.T) {
	srv, err := server.New(server.Config{
		ListenAddr:     "127.0.0.1:0",
		TokenValidator: forbiddenValidator{},
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vertices/v1", nil)
	req.Header.Set("Authorization", "Bearer revoked")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "forbidden")
}

func TestAuthMiddleware_UserInContext(t *testing.T) {
	validator := server.NewStaticTokenValidator([]server.StaticToken{
		{Token: "sk-alice", Principal: "alice", Authorizations: []string{"a", "b"}},
		{Token: "sk-bob", Principal: "bob", Authorizations: []string{"b"}},
	})

	var captured *server.AuthenticatedUser
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = server.UserFromContext(r.Context())
	})
	wrapped := server.NewAuthMiddleware(validator, nil, false, nil)(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/anything", nil)
	req.Header.Set("Authorization", "Bearer sk-bob")
	wrapped.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, captured)
	assert.Equal(t, "bob", captured.Name)
	assert.False(t, captured.Anonymous)
	assert.True(t, captured.Authorizations.Equals(visibility.NewAuthorizations("b")))
}

func TestAuthMiddleware_Anonymous(t *testing.T) {
	validator := server.NewStaticTokenValidator([]server.StaticToken{{Token: "sk", Principal: "alice"}})
	anon := server.AnonymousUser(visibility.NewAuthorizations("public"))

	var captured *server.AuthenticatedUser
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = server.UserFromContext(r.Context())
	})

	t.Run("disabled", func(t *testing.T) {
		captured = nil
		wrapped := server.NewAuthMiddleware(nil, anon, false, nil)(handler)
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/x", nil))
		require.NotNil(t, captured)
		assert.True(t, captured.Anonymous)
		assert.True(t, captured.Authorizations.Contains("public"))
	})

	t.Run("allowed without header", func(t *testing.T) {
		captured = nil
		wrapped := server.NewAuthMiddleware(validator, anon, true, nil)(handler)
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/x", nil))
		require.NotNil(t, captured)
		assert.Equal(t, "anonymous", captured.Name)
	})

	t.Run("bad token still rejected", func(t *testing.T) {
		captured = nil
		wrapped := server.NewAuthMiddleware(validator, anon, true, nil)(handler)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Nil(t, captured)
	})
}

func TestUserFromContext_NilWhenNoUser(t *testing.T) {
	assert.Nil(t, server.UserFromContext(context.Background()))
}
