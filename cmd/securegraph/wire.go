// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sigil-dev/securegraph/internal/blob"
	"github.com/sigil-dev/securegraph/internal/config"
	"github.com/sigil-dev/securegraph/internal/graph"
	"github.com/sigil-dev/securegraph/internal/kv"
	_ "github.com/sigil-dev/securegraph/internal/kv/badger" // register badger backend
	_ "github.com/sigil-dev/securegraph/internal/kv/memory" // register memory backend
	_ "github.com/sigil-dev/securegraph/internal/kv/sqlite" // register sqlite backend
	searchsqlite "github.com/sigil-dev/securegraph/internal/search/sqlite"
	"github.com/sigil-dev/securegraph/internal/serializer"
	"github.com/sigil-dev/securegraph/internal/server"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// App holds the wired storage stack. Server is nil unless WireServer ran.
type App struct {
	Client *kv.Client
	Graph  *graph.Graph
	Blobs  *blob.Store
	Server *server.Server

	logger *slog.Logger
}

// WireGraph opens the kv backend, the search index and the blob store named
// by cfg and opens the graph over them. Relative defaults resolve against
// dataDir.
func WireGraph(ctx context.Context, cfg *config.Config, dataDir string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	storagePath := storagePath(cfg, dataDir)
	searchPath := searchPath(cfg, dataDir)
	for _, p := range []string{storagePath, searchPath} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return nil, sgerr.Errorf(sgerr.CodeCLISetupFailure, "creating data directory: %w", err)
		}
	}

	client, err := kv.Open(cfg.Storage.Backend, kv.BackendConfig{
		Path:           storagePath,
		SyncWrites:     cfg.Storage.Badger.SyncWrites,
		GCInterval:     cfg.Storage.Badger.GCInterval,
		GCDiscardRatio: cfg.Storage.Badger.GCDiscardRatio,
		Logger:         logger,
	})
	if err != nil {
		return nil, sgerr.Wrap(err, sgerr.CodeCLISetupFailure, "opening kv store")
	}

	var index graph.SearchIndex
	if cfg.Search.Backend == "sqlite" {
		ix, err := searchsqlite.Open(searchPath)
		if err != nil {
			_ = client.Close()
			return nil, sgerr.Wrap(err, sgerr.CodeCLISetupFailure, "opening search index")
		}
		index = ix
	}

	blobs := blob.NewMemory()
	if cfg.Blob.Dir != "" {
		blobs = blob.NewOS(cfg.Blob.Dir)
	}

	var ids graph.IDGenerator
	switch cfg.Graph.IDGenerator {
	case "", "uuid":
		ids = graph.UUIDGenerator{}
	default:
		_ = client.Close()
		return nil, sgerr.Errorf(sgerr.CodeCLISetupFailure, "unknown id generator %q", cfg.Graph.IDGenerator)
	}

	g, err := graph.Open(ctx, client, graph.Options{
		TablePrefix:               cfg.Storage.TablePrefix,
		AutoFlush:                 cfg.Graph.AutoFlush,
		UseServerSideRowFilter:    cfg.Graph.ServerSideRowFilter,
		MaxStreamingTableDataSize: cfg.Graph.MaxStreamingTableDataSize,
		MaxPendingWrites:          cfg.Graph.MaxPendingWrites,
		Serializer:                serializer.New(),
		Blobs:                     blobs,
		SearchIndex:               index,
		IDGenerator:               ids,
		Logger:                    logger,
	})
	if err != nil {
		if index != nil {
			_ = index.Close()
		}
		_ = client.Close()
		return nil, err
	}

	logger.Info("graph opened",
		slog.String("backend", cfg.Storage.Backend),
		slog.String("path", storagePath),
		slog.String("search", cfg.Search.Backend))

	return &App{Client: client, Graph: g, Blobs: blobs, logger: logger}, nil
}

// WireServer builds the API server for the graph held by a.
func (a *App) WireServer(cfg *config.Config) error {
	var validator server.TokenValidator
	if len(cfg.Auth.Tokens) > 0 {
		raw := make([]string, len(cfg.Auth.Tokens))
		for i, t := range cfg.Auth.Tokens {
			raw[i] = t.Token
		}
		resolved, err := resolveTokens(secretStoreFactory(), raw)
		if err != nil {
			return sgerr.Wrap(err, sgerr.CodeCLISetupFailure, "resolving auth tokens")
		}
		tokens := make([]server.StaticToken, 0, len(cfg.Auth.Tokens))
		for i, t := range cfg.Auth.Tokens {
			tokens = append(tokens, server.StaticToken{
				Token:          resolved[i],
				Principal:      t.Principal,
				Authorizations: t.Authorizations,
			})
		}
		validator = server.NewStaticTokenValidator(tokens)
	} else {
		a.logger.Warn("authentication disabled: no API tokens configured, every request runs as anonymous")
	}

	srv, err := server.New(server.Config{
		ListenAddr:              cfg.Networking.Listen,
		CORSOrigins:             cfg.Networking.CORSOrigins,
		TokenValidator:          validator,
		AnonymousAuthorizations: cfg.Auth.Anonymous(),
		AllowAnonymous:          true,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Networking.RateLimit.RequestsPerSecond,
			Burst:             cfg.Networking.RateLimit.Burst,
		},
		Logger: a.logger,
	})
	if err != nil {
		return sgerr.Wrap(err, sgerr.CodeCLISetupFailure, "creating server")
	}
	srv.RegisterGraph(a.Graph)
	a.Server = srv
	return nil
}

// Start runs the API server until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if a.Server == nil {
		return sgerr.New(sgerr.CodeCLISetupFailure, "server not wired")
	}
	return a.Server.Start(ctx)
}

// Close shuts everything down in reverse order and reports every failure.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Server != nil {
		a.Server.Close()
	}
	if a.Graph != nil {
		if err := a.Graph.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Client != nil {
		if err := a.Client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return sgerr.Join(errs...)
	}
	return nil
}

func storagePath(cfg *config.Config, dataDir string) string {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	switch cfg.Storage.Backend {
	case "badger":
		return filepath.Join(dataDir, "badger", "securegraph")
	case "sqlite":
		return filepath.Join(dataDir, "securegraph.db")
	default:
		return ""
	}
}

// searchPath keeps the index in memory when the graph itself is.
func searchPath(cfg *config.Config, dataDir string) string {
	if cfg.Search.Backend != "sqlite" {
		return ""
	}
	if cfg.Search.Path != "" {
		return cfg.Search.Path
	}
	if cfg.Storage.Backend == "" || cfg.Storage.Backend == "memory" {
		return ""
	}
	return filepath.Join(dataDir, "search.db")
}

// defaultDataDir returns ~/.local/share/securegraph, or ./data when the
// home directory cannot be resolved.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "securegraph")
}
