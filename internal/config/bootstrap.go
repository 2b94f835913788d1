// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

//go:embed securegraph.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/securegraph/securegraph.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", sgerr.Errorf(sgerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "securegraph", "securegraph.yaml"), nil
}

// BootstrapConfig writes the default commented config to the default path
// unless a file is already there. It returns the path written, or "" when
// nothing was written. Failures are logged at debug level and skipped.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", slog.Any("error", err))
		return ""
	}
	return bootstrapAt(cfgPath)
}

func bootstrapAt(cfgPath string) string {
	if _, err := os.Stat(cfgPath); err == nil {
		return ""
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", slog.String("path", dir), slog.Any("error", err))
		return ""
	}
	if err := os.WriteFile(cfgPath, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", slog.String("path", cfgPath), slog.Any("error", err))
		return ""
	}

	slog.Info("created default config", slog.String("path", cfgPath))
	return cfgPath
}
