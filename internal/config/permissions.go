// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

const (
	groupRead fs.FileMode = 0o040
	otherRead fs.FileMode = 0o004
)

// WarnInsecurePermissions logs a warning when the config file at path can
// be read by the group or by other users. The file holds bearer tokens.
// It never fails startup.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", slog.String("path", path), slog.Any("error", err))
		return
	}

	if perm := info.Mode().Perm(); perm&(groupRead|otherRead) != 0 {
		slog.Warn("config file is readable by other users; bearer tokens may be exposed",
			slog.String("path", path),
			slog.String("mode", perm.String()),
			slog.String("recommended", "0600"),
		)
	}
}
