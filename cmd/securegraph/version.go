// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/securegraph/internal/kv"
)

// Stamped at release time:
//
//	-ldflags "-X main.buildVersion=v0.3.0 -X main.buildRevision=$(git rev-parse HEAD) -X main.buildTime=..."
var (
	buildVersion  = ""
	buildRevision = ""
	buildTime     = ""
)

type buildInfo struct {
	Version   string
	Revision  string
	Time      string
	GoVersion string
	Modified  bool
}

// currentBuild prefers the stamped values and falls back to what the Go
// toolchain recorded in the binary.
func currentBuild() buildInfo {
	info := buildInfo{
		Version:   buildVersion,
		Revision:  buildRevision,
		Time:      buildTime,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Revision == "" {
					info.Revision = s.Value
				}
			case "vcs.time":
				if info.Time == "" {
					info.Time = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

func (b buildInfo) String() string {
	rev := b.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev == "" {
		rev = "unknown"
	} else if b.Modified {
		rev += "-dirty"
	}
	built := b.Time
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf("securegraph %s (revision %s, built %s, %s)", b.Version, rev, built, b.GoVersion)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the securegraph build and its storage backends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, currentBuild()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(out, "kv backends: %s\n", strings.Join(kv.Backends(), ", "))
			return err
		},
	}
}
