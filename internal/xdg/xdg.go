// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg resolves Gatekeeper's XDG Base Directory locations.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "gatekeeper"

// Dirs holds the per-application config and data directories.
type Dirs struct {
	Config string
	Data   string
}

// Resolve computes Dirs from XDG_CONFIG_HOME and XDG_DATA_HOME, falling
// back to ~/.config and ~/.local/share. A nil getenv reads the process
// environment.
func Resolve(getenv func(string) string) Dirs {
	if getenv == nil {
		getenv = os.Getenv
	}
	home := getenv("HOME")
	base := func(key string, fallback ...string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return filepath.Join(append([]string{home}, fallback...)...)
	}
	return Dirs{
		Config: filepath.Join(base("XDG_CONFIG_HOME", ".config"), appName),
		Data:   filepath.Join(base("XDG_DATA_HOME", ".local", "share"), appName),
	}
}

// ConfigFile is the config file read when --config is not given.
func (d Dirs) ConfigFile() string {
	return filepath.Join(d.Config, "config.yaml")
}

// DatabaseFile is the SQLite database used when no URL is configured.
func (d Dirs) DatabaseFile() string {
	return filepath.Join(d.Data, appName+".db")
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
