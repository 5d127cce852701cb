// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package xdg_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/xdg"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

func envOf(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantConfig string
		wantData   string
	}{
		{
			name:       "xdg variables",
			env:        map[string]string{"XDG_CONFIG_HOME": "/cfg", "XDG_DATA_HOME": "/data", "HOME": "/home/u"},
			wantConfig: "/cfg/gatekeeper",
			wantData:   "/data/gatekeeper",
		},
		{
			name:       "home fallback",
			env:        map[string]string{"HOME": "/home/u"},
			wantConfig: "/home/u/.config/gatekeeper",
			wantData:   "/home/u/.local/share/gatekeeper",
		},
		{
			name:       "mixed",
			env:        map[string]string{"XDG_DATA_HOME": "/srv", "HOME": "/home/u"},
			wantConfig: "/home/u/.config/gatekeeper",
			wantData:   "/srv/gatekeeper",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dirs := xdg.Resolve(envOf(tt.env))
			assert.Equal(t, tt.wantConfig, dirs.Config)
			assert.Equal(t, tt.wantData, dirs.Data)
			assert.Equal(t, filepath.Join(tt.wantConfig, "config.yaml"), dirs.ConfigFile())
			assert.Equal(t, filepath.Join(tt.wantData, "gatekeeper.db"), dirs.DatabaseFile())
		})
	}
}

func TestResolve_NilReadsProcessEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/from/process")
	assert.Equal(t, "/from/process/gatekeeper", xdg.Resolve(nil).Config)
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir")

	require.NoError(t, xdg.EnsureDir(path))
	require.NoError(t, xdg.EnsureDir(path), "existing directory is fine")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestEnsureDir_UnderFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	err := xdg.EnsureDir(filepath.Join(file, "child"))
	errutil.AssertErrorCode(t, err, "XDG_MKDIR_FAILED")
}
