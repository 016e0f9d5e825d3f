// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	tempDir := t.TempDir()
	cfg, err := Load(filepath.Join(tempDir, "nonexistent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MalformedFileReturnsError(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o640))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "nested", "config.yaml")

	cfg := Config{ListenPort: 9090, TargetURL: "http://localhost:4000", LogJSON: true, MetricsAddr: ":9100"}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyFlags_OnlyOverridesSetFields(t *testing.T) {
	base := Config{ListenPort: 8080, TargetURL: "http://original", LogJSON: false, MetricsAddr: ""}

	got := ApplyFlags(base, 0, "", false, "")
	assert.Equal(t, base, got, "zero-value flags must not clobber the base config")

	got = ApplyFlags(base, 9000, "http://new", true, ":9100")
	assert.Equal(t, 9000, got.ListenPort)
	assert.Equal(t, "http://new", got.TargetURL)
	assert.True(t, got.LogJSON)
	assert.Equal(t, ":9100", got.MetricsAddr)
}
