package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/goalnet/internal/collector"
	"github.com/talgya/goalnet/internal/config"
	"github.com/talgya/goalnet/internal/engine"
)

func TestExportCreatesDirectory(t *testing.T) {
	cfg := config.Default().WithSeed(4)
	cfg.AgentCount = 5
	cfg.MaxClock = 3
	col := collector.New()
	w, err := engine.NewWorld(cfg, col)
	require.NoError(t, err)
	require.NoError(t, w.Run())

	out := filepath.Join(t.TempDir(), "nested", "runs", "run.json.zst")
	require.NoError(t, export(w, col, nil, out))
	snaps, err := collector.ReadJSONFile(out)
	require.NoError(t, err)
	assert.Len(t, snaps, 3)
}

func TestExportReportsDirectoryError(t *testing.T) {
	cfg := config.Default().WithSeed(4)
	cfg.AgentCount = 3
	col := collector.New()
	w, err := engine.NewWorld(cfg, col)
	require.NoError(t, err)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err = export(w, col, nil, filepath.Join(blocker, "run.json"))
	assert.ErrorContains(t, err, "create export directory")
}
