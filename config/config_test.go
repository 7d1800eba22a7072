package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 70, cfg.LowBound)
	assert.Equal(t, 90, cfg.HiBound)
	assert.Equal(t, 4, cfg.TabSize)
	assert.Equal(t, 3, cfg.MinFoldSize)
	assert.Equal(t, 1, cfg.FoldContext)
	assert.False(t, cfg.DiffShowLineNo)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "does-not-exist.ini"))
	assert.Equal(t, Default(), cfg)
}

func TestLoadClampsAndSwapsInvertedBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uncov.ini")
	content := "low-bound = 95\nhi-bound = 10\ntab-size = 200\nmin-fold-size = 0\nfold-context = -5\ndiff-show-lineno = true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := Load(path)
	assert.Equal(t, 10, cfg.LowBound)
	assert.Equal(t, 95, cfg.HiBound)
	assert.Equal(t, 25, cfg.TabSize)
	assert.Equal(t, 1, cfg.MinFoldSize)
	assert.Equal(t, 0, cfg.FoldContext)
	assert.True(t, cfg.DiffShowLineNo)
}

func TestLoadInvalidFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uncov.ini")
	require.NoError(t, os.WriteFile(path, []byte("\x00not an ini file"), 0o644))

	cfg := Load(path)
	assert.Equal(t, Default(), cfg)
}
