package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewManagerMissingDir(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrConfigDirNotFound)
}

func TestManagerSkipsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", "a: 1\n")
	writeFile(t, dir, "bad.yaml", "a: [unclosed\n")

	m, err := NewManager(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, m.Names())
}

func TestManagerGetNested(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "training_config.yaml", "training:\n  batch_size: 4\npaths:\n  output_dir: out\n")

	m, err := NewManager(dir)
	require.NoError(t, err)

	v, err := m.GetNested("training_config", "training", "batch_size")
	require.NoError(t, err)
	assert.Equal(t, 4, v)

	_, err = m.GetNested("training_config", "training", "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = m.GetNested("training_config", "paths", "output_dir", "deeper")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = m.GetNested("nope", "x")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestManagerUpdateSaveMerge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "x: 1\ny: 1\n")
	writeFile(t, dir, "b.yaml", "y: 2\n")

	m, err := NewManager(dir)
	require.NoError(t, err)

	merged, err := m.Merge("a", "b")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, merged)

	_, err = m.Merge("a", "c")
	assert.ErrorIs(t, err, ErrConfigNotFound)

	m.Update("c", "z", "new")
	require.NoError(t, m.Save("c", false))
	assert.ErrorIs(t, m.Save("c", false), ErrConfigExists)

	m.Update("c", "z", "newer")
	require.NoError(t, m.Save("c", true))

	data, err := os.ReadFile(filepath.Join(dir, "c.yaml"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "newer", doc["z"])
}
