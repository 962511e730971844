package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))
}

func TestOverrideStore_MissingFileStartsEmpty(t *testing.T) {
	s, err := NewOverrideStore(t.TempDir())
	require.NoError(t, err)

	_, ok := s.Get("convert.renderer_url")
	assert.False(t, ok)
	assert.Empty(t, s.All())
}

func TestOverrideStore_FlattensNestedTables(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[convert]
renderer_url = "http://render.internal:3000"
renderer_timeout = "45s"

[queue]
workers = 8
`)

	s, err := NewOverrideStore(dir)
	require.NoError(t, err)

	url, ok := s.Get("convert.renderer_url")
	require.True(t, ok)
	assert.Equal(t, "http://render.internal:3000", url)

	timeout, ok := s.Get("convert.renderer_timeout")
	require.True(t, ok)
	assert.Equal(t, "45s", timeout)

	workers, ok := s.Get("queue.workers")
	require.True(t, ok)
	assert.Equal(t, "8", workers)
}

func TestOverrideStore_StringifiesScalars(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[ingest]
max_size = 1048576

[core]
data_dir = "/var/lib/docrelay"
`)

	s, err := NewOverrideStore(dir)
	require.NoError(t, err)

	size, ok := s.Get("ingest.max_size")
	require.True(t, ok)
	assert.Equal(t, "1048576", size)

	all := s.All()
	assert.Equal(t, "/var/lib/docrelay", all["core.data_dir"])
}

func TestOverrideStore_InvalidTOMLFails(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "not [valid toml")

	_, err := NewOverrideStore(dir)
	assert.Error(t, err)
}
