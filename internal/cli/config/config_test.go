package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ev "github.com/faceless2/evcodec"
)

func TestDefaultConfigToOptions(t *testing.T) {
	cfg := DefaultConfig()
	ropts := cfg.Reader.ToReaderOptions()
	assert.Equal(t, 1000, ropts.MaxDepth)

	wopts := cfg.Writer.ToWriterOptions()
	assert.False(t, wopts.Sorted)
}

func TestLoaderReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evcodec.yaml")
	contents := "reader:\n  max_depth: 42\n  strict_tags: true\nwriter:\n  sorted: true\n  indent: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	l := NewLoader()
	cfg, err := l.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Reader.MaxDepth)
	assert.True(t, cfg.Reader.StrictTags)
	assert.True(t, cfg.Writer.Sorted)
	assert.Equal(t, uint32(2), cfg.Writer.Indent)
	assert.Equal(t, path, l.ConfigFileUsed())

	ropts := cfg.Reader.ToReaderOptions()
	assert.Equal(t, 42, ropts.MaxDepth)
	assert.True(t, ropts.StrictTags)
}

func TestLoaderMissingFileFallsBackToDefaults(t *testing.T) {
	l := NewLoader()
	cfg, err := l.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Reader.MaxDepth)
}

func TestReaderConfigToReaderOptionsPreservesDefaultMaxDepth(t *testing.T) {
	var rc ReaderConfig
	opts := rc.ToReaderOptions()
	assert.Equal(t, ev.DefaultReaderOptions().MaxDepth, opts.MaxDepth)
}
