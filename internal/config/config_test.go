package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".automaker"), 0755))
	require.NoError(t, os.WriteFile(Path(dir), []byte(body), 0644))
}

func TestLoad_MissingFileReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, &ProjectConfig{}, cfg)
}

func TestLoad_ParsesFields(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "provider: claude-code\nmax-concurrency: 3\nmodel: opus\nthinking-level: high\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "claude-code", cfg.Provider)
	require.Equal(t, 3, cfg.MaxConcurrency)
	require.Equal(t, "opus", cfg.Model)
	require.Equal(t, "high", cfg.ThinkingLevel)
}

func TestLoad_RejectsNegativeConcurrency(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "max-concurrency: -1\n")

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoad_RejectsUnknownThinkingLevel(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "thinking-level: extreme\n")

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoad_RejectsUnknownReasoningEffort(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "reasoning-effort: maximal\n")

	_, err := Load(dir)
	require.Error(t, err)
}

func TestCategories_MissingReturnsNil(t *testing.T) {
	dir := t.TempDir()

	cats, err := Categories(dir)
	require.NoError(t, err)
	require.Nil(t, cats)
}

func TestCategories_ParsesList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".automaker"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".automaker", "categories.json"), []byte(`["bug","feature"]`), 0644))

	cats, err := Categories(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"bug", "feature"}, cats)
}
