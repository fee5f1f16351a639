package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/automaker/engine/internal/events"
)

func TestWatcher_PublishesContextFileChanged(t *testing.T) {
	dir := t.TempDir()
	featureDir := filepath.Join(dir, ".automaker", "features", "f1", "context")
	require.NoError(t, os.MkdirAll(featureDir, 0755))

	bus := events.NewBus()
	sub := bus.Subscribe()
	defer sub.Close()

	w, err := NewWatcher(dir, bus)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(featureDir, "notes.md"), []byte("hello"), 0644))

	select {
	case ev := <-sub.C:
		require.Equal(t, events.KindContextFileChanged, ev.Kind)
		require.Equal(t, "f1", ev.FeatureID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected context_file_changed event")
	}
}

func TestWatcher_PublishesFeatureDirRemoved(t *testing.T) {
	dir := t.TempDir()
	featureDir := filepath.Join(dir, ".automaker", "features", "f2")
	require.NoError(t, os.MkdirAll(featureDir, 0755))

	bus := events.NewBus()
	sub := bus.Subscribe()
	defer sub.Close()

	w, err := NewWatcher(dir, bus)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.RemoveAll(featureDir))

	select {
	case ev := <-sub.C:
		require.Equal(t, events.KindFeatureDirRemoved, ev.Kind)
		require.Equal(t, "f2", ev.FeatureID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected feature_dir_removed event")
	}
}

func TestFeatureIDFromFeaturesPath(t *testing.T) {
	dir := "/proj"
	require.Equal(t, "f1", featureIDFromFeaturesPath(dir, filepath.Join(dir, ".automaker", "features", "f1", "context", "a.md")))
	require.Equal(t, "", featureIDFromFeaturesPath(dir, filepath.Join(dir, ".automaker", "app_spec.txt")))
}
