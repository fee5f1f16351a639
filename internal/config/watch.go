package config

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/automaker/engine/internal/events"
)

// debounceDelay coalesces bursts of filesystem events (editors write a
// file as several discrete syscalls) into one published event.
const debounceDelay = 300 * time.Millisecond

// Watcher reacts to externally-made changes under a project's
// .automaker/features directory — an edited file in a feature's own
// context directory (.automaker/features/<id>/context/) or a feature
// directory removed out from under the running process (by a concurrent
// CLI invocation or the user) — without polling. Only directories that
// exist when NewWatcher is called are watched; directories created later
// are not, and nothing outside .automaker/features (such as
// .automaker/context/) is watched.
//
// Grounded on strawgate-gh-aw's pkg/cli/compile_watch.go: an
// fsnotify.Watcher plus a debounce timer coalescing rapid-fire events
// before acting, adapted from recompiling workflow files to publishing
// bus events.
type Watcher struct {
	projectPath string
	bus         *events.Bus
	watcher     *fsnotify.Watcher
}

// NewWatcher creates a Watcher rooted at projectPath/.automaker/features,
// watching that directory and every directory below it.
func NewWatcher(projectPath string, bus *events.Bus) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	featuresDir := filepath.Join(projectPath, ".automaker", "features")
	err = filepath.WalkDir(featuresDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{projectPath: projectPath, bus: bus, watcher: fw}, nil
}

// Run watches until ctx is cancelled. Intended to run in its own
// goroutine; Close (via ctx cancellation) stops it.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var mu sync.Mutex
	var timer *time.Timer
	pending := make(map[string]fsnotify.Op)

	flush := func() {
		mu.Lock()
		batch := pending
		pending = make(map[string]fsnotify.Op)
		mu.Unlock()
		for path, op := range batch {
			w.handle(path, op)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			mu.Lock()
			pending[ev.Name] |= ev.Op
			mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, flush)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handle(path string, op fsnotify.Op) {
	featureID := featureIDFromFeaturesPath(w.projectPath, path)
	if featureID == "" {
		return
	}
	if op&(fsnotify.Remove|fsnotify.Rename) != 0 && strings.Count(strings.TrimPrefix(path, w.projectPath), string(filepath.Separator)) <= 3 {
		w.bus.Publish(events.Event{Kind: events.KindFeatureDirRemoved, FeatureID: featureID})
		return
	}
	if filepath.Base(filepath.Dir(path)) == "context" {
		w.bus.Publish(events.Event{Kind: events.KindContextFileChanged, FeatureID: featureID, Payload: path})
	}
}

// featureIDFromFeaturesPath extracts the feature id from a path under
// .automaker/features/<id>/... or returns "" if path isn't under there.
func featureIDFromFeaturesPath(projectPath, path string) string {
	featuresDir := filepath.Join(projectPath, ".automaker", "features")
	rel, err := filepath.Rel(featuresDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) == 0 || parts[0] == "." || parts[0] == "" {
		return ""
	}
	return parts[0]
}

// Close stops the underlying fsnotify watcher directly, for callers not
// using Run's context-driven lifecycle.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
