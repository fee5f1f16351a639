package feature

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFSStore(nil), dir
}

func TestCreateAndGet(t *testing.T) {
	store, project := newTestStore(t)

	f, err := store.Create(project, Draft{Description: "add dark mode"})
	require.NoError(t, err)
	assert.Equal(t, StatusBacklog, f.Status)
	assert.NotEmpty(t, f.ID)

	got, err := store.Get(project, f.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "add dark mode", got.Description)
}

func TestGetMissingReturnsNilNil(t *testing.T) {
	store, project := newTestStore(t)
	got, err := store.Get(project, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListSortsByCreatedAtAndSkipsMalformed(t *testing.T) {
	store, project := newTestStore(t)

	f1, err := store.Create(project, Draft{Description: "first"})
	require.NoError(t, err)
	f2, err := store.Create(project, Draft{Description: "second"})
	require.NoError(t, err)

	// Inject a malformed record alongside the valid ones.
	badDir := filepath.Join(project, ".automaker", "features", "bad")
	require.NoError(t, os.MkdirAll(badDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "feature.json"), []byte("{not json"), 0644))

	list, err := store.List(project)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, f1.ID, list[0].ID)
	assert.Equal(t, f2.ID, list[1].ID)
}

func TestSetStatusClearsErrorWhenOmitted(t *testing.T) {
	store, project := newTestStore(t)
	f, err := store.Create(project, Draft{Description: "x"})
	require.NoError(t, err)

	errMsg := "boom"
	_, err = store.SetStatus(project, f.ID, StatusInProgress, nil, &errMsg)
	require.NoError(t, err)

	updated, err := store.SetStatus(project, f.ID, StatusVerified, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, updated.Error)
}

func TestSkipTestsPolicyIsAStoreLevelNoOp(t *testing.T) {
	// The skipTests -> waiting_approval coercion is the bridge's policy
	// (spec.md §4.4), not the store's; the store persists whatever status
	// it is given verbatim.
	store, project := newTestStore(t)
	f, err := store.Create(project, Draft{Description: "x", SkipTests: true})
	require.NoError(t, err)

	updated, err := store.SetStatus(project, f.ID, StatusVerified, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, updated.Status)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, project := newTestStore(t)
	f, err := store.Create(project, Draft{Description: "x"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(project, f.ID))
	require.NoError(t, store.Delete(project, f.ID))

	got, err := store.Get(project, f.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestImageRelocation(t *testing.T) {
	store, project := newTestStore(t)

	imgPath := filepath.Join(project, "screenshot.png")
	require.NoError(t, os.WriteFile(imgPath, []byte("fake-png"), 0644))

	f, err := store.Create(project, Draft{
		Description: "x",
		ImagePaths:  []ImageRef{{Path: imgPath}},
	})
	require.NoError(t, err)
	require.Len(t, f.ImagePaths, 1)

	dir := imagesDir(project, f.ID)
	assert.Contains(t, f.ImagePaths[0].Path, dir)
	_, err = os.Stat(f.ImagePaths[0].Path)
	assert.NoError(t, err)
}

func TestConcurrentUpdatesSerializePerFeature(t *testing.T) {
	store, project := newTestStore(t)
	f, err := store.Create(project, Draft{Description: "x"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cat := "cat"
			_, _ = store.Update(project, f.ID, Partial{Category: &cat})
		}(i)
	}
	wg.Wait()

	got, err := store.Get(project, f.ID)
	require.NoError(t, err)
	// No interleaved partial write should ever produce an unparsable
	// record or panic; the final value must be a value one of the writes
	// actually set.
	assert.Equal(t, "cat", got.Category)
}

func TestDependenciesSatisfied(t *testing.T) {
	f := &Feature{Dependencies: []string{"a", "b"}}
	assert.False(t, f.DependenciesSatisfied(map[string]Status{"a": StatusVerified}))
	assert.True(t, f.DependenciesSatisfied(map[string]Status{
		"a": StatusVerified, "b": StatusArchived,
	}))
	assert.False(t, f.DependenciesSatisfied(map[string]Status{
		"a": StatusVerified, "b": StatusBacklog,
	}))
}
