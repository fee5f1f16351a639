package worktree

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner is a scripted CommandRunner: it tracks invocations and
// returns canned output, avoiding the need to invoke real git in tests.
type fakeRunner struct {
	calls    [][]string
	worktrees string // body of `git worktree list --porcelain`
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args []string) (string, string, int, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if len(args) >= 2 && args[0] == "worktree" && args[1] == "list" {
		return f.worktrees, "", 0, nil
	}
	if len(args) >= 1 && args[0] == "rev-parse" {
		return "main", "", 0, nil
	}
	return "", "", 0, nil
}

func TestSlugAndBranchName(t *testing.T) {
	assert.Equal(t, "add-dark-mode", Slug("Add Dark Mode!"))
	assert.Equal(t, "feature/abcdefabcdef-add-dark-mode", BranchName("abcdefabcdefghij", "Add Dark Mode!"))
}

func TestCreateIsIdempotent(t *testing.T) {
	fr := &fakeRunner{}
	m := NewManager(fr)

	f := FeatureDescribable{ID: "abcdefabcdefghij", Description: "Add Dark Mode"}

	r1, err := m.Create(context.Background(), t.TempDir(), f)
	require.NoError(t, err)
	assert.False(t, r1.Preexisting)

	// Simulate the VCS now reporting the worktree exists.
	fr.worktrees = "worktree " + r1.WorktreePath + "\nbranch refs/heads/" + r1.BranchName + "\n\n"
	// A fresh manager starts with an empty cache; Create finds the
	// existing worktree by scanning the VCS worktree list.
	m2 := NewManager(fr)
	r2, err := m2.Create(context.Background(), t.TempDir(), f)
	require.NoError(t, err)
	assert.True(t, r2.Preexisting)
	assert.Equal(t, r1.WorktreePath, r2.WorktreePath)
}

func TestFileDiffFallsBackToSyntheticNewFileDiff(t *testing.T) {
	fr := &fakeRunner{}
	m := NewManager(fr)
	dir := t.TempDir()
	path := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\nworld"), 0644))

	diff, err := m.FileDiffContent(context.Background(), dir, "new.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(diff, "+hello"))
}
