// Package worktree implements the Worktree Manager: isolated git
// workspaces per feature, diffing, merging, and cleanup (spec.md §4.2).
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/automaker/engine/internal/apperr"
	"github.com/automaker/engine/internal/fsutil"
)

// CommandRunner abstracts process execution so tests can substitute a fake
// without invoking real git. Grounded on the agency example's
// exec.CommandRunner shape.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args []string) (stdout, stderr string, exitCode int, err error)
}

// ExecRunner is the real CommandRunner, shelling out via argument arrays
// only (never through a shell), per spec.md §4.2.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args []string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
		err = nil
	}
	return stdout.String(), stderr.String(), code, err
}

// Record describes one feature's worktree.
type Record struct {
	FeatureID    string
	WorktreePath string
	Branch       string
	BaseBranch   string
	CreatedAt    string
}

// CreateResult is the outcome of Create.
type CreateResult struct {
	WorktreePath string
	BranchName   string
	BaseBranch   string
	Preexisting  bool
}

// StatusInfo summarizes a worktree's working-tree state.
type StatusInfo struct {
	ModifiedCount int
	Files         []string
	DiffStat      string
	RecentCommits []string
}

// FileDiff is a single changed file in allFileDiffs.
type FileDiff struct {
	Path       string
	Status     string
	StatusText string
}

// AllDiffsResult is the outcome of AllFileDiffs.
type AllDiffsResult struct {
	Diff       string
	Files      []FileDiff
	HasChanges bool
}

// MergeOptions configures Merge.
type MergeOptions struct {
	Squash        bool
	SquashMessage string
	CommitMessage string
	Cleanup       bool
}

const maxDiffBytes = 10 * 1024 * 1024 // 10 MiB cap per spec.md §4.2

var statusTextByCode = map[byte]string{
	'M': "Modified",
	'A': "Added",
	'D': "Deleted",
	'R': "Renamed",
	'C': "Copied",
	'U': "Unmerged",
	'?': "Untracked",
	'!': "Ignored",
}

// Manager owns worktree directories and VCS invocations for one project
// tree. The cache accelerates lookups; the VCS worktree list remains the
// canonical source of truth.
type Manager struct {
	runner CommandRunner

	mu    sync.Mutex
	cache map[string]Record // projectPath|featureID -> Record
}

// NewManager constructs a Manager. Pass nil for runner to use ExecRunner.
func NewManager(runner CommandRunner) *Manager {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Manager{runner: runner, cache: make(map[string]Record)}
}

func cacheKey(projectPath, featureID string) string { return projectPath + "|" + featureID }

func worktreesRoot(projectPath string) string {
	return filepath.Join(projectPath, ".automaker", "worktrees")
}

// IsVcsRepo reports whether projectPath is inside a git work tree.
func (m *Manager) IsVcsRepo(ctx context.Context, projectPath string) bool {
	_, _, code, err := m.runner.Run(ctx, projectPath, "git", []string{"rev-parse", "--is-inside-work-tree"})
	return err == nil && code == 0
}

// FeatureDescribable is the minimal feature shape Create needs, kept
// narrow so callers don't have to import the feature package just to
// create a worktree.
type FeatureDescribable struct {
	ID          string
	Description string
}

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9\s-]`)
var slugWhitespace = regexp.MustCompile(`\s+`)

// Slug lowercases, strips non-alphanumerics except hyphens/spaces,
// collapses whitespace to hyphens, and truncates to 40 chars.
func Slug(description string) string {
	s := strings.ToLower(description)
	s = slugNonAlnum.ReplaceAllString(s, "")
	s = slugWhitespace.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

// BranchName derives "feature/<first-12-chars-of-id>-<slug>".
func BranchName(featureID, description string) string {
	short := featureID
	if len(short) > 12 {
		short = short[:12]
	}
	return "feature/" + short + "-" + Slug(description)
}

// Create provisions an isolated workspace for f, or returns the existing
// one if already present (idempotent per spec.md §8).
func (m *Manager) Create(ctx context.Context, projectPath string, f FeatureDescribable) (*CreateResult, error) {
	branch := BranchName(f.ID, f.Description)
	wtPath := filepath.Join(worktreesRoot(projectPath), strings.TrimPrefix(branch, "feature/"))

	if existing, err := m.findExisting(ctx, projectPath, f.ID, branch); err != nil {
		return nil, err
	} else if existing != nil {
		m.storeCache(projectPath, f.ID, *existing)
		return &CreateResult{
			WorktreePath: existing.WorktreePath,
			BranchName:   existing.Branch,
			BaseBranch:   existing.BaseBranch,
			Preexisting:  true,
		}, nil
	}

	baseBranch, err := m.currentBranch(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	branchExists := m.branchExists(ctx, projectPath, branch)
	var args []string
	if branchExists {
		args = []string{"worktree", "add", wtPath, branch}
	} else {
		args = []string{"worktree", "add", "-b", branch, wtPath, baseBranch}
	}
	if _, stderr, code, err := m.runner.Run(ctx, projectPath, "git", args); err != nil || code != 0 {
		return nil, apperr.Wrap(apperr.External, "git worktree add failed: "+strings.TrimSpace(stderr), err)
	}

	if err := copyProjectFiles(projectPath, wtPath); err != nil {
		return nil, err
	}

	rec := Record{FeatureID: f.ID, WorktreePath: wtPath, Branch: branch, BaseBranch: baseBranch}
	m.storeCache(projectPath, f.ID, rec)

	return &CreateResult{WorktreePath: wtPath, BranchName: branch, BaseBranch: baseBranch}, nil
}

// copyProjectFiles copies project-level files the agent should see into
// the new worktree's own .automaker/ directory (spec.md §4.2).
func copyProjectFiles(projectPath, worktreePath string) error {
	names := []string{"app_spec.txt", "categories.json"}
	for _, name := range names {
		src := filepath.Join(projectPath, ".automaker", name)
		data, err := os.ReadFile(src)
		if err != nil {
			continue // tolerated: not every project has these files
		}
		dest := filepath.Join(worktreePath, ".automaker", name)
		if err := fsutil.WriteFileAtomic(dest, data, 0644); err != nil {
			return apperr.Wrap(apperr.IO, "copying project file "+name, err)
		}
	}
	return nil
}

// Get returns the cached record, falling back to a scan of the worktree
// list by short-id, per spec.md §4.2.
func (m *Manager) Get(ctx context.Context, projectPath, featureID string) (*Record, error) {
	m.mu.Lock()
	if rec, ok := m.cache[cacheKey(projectPath, featureID)]; ok {
		m.mu.Unlock()
		return &rec, nil
	}
	m.mu.Unlock()

	all, err := m.listVcsWorktrees(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	short := featureID
	if len(short) > 12 {
		short = short[:12]
	}
	for _, rec := range all {
		if strings.Contains(rec.Branch, short) {
			m.storeCache(projectPath, featureID, rec)
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *Manager) findExisting(ctx context.Context, projectPath, featureID, branch string) (*Record, error) {
	all, err := m.listVcsWorktrees(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	for _, rec := range all {
		if rec.Branch == branch {
			return &rec, nil
		}
	}
	return nil, nil
}

// Remove force-removes the worktree and optionally deletes the branch.
// Invalidates the cache entry.
func (m *Manager) Remove(ctx context.Context, projectPath, featureID string, deleteBranch bool) (bool, error) {
	rec, err := m.Get(ctx, projectPath, featureID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	if _, stderr, code, err := m.runner.Run(ctx, projectPath, "git", []string{"worktree", "remove", "--force", rec.WorktreePath}); err != nil || code != 0 {
		return false, apperr.Wrap(apperr.External, "git worktree remove failed: "+strings.TrimSpace(stderr), err)
	}

	if deleteBranch {
		m.runner.Run(ctx, projectPath, "git", []string{"branch", "-D", rec.Branch})
	}

	m.mu.Lock()
	delete(m.cache, cacheKey(projectPath, featureID))
	m.mu.Unlock()

	return true, nil
}

// ListAllFeatureWorktrees lists every worktree managed under
// .automaker/worktrees/, regardless of cache state.
func (m *Manager) ListAllFeatureWorktrees(ctx context.Context, projectPath string) ([]Record, error) {
	all, err := m.listVcsWorktrees(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	root := worktreesRoot(projectPath)
	var out []Record
	for _, rec := range all {
		if strings.HasPrefix(rec.WorktreePath, root) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// CleanupOrphaned removes worktrees under the managed directory whose
// branch short-id matches no active feature.
func (m *Manager) CleanupOrphaned(ctx context.Context, projectPath string, activeIDs []string) error {
	managed, err := m.ListAllFeatureWorktrees(ctx, projectPath)
	if err != nil {
		return err
	}
	active := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		short := id
		if len(short) > 12 {
			short = short[:12]
		}
		active[short] = true
	}
	for _, rec := range managed {
		matched := false
		for short := range active {
			if strings.Contains(rec.Branch, short) {
				matched = true
				break
			}
		}
		if !matched {
			m.runner.Run(ctx, projectPath, "git", []string{"worktree", "remove", "--force", rec.WorktreePath})
		}
	}
	return nil
}

func (m *Manager) storeCache(projectPath, featureID string, rec Record) {
	m.mu.Lock()
	m.cache[cacheKey(projectPath, featureID)] = rec
	m.mu.Unlock()
}

func (m *Manager) currentBranch(ctx context.Context, projectPath string) (string, error) {
	out, stderr, code, err := m.runner.Run(ctx, projectPath, "git", []string{"rev-parse", "--abbrev-ref", "HEAD"})
	if err != nil || code != 0 {
		return "", apperr.Wrap(apperr.External, "git rev-parse HEAD failed: "+strings.TrimSpace(stderr), err)
	}
	return strings.TrimSpace(out), nil
}

func (m *Manager) branchExists(ctx context.Context, projectPath, branch string) bool {
	_, _, code, err := m.runner.Run(ctx, projectPath, "git", []string{"show-ref", "--verify", "--quiet", "refs/heads/" + branch})
	return err == nil && code == 0
}

// listVcsWorktrees parses `git worktree list --porcelain`.
func (m *Manager) listVcsWorktrees(ctx context.Context, projectPath string) ([]Record, error) {
	out, stderr, code, err := m.runner.Run(ctx, projectPath, "git", []string{"worktree", "list", "--porcelain"})
	if err != nil || code != 0 {
		return nil, apperr.Wrap(apperr.External, "git worktree list failed: "+strings.TrimSpace(stderr), err)
	}

	var recs []Record
	var cur Record
	flush := func() {
		if cur.WorktreePath != "" && cur.Branch != "" {
			recs = append(recs, cur)
		}
		cur = Record{}
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur.WorktreePath = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			cur.Branch = strings.TrimPrefix(ref, "refs/heads/")
		case line == "":
			flush()
		}
	}
	flush()
	return recs, nil
}

// Status returns a modified-files summary for the worktree at path.
func (m *Manager) Status(ctx context.Context, worktreePath string) (*StatusInfo, error) {
	out, _, _, err := m.runner.Run(ctx, worktreePath, "git", []string{"status", "--porcelain"})
	if err != nil {
		return nil, apperr.Wrap(apperr.External, "git status failed", err)
	}
	var files []string
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		files = append(files, strings.TrimSpace(line[3:]))
		if len(files) >= 20 {
			break
		}
	}

	diffStat, _, _, _ := m.runner.Run(ctx, worktreePath, "git", []string{"diff", "--stat"})

	logOut, _, _, _ := m.runner.Run(ctx, worktreePath, "git", []string{"log", "--oneline", "-5"})
	var commits []string
	for _, line := range strings.Split(strings.TrimRight(logOut, "\n"), "\n") {
		if line != "" {
			commits = append(commits, line)
		}
	}

	return &StatusInfo{
		ModifiedCount: len(files),
		Files:         files,
		DiffStat:      diffStat,
		RecentCommits: commits,
	}, nil
}

// AllFileDiffs concatenates staged and unstaged diffs, capped at
// maxDiffBytes, and maps porcelain status codes to human labels.
func (m *Manager) AllFileDiffs(ctx context.Context, worktreePath string) (*AllDiffsResult, error) {
	unstaged, _, _, err := m.runner.Run(ctx, worktreePath, "git", []string{"diff"})
	if err != nil {
		return nil, apperr.Wrap(apperr.External, "git diff failed", err)
	}
	staged, _, _, err := m.runner.Run(ctx, worktreePath, "git", []string{"diff", "--cached"})
	if err != nil {
		return nil, apperr.Wrap(apperr.External, "git diff --cached failed", err)
	}

	combined := unstaged + staged
	truncated := false
	if len(combined) > maxDiffBytes {
		combined = combined[:maxDiffBytes]
		truncated = true
	}
	if truncated {
		combined += "\n... (diff truncated)\n"
	}

	statusOut, _, _, err := m.runner.Run(ctx, worktreePath, "git", []string{"status", "--porcelain"})
	if err != nil {
		return nil, apperr.Wrap(apperr.External, "git status failed", err)
	}
	var files []FileDiff
	for _, line := range strings.Split(strings.TrimRight(statusOut, "\n"), "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[0]
		if code == ' ' {
			code = line[1]
		}
		text, ok := statusTextByCode[code]
		if !ok {
			text = "Unknown"
		}
		files = append(files, FileDiff{Path: strings.TrimSpace(line[3:]), Status: string(code), StatusText: text})
	}

	return &AllDiffsResult{Diff: combined, Files: files, HasChanges: len(files) > 0}, nil
}

// FileDiffContent returns the diff for a single file: unstaged first,
// falling back to staged, falling back to a synthetic "new file" diff
// built by prefixing every line with "+".
func (m *Manager) FileDiffContent(ctx context.Context, worktreePath, filePath string) (string, error) {
	out, _, _, err := m.runner.Run(ctx, worktreePath, "git", []string{"diff", "--", filePath})
	if err == nil && strings.TrimSpace(out) != "" {
		return out, nil
	}

	out, _, _, err = m.runner.Run(ctx, worktreePath, "git", []string{"diff", "--cached", "--", filePath})
	if err == nil && strings.TrimSpace(out) != "" {
		return out, nil
	}

	data, err := os.ReadFile(filepath.Join(worktreePath, filePath))
	if err != nil {
		return "", apperr.Wrap(apperr.NotFound, "no diff and no file content for "+filePath, err)
	}
	var b strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		b.WriteString("+")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Merge commits any uncommitted changes, then merges the feature branch
// into the project's current branch (squash or non-fast-forward).
// Optionally removes the worktree and branch after success.
func (m *Manager) Merge(ctx context.Context, projectPath, featureID string, opts MergeOptions) error {
	rec, err := m.Get(ctx, projectPath, featureID)
	if err != nil {
		return err
	}
	if rec == nil {
		return apperr.Wrap(apperr.NotFound, "no worktree for feature "+featureID, nil)
	}

	status, err := m.Status(ctx, rec.WorktreePath)
	if err != nil {
		return err
	}
	if status.ModifiedCount > 0 {
		commitMsg := opts.CommitMessage
		if commitMsg == "" {
			commitMsg = fmt.Sprintf("feat: complete %s", featureID)
		}
		if _, stderr, code, err := m.runner.Run(ctx, rec.WorktreePath, "git", []string{"add", "-A"}); err != nil || code != 0 {
			return apperr.Wrap(apperr.External, "git add failed: "+strings.TrimSpace(stderr), err)
		}
		if _, stderr, code, err := m.runner.Run(ctx, rec.WorktreePath, "git", []string{"commit", "-m", commitMsg}); err != nil || code != 0 {
			return apperr.Wrap(apperr.External, "git commit failed: "+strings.TrimSpace(stderr), err)
		}
	}

	if opts.Squash {
		msg := opts.SquashMessage
		if msg == "" {
			msg = fmt.Sprintf("feat: %s (squash)", featureID)
		}
		if _, stderr, code, err := m.runner.Run(ctx, projectPath, "git", []string{"merge", "--squash", rec.Branch}); err != nil || code != 0 {
			return apperr.Wrap(apperr.External, "git merge --squash failed: "+strings.TrimSpace(stderr), err)
		}
		if _, stderr, code, err := m.runner.Run(ctx, projectPath, "git", []string{"commit", "-m", msg}); err != nil || code != 0 {
			return apperr.Wrap(apperr.External, "git commit failed: "+strings.TrimSpace(stderr), err)
		}
	} else {
		if _, stderr, code, err := m.runner.Run(ctx, projectPath, "git", []string{"merge", "--no-ff", rec.Branch}); err != nil || code != 0 {
			return apperr.Wrap(apperr.External, "git merge failed: "+strings.TrimSpace(stderr), err)
		}
	}

	if opts.Cleanup {
		if _, err := m.Remove(ctx, projectPath, featureID, true); err != nil {
			return err
		}
	}
	return nil
}

// Sync brings the worktree up to date with its base branch via rebase or
// merge.
func (m *Manager) Sync(ctx context.Context, projectPath, featureID, method string) error {
	rec, err := m.Get(ctx, projectPath, featureID)
	if err != nil {
		return err
	}
	if rec == nil {
		return apperr.Wrap(apperr.NotFound, "no worktree for feature "+featureID, nil)
	}

	verb := "merge"
	if method == "rebase" {
		verb = "rebase"
	}
	if _, stderr, code, err := m.runner.Run(ctx, rec.WorktreePath, "git", []string{verb, rec.BaseBranch}); err != nil || code != 0 {
		return apperr.Wrap(apperr.External, fmt.Sprintf("git %s failed: %s", verb, strings.TrimSpace(stderr)), err)
	}
	return nil
}
