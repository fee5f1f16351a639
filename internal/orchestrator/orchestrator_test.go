package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/automaker/engine/internal/agentrunner"
	"github.com/automaker/engine/internal/events"
	"github.com/automaker/engine/internal/feature"
	"github.com/automaker/engine/internal/worktree"
)

// memStore is an in-memory Store substitute, avoiding real disk I/O so
// orchestrator tests run fast and deterministic.
type memStore struct {
	byID map[string]feature.Feature
}

func newMemStore() *memStore { return &memStore{byID: make(map[string]feature.Feature)} }

func (m *memStore) List(projectPath string) ([]feature.Feature, error) {
	out := make([]feature.Feature, 0, len(m.byID))
	for _, f := range m.byID {
		out = append(out, f)
	}
	return out, nil
}
func (m *memStore) Get(projectPath, id string) (*feature.Feature, error) {
	f, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := f
	return &cp, nil
}
func (m *memStore) Create(projectPath string, draft feature.Draft) (*feature.Feature, error) {
	f := feature.Feature{ID: draft.ID, Description: draft.Description, Status: feature.StatusBacklog, SkipTests: draft.SkipTests}
	m.byID[f.ID] = f
	return &f, nil
}
func (m *memStore) Update(projectPath, id string, p feature.Partial) (*feature.Feature, error) {
	f, ok := m.byID[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.StartedAt != nil {
		f.StartedAt = *p.StartedAt
	}
	if p.JustFinishedAt != nil {
		f.JustFinishedAt = *p.JustFinishedAt
	}
	if p.Summary != nil {
		f.Summary = *p.Summary
	}
	if p.Error != nil {
		f.Error = *p.Error
	}
	if p.WorktreePath != nil {
		f.WorktreePath = *p.WorktreePath
	}
	if p.BranchName != nil {
		f.BranchName = *p.BranchName
	}
	if p.BaseBranch != nil {
		f.BaseBranch = *p.BaseBranch
	}
	if p.ImagePaths != nil {
		f.ImagePaths = *p.ImagePaths
	}
	if p.PlanSpec != nil {
		f.PlanSpec = *p.PlanSpec
	}
	m.byID[id] = f
	return &f, nil
}
func (m *memStore) Delete(projectPath, id string) error {
	delete(m.byID, id)
	return nil
}
func (m *memStore) SetStatus(projectPath, id string, status feature.Status, summary, errMsg *string) (*feature.Feature, error) {
	return m.Update(projectPath, id, feature.Partial{Status: &status, Summary: ptrp(summary), Error: ptrp(errMsg)})
}
func (m *memStore) GetAgentOutput(projectPath, id string) (string, error) { return "", nil }

func ptrp(p *string) **string { return &p }

func echoProviderScript(t *testing.T, dir string, resultLine string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-agent.sh")
	body := "#!/bin/sh\necho 'TEXT:working'\necho '" + resultLine + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

type scriptProvider struct{ script string }

func (p scriptProvider) Name() string                          { return "echo" }
func (p scriptProvider) BinaryName() string                    { return p.script }
func (p scriptProvider) BuildArgs(agentrunner.RunRequest) []string { return nil }
func (p scriptProvider) EncodeImage(path string) (agentrunner.ImageBlock, error) {
	return agentrunner.EncodeImageFile(path)
}
func (p scriptProvider) ParseLine(line []byte) (agentrunner.Event, bool) {
	s := string(line)
	switch {
	case len(s) > 5 && s[:5] == "TEXT:":
		return agentrunner.Event{Type: agentrunner.EventAssistantText, Text: s[5:]}, true
	case len(s) > 7 && s[:7] == "RESULT:":
		return agentrunner.Event{Type: agentrunner.EventResult, Summary: s[7:]}, true
	default:
		return agentrunner.Event{}, false
	}
}

// noopRunner reports an empty worktree list and succeeds every command,
// so tests exercise the Orchestrator without invoking real git.
type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, dir, name string, args []string) (string, string, int, error) {
	return "", "", 0, nil
}

func newTestOrchestrator(t *testing.T, resultLine string) (*Orchestrator, string, *memStore) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".automaker", "features"), 0755))
	script := echoProviderScript(t, dir, resultLine)

	store := newMemStore()
	wt := worktree.NewManager(noopRunner{})
	runner := agentrunner.NewRunner(agentrunner.NewRegistry(scriptProvider{script: script}))
	bus := events.NewBus()
	o := New(store, wt, runner, bus)
	return o, dir, store
}

func TestRunFeature_SuccessMarksVerified(t *testing.T) {
	o, dir, store := newTestOrchestrator(t, "RESULT:done")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".automaker", "features", "f1"), 0755))
	store.byID["f1"] = feature.Feature{ID: "f1", Description: "add a widget", Status: feature.StatusBacklog}
	o.projectFor(dir, &ProjectSettings{MaxConcurrency: 1, DefaultProvider: "echo"})

	err := o.RunFeature(context.Background(), dir, "f1")
	require.NoError(t, err)

	got, _ := store.Get(dir, "f1")
	require.Equal(t, feature.StatusVerified, got.Status)
	require.Equal(t, "done", *got.Summary)
}

func TestRunFeature_RejectsDoubleRun(t *testing.T) {
	o, dir, store := newTestOrchestrator(t, "RESULT:done")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".automaker", "features", "f1"), 0755))
	store.byID["f1"] = feature.Feature{ID: "f1", Description: "x", Status: feature.StatusBacklog}
	p := o.projectFor(dir, &ProjectSettings{MaxConcurrency: 2, DefaultProvider: "echo"})

	_, cancel := context.WithCancel(context.Background())
	p.running["f1"] = cancel

	err := o.RunFeature(context.Background(), dir, "f1")
	require.Error(t, err)
}

func TestRunFeature_SkipTestsFallbackWaitsApproval(t *testing.T) {
	o, dir, store := newTestOrchestrator(t, "RESULT:done")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".automaker", "features", "f1"), 0755))
	store.byID["f1"] = feature.Feature{ID: "f1", Description: "add a widget", Status: feature.StatusBacklog, SkipTests: true}
	o.projectFor(dir, &ProjectSettings{MaxConcurrency: 1, DefaultProvider: "echo"})

	err := o.RunFeature(context.Background(), dir, "f1")
	require.NoError(t, err)

	got, _ := store.Get(dir, "f1")
	require.Equal(t, feature.StatusWaitingApproval, got.Status)
}

func TestRunFeature_UnknownFeature(t *testing.T) {
	o, dir, _ := newTestOrchestrator(t, "RESULT:done")
	o.projectFor(dir, &ProjectSettings{MaxConcurrency: 1, DefaultProvider: "echo"})

	err := o.RunFeature(context.Background(), dir, "nope")
	require.Error(t, err)
}

func TestAnalyzeProject_RejectsConcurrentSingleton(t *testing.T) {
	o, dir, _ := newTestOrchestrator(t, "RESULT:done")
	o.projectFor(dir, &ProjectSettings{MaxConcurrency: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	go o.AnalyzeProject(context.Background(), dir, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("singleton task never started")
	}

	err := o.AnalyzeProject(context.Background(), dir, func(ctx context.Context) error { return nil })
	require.Error(t, err)
	close(release)
}

func TestStatus_ReportsAutoModeAndRunning(t *testing.T) {
	o, dir, _ := newTestOrchestrator(t, "RESULT:done")
	require.NoError(t, o.Start(context.Background(), dir, ProjectSettings{MaxConcurrency: 2, DefaultProvider: "echo"}))

	st := o.Status(dir)
	require.True(t, st.AutoModeEnabled)
	require.Equal(t, 2, st.MaxConcurrency)

	o.Stop(dir)
	st = o.Status(dir)
	require.False(t, st.AutoModeEnabled)
}

func TestRevertFeature_ClearsRunFields(t *testing.T) {
	o, dir, store := newTestOrchestrator(t, "RESULT:done")
	errMsg := "boom"
	summary := "did stuff"
	started := "2026-01-01T00:00:00Z"
	store.byID["f1"] = feature.Feature{
		ID: "f1", Status: feature.StatusInProgress,
		StartedAt: &started, Summary: &summary, Error: &errMsg,
	}

	err := o.RevertFeature(context.Background(), dir, "f1")
	require.NoError(t, err)

	got, _ := store.Get(dir, "f1")
	require.Equal(t, feature.StatusBacklog, got.Status)
	require.Nil(t, got.StartedAt)
	require.Nil(t, got.Summary)
	require.Nil(t, got.Error)
}
