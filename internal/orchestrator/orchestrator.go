// Package orchestrator implements the Auto-Mode Scheduler (spec.md
// §4.5): feature selection, the per-feature state machine, the run
// sequence that drives one feature through the Agent Runner, and the
// commit/merge/revert and singleton-background-task surfaces.
//
// Grounded on the teacher's (jorge-barreto/orc) internal/runner/runner.go
// phase-sequencing loop, generalized from "run N workflow phases in
// declared order" to "run up to maxConcurrency features concurrently,
// selected by priority and dependency readiness." The concurrency slot
// budget is implemented with sourcegraph/conc's pool
// (github.com/sourcegraph/conc/pool), which strawgate-gh-aw and
// githubnext-gh-aw both depend on for bounded worker fan-out; the teacher
// itself runs phases strictly sequentially and has no pool dependency to
// draw on for this piece.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/automaker/engine/internal/agentrunner"
	"github.com/automaker/engine/internal/apperr"
	"github.com/automaker/engine/internal/events"
	"github.com/automaker/engine/internal/feature"
	"github.com/automaker/engine/internal/mcpbridge"
	"github.com/automaker/engine/internal/worktree"
)

// runTokenTTL bounds how long a per-run MCP token stays valid if a
// RevokeToken call is ever missed (process crash mid-run); under normal
// operation invokeAgent revokes the token as soon as the agent exits.
const runTokenTTL = 6 * time.Hour

// ProjectSettings configures one project's orchestration policy
// (SPEC_FULL.md §4.5 "[ADDED] Plan-gating worktree reuse").
type ProjectSettings struct {
	WorktreesEnabled          bool
	MaxConcurrency            int
	DefaultProvider           string
	DefaultModel              string
	DefaultThinkingLevel      feature.ThinkingLevel
	DefaultReasoningEffort    feature.ReasoningEffort
	PlanApprovalFreshWorktree bool
	MergeSquashByDefault      bool
}

// Status is the Orchestrator's own status() reply (spec.md §4.5.1).
type Status struct {
	AutoModeEnabled bool
	Running         []string
	MaxConcurrency  int
}

// project is the Orchestrator's per-project live state.
type project struct {
	path     string
	settings ProjectSettings

	mu          sync.Mutex
	autoMode    bool
	running     map[string]context.CancelFunc
	singletons  map[string]context.CancelFunc
}

// Orchestrator owns feature scheduling for every project it has been
// started on. One process hosts one Orchestrator (spec.md §5: "One
// Orchestrator process owns all state").
type Orchestrator struct {
	Store    feature.Store
	Worktree *worktree.Manager
	Runner   *agentrunner.Runner
	Bus      *events.Bus

	mu         sync.Mutex
	projects   map[string]*project
	bridge     *mcpbridge.Bridge
	bridgeAddr string
}

// New constructs an Orchestrator wired to its collaborators.
func New(store feature.Store, wt *worktree.Manager, runner *agentrunner.Runner, bus *events.Bus) *Orchestrator {
	return &Orchestrator{Store: store, Worktree: wt, Runner: runner, Bus: bus, projects: make(map[string]*project)}
}

// SetBridge wires the Tool-Call Bridge into the orchestrator. Once set,
// every invokeAgent call mints a per-run token scoped to that feature and
// passes the bridge's address to the agent at spawn (spec.md §4.3, §4.4);
// the token is revoked as soon as the run concludes.
func (o *Orchestrator) SetBridge(bridge *mcpbridge.Bridge, addr string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bridge = bridge
	o.bridgeAddr = addr
}

func (o *Orchestrator) bridgeEndpoint() (*mcpbridge.Bridge, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bridge, o.bridgeAddr
}

func (o *Orchestrator) projectFor(projectPath string, settings *ProjectSettings) *project {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.projects[projectPath]
	if !ok {
		p = &project{path: projectPath, running: make(map[string]context.CancelFunc), singletons: make(map[string]context.CancelFunc)}
		o.projects[projectPath] = p
	}
	if settings != nil {
		p.settings = *settings
	}
	return p
}

// Configure registers settings for a project without enabling
// auto-mode, for callers that only want to run a single feature turn
// under the project's configured provider/model defaults.
func (o *Orchestrator) Configure(projectPath string, settings ProjectSettings) {
	o.projectFor(projectPath, &settings)
}

// Start enables auto-mode for a project and immediately attempts to fill
// up to maxConcurrency slots (spec.md §4.5.1).
func (o *Orchestrator) Start(ctx context.Context, projectPath string, settings ProjectSettings) error {
	if settings.MaxConcurrency <= 0 {
		return apperr.Wrap(apperr.Invalid, "maxConcurrency must be positive", nil)
	}
	p := o.projectFor(projectPath, &settings)
	p.mu.Lock()
	p.autoMode = true
	p.mu.Unlock()

	go o.tick(context.Background(), p)
	return nil
}

// Stop disables auto-mode. In-flight runs are left alone (spec.md §4.5.1).
func (o *Orchestrator) Stop(projectPath string) {
	p := o.projectFor(projectPath, nil)
	p.mu.Lock()
	p.autoMode = false
	p.mu.Unlock()
}

// Status reports the current auto-mode state for a project.
func (o *Orchestrator) Status(projectPath string) Status {
	p := o.projectFor(projectPath, nil)
	p.mu.Lock()
	defer p.mu.Unlock()
	running := make([]string, 0, len(p.running))
	for id := range p.running {
		running = append(running, id)
	}
	return Status{AutoModeEnabled: p.autoMode, Running: running, MaxConcurrency: p.settings.MaxConcurrency}
}

// tick runs one scheduling pass: select candidates, fill free slots, and
// (if auto-mode remains enabled after each feature completes) tick again,
// per the run sequence's step 8 (spec.md §4.5.4).
func (o *Orchestrator) tick(ctx context.Context, p *project) {
	p.mu.Lock()
	enabled := p.autoMode
	freeSlots := p.settings.MaxConcurrency - len(p.running)
	p.mu.Unlock()
	if !enabled || freeSlots <= 0 {
		return
	}

	features, err := o.Store.List(p.path)
	if err != nil {
		o.publish(p.path, "", events.KindError, err.Error())
		return
	}

	candidates := SelectCandidates(features, o.runningIDs(p), freeSlots)
	if len(candidates) == 0 {
		return
	}

	results := pool.New().WithMaxGoroutines(len(candidates))
	for _, f := range candidates {
		f := f
		results.Go(func() {
			_ = o.RunFeature(ctx, p.path, f.ID)
			if o.autoModeEnabled(p) {
				o.tick(ctx, p)
			}
		})
	}
	results.Wait()
}

func (o *Orchestrator) autoModeEnabled(p *project) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoMode
}

func (o *Orchestrator) runningIDs(p *project) map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool, len(p.running))
	for id := range p.running {
		out[id] = true
	}
	return out
}

func (o *Orchestrator) publish(projectPath, featureID string, kind events.Kind, payload any) {
	if o.Bus == nil {
		return
	}
	o.Bus.Publish(events.Event{Kind: kind, FeatureID: featureID, Payload: payload})
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// AnalyzeProject is a singleton background task placeholder: spec.md
// §4.5.7 requires "at most one live entry per project" semantics; the
// actual analysis strategy (reading the repository, proposing features)
// is project-specific and supplied by the caller as fn.
func (o *Orchestrator) AnalyzeProject(ctx context.Context, projectPath string, fn func(ctx context.Context) error) error {
	return o.runSingleton(ctx, projectPath, "analyzeProject", fn)
}

// runSingleton enforces "a second invocation while one is live is
// rejected" (spec.md §4.5.7).
func (o *Orchestrator) runSingleton(ctx context.Context, projectPath, taskKind string, fn func(ctx context.Context) error) error {
	p := o.projectFor(projectPath, nil)
	key := taskKind

	p.mu.Lock()
	if _, live := p.singletons[key]; live {
		p.mu.Unlock()
		return apperr.Wrap(apperr.Conflict, fmt.Sprintf("%s is already running for this project", taskKind), nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.singletons[key] = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.singletons, key)
		p.mu.Unlock()
	}()

	o.publish(projectPath, "", events.KindAutoModeTaskStarted, taskKind)
	err := fn(runCtx)
	if err != nil {
		o.publish(projectPath, "", events.KindSuggestionsError, err.Error())
		return err
	}
	o.publish(projectPath, "", events.KindAutoModeTaskComplete, taskKind)
	return nil
}

// StopSingleton cancels a live singleton background task, if any.
func (o *Orchestrator) StopSingleton(projectPath, taskKind string) bool {
	p := o.projectFor(projectPath, nil)
	p.mu.Lock()
	cancel, ok := p.singletons[taskKind]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
