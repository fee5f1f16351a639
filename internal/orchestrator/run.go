package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/automaker/engine/internal/agentrunner"
	"github.com/automaker/engine/internal/apperr"
	"github.com/automaker/engine/internal/events"
	"github.com/automaker/engine/internal/feature"
	"github.com/automaker/engine/internal/worktree"
)

// busSubscriber adapts the events.Bus to agentrunner.Subscriber, tagging
// every agent-stream event with its feature id and mapping its EventType
// onto the project-wide event surface (spec.md §6).
type busSubscriber struct {
	bus *events.Bus
}

func (b busSubscriber) Publish(featureID string, ev agentrunner.Event) {
	if b.bus == nil {
		return
	}
	kind := events.KindStream
	switch ev.Type {
	case agentrunner.EventToolUse:
		kind = events.KindToolUse
	case agentrunner.EventResult:
		kind = events.KindComplete
	}
	b.bus.Publish(events.Event{Kind: kind, FeatureID: featureID, Payload: ev})
}

// RunFeature executes the run sequence in spec.md §4.5.4 end to end for
// one feature. It returns once the agent turn has concluded (completed,
// errored, or aborted); it does not block the caller beyond that single
// turn, matching "all commands return promptly" only in the sense that
// Orchestrator callers are expected to invoke this from a scheduling
// goroutine, never synchronously from a request handler.
func (o *Orchestrator) RunFeature(ctx context.Context, projectPath, featureID string) error {
	p := o.projectFor(projectPath, nil)

	f, err := o.Store.Get(projectPath, featureID)
	if err != nil {
		return err
	}
	if f == nil {
		return apperr.Wrap(apperr.NotFound, fmt.Sprintf("feature %s", featureID), nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if _, already := p.running[featureID]; already {
		p.mu.Unlock()
		cancel()
		return apperr.Wrap(apperr.Conflict, fmt.Sprintf("feature %s already has a run in progress", featureID), nil)
	}
	p.running[featureID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.running, featureID)
		p.mu.Unlock()
	}()

	startedAt := now()
	f, err = o.Store.Update(projectPath, featureID, feature.Partial{
		Status:    statusPtr(feature.StatusInProgress),
		StartedAt: strPtrPtr(startedAt),
	})
	if err != nil {
		return err
	}
	o.publish(projectPath, featureID, events.KindFeatureStarted, nil)

	workDir := projectPath
	if p.settings.WorktreesEnabled && o.Worktree.IsVcsRepo(runCtx, projectPath) {
		result, err := o.Worktree.Create(runCtx, projectPath, worktree.FeatureDescribable{ID: f.ID, Description: f.Description})
		if err != nil {
			return o.failRun(projectPath, featureID, err)
		}
		workDir = result.WorktreePath
		if _, err := o.Store.Update(projectPath, featureID, feature.Partial{
			WorktreePath: strPtrPtr(result.WorktreePath),
			BranchName:   strPtrPtr(result.BranchName),
			BaseBranch:   strPtrPtr(result.BaseBranch),
		}); err != nil {
			return o.failRun(projectPath, featureID, err)
		}
	}

	prompt := BuildPrompt(projectPath, f, "", "")
	return o.invokeAgent(runCtx, p, projectPath, f, workDir, prompt, false)
}

// invokeAgent builds the transcript path, invokes the Agent Runner, and
// applies the resulting status transition (spec.md §4.5.4 steps 4–8).
func (o *Orchestrator) invokeAgent(ctx context.Context, p *project, projectPath string, f *feature.Feature, workDir, prompt string, resume bool) error {
	params := agentrunner.RunParams{
		FeatureID:        f.ID,
		ProviderName:     p.settings.DefaultProvider,
		WorkingDirectory: workDir,
		Prompt:           prompt,
		Model:            firstNonEmpty(f.Model, p.settings.DefaultModel),
		ThinkingLevel:    string(firstNonEmptyThinking(f.ThinkingLevel, p.settings.DefaultThinkingLevel)),
		ReasoningEffort:  string(firstNonEmptyReasoning(f.ReasoningEffort, p.settings.DefaultReasoningEffort)),
		TranscriptPath:   filepath.Join(projectPath, ".automaker", "features", f.ID, "agent-output.md"),
		Subscriber:       busSubscriber{bus: o.Bus},
		Resume:           resume,
		ImagePaths:       imagePathStrings(f.ImagePaths),
	}

	// Mint a per-run token scoped to this feature and pass the bridge's
	// address to the agent at spawn, so update_feature_status/update_plan/
	// attach_file calls during the run can be authorized (spec.md §4.3,
	// §4.4). Revoked as soon as the run concludes either way.
	if bridge, addr := o.bridgeEndpoint(); bridge != nil {
		token := uuid.NewString()
		bridge.IssueToken(token, f.ID, runTokenTTL)
		defer bridge.RevokeToken(token)
		params.ToolBridgeAddr = addr
		params.RunToken = token
	}

	outcome, err := o.Runner.Run(ctx, params)
	if err != nil {
		return o.failRun(projectPath, f.ID, err)
	}

	if outcome.Aborted {
		o.publish(projectPath, f.ID, events.KindFeatureAborted, nil)
		return nil
	}

	// Status is normally set already by the Tool-Call Bridge's
	// update_feature_status callback (wired through SkipTestsStatusPolicy,
	// which downgrades an agent-reported "verified" to waiting_approval
	// when the feature has skipTests set — spec.md §4.5.3). If the agent
	// never called the tool, apply the same policy to a clean exit instead
	// of defaulting straight to verified.
	current, err := o.Store.Get(projectPath, f.ID)
	if err != nil {
		return err
	}
	finishedAt := now()
	update := feature.Partial{
		JustFinishedAt: strPtrPtr(finishedAt),
		Summary:        strPtrPtr(outcome.Summary),
	}
	if current != nil && current.Status == feature.StatusInProgress {
		resolved, err := o.SkipTestsStatusPolicy(projectPath, f.ID, feature.StatusVerified)
		if err != nil {
			return err
		}
		update.Status = statusPtr(resolved)
	}
	if _, err := o.Store.Update(projectPath, f.ID, update); err != nil {
		return err
	}
	o.publish(projectPath, f.ID, events.KindFeatureCompleted, outcome.Summary)
	return nil
}

// SkipTestsStatusPolicy enforces spec.md §4.5.3's skipTests override: an
// agent reporting "verified" on a feature with skipTests set is
// downgraded to waiting_approval so a human reviews the untested change.
// The mcpbridge.Callbacks.UpdateStatus implementation should call this
// before persisting the agent's requested status.
func (o *Orchestrator) SkipTestsStatusPolicy(projectPath, featureID string, requested feature.Status) (feature.Status, error) {
	if requested != feature.StatusVerified {
		return requested, nil
	}
	f, err := o.Store.Get(projectPath, featureID)
	if err != nil {
		return requested, err
	}
	if f != nil && f.SkipTests {
		return feature.StatusWaitingApproval, nil
	}
	return requested, nil
}

// failRun records a runtime error on the feature without moving it out
// of in_progress (spec.md §4.5.4 step 6 "On runtime error").
func (o *Orchestrator) failRun(projectPath, featureID string, cause error) error {
	msg := cause.Error()
	if _, err := o.Store.SetStatus(projectPath, featureID, feature.StatusInProgress, nil, &msg); err != nil {
		return err
	}
	o.publish(projectPath, featureID, events.KindFeatureErrored, msg)
	return cause
}

// StopFeature cancels featureID's live run, if any, and tells the Agent
// Runner to terminate its subprocess (spec.md §4.5.3: "cancelled; no
// status change").
func (o *Orchestrator) StopFeature(projectPath, featureID string) error {
	p := o.projectFor(projectPath, nil)
	p.mu.Lock()
	cancel, ok := p.running[featureID]
	p.mu.Unlock()
	if !ok {
		return apperr.Wrap(apperr.NotFound, fmt.Sprintf("feature %s has no live run", featureID), nil)
	}
	cancel()
	o.Runner.Stop(featureID)
	return nil
}

// FollowUpFeature requires status waiting_approval; starts a new run in
// the same worktree whose prompt carries the prior transcript plus the
// new message (spec.md §4.5.5).
func (o *Orchestrator) FollowUpFeature(ctx context.Context, projectPath, featureID, message string, imagePaths []string) error {
	f, err := o.requireStatus(projectPath, featureID, feature.StatusWaitingApproval)
	if err != nil {
		return err
	}
	if _, err := o.Store.Update(projectPath, featureID, feature.Partial{Status: statusPtr(feature.StatusInProgress)}); err != nil {
		return err
	}
	transcript, err := o.Store.GetAgentOutput(projectPath, featureID)
	if err != nil {
		return err
	}
	return o.resumeWithPrompt(ctx, projectPath, f, transcript, message, true)
}

// ResumeFeature requires status in_progress with no live session and a
// non-empty prior transcript (spec.md §4.5.5).
func (o *Orchestrator) ResumeFeature(ctx context.Context, projectPath, featureID string) error {
	f, err := o.requireStatus(projectPath, featureID, feature.StatusInProgress)
	if err != nil {
		return err
	}
	if o.Runner.HasLiveSession(featureID) {
		return apperr.Wrap(apperr.Conflict, fmt.Sprintf("feature %s already has a live agent session", featureID), nil)
	}
	transcript, err := o.Store.GetAgentOutput(projectPath, featureID)
	if err != nil {
		return err
	}
	if transcript == "" {
		return apperr.Wrap(apperr.Invalid, fmt.Sprintf("feature %s has no prior transcript to resume from", featureID), nil)
	}
	return o.resumeWithPrompt(ctx, projectPath, f, transcript, "", true)
}

// VerifyFeature requires status in_progress; runs the agent with a
// narrower prompt asking it to execute and interpret tests (spec.md
// §4.5.5).
func (o *Orchestrator) VerifyFeature(ctx context.Context, projectPath, featureID string) error {
	f, err := o.requireStatus(projectPath, featureID, feature.StatusInProgress)
	if err != nil {
		return err
	}
	return o.resumeWithPrompt(ctx, projectPath, f, "", verifyInstruction, false)
}

func (o *Orchestrator) resumeWithPrompt(ctx context.Context, projectPath string, f *feature.Feature, priorTranscript, extra string, resume bool) error {
	p := o.projectFor(projectPath, nil)
	workDir := projectPath
	if f.WorktreePath != nil {
		workDir = *f.WorktreePath
	}
	prompt := BuildPrompt(projectPath, f, priorTranscript, extra)
	return o.invokeAgent(ctx, p, projectPath, f, workDir, prompt, resume)
}

func (o *Orchestrator) requireStatus(projectPath, featureID string, want feature.Status) (*feature.Feature, error) {
	f, err := o.Store.Get(projectPath, featureID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperr.Wrap(apperr.NotFound, fmt.Sprintf("feature %s", featureID), nil)
	}
	if f.Status != want {
		return nil, apperr.Wrap(apperr.Invalid, fmt.Sprintf("feature %s must be %s, is %s", featureID, want, f.Status), nil)
	}
	return f, nil
}

// CommitFeature merges the feature's worktree per spec.md §4.5.6, then
// marks it verified.
func (o *Orchestrator) CommitFeature(ctx context.Context, projectPath, featureID string) error {
	p := o.projectFor(projectPath, nil)
	if err := o.Worktree.Merge(ctx, projectPath, featureID, worktree.MergeOptions{
		Squash:  p.settings.MergeSquashByDefault,
		Cleanup: false,
	}); err != nil {
		return err
	}
	_, err := o.Store.SetStatus(projectPath, featureID, feature.StatusVerified, nil, nil)
	return err
}

// MergeFeature is a thin pass-through to the Worktree Manager with event
// streaming (spec.md §4.5.6).
func (o *Orchestrator) MergeFeature(ctx context.Context, projectPath, featureID string, opts worktree.MergeOptions) error {
	if err := o.Worktree.Merge(ctx, projectPath, featureID, opts); err != nil {
		o.publish(projectPath, featureID, events.KindError, err.Error())
		return err
	}
	o.publish(projectPath, featureID, events.KindComplete, "merged")
	return nil
}

// RevertFeature removes the worktree (and its branch) and resets the
// feature back to backlog, clearing run-derived fields (spec.md §4.5.6).
func (o *Orchestrator) RevertFeature(ctx context.Context, projectPath, featureID string) error {
	if _, err := o.Worktree.Remove(ctx, projectPath, featureID, true); err != nil {
		return err
	}
	var nilStr *string
	_, err := o.Store.Update(projectPath, featureID, feature.Partial{
		Status:         statusPtr(feature.StatusBacklog),
		StartedAt:      &nilStr,
		JustFinishedAt: &nilStr,
		Summary:        &nilStr,
		Error:          &nilStr,
	})
	return err
}

const verifyInstruction = "Run the project's test suite and report whether it passes; fix any failures you introduced."

func statusPtr(s feature.Status) *feature.Status { return &s }
func strPtrPtr(s string) **string                { return ptrToPtrLocal(&s) }
func ptrToPtrLocal(p *string) **string            { return &p }

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonEmptyThinking(a, b feature.ThinkingLevel) feature.ThinkingLevel {
	if a != "" {
		return a
	}
	return b
}

func firstNonEmptyReasoning(a, b feature.ReasoningEffort) feature.ReasoningEffort {
	if a != "" {
		return a
	}
	return b
}

func imagePathStrings(refs []feature.ImageRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Path
	}
	return out
}
