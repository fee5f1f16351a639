// Package doctor diagnoses a stalled or errored feature by gathering
// its transcript tail, recorded error, and worktree status, then
// handing that context to Claude for a free-form diagnosis.
//
// Grounded on the teacher's internal/doctor/doctor.go (gather failure
// context from artifacts, build one diagnosis prompt, shell out to
// `claude -p`), generalized from "gather one failed phase's config and
// log" to "gather one feature's transcript, error, and worktree diff".
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/automaker/engine/internal/feature"
	"github.com/automaker/engine/internal/ux"
	"github.com/automaker/engine/internal/worktree"
)

const maxTranscriptLines = 200

const diagPrompt = `You are diagnosing a stuck or failed feature run. Analyze the context below and provide a concise diagnosis.

## Feature
%s

## Recorded Error
%s

## Transcript (last %d lines)
%s
%s
Instructions:
1. Identify what went wrong from the transcript and recorded error.
2. Classify this as an ENGINE problem (worktree/provider/tool-call wiring) or a CODE problem (the feature the agent was implementing).
3. Suggest specific fixes.
4. Recommend the next command to run:
   - automakerd resume <feature-id>   (resume the feature's agent session)
   - automakerd revert <feature-id>   (discard the worktree and start over)

Be direct and concise. Focus on actionable advice.`

// Run diagnoses featureID, provided it has a recorded error.
func Run(ctx context.Context, projectPath string, store feature.Store, wt *worktree.Manager, featureID string) error {
	f, err := store.Get(projectPath, featureID)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("feature %q not found", featureID)
	}
	if f.Error == nil {
		fmt.Println("No recorded error to diagnose.")
		return nil
	}

	transcript, _ := store.GetAgentOutput(projectPath, featureID)
	worktreeStatus := gatherWorktreeStatus(ctx, wt, f)

	diagText := buildPrompt(gatherFeature(f), *f.Error, gatherTranscriptTail(transcript), worktreeStatus)

	fmt.Printf("\n%s%s══ Doctor: diagnosing feature %s ══%s\n\n", ux.Bold, ux.Cyan, featureID, ux.Reset)

	if err := runClaude(ctx, diagText); err != nil {
		return fmt.Errorf("failed to run claude: %w", err)
	}

	fmt.Println()
	ux.ResumeHint(featureID)
	return nil
}

func buildPrompt(featureSummary, errMsg, transcript, worktreeStatus string) string {
	var worktreeSection string
	if worktreeStatus != "" {
		worktreeSection = fmt.Sprintf("\n## Worktree Status\n%s\n", worktreeStatus)
	}
	return fmt.Sprintf(diagPrompt, featureSummary, errMsg, maxTranscriptLines, transcript, worktreeSection)
}

func gatherFeature(f *feature.Feature) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("ID: %s", f.ID))
	parts = append(parts, fmt.Sprintf("Status: %s", f.Status))
	parts = append(parts, fmt.Sprintf("Description: %s", f.Description))
	if f.Category != "" {
		parts = append(parts, fmt.Sprintf("Category: %s", f.Category))
	}
	if f.Model != "" {
		parts = append(parts, fmt.Sprintf("Model: %s", f.Model))
	}
	if f.WorktreePath != nil {
		parts = append(parts, fmt.Sprintf("Worktree: %s", *f.WorktreePath))
	}
	return strings.Join(parts, "\n")
}

func gatherTranscriptTail(transcript string) string {
	if transcript == "" {
		return "(no transcript found)"
	}
	lines := strings.Split(transcript, "\n")
	if len(lines) > maxTranscriptLines {
		lines = lines[len(lines)-maxTranscriptLines:]
		return fmt.Sprintf("... (truncated to last %d lines)\n%s", maxTranscriptLines, strings.Join(lines, "\n"))
	}
	return transcript
}

func gatherWorktreeStatus(ctx context.Context, wt *worktree.Manager, f *feature.Feature) string {
	if wt == nil || f.WorktreePath == nil {
		return ""
	}
	info, err := wt.Status(ctx, *f.WorktreePath)
	if err != nil || info == nil {
		return ""
	}
	var parts []string
	parts = append(parts, fmt.Sprintf("%d file(s) modified", info.ModifiedCount))
	if info.DiffStat != "" {
		parts = append(parts, info.DiffStat)
	}
	return strings.Join(parts, "\n")
}

func filteredEnv() []string {
	var env []string
	for _, e := range os.Environ() {
		key := strings.SplitN(e, "=", 2)[0]
		if strings.HasPrefix(key, "CLAUDECODE") {
			continue
		}
		env = append(env, e)
	}
	return env
}

func runClaude(ctx context.Context, prompt string) error {
	cmd := exec.CommandContext(ctx, "claude", "-p", prompt, "--model", "sonnet")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = filteredEnv()
	return cmd.Run()
}
