// Package analyze implements the project-analysis singleton (spec.md
// §4.5.7 "project analysis"): gather project context, ask an agent to
// propose new backlog features, and create them in the Feature Store.
//
// Grounded on the teacher's (jorge-barreto/orc) internal/scaffold
// package (its initWithAI/generateConfig retry loop: gather context,
// call claude, parse fenced file blocks, validate, write), generalized
// from "propose a single .orc/config.yaml workflow" to "propose zero or
// more feature.json drafts", reusing contextgather and fileblocks
// unchanged from the teacher and replacing the YAML-config write with
// feature.Store.Create calls.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/automaker/engine/internal/contextgather"
	"github.com/automaker/engine/internal/feature"
	"github.com/automaker/engine/internal/fileblocks"
)

const maxAttempts = 3

const proposePrompt = `You are analyzing a software project to propose new features for its backlog.

%s

Propose between 1 and 8 concrete, independently shippable features. For each,
emit a fenced block named after a short kebab-case slug, containing a JSON
object with fields: description (string, required), category (string),
priority (1 = high, 2 = medium, 3 = low), dependencies (array of other
proposed slugs this feature depends on).

Example:

` + "```" + `json file=add-dark-mode.json
{"description": "Add a dark mode toggle to settings", "category": "frontend", "priority": 2}
` + "```" + `

Propose only features grounded in what you actually observed above. Do not
invent frameworks or files that aren't present.`

const retryFeedback = "\n\nYour previous attempt failed: %v\nPlease try again, making sure every block is valid JSON with at least a description field."

// draftFeature is the wire shape parsed out of one proposed fenced block.
type draftFeature struct {
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Priority     *int     `json:"priority"`
	Dependencies []string `json:"dependencies"`
}

// Propose gathers projectPath's context, asks an agent to suggest new
// features, and creates them in store as backlog features. It is meant
// to be wrapped as the fn argument to orchestrator.AnalyzeProject so the
// Orchestrator's singleton bookkeeping (spec.md §4.5.7: "at most one
// live entry per project") applies.
func Propose(ctx context.Context, projectPath string, store feature.Store) ([]feature.Feature, error) {
	pc, err := contextgather.Gather(projectPath)
	if err != nil {
		return nil, fmt.Errorf("gathering project context: %w", err)
	}

	prompt := fmt.Sprintf(proposePrompt, pc.Render())

	var blocks []fileblocks.FileBlock
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		current := prompt
		if attempt > 1 {
			current = prompt + fmt.Sprintf(retryFeedback, lastErr)
		}
		blocks, lastErr = generate(ctx, current)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("proposing features after %d attempts: %w", maxAttempts, lastErr)
	}

	return createFromBlocks(projectPath, store, blocks)
}

// createFromBlocks parses each block's content as a draftFeature and
// creates it in store, skipping blocks that aren't valid JSON or are
// missing a description. A dependency naming another block's slug (its
// file name without ".json") is rewritten to the id assigned to that
// block's feature. Split out of Propose so it can be tested without
// shelling out to an agent CLI.
func createFromBlocks(projectPath string, store feature.Store, blocks []fileblocks.FileBlock) ([]feature.Feature, error) {
	drafts := make([]feature.Draft, 0, len(blocks))
	idBySlug := make(map[string]string, len(blocks))
	for _, b := range blocks {
		var d draftFeature
		if err := json.Unmarshal([]byte(b.Content), &d); err != nil {
			continue
		}
		if d.Description == "" {
			continue
		}
		id := feature.NewID()
		idBySlug[strings.TrimSuffix(b.Path, ".json")] = id
		drafts = append(drafts, feature.Draft{
			ID:           id,
			Description:  d.Description,
			Category:     d.Category,
			Priority:     d.Priority,
			Dependencies: d.Dependencies,
		})
	}
	created := make([]feature.Feature, 0, len(drafts))
	for _, draft := range drafts {
		for i, dep := range draft.Dependencies {
			if id, ok := idBySlug[dep]; ok {
				draft.Dependencies[i] = id
			}
		}
		f, err := store.Create(projectPath, draft)
		if err != nil {
			return created, err
		}
		created = append(created, *f)
	}
	return created, nil
}

func generate(ctx context.Context, prompt string) ([]fileblocks.FileBlock, error) {
	output, err := runClaudeCapture(ctx, prompt)
	if err != nil {
		return nil, err
	}
	blocks := fileblocks.Parse(output)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no file blocks in agent output")
	}
	return blocks, nil
}

func runClaudeCapture(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, "claude", "-p", prompt, "--model", "opus", "--effort", "high")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	cmd.Env = filteredEnv()
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}
	return stdout.String(), nil
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
