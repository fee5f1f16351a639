package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/automaker/engine/internal/feature"
)

// BuildPrompt assembles one agent turn's prompt from the feature
// description, category, attached images, and project-level
// app_spec.txt, plus an optional extra instruction appended at the end
// (used for the narrower verify/follow-up prompts) — spec.md §4.5.4
// step 3. Grounded on the teacher's buildInitPrompt in
// internal/scaffold/prompt.go: a plain string-concatenation builder
// rather than a templating engine, matching the corpus's preference for
// explicit Go string building over text/template for one-shot prompts.
func BuildPrompt(projectPath string, f *feature.Feature, priorTranscript, extra string) string {
	var b strings.Builder

	if spec := ReadAppSpec(projectPath); spec != "" {
		b.WriteString("## Project specification\n\n")
		b.WriteString(spec)
		b.WriteString("\n\n")
	}

	b.WriteString("## Feature\n\n")
	b.WriteString(f.Description)
	b.WriteString("\n")

	if f.Category != "" {
		fmt.Fprintf(&b, "\nCategory: %s\n", f.Category)
	}

	if len(f.ImagePaths) > 0 {
		b.WriteString("\n## Attached images\n\n")
		for _, ref := range f.ImagePaths {
			fmt.Fprintf(&b, "- %s\n", ref.Path)
		}
	}

	if priorTranscript != "" {
		b.WriteString("\n## Prior agent output\n\n")
		b.WriteString(priorTranscript)
		b.WriteString("\n")
	}

	if extra != "" {
		b.WriteString("\n## Instruction\n\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}

	return b.String()
}

// appSpecPath returns the project-level app_spec.txt path, read by the
// caller and woven into the prompt as shared project context (spec.md
// §4.5.4 step 3 "project-level app_spec.txt").
func appSpecPath(projectPath string) string {
	return filepath.Join(projectPath, ".automaker", "app_spec.txt")
}

// ReadAppSpec returns the project's app_spec.txt content, or "" if absent.
func ReadAppSpec(projectPath string) string {
	data, err := os.ReadFile(appSpecPath(projectPath))
	if err != nil {
		return ""
	}
	return string(data)
}
