// Package config loads the optional project-level YAML configuration
// (provider defaults, concurrency, worktree policy) that seeds an
// orchestrator.ProjectSettings, plus the project's categories list.
//
// Grounded on the teacher's internal/config/config.go (YAML-backed,
// validated config struct loaded once from a path) generalized from a
// list of pipeline phases to a flat settings record; the read-validate
// pipeline (Load calls yaml.Unmarshal then Validate) is kept as-is.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/automaker/engine/internal/apperr"
	"github.com/automaker/engine/internal/feature"
)

// ProjectConfig is the on-disk shape of .automaker/config.yaml. All
// fields are optional; zero values fall back to the orchestrator's
// built-in defaults.
type ProjectConfig struct {
	Provider                  string `yaml:"provider"`
	Model                     string `yaml:"model"`
	ThinkingLevel             string `yaml:"thinking-level"`
	ReasoningEffort           string `yaml:"reasoning-effort"`
	MaxConcurrency            int    `yaml:"max-concurrency"`
	WorktreesEnabled          *bool  `yaml:"worktrees-enabled"`
	PlanApprovalFreshWorktree bool   `yaml:"plan-approval-fresh-worktree"`
	MergeSquashByDefault      bool   `yaml:"merge-squash-by-default"`
}

var validThinkingLevels = map[feature.ThinkingLevel]bool{
	"":                         true,
	feature.ThinkingNone:       true,
	feature.ThinkingLow:        true,
	feature.ThinkingMedium:     true,
	feature.ThinkingHigh:       true,
	feature.ThinkingUltrathink: true,
}

var validReasoningEfforts = map[feature.ReasoningEffort]bool{
	"":                       true,
	feature.ReasoningNone:    true,
	feature.ReasoningMinimal: true,
	feature.ReasoningLow:     true,
	feature.ReasoningMedium:  true,
	feature.ReasoningHigh:    true,
	feature.ReasoningXHigh:   true,
}

// Path returns the project's config.yaml path.
func Path(projectPath string) string {
	return filepath.Join(projectPath, ".automaker", "config.yaml")
}

// Load reads and validates .automaker/config.yaml. A missing file
// returns a zero-value ProjectConfig, not an error, since the file is
// optional: every field has an orchestrator-level default.
func Load(projectPath string) (*ProjectConfig, error) {
	data, err := os.ReadFile(Path(projectPath))
	if err != nil {
		if os.IsNotExist(err) {
			return &ProjectConfig{}, nil
		}
		return nil, apperr.Wrap(apperr.IO, "reading project config", err)
	}
	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.Invalid, "parsing project config", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values a hand-edited YAML file could get wrong.
func Validate(cfg *ProjectConfig) error {
	if cfg.MaxConcurrency < 0 {
		return apperr.Wrap(apperr.Invalid, "config: max-concurrency must be >= 0", nil)
	}
	if !validThinkingLevels[feature.ThinkingLevel(cfg.ThinkingLevel)] {
		return apperr.Wrap(apperr.Invalid, fmt.Sprintf("config: unknown thinking-level %q", cfg.ThinkingLevel), nil)
	}
	if !validReasoningEfforts[feature.ReasoningEffort(cfg.ReasoningEffort)] {
		return apperr.Wrap(apperr.Invalid, fmt.Sprintf("config: unknown reasoning-effort %q", cfg.ReasoningEffort), nil)
	}
	return nil
}

// Categories reads .automaker/categories.json, returning nil if absent.
func Categories(projectPath string) ([]string, error) {
	path := filepath.Join(projectPath, ".automaker", "categories.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "reading categories.json", err)
	}
	var cats []string
	if err := json.Unmarshal(data, &cats); err != nil {
		return nil, apperr.Wrap(apperr.Invalid, "parsing categories.json", err)
	}
	return cats, nil
}
