// Command automakerd drives a project's feature board through an
// agentic implementation pipeline: auto-mode scheduling, worktree
// provisioning, agent CLI invocation, and the MCP tool-call bridge.
//
// Grounded on the teacher's (jorge-barreto/orc) cmd/orc/main.go command
// layout (one urfave/cli/v3 Command per subcommand, a shared
// findProjectRoot-style resolution helper), generalized from a single
// linear ticket run to a long-lived daemon serving a feature board.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/automaker/engine/internal/agentrunner"
	"github.com/automaker/engine/internal/analyze"
	"github.com/automaker/engine/internal/config"
	"github.com/automaker/engine/internal/docs"
	"github.com/automaker/engine/internal/doctor"
	"github.com/automaker/engine/internal/events"
	"github.com/automaker/engine/internal/feature"
	"github.com/automaker/engine/internal/mcpbridge"
	"github.com/automaker/engine/internal/orchestrator"
	"github.com/automaker/engine/internal/ux"
	"github.com/automaker/engine/internal/worktree"
)

func main() {
	app := &cli.Command{
		Name:        "automakerd",
		Usage:       "Autonomous feature orchestrator",
		Description: "Run 'automakerd docs' for documentation on project config, feature records, and more.",
		Commands: []*cli.Command{
			serveCmd(),
			runCmd(),
			statusCmd(),
			doctorCmd(),
			docsCmd(),
			verifyCmd(),
			resumeCmd(),
			followUpCmd(),
			stopCmd(),
			commitCmd(),
			mergeCmd(),
			revertCmd(),
			analyzeCmd(),
			loginCmd(),
			logoutCmd(),
			settingsCmd(),
			sessionsCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%serror:%s %v\n", ux.Red, ux.Reset, err)
		os.Exit(1)
	}
}

// components bundles every long-lived object the engine needs, wired
// once per process and shared across commands operating on one project.
type components struct {
	store  feature.Store
	wt     *worktree.Manager
	runner *agentrunner.Runner
	bus    *events.Bus
	orch   *orchestrator.Orchestrator
	bridge *mcpbridge.Bridge
}

func newComponents(projectPath string) (*components, error) {
	store := feature.NewFSStore(func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
	})
	wt := worktree.NewManager(nil)
	registry := agentrunner.NewRegistry(agentrunner.ClaudeCodeProvider{}, agentrunner.CodexProvider{}, agentrunner.OpenCodeProvider{})
	runner := agentrunner.NewRunner(registry)
	bus := events.NewBus()
	orch := orchestrator.New(store, wt, runner, bus)
	bridge := mcpbridge.New(orch.Callbacks(projectPath))
	return &components{store: store, wt: wt, runner: runner, bus: bus, orch: orch, bridge: bridge}, nil
}

func projectSettingsFrom(cfg *config.ProjectConfig) orchestrator.ProjectSettings {
	settings := orchestrator.ProjectSettings{
		WorktreesEnabled:          true,
		MaxConcurrency:            1,
		DefaultProvider:           "claude-code",
		PlanApprovalFreshWorktree: cfg.PlanApprovalFreshWorktree,
		MergeSquashByDefault:      cfg.MergeSquashByDefault,
	}
	if cfg.Provider != "" {
		settings.DefaultProvider = cfg.Provider
	}
	if cfg.Model != "" {
		settings.DefaultModel = cfg.Model
	}
	if cfg.ThinkingLevel != "" {
		settings.DefaultThinkingLevel = feature.ThinkingLevel(cfg.ThinkingLevel)
	}
	if cfg.ReasoningEffort != "" {
		settings.DefaultReasoningEffort = feature.ReasoningEffort(cfg.ReasoningEffort)
	}
	if cfg.MaxConcurrency > 0 {
		settings.MaxConcurrency = cfg.MaxConcurrency
	}
	if cfg.WorktreesEnabled != nil {
		settings.WorktreesEnabled = *cfg.WorktreesEnabled
	}
	return settings
}

func projectFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "project", Usage: "Project root (defaults to cwd)", Value: "."}
}

const defaultBridgeAddr = "127.0.0.1:8711"

func bridgeAddrFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "bridge-addr", Usage: "MCP bridge listen address", Value: defaultBridgeAddr}
}

// startBridge wires c's Tool-Call Bridge into its Orchestrator and serves
// the bridge's HTTP endpoint in the background until ctx is cancelled, so
// an agent spawned by this command can call update_feature_status,
// update_plan, and attach_file mid-turn (spec.md §4.3, §4.4). Bridge
// startup failures (e.g. the address is already in use by a 'serve'
// process for this project) are reported as warnings: a command that
// never exercises the bridge should still be able to run.
func startBridge(ctx context.Context, c *components, addr string) {
	c.orch.SetBridge(c.bridge, addr)
	go func() {
		if err := c.bridge.Serve(ctx, addr); err != nil {
			fmt.Fprintf(os.Stderr, "%swarning:%s mcp bridge: %v\n", ux.Yellow, ux.Reset, err)
		}
	}()
}

func resolveProject(cmd *cli.Command) (string, error) {
	path := cmd.String("project")
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving project path: %w", err)
	}
	return abs, nil
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start auto-mode and the MCP tool bridge for a project",
		Flags: []cli.Flag{
			projectFlag(),
			bridgeAddrFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			projectPath, err := resolveProject(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(projectPath)
			if err != nil {
				return fmt.Errorf("loading project config: %w", err)
			}

			c, err := newComponents(projectPath)
			if err != nil {
				return err
			}
			if err := c.runner.Registry.Preflight(); err != nil {
				fmt.Fprintf(os.Stderr, "%swarning:%s %v\n", ux.Yellow, ux.Reset, err)
			}
			c.orch.SetBridge(c.bridge, cmd.String("bridge-addr"))

			watcher, err := config.NewWatcher(projectPath, c.bus)
			if err == nil {
				go watcher.Run(ctx)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			bridgeErrCh := make(chan error, 1)
			go func() { bridgeErrCh <- c.bridge.Serve(ctx, cmd.String("bridge-addr")) }()

			sub := c.bus.Subscribe()
			defer sub.Close()
			go printEvents(sub)

			if err := c.orch.Start(ctx, projectPath, projectSettingsFrom(cfg)); err != nil {
				return fmt.Errorf("starting auto-mode: %w", err)
			}

			fmt.Printf("%sautomakerd%s serving %s (bridge on %s)\n", ux.Bold, ux.Reset, projectPath, cmd.String("bridge-addr"))

			select {
			case <-ctx.Done():
			case err := <-bridgeErrCh:
				if err != nil {
					return fmt.Errorf("mcp bridge: %w", err)
				}
			}
			c.orch.Stop(projectPath)
			return nil
		},
	}
}

func printEvents(sub *events.Subscription) {
	for ev := range sub.C {
		switch ev.Kind {
		case events.KindFeatureStarted:
			ux.FeatureHeader(ev.FeatureID, "running")
		case events.KindStream:
			if agentEv, ok := ev.Payload.(agentrunner.Event); ok {
				ux.StreamText(agentEv.Text)
			}
		case events.KindToolUse:
			if agentEv, ok := ev.Payload.(agentrunner.Event); ok {
				ux.ToolUse(agentEv.ToolName, agentEv.ToolInput)
			}
		case events.KindFeatureCompleted:
			ux.FeatureComplete(ev.FeatureID, 0)
		case events.KindFeatureErrored:
			ux.FeatureFail(ev.FeatureID, fmt.Sprintf("%v", ev.Payload))
		case events.KindFeatureAborted:
			ux.FeatureAborted(ev.FeatureID)
		}
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a single feature's next agent turn",
		ArgsUsage: "<feature-id>",
		Flags:     []cli.Flag{projectFlag(), bridgeAddrFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			featureID := cmd.Args().First()
			if featureID == "" {
				return fmt.Errorf("feature-id argument is required")
			}
			projectPath, err := resolveProject(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(projectPath)
			if err != nil {
				return fmt.Errorf("loading project config: %w", err)
			}
			c, err := newComponents(projectPath)
			if err != nil {
				return err
			}
			c.orch.Configure(projectPath, projectSettingsFrom(cfg))

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			startBridge(ctx, c, cmd.String("bridge-addr"))

			start := time.Now()
			if err := c.orch.RunFeature(ctx, projectPath, featureID); err != nil {
				ux.FeatureFail(featureID, err.Error())
				return err
			}
			ux.FeatureComplete(featureID, time.Since(start))
			return nil
		},
	}
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the project's feature board",
		Flags: []cli.Flag{projectFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			projectPath, err := resolveProject(cmd)
			if err != nil {
				return err
			}
			c, err := newComponents(projectPath)
			if err != nil {
				return err
			}
			features, err := c.store.List(projectPath)
			if err != nil {
				return fmt.Errorf("listing features: %w", err)
			}
			ux.RenderStatus(projectPath, c.orch.Status(projectPath), features)
			return nil
		},
	}
}

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:      "doctor",
		Usage:     "Diagnose a feature with a recorded error using AI",
		ArgsUsage: "<feature-id>",
		Flags:     []cli.Flag{projectFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			featureID := cmd.Args().First()
			if featureID == "" {
				return fmt.Errorf("feature-id argument is required")
			}
			projectPath, err := resolveProject(cmd)
			if err != nil {
				return err
			}
			c, err := newComponents(projectPath)
			if err != nil {
				return err
			}
			return doctor.Run(ctx, projectPath, c.store, c.wt, featureID)
		},
	}
}

// featureCmd builds a subcommand that takes a single <feature-id>
// argument and calls fn with the resolved project path and feature id.
func featureCmd(name, usage string, fn func(ctx context.Context, c *components, projectPath, featureID string) error) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<feature-id>",
		Flags:     []cli.Flag{projectFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			featureID := cmd.Args().First()
			if featureID == "" {
				return fmt.Errorf("feature-id argument is required")
			}
			projectPath, err := resolveProject(cmd)
			if err != nil {
				return err
			}
			c, err := newComponents(projectPath)
			if err != nil {
				return err
			}
			return fn(ctx, c, projectPath, featureID)
		},
	}
}

// agentFeatureCmd is featureCmd for subcommands that invoke the agent
// directly (rather than just the worktree manager or store), so they also
// need the Tool-Call Bridge wired and serving for the run's duration.
func agentFeatureCmd(name, usage string, fn func(ctx context.Context, c *components, projectPath, featureID string) error) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<feature-id>",
		Flags:     []cli.Flag{projectFlag(), bridgeAddrFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			featureID := cmd.Args().First()
			if featureID == "" {
				return fmt.Errorf("feature-id argument is required")
			}
			projectPath, err := resolveProject(cmd)
			if err != nil {
				return err
			}
			c, err := newComponents(projectPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			startBridge(ctx, c, cmd.String("bridge-addr"))
			return fn(ctx, c, projectPath, featureID)
		},
	}
}

func verifyCmd() *cli.Command {
	return agentFeatureCmd("verify", "Ask the agent to run and interpret tests for an in_progress feature", func(ctx context.Context, c *components, projectPath, featureID string) error {
		return c.orch.VerifyFeature(ctx, projectPath, featureID)
	})
}

func resumeCmd() *cli.Command {
	return agentFeatureCmd("resume", "Resume a feature's prior agent session", func(ctx context.Context, c *components, projectPath, featureID string) error {
		return c.orch.ResumeFeature(ctx, projectPath, featureID)
	})
}

func stopCmd() *cli.Command {
	return featureCmd("stop", "Cancel a feature's in-flight agent run", func(ctx context.Context, c *components, projectPath, featureID string) error {
		return c.orch.StopFeature(projectPath, featureID)
	})
}

func revertCmd() *cli.Command {
	return featureCmd("revert", "Discard a feature's worktree and branch, resetting it to backlog", func(ctx context.Context, c *components, projectPath, featureID string) error {
		return c.orch.RevertFeature(ctx, projectPath, featureID)
	})
}

func commitCmd() *cli.Command {
	return featureCmd("commit", "Merge a waiting_approval feature's worktree and mark it verified", func(ctx context.Context, c *components, projectPath, featureID string) error {
		return c.orch.CommitFeature(ctx, projectPath, featureID)
	})
}

func followUpCmd() *cli.Command {
	return &cli.Command{
		Name:      "follow-up",
		Usage:     "Send a follow-up message to a waiting_approval feature",
		ArgsUsage: "<feature-id>",
		Flags: []cli.Flag{
			projectFlag(),
			bridgeAddrFlag(),
			&cli.StringFlag{Name: "message", Usage: "Follow-up instruction for the agent", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			featureID := cmd.Args().First()
			if featureID == "" {
				return fmt.Errorf("feature-id argument is required")
			}
			projectPath, err := resolveProject(cmd)
			if err != nil {
				return err
			}
			c, err := newComponents(projectPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			startBridge(ctx, c, cmd.String("bridge-addr"))
			return c.orch.FollowUpFeature(ctx, projectPath, featureID, cmd.String("message"), nil)
		},
	}
}

func mergeCmd() *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "Merge a verified feature's branch back",
		ArgsUsage: "<feature-id>",
		Flags: []cli.Flag{
			projectFlag(),
			&cli.BoolFlag{Name: "squash", Usage: "Squash-merge instead of a regular merge commit", Value: true},
			&cli.StringFlag{Name: "message", Usage: "Commit or squash message"},
			&cli.BoolFlag{Name: "cleanup", Usage: "Remove the worktree and branch after a successful merge"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			featureID := cmd.Args().First()
			if featureID == "" {
				return fmt.Errorf("feature-id argument is required")
			}
			projectPath, err := resolveProject(cmd)
			if err != nil {
				return err
			}
			c, err := newComponents(projectPath)
			if err != nil {
				return err
			}
			opts := worktree.MergeOptions{
				Squash:        cmd.Bool("squash"),
				SquashMessage: cmd.String("message"),
				CommitMessage: cmd.String("message"),
				Cleanup:       cmd.Bool("cleanup"),
			}
			return c.orch.MergeFeature(ctx, projectPath, featureID, opts)
		},
	}
}

func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Propose new backlog features by analyzing the project",
		Flags: []cli.Flag{projectFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			projectPath, err := resolveProject(cmd)
			if err != nil {
				return err
			}
			c, err := newComponents(projectPath)
			if err != nil {
				return err
			}
			var created []feature.Feature
			err = c.orch.AnalyzeProject(ctx, projectPath, func(ctx context.Context) error {
				var err error
				created, err = analyze.Propose(ctx, projectPath, c.store)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Printf("proposed %d feature(s)\n", len(created))
			for _, f := range created {
				fmt.Printf("  %s  %s\n", f.ID, f.Description)
			}
			return nil
		},
	}
}

func docsCmd() *cli.Command {
	return &cli.Command{
		Name:      "docs",
		Usage:     "Show documentation",
		ArgsUsage: "[topic]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := cmd.Args().First()
			if name == "" {
				fmt.Print("\nAvailable topics:\n\n")
				for _, t := range docs.All() {
					fmt.Printf("  %-12s %s\n", t.Name, t.Summary)
				}
				fmt.Println("\nRun 'automakerd docs <topic>' to read a topic.")
				return nil
			}
			t, err := docs.Get(name)
			if err != nil {
				return err
			}
			fmt.Print(t.Content)
			return nil
		},
	}
}
