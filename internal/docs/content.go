package docs

var topics = []Topic{
	{
		Name:    "quickstart",
		Title:   "Quick Start",
		Summary: "Getting started with automakerd",
		Content: topicQuickstart,
	},
	{
		Name:    "config",
		Title:   "Project Configuration",
		Summary: ".automaker/config.yaml schema, fields, and defaults",
		Content: topicConfig,
	},
	{
		Name:    "features",
		Title:   "Feature Records",
		Summary: "The feature.json schema and its status lifecycle",
		Content: topicFeatures,
	},
	{
		Name:    "providers",
		Title:   "Agent Providers",
		Summary: "Selecting and configuring claude-code, codex, or opencode",
		Content: topicProviders,
	},
	{
		Name:    "worktrees",
		Title:   "Worktree Isolation",
		Summary: "How features get an isolated git worktree, merge, and cleanup",
		Content: topicWorktrees,
	},
	{
		Name:    "cli",
		Title:   "Command Reference",
		Summary: "The automakerd subcommand surface",
		Content: topicCLI,
	},
}

const topicQuickstart = `Quick Start
===========

1. Initialize a project:

    cd your-project
    mkdir -p .automaker
    printf '%s' "describe your project here" > .automaker/app_spec.txt

2. Add features to the board, either by hand-writing
   .automaker/features/<id>/feature.json or by letting 'automakerd analyze'
   propose backlog features (see 'automakerd docs cli').

3. Start the engine:

    automakerd serve --project .

   This starts auto-mode: the scheduler picks backlog features up to
   the project's max-concurrency and drives each one through an agent
   turn until it reaches waiting_approval or verified.

4. Check the board at any time:

    automakerd status --project .

5. If a feature gets stuck, ask the doctor:

    automakerd doctor --project . <feature-id>
`

const topicConfig = `Project Configuration
=====================

.automaker/config.yaml is entirely optional — every field defaults if
absent.

    provider: claude-code        # claude-code | codex | opencode
    model: opus
    thinking-level: high         # none | low | medium | high | ultrathink
    reasoning-effort: medium     # none | minimal | low | medium | high | xhigh
    max-concurrency: 3
    worktrees-enabled: true
    plan-approval-fresh-worktree: false
    merge-squash-by-default: true

provider/model/thinking-level/reasoning-effort seed the default agent
invocation parameters for every feature that doesn't set its own.
max-concurrency bounds how many features the auto-mode scheduler runs
at once. worktrees-enabled turns off per-feature git worktrees for
projects that aren't git repositories. plan-approval-fresh-worktree
is read into the project settings, but no command approves plans, so
it has no effect on any run. merge-squash-by-default sets the merge
strategy 'automakerd commit' uses.

.automaker/categories.json is an optional flat JSON array of category
names shown as suggestions when creating a feature:

    ["backend", "frontend", "infra"]

.automaker/app_spec.txt, if present, is a free-text project description
woven into every feature's agent prompt as shared context.
`

const topicFeatures = `Feature Records
===============

Each feature is one JSON file at
.automaker/features/<id>/feature.json. Fields:

    id, description, category, priority, dependencies, status,
    skipTests, model, thinkingLevel, reasoningEffort, startedAt,
    justFinishedAt, summary, error, worktreePath, branchName,
    baseBranch, imagePaths, planSpec

status moves through a fixed lifecycle:

    backlog -> in_progress -> waiting_approval -> verified
                           \-> in_progress (on follow-up/resume)

archived is reachable from any status and is terminal. priority is
1 (high), 2 (medium, the default when unset), or 3 (low) and orders
the eligible features when the scheduler picks the next feature to
run; ties within the same priority fall back to creation order.

dependencies lists other feature ids that must reach verified (or
archived) before this one is eligible to run. skipTests downgrades an agent-reported
verified back to waiting_approval, since a human still needs to look
at untested work before it merges.

imagePaths accepts either a bare path string or an object
{"path": "...", ...metadata} for attachments the agent should see
alongside the feature description.
`

const topicProviders = `Agent Providers
===============

Three providers are built in:

  claude-code   invokes the 'claude' CLI in print/stream-json mode
  codex         invokes the 'codex' CLI in its own streaming JSON mode
  opencode      invokes the 'opencode' CLI in non-interactive run mode

Each feature can override the project's default model, thinking
level, and reasoning effort; an unset field falls back to
.automaker/config.yaml, then to the engine's own defaults. The
provider is always the project's default; a feature cannot override it.

Providers stream newline-delimited JSON events back to the engine:
assistant text, tool-use notices, and a final result. The engine
mirrors each event onto the project's event bus as it arrives, so a
'serve' client sees output live rather than after the agent exits.

A running agent can call back into the engine over a small MCP tool
surface (update_feature_status, update_plan, attach_file), authorized
by a short-lived run token minted for that turn only.
`

const topicWorktrees = `Worktree Isolation
==================

When worktrees-enabled is true and the project is a git
repository, starting a feature provisions an isolated worktree at
.automaker/worktrees/<slug> on a dedicated branch, so concurrent
features never collide on the same working tree. app_spec.txt and
categories.json are copied into the new worktree so the agent sees the
same project context it would in the main tree.

'automakerd merge <feature-id>' merges the feature's branch back
(as a squash merge unless --squash=false is given), and
'automakerd revert <feature-id>' discards the worktree and branch
entirely, resetting the feature to backlog.

Projects that aren't under version control, or that set
worktrees-enabled: false, run every feature directly in the project
root instead.
`

const topicCLI = `Command Reference
=================

automakerd serve --project <path>
    Start auto-mode for a project: the scheduler runs backlog features
    up to max-concurrency, prints its event stream, and serves the MCP
    tool bridge.

automakerd run <feature-id> --project <path>
    Run a single feature's next agent turn outside of auto-mode.

automakerd status --project <path>
    Print the project's feature board and auto-mode state.

automakerd doctor <feature-id> --project <path>
    Diagnose a feature with a recorded error using its transcript tail
    and worktree status.

automakerd verify <feature-id> --project <path>
    Ask the agent to run and interpret tests for an in_progress feature.

automakerd resume <feature-id> --project <path>
    Resume a feature's prior agent session from its last transcript.

automakerd follow-up <feature-id> --message <text> --project <path>
    Send a follow-up instruction to a waiting_approval feature, starting
    a new turn in the same worktree.

automakerd stop <feature-id> --project <path>
    Cancel a feature's in-flight agent run without changing its status.

automakerd commit <feature-id> --project <path>
    Merge a waiting_approval feature's worktree using the project's
    default merge strategy, then mark it verified.

automakerd merge <feature-id> [--squash] [--message] [--cleanup] --project <path>
    Merge a feature's branch back with explicit merge options.

automakerd revert <feature-id> --project <path>
    Discard a feature's worktree and branch, resetting it to backlog.

automakerd analyze --project <path>
    Gather project context and ask an agent to propose new backlog
    features. Runs as a singleton: a second analyze call against the
    same project while one is already running is rejected.

automakerd login <provider> <token>
    Store a provider credential in the per-user data directory.

automakerd logout <provider>
    Remove a stored provider credential.

automakerd settings show
automakerd settings set-setup-complete <true|false>
    Inspect or update per-user settings.json.

automakerd sessions list
automakerd sessions show <session-id>
automakerd sessions delete <session-id>
    Manage general-purpose conversational agent sessions, distinct from
    feature runs.

automakerd docs [topic]
    Show this documentation.
`
