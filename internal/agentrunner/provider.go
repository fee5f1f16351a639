// Package agentrunner implements the Agent Runner: spawning the external
// coding-agent CLI, streaming its output, enforcing cancellation, and
// persisting a transcript (spec.md §4.3).
//
// Generalized from the teacher's (jorge-barreto/orc) single-binary
// `claude -p --output-format stream-json` invocation into a Provider
// capability interface with one concrete variant per supported CLI, per
// the design note in spec.md §9 ("Agent CLIs as capability + variants").
package agentrunner

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// EventType tags the structured messages the runner understands from a
// provider's output stream (spec.md §4.3).
type EventType string

const (
	EventAssistantText EventType = "assistant_text"
	EventToolUse       EventType = "tool_use"
	EventResult        EventType = "result"
	EventLog           EventType = "log"
)

// Event is one parsed message from a provider's stdout stream.
type Event struct {
	Type EventType

	// AssistantText
	Text string

	// ToolUse
	ToolName  string
	ToolInput string

	// Result
	Summary string

	// Log (anything not otherwise recognized, copied through verbatim)
	Raw string
}

// ImageBlock is a provider-specific encoding of one image attachment.
type ImageBlock struct {
	MediaType string
	Base64    string
}

// RunRequest carries everything a Provider needs to build its CLI
// invocation for one turn.
type RunRequest struct {
	Prompt           string
	Model            string
	ThinkingLevel    string
	ReasoningEffort  string
	AllowedTools     []string
	ToolBridgeAddr   string
	RunToken         string
	SessionID        string
	Resume           bool
	ImagePaths       []string
}

// Provider is the capability set spec.md §9 calls for: "one capability set
// (spawn, stream, cancel, attach-images, pass-tool-bridge) with concrete
// variants per provider." The Orchestrator and Runner depend only on this
// interface, never on a concrete CLI name.
type Provider interface {
	// Name identifies the provider for logging and config (e.g. "claude-code").
	Name() string
	// BinaryName is the executable discovered on PATH.
	BinaryName() string
	// BuildArgs constructs the CLI arguments for one turn.
	BuildArgs(req RunRequest) []string
	// ParseLine interprets one line of the child's stdout. ok is false if
	// the line did not parse as a recognized message (it is still
	// forwarded as an EventLog by the caller).
	ParseLine(line []byte) (Event, bool)
	// EncodeImage base64-encodes path with a MIME type sniffed from its
	// extension.
	EncodeImage(path string) (ImageBlock, error)
}

// Registry resolves a provider by name. The Runner holds one Registry
// and looks up the project's configured provider (or the registry's
// default) at run time.
type Registry struct {
	byName map[string]Provider
	def    string
}

// NewRegistry builds a Registry from the given providers; the first one
// becomes the default.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for i, p := range providers {
		r.byName[p.Name()] = p
		if i == 0 {
			r.def = p.Name()
		}
	}
	return r
}

// Get returns the named provider, or the registry's default if name is
// empty. Returns (nil, false) for an unsupported provider name; Runner.Run
// reports that as an apperr.Invalid error, and automakerd exits with
// status 1 for it as for any other error (there is no separate exit code).
func (r *Registry) Get(name string) (Provider, bool) {
	if name == "" {
		name = r.def
	}
	p, ok := r.byName[name]
	return p, ok
}

// Preflight checks that every registered provider's CLI binary is on
// PATH, so a missing binary is reported at startup (serve prints it as a
// warning and keeps running) rather than discovered mid-run.
//
// Grounded on the teacher's (jorge-barreto/orc) internal/dispatch
// Preflight, which checked the binaries a workflow's phases declared
// they needed; generalized from "binaries named by phase type" to
// "binaries named by every registered agent provider".
func (r *Registry) Preflight() error {
	var missing []string
	for name, p := range r.byName {
		if _, err := exec.LookPath(p.BinaryName()); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", p.BinaryName(), name))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("required agent binaries not found in PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
