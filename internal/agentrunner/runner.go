package agentrunner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/automaker/engine/internal/apperr"
)

// GracePeriod is the bounded delay between sending the termination signal
// and force-killing a cancelled agent process. spec.md §9 leaves this
// unspecified ("an implementation should choose one (seconds-scale) and
// document it"); this engine uses 5 seconds, matching the teacher's own
// cmd.WaitDelay constant in internal/dispatch/agent.go.
const GracePeriod = 5 * time.Second

// Subscriber receives streamed events tagged with the feature id they
// belong to, in emission order (spec.md §5 ordering guarantee).
type Subscriber interface {
	Publish(featureID string, event Event)
}

// RunOutcome is what Run returns once the child process exits or is
// cancelled.
type RunOutcome struct {
	Aborted   bool
	ExitCode  int
	Summary   string
	Transcript string
	SessionID string
}

// Session is the live state of one in-flight agent invocation
// (spec.md §3 "Session").
type Session struct {
	FeatureID     string
	TranscriptPath string
	StartedAt     time.Time

	cancel context.CancelFunc
	mu     sync.Mutex
	proc   *exec.Cmd
}

// Stop triggers this session's cancel signal; teardown is observed via
// the subscriber, not synchronously here (spec.md §5).
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Runner spawns one external-agent CLI process end-to-end, streaming its
// output and persisting a transcript (spec.md §4.3).
type Runner struct {
	Registry *Registry

	mu       sync.Mutex
	sessions map[string]*Session // keyed by featureID: "at most one live session" (spec.md §8)
}

// NewRunner constructs a Runner bound to a provider Registry.
func NewRunner(registry *Registry) *Runner {
	return &Runner{Registry: registry, sessions: make(map[string]*Session)}
}

// RunParams is the Run entry point's input (spec.md §4.3 public contract).
type RunParams struct {
	FeatureID        string
	ProviderName     string
	WorkingDirectory string
	Prompt           string
	Model            string
	ThinkingLevel    string
	ReasoningEffort  string
	AllowedTools     []string
	ToolBridgeAddr   string
	RunToken         string
	TranscriptPath   string
	Subscriber       Subscriber
	SessionID        string // non-empty + Resume=true for sendMessage/resume
	Resume           bool
	ImagePaths       []string
}

// HasLiveSession reports whether featureID already has a running process,
// enforcing the "no double-run" invariant (spec.md §8) at the call site.
func (r *Runner) HasLiveSession(featureID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[featureID]
	return ok
}

// Run executes one provider turn end-to-end: builds the command line,
// starts the child, streams its stdout, persists the transcript, and
// honors ctx cancellation with a bounded grace period before force-kill.
func (r *Runner) Run(ctx context.Context, p RunParams) (*RunOutcome, error) {
	if r.HasLiveSession(p.FeatureID) {
		return nil, apperr.Wrap(apperr.Conflict, fmt.Sprintf("feature %s already has a live agent session", p.FeatureID), nil)
	}

	provider, ok := r.Registry.Get(p.ProviderName)
	if !ok {
		return nil, apperr.Wrap(apperr.Invalid, fmt.Sprintf("unsupported agent provider %q", p.ProviderName), nil)
	}

	if _, err := exec.LookPath(provider.BinaryName()); err != nil {
		return nil, apperr.Wrap(apperr.External, fmt.Sprintf("agent CLI %q not found on PATH", provider.BinaryName()), err)
	}

	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	req := RunRequest{
		Prompt:          p.Prompt,
		Model:           p.Model,
		ThinkingLevel:   p.ThinkingLevel,
		ReasoningEffort: p.ReasoningEffort,
		AllowedTools:    p.AllowedTools,
		ToolBridgeAddr:  p.ToolBridgeAddr,
		RunToken:        p.RunToken,
		SessionID:       sessionID,
		Resume:          p.Resume,
		ImagePaths:      p.ImagePaths,
	}
	args := provider.BuildArgs(req)

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, provider.BinaryName(), args...)
	cmd.Dir = p.WorkingDirectory
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = GracePeriod

	logFile, err := os.OpenFile(p.TranscriptPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		cancel()
		return nil, apperr.Wrap(apperr.IO, "opening transcript file", err)
	}
	defer logFile.Close()
	cmd.Stderr = logFile

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, apperr.Wrap(apperr.External, "stdout pipe", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, apperr.Wrap(apperr.External, "starting agent process", err)
	}

	sess := &Session{FeatureID: p.FeatureID, TranscriptPath: p.TranscriptPath, StartedAt: time.Now(), cancel: cancel, proc: cmd}
	r.mu.Lock()
	r.sessions[p.FeatureID] = sess
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.sessions, p.FeatureID)
		r.mu.Unlock()
	}()

	outcome, streamErr := r.stream(runCtx, provider, p, stdout, logFile, sessionID)

	waitErr := cmd.Wait()
	if runCtx.Err() != nil {
		return &RunOutcome{Aborted: true, SessionID: sessionID}, nil
	}
	if streamErr != nil {
		return nil, apperr.Wrap(apperr.External, "reading agent output", streamErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
		} else {
			return nil, apperr.Wrap(apperr.External, "agent process failed", waitErr)
		}
	}
	return outcome, nil
}

// stream reads newline-delimited provider messages, publishes each as it
// arrives, appends it to the transcript, and accumulates the final
// result. Unrecognized lines are copied through verbatim as EventLog
// (spec.md §4.3: "Any other messages are copied through verbatim").
func (r *Runner) stream(ctx context.Context, provider Provider, p RunParams, stdout io.Reader, logFile io.Writer, sessionID string) (*RunOutcome, error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	var textBuf []byte
	outcome := &RunOutcome{SessionID: sessionID}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return outcome, nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		ev, ok := provider.ParseLine(line)
		if !ok {
			ev = Event{Type: EventLog, Raw: string(line)}
		}

		switch ev.Type {
		case EventAssistantText:
			textBuf = append(textBuf, ev.Text...)
			fmt.Fprint(logFile, ev.Text)
		case EventResult:
			outcome.Summary = ev.Summary
			fmt.Fprintf(logFile, "\n\n**Result:** %s\n", ev.Summary)
		case EventToolUse:
			fmt.Fprintf(logFile, "\n\n**Tool call:** %s(%s)\n", ev.ToolName, ev.ToolInput)
		case EventLog:
			fmt.Fprintf(logFile, "\n%s\n", ev.Raw)
		}

		if p.Subscriber != nil {
			p.Subscriber.Publish(p.FeatureID, ev)
		}
	}
	outcome.Transcript = string(textBuf)

	if err := scanner.Err(); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// Stop triggers the cancel signal for featureID's live session, if any.
func (r *Runner) Stop(featureID string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[featureID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	sess.Stop()
	return true
}
