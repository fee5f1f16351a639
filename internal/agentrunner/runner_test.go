package agentrunner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeSubscriber records every published event in order.
type fakeSubscriber struct {
	events []Event
}

func (f *fakeSubscriber) Publish(featureID string, ev Event) {
	f.events = append(f.events, ev)
}

// echoProvider drives a tiny shell script standing in for a real agent
// CLI, so Run can be exercised without a real provider binary on PATH.
type echoProvider struct {
	script string
}

func (p echoProvider) Name() string       { return "echo" }
func (p echoProvider) BinaryName() string { return p.script }
func (p echoProvider) BuildArgs(req RunRequest) []string {
	return nil
}
func (p echoProvider) ParseLine(line []byte) (Event, bool) {
	text := strings.TrimPrefix(string(line), "TEXT:")
	if text != string(line) {
		return Event{Type: EventAssistantText, Text: text}, true
	}
	if strings.HasPrefix(string(line), "RESULT:") {
		return Event{Type: EventResult, Summary: strings.TrimPrefix(string(line), "RESULT:")}, true
	}
	return Event{}, false
}
func (p echoProvider) EncodeImage(path string) (ImageBlock, error) {
	return EncodeImageFile(path)
}

func writeEchoScript(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-agent.sh")
	var body strings.Builder
	body.WriteString("#!/bin/sh\n")
	for _, l := range lines {
		body.WriteString("echo '" + l + "'\n")
	}
	if err := os.WriteFile(path, []byte(body.String()), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunner_Run_StreamsEventsAndPersistsTranscript(t *testing.T) {
	dir := t.TempDir()
	script := writeEchoScript(t, dir,
		"TEXT:Hello",
		"TEXT: world",
		"RESULT:done",
	)

	provider := echoProvider{script: script}
	registry := NewRegistry(provider)
	runner := NewRunner(registry)

	sub := &fakeSubscriber{}
	transcriptPath := filepath.Join(dir, "agent-output.md")

	outcome, err := runner.Run(context.Background(), RunParams{
		FeatureID:        "feat-1",
		ProviderName:     "echo",
		WorkingDirectory: dir,
		Prompt:           "do the thing",
		TranscriptPath:   transcriptPath,
		Subscriber:       sub,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Aborted {
		t.Fatal("outcome should not be aborted")
	}
	if outcome.Transcript != "Hello world" {
		t.Fatalf("Transcript = %q", outcome.Transcript)
	}
	if outcome.Summary != "done" {
		t.Fatalf("Summary = %q", outcome.Summary)
	}

	textEvents := 0
	for _, ev := range sub.events {
		if ev.Type == EventAssistantText {
			textEvents++
		}
	}
	if textEvents != 2 {
		t.Fatalf("expected 2 assistant_text events, got %d", textEvents)
	}

	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Hello world") {
		t.Fatalf("transcript file missing text: %q", string(data))
	}
}

func TestRunner_Run_RejectsDoubleRun(t *testing.T) {
	dir := t.TempDir()
	script := writeEchoScript(t, dir, "") // never runs: a live session for feat-1 is registered below

	provider := echoProvider{script: script}
	registry := NewRegistry(provider)
	runner := NewRunner(registry)

	runner.mu.Lock()
	runner.sessions["feat-1"] = &Session{FeatureID: "feat-1", StartedAt: time.Now()}
	runner.mu.Unlock()

	_, err := runner.Run(context.Background(), RunParams{
		FeatureID:        "feat-1",
		ProviderName:     "echo",
		WorkingDirectory: dir,
		TranscriptPath:   filepath.Join(dir, "agent-output.md"),
	})
	if err == nil {
		t.Fatal("expected error for double-run of the same feature")
	}
}

func TestRunner_Run_UnsupportedProvider(t *testing.T) {
	runner := NewRunner(NewRegistry(echoProvider{script: "/bin/true"}))
	_, err := runner.Run(context.Background(), RunParams{
		FeatureID:    "feat-2",
		ProviderName: "nonexistent",
	})
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestRunner_Stop_CancelsLiveSession(t *testing.T) {
	dir := t.TempDir()
	script := writeEchoScript(t, dir, "TEXT:partial")
	_ = script

	runner := NewRunner(NewRegistry(echoProvider{script: script}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := &Session{FeatureID: "feat-3", StartedAt: time.Now(), cancel: cancel}
	runner.mu.Lock()
	runner.sessions["feat-3"] = sess
	runner.mu.Unlock()

	if !runner.Stop("feat-3") {
		t.Fatal("Stop should report a live session was found")
	}
	if ctx.Err() == nil {
		t.Fatal("Stop should cancel the live session's context")
	}
	if runner.Stop("nonexistent") {
		t.Fatal("Stop should report no session for an unknown feature id")
	}
}
