package agentrunner

import (
	"strings"
	"testing"
)

type stubProvider struct {
	name, binary string
}

func (p stubProvider) Name() string                         { return p.name }
func (p stubProvider) BinaryName() string                   { return p.binary }
func (p stubProvider) BuildArgs(req RunRequest) []string     { return nil }
func (p stubProvider) ParseLine(line []byte) (Event, bool)   { return Event{}, false }
func (p stubProvider) EncodeImage(path string) (ImageBlock, error) {
	return ImageBlock{}, nil
}

func TestRegistry_Preflight_AllPresent(t *testing.T) {
	reg := NewRegistry(stubProvider{name: "a", binary: "sh"})
	if err := reg.Preflight(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestRegistry_Preflight_ReportsMissingBinaries(t *testing.T) {
	reg := NewRegistry(stubProvider{name: "a", binary: "sh"}, stubProvider{name: "b", binary: "definitely-not-a-real-binary-xyz"})
	err := reg.Preflight()
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
	if !strings.Contains(err.Error(), "definitely-not-a-real-binary-xyz") {
		t.Errorf("expected error to name the missing binary, got %v", err)
	}
}
