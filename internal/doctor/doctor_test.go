package doctor

import (
	"strings"
	"testing"

	"github.com/automaker/engine/internal/feature"
)

func TestGatherTranscriptTail_Short(t *testing.T) {
	result := gatherTranscriptTail("line 1\nline 2\nline 3")
	if result != "line 1\nline 2\nline 3" {
		t.Errorf("expected full content, got %q", result)
	}
}

func TestGatherTranscriptTail_Long(t *testing.T) {
	var lines []string
	for i := 0; i < 300; i++ {
		lines = append(lines, "log line")
	}
	result := gatherTranscriptTail(strings.Join(lines, "\n"))
	if !strings.HasPrefix(result, "... (truncated to last 200 lines)") {
		t.Errorf("expected truncation prefix, got %q", result[:60])
	}
}

func TestGatherTranscriptTail_Missing(t *testing.T) {
	result := gatherTranscriptTail("")
	if result != "(no transcript found)" {
		t.Errorf("expected missing placeholder, got %q", result)
	}
}

func TestGatherFeature_IncludesCoreFields(t *testing.T) {
	f := &feature.Feature{ID: "f1", Status: feature.StatusInProgress, Description: "add a widget", Category: "ui", Model: "opus"}
	result := gatherFeature(f)
	for _, want := range []string{"ID: f1", "Status: in_progress", "Description: add a widget", "Category: ui", "Model: opus"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q in %q", want, result)
		}
	}
}

func TestGatherWorktreeStatus_NilWorktreePath(t *testing.T) {
	f := &feature.Feature{ID: "f1"}
	if got := gatherWorktreeStatus(nil, nil, f); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}
