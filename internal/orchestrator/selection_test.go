package orchestrator

import (
	"testing"

	"github.com/automaker/engine/internal/feature"
)

func mkFeature(id string, priority *int, createdAt string, status feature.Status, deps ...string) feature.Feature {
	return feature.Feature{ID: id, Priority: priority, CreatedAt: createdAt, Status: status, Dependencies: deps}
}

func intp(i int) *int { return &i }

func TestSelectCandidates_SortsByPriorityThenCreatedAt(t *testing.T) {
	all := []feature.Feature{
		mkFeature("c", intp(2), "3", feature.StatusBacklog),
		mkFeature("a", intp(1), "2", feature.StatusBacklog),
		mkFeature("b", intp(1), "1", feature.StatusBacklog),
	}
	got := SelectCandidates(all, nil, 10)
	if len(got) != 3 || got[0].ID != "b" || got[1].ID != "a" || got[2].ID != "c" {
		t.Fatalf("got order %v", ids(got))
	}
}

func TestSelectCandidates_UnsetPrioritySortsAsMedium(t *testing.T) {
	all := []feature.Feature{
		mkFeature("low", intp(3), "1", feature.StatusBacklog),
		mkFeature("unset", nil, "2", feature.StatusBacklog),
		mkFeature("high", intp(1), "3", feature.StatusBacklog),
	}
	got := SelectCandidates(all, nil, 10)
	if ids(got) != "high,unset,low" {
		t.Fatalf("got order %s", ids(got))
	}
}

func TestSelectCandidates_ExcludesRunningAndTerminal(t *testing.T) {
	all := []feature.Feature{
		mkFeature("running", intp(1), "1", feature.StatusBacklog),
		mkFeature("verified", intp(1), "2", feature.StatusVerified),
		mkFeature("archived", intp(1), "3", feature.StatusArchived),
		mkFeature("eligible", intp(1), "4", feature.StatusBacklog),
	}
	got := SelectCandidates(all, map[string]bool{"running": true}, 10)
	if ids(got) != "eligible" {
		t.Fatalf("got %s", ids(got))
	}
}

func TestSelectCandidates_FiltersUnsatisfiedDependency(t *testing.T) {
	all := []feature.Feature{
		mkFeature("blocked", intp(1), "1", feature.StatusBacklog, "dep"),
		mkFeature("dep", intp(1), "0", feature.StatusInProgress),
		mkFeature("free", intp(1), "2", feature.StatusBacklog, "done"),
		mkFeature("done", intp(1), "0", feature.StatusVerified),
	}
	got := SelectCandidates(all, nil, 10)
	if ids(got) != "free" {
		t.Fatalf("got %s", ids(got))
	}
}

func TestSelectCandidates_RespectsFreeSlots(t *testing.T) {
	all := []feature.Feature{
		mkFeature("a", intp(1), "1", feature.StatusBacklog),
		mkFeature("b", intp(1), "2", feature.StatusBacklog),
		mkFeature("c", intp(1), "3", feature.StatusBacklog),
	}
	got := SelectCandidates(all, nil, 2)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
}

func TestSelectCandidates_ZeroFreeSlotsReturnsNone(t *testing.T) {
	all := []feature.Feature{mkFeature("a", intp(1), "1", feature.StatusBacklog)}
	if got := SelectCandidates(all, nil, 0); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func ids(fs []feature.Feature) string {
	out := ""
	for i, f := range fs {
		if i > 0 {
			out += ","
		}
		out += f.ID
	}
	return out
}
