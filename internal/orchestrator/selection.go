package orchestrator

import (
	"sort"

	"github.com/automaker/engine/internal/feature"
)

// SelectCandidates implements spec.md §4.5.2's scheduling tick: filter
// out features already running, in a terminal state, or blocked by an
// unsatisfied dependency; sort by priority ascending then creation time
// ascending; return at most freeSlots of them.
func SelectCandidates(all []feature.Feature, running map[string]bool, freeSlots int) []feature.Feature {
	if freeSlots <= 0 {
		return nil
	}

	statusByID := make(map[string]feature.Status, len(all))
	for _, f := range all {
		statusByID[f.ID] = f.Status
	}

	var candidates []feature.Feature
	for _, f := range all {
		if running[f.ID] {
			continue
		}
		if f.Status.IsTerminal() {
			continue
		}
		if !f.DependenciesSatisfied(statusByID) {
			continue
		}
		candidates = append(candidates, f)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].PriorityOrDefault(), candidates[j].PriorityOrDefault()
		if pi != pj {
			return pi < pj
		}
		return candidates[i].CreatedAt < candidates[j].CreatedAt
	})

	if len(candidates) > freeSlots {
		candidates = candidates[:freeSlots]
	}
	return candidates
}
