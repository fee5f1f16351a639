package ux

import (
	"fmt"

	"github.com/automaker/engine/internal/feature"
	"github.com/automaker/engine/internal/orchestrator"
)

// RenderStatus prints the project's feature board: auto-mode state,
// concurrency, and every feature with its status, in the order given,
// with an arrow marking the features that are currently running.
func RenderStatus(projectPath string, st orchestrator.Status, features []feature.Feature) {
	fmt.Printf("%sProject:%s  %s\n", Bold, Reset, projectPath)
	mode := "stopped"
	if st.AutoModeEnabled {
		mode = fmt.Sprintf("%srunning%s", Green, Reset)
	}
	fmt.Printf("%sAuto-mode:%s %s %s(max concurrency %d)%s\n", Bold, Reset, mode, Dim, st.MaxConcurrency, Reset)

	running := make(map[string]bool, len(st.Running))
	for _, id := range st.Running {
		running[id] = true
	}

	fmt.Printf("\n%sFeatures:%s\n", Bold, Reset)
	if len(features) == 0 {
		fmt.Printf("  %s(none)%s\n", Dim, Reset)
		return
	}
	for _, f := range features {
		marker := "  "
		if running[f.ID] {
			marker = fmt.Sprintf("%s→%s ", Yellow, Reset)
		}
		color := statusColor(f.Status)
		desc := f.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		fmt.Printf("  %s%-12s%s %s%-17s%s %s\n", marker, f.ID, Reset, color, f.Status, Reset, desc)
	}
	fmt.Println()
}

func statusColor(s feature.Status) string {
	switch s {
	case feature.StatusVerified:
		return Green
	case feature.StatusInProgress:
		return Cyan
	case feature.StatusWaitingApproval:
		return Yellow
	default:
		return Dim
	}
}
