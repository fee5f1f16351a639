// Package ux renders the engine's terminal output: colored event
// headers for a feature run and the project status table.
//
// Grounded on the teacher's internal/ux/output.go (ANSI color consts,
// a timestamp-prefixed header/complete/fail triad per pipeline phase),
// generalized from "phase N/total" headers to "feature <id>" headers
// since this engine drives many independently-scheduled features
// instead of one linear phase sequence.
package ux

import (
	"fmt"
	"strings"
	"time"
)

// ANSI color helpers
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

func timestamp() string {
	return time.Now().Format("15:04:05")
}

// FeatureHeader prints a timestamped header when a feature run starts.
func FeatureHeader(featureID, description string) {
	fmt.Printf("\n%s[%s]%s %s══════════════════════════════════════%s\n",
		Dim, timestamp(), Reset, Cyan, Reset)
	fmt.Printf("%s[%s]%s  %sFeature %s%s: %s\n",
		Dim, timestamp(), Reset, Bold, featureID, Reset, description)
	fmt.Printf("%s[%s]%s %s══════════════════════════════════════%s\n",
		Dim, timestamp(), Reset, Cyan, Reset)
}

// FeatureComplete prints a feature completion message.
func FeatureComplete(featureID string, duration time.Duration) {
	m := int(duration.Minutes())
	s := int(duration.Seconds()) % 60
	fmt.Printf("%s[%s]%s  %s✓ Feature %s finished (%dm %02ds)%s\n",
		Dim, timestamp(), Reset, Green, featureID, m, s, Reset)
}

// FeatureFail prints a feature run failure message.
func FeatureFail(featureID, errMsg string) {
	fmt.Printf("%s[%s]%s  %s✗ Feature %s failed: %s%s\n",
		Dim, timestamp(), Reset, Red, featureID, errMsg, Reset)
}

// FeatureAborted prints a feature abort message.
func FeatureAborted(featureID string) {
	fmt.Printf("%s[%s]%s  %s⏹ Feature %s aborted%s\n",
		Dim, timestamp(), Reset, Yellow, featureID, Reset)
}

// ResumeHint prints a resume command hint.
func ResumeHint(featureID string) {
	fmt.Printf("\n%sResume:%s automakerd resume %s\n", Yellow, Reset, featureID)
}

// StreamText prints a line of assistant text.
func StreamText(text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	fmt.Printf("  %s\n", text)
}

// ToolUse prints an inline tool call.
func ToolUse(name, input string) {
	summary := input
	if len(summary) > 80 {
		summary = summary[:77] + "..."
	}
	fmt.Printf("  %s⚡ %s%s %s\n", Cyan, name, Reset, summary)
}

// Success prints a final all-clear message after an auto-mode tick
// finds nothing left to run.
func Success(verifiedCount int) {
	fmt.Printf("\n%s[%s]%s  %s%s══ %d feature(s) verified, nothing left to run ══%s\n\n",
		Dim, timestamp(), Reset, Bold, Green, verifiedCount, Reset)
}
