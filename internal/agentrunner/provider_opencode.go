package agentrunner

import "encoding/json"

// OpenCodeProvider drives the `opencode` CLI in its non-interactive run
// mode. Parsing is adapted to the same Event union as the other
// providers so the Orchestrator never branches on provider.
type OpenCodeProvider struct{}

func (OpenCodeProvider) Name() string       { return "opencode" }
func (OpenCodeProvider) BinaryName() string { return "opencode" }

func (OpenCodeProvider) BuildArgs(req RunRequest) []string {
	args := []string{"run", req.Prompt, "--print-logs"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.SessionID != "" && req.Resume {
		args = append(args, "--session", req.SessionID, "--continue")
	}
	if req.ToolBridgeAddr != "" {
		args = append(args, "--mcp", "automaker="+req.ToolBridgeAddr, "--mcp-token", req.RunToken)
	}
	return args
}

func (OpenCodeProvider) EncodeImage(path string) (ImageBlock, error) {
	return EncodeImageFile(path)
}

type opencodeMsg struct {
	Type    string `json:"type"`
	Part    string `json:"part"`
	Tool    string `json:"tool"`
	Input   string `json:"input"`
	Summary string `json:"summary"`
}

func (OpenCodeProvider) ParseLine(line []byte) (Event, bool) {
	var m opencodeMsg
	if err := json.Unmarshal(line, &m); err != nil {
		return Event{}, false
	}
	switch m.Type {
	case "message.part":
		return Event{Type: EventAssistantText, Text: m.Part}, true
	case "tool.call":
		return Event{Type: EventToolUse, ToolName: m.Tool, ToolInput: m.Input}, true
	case "session.idle":
		return Event{Type: EventResult, Summary: m.Summary}, true
	default:
		return Event{}, false
	}
}
