package agentrunner

import "encoding/json"

// CodexProvider drives OpenAI's `codex` CLI in its newline-delimited JSON
// exec mode. Parsing is adapted to the same Event union as
// ClaudeCodeProvider so the Orchestrator never branches on provider.
type CodexProvider struct{}

func (CodexProvider) Name() string       { return "codex" }
func (CodexProvider) BinaryName() string { return "codex" }

func (CodexProvider) BuildArgs(req RunRequest) []string {
	args := []string{"exec", "--json", req.Prompt}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.ReasoningEffort != "" && req.ReasoningEffort != "none" {
		args = append(args, "--reasoning-effort", req.ReasoningEffort)
	}
	if req.SessionID != "" && req.Resume {
		args = append(args, "--resume", req.SessionID)
	}
	if req.ToolBridgeAddr != "" {
		args = append(args, "--mcp-server", "automaker="+req.ToolBridgeAddr, "--mcp-token", req.RunToken)
	}
	return args
}

func (CodexProvider) EncodeImage(path string) (ImageBlock, error) {
	return EncodeImageFile(path)
}

type codexMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Tool string `json:"tool"`
	Args string `json:"args"`
	Msg  string `json:"message"`
}

func (CodexProvider) ParseLine(line []byte) (Event, bool) {
	var m codexMsg
	if err := json.Unmarshal(line, &m); err != nil {
		return Event{}, false
	}
	switch m.Type {
	case "agent_message_delta":
		return Event{Type: EventAssistantText, Text: m.Text}, true
	case "tool_call":
		return Event{Type: EventToolUse, ToolName: m.Tool, ToolInput: m.Args}, true
	case "task_complete":
		return Event{Type: EventResult, Summary: m.Msg}, true
	default:
		return Event{}, false
	}
}
