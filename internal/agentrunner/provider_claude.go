package agentrunner

import (
	"encoding/json"
)

// ClaudeCodeProvider drives the `claude` CLI in stream-json mode. Grounded
// directly on the teacher's (jorge-barreto/orc) internal/dispatch/agent.go
// and stream.go: `claude -p <prompt> --output-format stream-json
// --verbose --include-partial-messages --model <model>`, newline-delimited
// JSON events of type stream_event/assistant/user/result.
type ClaudeCodeProvider struct{}

func (ClaudeCodeProvider) Name() string       { return "claude-code" }
func (ClaudeCodeProvider) BinaryName() string { return "claude" }

func (ClaudeCodeProvider) BuildArgs(req RunRequest) []string {
	args := []string{
		"-p", req.Prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.ThinkingLevel != "" && req.ThinkingLevel != "none" {
		args = append(args, "--thinking", req.ThinkingLevel)
	}
	if req.SessionID != "" {
		if req.Resume {
			args = append(args, "--resume", req.SessionID)
		} else {
			args = append(args, "--session-id", req.SessionID)
		}
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools")
		args = append(args, req.AllowedTools...)
	}
	if req.ToolBridgeAddr != "" {
		args = append(args, "--mcp-config", mcpConfigJSON(req.ToolBridgeAddr, req.RunToken))
	}
	return args
}

// mcpConfigJSON builds the inline MCP server descriptor the claude CLI
// expects, pointing it at the Tool-Call Bridge and passing the per-run
// token spec.md §4.4 requires for authorization.
func mcpConfigJSON(addr, token string) string {
	cfg := map[string]any{
		"mcpServers": map[string]any{
			"automaker": map[string]any{
				"type":    "stdio",
				"command": "automaker-bridge",
				"args":    []string{"--addr", addr, "--token", token},
			},
		},
	}
	data, _ := json.Marshal(cfg)
	return string(data)
}

func (ClaudeCodeProvider) EncodeImage(path string) (ImageBlock, error) {
	return EncodeImageFile(path)
}

// claudeStreamEvent mirrors the teacher's streamEvent shape.
type claudeStreamEvent struct {
	Type      string          `json:"type"`
	Event     json.RawMessage `json:"event"`
	Result    json.RawMessage `json:"result"`
	SessionID string          `json:"session_id"`
}

type claudeNestedEvent struct {
	Type         string                   `json:"type"`
	ContentBlock *claudeContentBlock      `json:"content_block"`
	Delta        *claudeDeltaBlock        `json:"delta"`
}

type claudeContentBlock struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type claudeDeltaBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeResultPayload struct {
	Result string `json:"result"`
}

// ParseLine maps one stream-json line to the provider-agnostic Event
// union spec.md §4.3 defines.
func (ClaudeCodeProvider) ParseLine(line []byte) (Event, bool) {
	var ev claudeStreamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, false
	}

	switch ev.Type {
	case "stream_event":
		if ev.Event == nil {
			return Event{}, false
		}
		var nested claudeNestedEvent
		if err := json.Unmarshal(ev.Event, &nested); err != nil {
			return Event{}, false
		}
		switch nested.Type {
		case "content_block_delta":
			if nested.Delta != nil && nested.Delta.Type == "text_delta" {
				return Event{Type: EventAssistantText, Text: nested.Delta.Text}, true
			}
		case "content_block_start":
			if nested.ContentBlock != nil && nested.ContentBlock.Type == "tool_use" {
				return Event{
					Type:      EventToolUse,
					ToolName:  nested.ContentBlock.Name,
					ToolInput: string(nested.ContentBlock.Input),
				}, true
			}
		}
		return Event{}, false

	case "result":
		var payload claudeResultPayload
		summary := ""
		if ev.Result != nil {
			if err := json.Unmarshal(ev.Result, &payload); err == nil {
				summary = payload.Result
			}
		}
		return Event{Type: EventResult, Summary: summary}, true

	default:
		return Event{}, false
	}
}
