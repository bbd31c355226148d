package provider

import (
	"reflect"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
)

func TestConvertToOllamaMessages(t *testing.T) {
	input := []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
	}

	result := ConvertToOllamaMessages(input)
	if len(result) != len(input) {
		t.Fatalf("length mismatch: got %d, want %d", len(result), len(input))
	}
	for i, msg := range result {
		if msg.Role != input[i].Role || msg.Content != input[i].Content {
			t.Errorf("message %d: got %+v, want %+v", i, msg, input[i])
		}
	}
}

func TestConvertToProviderToolCalls(t *testing.T) {
	if got := ConvertToProviderToolCalls(nil); got != nil {
		t.Errorf("nil input: got %v, want nil", got)
	}

	calls := ConvertToProviderToolCalls([]api.ToolCall{
		{Function: api.ToolCallFunction{Name: "fs.read", Arguments: api.ToolCallFunctionArguments{"path": "/tmp"}}},
	})
	if len(calls) != 1 || calls[0].Name != "fs.read" || calls[0].Arguments["path"] != "/tmp" {
		t.Errorf("unexpected conversion: %+v", calls)
	}
}

func TestParseToolArguments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]any
	}{
		{"object", `{"city":"Paris","days":2}`, map[string]any{"city": "Paris", "days": float64(2)}},
		{"empty", ``, map[string]any{}},
		{"invalid", `{oops`, map[string]any{}},
		{"null", `null`, map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseToolArguments(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLeakedToolCalls(t *testing.T) {
	text := `Sure. {"name": "fs.read", "arguments": {"path": "/etc/hosts", "opts": {"lines": 3}}} done`
	calls := ParseLeakedJSONToolCalls(text)
	if len(calls) != 1 || calls[0].Name != "fs.read" {
		t.Fatalf("json: unexpected calls %+v", calls)
	}
	if calls[0].Arguments["path"] != "/etc/hosts" {
		t.Errorf("json: arguments = %v", calls[0].Arguments)
	}

	xml := "<tool_call>\n{\"name\": \"tickets.create_ticket\", \"arguments\": {\"title\": \"Login fails\"}}\n</tool_call>"
	calls = ParseLeakedXMLToolCalls(xml)
	if len(calls) != 1 || calls[0].Name != "tickets.create_ticket" || calls[0].Arguments["title"] != "Login fails" {
		t.Fatalf("xml: unexpected calls %+v", calls)
	}

	if calls := ParseLeakedXMLToolCalls("<tool_call>not json</tool_call>"); len(calls) != 0 {
		t.Errorf("malformed xml block should be skipped, got %+v", calls)
	}
	if calls := ParseLeakedJSONToolCalls("plain answer"); len(calls) != 0 {
		t.Errorf("plain text: got %+v", calls)
	}
}

func TestOpenRouterToolNames(t *testing.T) {
	tools := toOpenRouterToolNames([]mcptypes.Tool{mcptypes.NewTool("kb.search_docs")})
	if tools[0].Name != "kb__search_docs" {
		t.Errorf("got %q", tools[0].Name)
	}
	if got := fromOpenRouterToolName(tools[0].Name); got != "kb.search_docs" {
		t.Errorf("round trip: got %q", got)
	}
	if stripProviderPrefix("qwen/qwen3-coder:free") != "qwen3-coder:free" {
		t.Error("prefix not stripped")
	}
	if !shouldSkipToolInstructions("Qwen/Qwen3") {
		t.Error("qwen models skip tool instructions")
	}
}

func TestModelSupportsToolCalling(t *testing.T) {
	tests := map[string]bool{
		"llama3.1:latest": true,
		"llama3.2:3b":     true,
		"llama3:8b":       false,
		"qwen2.5-coder":   true,
		"gemma2":          false,
		"unknown-model":   false,
	}
	for name, want := range tests {
		if got := ModelSupportsToolCalling(name); got != want {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}
}
