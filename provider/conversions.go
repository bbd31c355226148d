package provider

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// ConvertToOllamaMessages maps Role and Content one to one.
func ConvertToOllamaMessages(messages []Message) []api.Message {
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		result[i] = api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return result
}

// ConvertToOpenAIMessages maps messages onto the OpenAI union type. Tool
// results are sent as user messages since Message carries no tool call id.
func ConvertToOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case "system":
			result[i] = openai.SystemMessage(msg.Content)
		case "assistant":
			result[i] = openai.AssistantMessage(msg.Content)
		default:
			result[i] = openai.UserMessage(msg.Content)
		}
	}

	return result
}

// ConvertToProviderToolCalls returns nil for an empty input.
func ConvertToProviderToolCalls(ollamaCalls []api.ToolCall) []ToolCall {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]ToolCall, len(ollamaCalls))
	for i, call := range ollamaCalls {
		result[i] = ToolCall{
			Name:      call.Function.Name,
			Arguments: map[string]any(call.Function.Arguments),
		}
	}
	return result
}

// ParseToolArguments parses a JSON arguments string. Invalid JSON yields an
// empty map.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		return make(map[string]any)
	}
	return args
}

var (
	leakedJSONPattern = regexp.MustCompile(`\{\s*"name"\s*:\s*"([^"]+)"\s*,\s*"arguments"\s*:\s*(\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\})\s*\}`)
	leakedXMLPattern  = regexp.MustCompile(`(?s)<tool_call>\s*(.*?)\s*</tool_call>`)
)

// ParseLeakedJSONToolCalls finds tool calls a model wrote into its text as
// {"name": ..., "arguments": {...}} instead of using the tool API.
func ParseLeakedJSONToolCalls(content string) []ToolCall {
	var calls []ToolCall
	for _, m := range leakedJSONPattern.FindAllStringSubmatch(content, -1) {
		calls = append(calls, ToolCall{Name: m[1], Arguments: ParseToolArguments(m[2])})
	}
	return calls
}

// ParseLeakedXMLToolCalls finds <tool_call>{"name": ..., "arguments": ...}</tool_call>
// blocks, the format qwen-family models fall back to.
func ParseLeakedXMLToolCalls(content string) []ToolCall {
	var calls []ToolCall
	for _, m := range leakedXMLPattern.FindAllStringSubmatch(content, -1) {
		var raw struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &raw); err != nil || raw.Name == "" {
			continue
		}
		if raw.Arguments == nil {
			raw.Arguments = make(map[string]any)
		}
		calls = append(calls, ToolCall{Name: raw.Name, Arguments: raw.Arguments})
	}
	return calls
}
