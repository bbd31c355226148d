package provider

import (
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

func toolNames(tools []mcptypes.Tool) string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return strings.Join(names, ", ")
}

// buildOpenAIToolInstructions is brief; GPT-style models prefer direct
// guidance. Also used for OpenRouter models.
func buildOpenAIToolInstructions(tools []mcptypes.Tool) string {
	return strings.Join([]string{
		"TOOLS: " + toolNames(tools),
		"",
		"When the user asks for something that requires a tool:",
		"1. Determine which tool is needed",
		"2. Check if you have all required parameters",
		"3. If yes: call the tool immediately without explanation",
		"4. If no: ask for the missing parameter only",
		"",
		"Do not list the available tools or describe what you are about to do.",
	}, "\n")
}

// buildAnthropicToolInstructions adds an explicit step for reporting the
// result, which Claude otherwise tends to skip after a tool round.
func buildAnthropicToolInstructions(tools []mcptypes.Tool) string {
	return strings.Join([]string{
		"TOOLS: " + toolNames(tools),
		"",
		"When the user asks for something that requires a tool:",
		"1. Determine which tool is needed",
		"2. Check if you have all required parameters",
		"3. If yes: call the tool immediately without explanation",
		"4. If no: ask for the missing parameter only",
		"5. After the tool returns, answer the user using its result",
		"",
		"Do not list the available tools or describe what you are about to do.",
	}, "\n")
}
