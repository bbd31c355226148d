package testutil

import (
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentchat/provider"
)

// UserQuery returns the history of a first turn asking content.
func UserQuery(content string) []provider.Message {
	return []provider.Message{{Role: "user", Content: content}}
}

// AgentTools returns the namespaced tools of a support agent: a knowledge
// base search and a ticket tracker.
func AgentTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		mcptypes.NewTool("kb.search_docs",
			mcptypes.WithDescription("Search the product documentation"),
			mcptypes.WithString("query", mcptypes.Required(), mcptypes.Description("Search terms")),
			mcptypes.WithNumber("limit", mcptypes.Description("Maximum number of results")),
		),
		mcptypes.NewTool("tickets.create_ticket",
			mcptypes.WithDescription("Open a support ticket"),
			mcptypes.WithString("title", mcptypes.Required(), mcptypes.Description("One line summary")),
			mcptypes.WithString("priority", mcptypes.Enum("low", "normal", "high")),
		),
	}
}
