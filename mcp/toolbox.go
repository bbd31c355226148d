package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentchat/config"
)

// Toolbox exposes the tools of a set of MCP servers to a local agent. Tool
// names are namespaced as "<server id>.<tool name>".
type Toolbox struct {
	pm *ProcessManager

	mu     sync.RWMutex
	failed map[string]error
}

// NewToolbox starts every configured server. A server that fails to start
// is recorded in Failed and skipped; the agent runs with the rest.
func NewToolbox(ctx context.Context, servers []config.ToolServerConfig) *Toolbox {
	tb := &Toolbox{
		pm:     NewProcessManager(),
		failed: make(map[string]error),
	}

	for _, srv := range servers {
		if err := tb.pm.StartServer(ctx, srv); err != nil {
			tb.failed[srv.ID] = err
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] %v", err)
			}
		}
	}
	return tb
}

// NewToolboxWith wraps an existing process manager.
func NewToolboxWith(pm *ProcessManager) *Toolbox {
	return &Toolbox{pm: pm, failed: make(map[string]error)}
}

// Failed returns the servers that could not be started.
func (tb *Toolbox) Failed() map[string]error {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	out := make(map[string]error, len(tb.failed))
	for id, err := range tb.failed {
		out[id] = err
	}
	return out
}

// Tools returns the namespaced tools of all running servers, sorted by name.
func (tb *Toolbox) Tools() []mcptypes.Tool {
	var all []mcptypes.Tool

	for _, id := range tb.pm.IDs() {
		tools, err := tb.pm.GetTools(id)
		if err != nil {
			continue
		}
		for _, tool := range tools {
			namespaced := tool
			namespaced.Name = id + "." + tool.Name
			all = append(all, namespaced)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// CallTool runs a namespaced tool and returns its text output, which local
// agents record as the observation of a thought. A result flagged as an
// error is returned as an error carrying the text.
func (tb *Toolbox) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	serverID, toolName := parseToolName(name)
	if serverID == "" {
		return "", fmt.Errorf("tool %q is not namespaced", name)
	}

	c, err := tb.pm.GetClient(serverID)
	if err != nil {
		return "", err
	}

	result, err := c.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("tool %s failed: %w", name, err)
	}

	text := ResultText(result)
	if result.IsError {
		return "", fmt.Errorf("tool %s returned an error: %s", name, text)
	}
	return text, nil
}

// Close stops all servers.
func (tb *Toolbox) Close(ctx context.Context) error {
	return tb.pm.Shutdown(ctx)
}

// ResultText joins the text items of a tool result. Non-text items are
// summarized by their type.
func ResultText(result *mcptypes.CallToolResult) string {
	if result == nil {
		return ""
	}

	var parts []string
	for _, content := range result.Content {
		switch c := content.(type) {
		case mcptypes.TextContent:
			parts = append(parts, c.Text)
		case *mcptypes.TextContent:
			parts = append(parts, c.Text)
		case mcptypes.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", c.MIMEType))
		case *mcptypes.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", c.MIMEType))
		default:
			parts = append(parts, fmt.Sprintf("[%T]", content))
		}
	}
	return strings.Join(parts, "\n")
}

func parseToolName(namespaced string) (string, string) {
	idx := strings.Index(namespaced, ".")
	if idx == -1 {
		return "", namespaced
	}
	return namespaced[:idx], namespaced[idx+1:]
}
