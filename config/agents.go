package config

import (
	"fmt"
	"strings"
)

// AgentKind selects the backend serving an agent.
type AgentKind string

const (
	// AgentRemote agents live on a Dify-compatible platform server.
	AgentRemote AgentKind = "remote"
	// AgentLocal agents are run in-process against an LLM provider.
	AgentLocal AgentKind = "local"
)

// AgentConfig is one [[agents]] entry.
type AgentConfig struct {
	ID                 string             `toml:"id"`
	Name               string             `toml:"name"`
	Kind               AgentKind          `toml:"kind"`
	BaseURL            string             `toml:"base_url,omitempty"`
	Provider           string             `toml:"provider,omitempty"`
	Model              string             `toml:"model,omitempty"`
	SystemPrompt       string             `toml:"system_prompt,omitempty"`
	OpeningStatement   string             `toml:"opening_statement,omitempty"`
	SuggestedQuestions []string           `toml:"suggested_questions,omitempty"`
	Tools              []string           `toml:"tools,omitempty"`
	Inputs             []InputFieldConfig `toml:"inputs,omitempty"`
}

// InputFieldConfig is one [[agents.inputs]] variable a local agent asks for
// on the first turn of a conversation.
type InputFieldConfig struct {
	Variable string   `toml:"variable"`
	Label    string   `toml:"label,omitempty"`
	Type     string   `toml:"type,omitempty"` // text-input (default), paragraph, select, number
	Required bool     `toml:"required,omitempty"`
	Default  string   `toml:"default,omitempty"`
	Options  []string `toml:"options,omitempty"`
}

// ProviderConfig is one [[providers]] entry. API keys live in the credential
// store under the provider id.
type ProviderConfig struct {
	ID      string `toml:"id"`
	Type    string `toml:"type,omitempty"` // ollama, openai, openrouter, anthropic; defaults to ID
	Name    string `toml:"name,omitempty"`
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url,omitempty"`
}

// ToolServerConfig is one [[tools]] entry: an MCP server started over stdio
// from Command, or a remote server at URL. For remote servers Env is sent as
// request headers.
type ToolServerConfig struct {
	ID        string            `toml:"id"`
	Command   string            `toml:"command,omitempty"`
	Args      []string          `toml:"args,omitempty"`
	Env       map[string]string `toml:"env,omitempty"`
	URL       string            `toml:"url,omitempty"`
	Transport string            `toml:"transport,omitempty"` // "sse" (default) or "streamable-http"
}

// DisplayName falls back to the id when no name is configured.
func (a AgentConfig) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// Validate reports configuration errors that would make the agent unusable.
func (a AgentConfig) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("agent id is required")
	}
	switch a.Kind {
	case AgentRemote, "":
		return nil
	case AgentLocal:
		if a.Provider == "" {
			return fmt.Errorf("local agent %q: provider is required", a.ID)
		}
		if a.Model == "" {
			return fmt.Errorf("local agent %q: model is required", a.ID)
		}
		return nil
	default:
		return fmt.Errorf("agent %q: unknown kind %q", a.ID, a.Kind)
	}
}

// IsLocal reports whether the agent runs in-process.
func (a AgentConfig) IsLocal() bool {
	return a.Kind == AgentLocal
}

// Agent looks up an agent by id.
func (c *Config) Agent(id string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// StartAgent returns the agent to open on launch: the default agent if it
// exists, otherwise the first configured one.
func (c *Config) StartAgent() (AgentConfig, error) {
	if len(c.Agents) == 0 {
		return AgentConfig{}, fmt.Errorf("no agents configured in %s", UserConfigPath(c.DataDir()))
	}
	if c.DefaultAgent != "" {
		if a, ok := c.Agent(c.DefaultAgent); ok {
			return a, nil
		}
		if DebugLog != nil {
			DebugLog.Printf("[Config] Default agent %q not found, using %q", c.DefaultAgent, c.Agents[0].ID)
		}
	}
	return c.Agents[0], nil
}

// AgentBaseURL resolves the endpoint of a remote agent.
func (c *Config) AgentBaseURL(a AgentConfig) string {
	if a.BaseURL != "" {
		return a.BaseURL
	}
	return c.BaseURL
}

// Provider looks up a provider entry by id.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// ToolServers returns the [[tools]] entries an agent refers to. Unknown ids
// are skipped.
func (c *Config) ToolServers(a AgentConfig) []ToolServerConfig {
	var out []ToolServerConfig
	for _, id := range a.Tools {
		for _, t := range c.Tools {
			if t.ID == id {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
