package provider

import (
	"fmt"

	"agentchat/config"
)

// NewProvider creates a provider from configuration, dispatching on
// Config.Type. Unknown types and constructor failures (missing API key,
// invalid URL) are returned as errors.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Type {
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case ProviderTypeOpenRouter:
		return NewOpenRouterProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// ForAgent creates the provider serving a local agent.
//
// agent.Provider names a [[providers]] entry. The entry's type selects the
// implementation; an entry without a type, or no entry at all, uses the id
// as the type, so "ollama" works unconfigured. The endpoint falls back to
// the type's stock URL and the API key is read from the credential store
// under the provider id.
func ForAgent(cfg *config.Config, agent config.AgentConfig) (Provider, error) {
	if !agent.IsLocal() {
		return nil, fmt.Errorf("agent %q is not a local agent", agent.ID)
	}

	entry, found := cfg.Provider(agent.Provider)
	if found && !entry.Enabled {
		return nil, fmt.Errorf("provider %q is disabled", agent.Provider)
	}

	kind := agent.Provider
	if entry.Type != "" {
		kind = entry.Type
	}

	baseURL := entry.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultProviderBaseURL(kind)
	}

	apiKey := ""
	if cfg.CredentialStore != nil {
		apiKey = cfg.CredentialStore.Get(agent.Provider)
	}

	p, err := NewProvider(Config{
		Type:    ProviderType(kind),
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   agent.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider %s for agent %s: %w", agent.Provider, agent.ID, err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] Agent %s uses %s (type: %s, model: %s)", agent.ID, agent.Provider, kind, p.GetModel())
	}
	return p, nil
}
