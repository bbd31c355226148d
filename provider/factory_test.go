package provider

import (
	"testing"

	"agentchat/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:   "ollama provider with defaults",
			config: Config{Type: ProviderTypeOllama},
		},
		{
			name: "ollama provider with custom config",
			config: Config{
				Type:    ProviderTypeOllama,
				BaseURL: "http://localhost:11434",
				Model:   "llama3.1",
			},
		},
		{
			name: "openai provider",
			config: Config{
				Type:   ProviderTypeOpenAI,
				Model:  "gpt-4o-mini",
				APIKey: "test-key",
			},
		},
		{
			name:        "openai provider without key",
			config:      Config{Type: ProviderTypeOpenAI},
			expectError: true,
		},
		{
			name: "openrouter provider",
			config: Config{
				Type:   ProviderTypeOpenRouter,
				APIKey: "test-key",
			},
		},
		{
			name: "anthropic provider",
			config: Config{
				Type:   ProviderTypeAnthropic,
				Model:  "claude-sonnet-4-5-20250929",
				APIKey: "test-key",
			},
		},
		{
			name:        "unknown provider type",
			config:      Config{Type: ProviderType("unknown")},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if p != nil {
					t.Error("expected nil provider, got non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p == nil {
				t.Fatal("expected non-nil provider, got nil")
			}
		})
	}
}

func TestFactoryReturnsOllamaProvider(t *testing.T) {
	p, err := NewProvider(Config{Type: ProviderTypeOllama, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := p.(*OllamaProvider); !ok {
		t.Errorf("expected *OllamaProvider, got %T", p)
	}
}

func TestForAgent(t *testing.T) {
	store := config.NewCredentialStore(config.SecurityPlainText, "")
	store.Set("openai", "sk-test")

	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{ID: "openai", Enabled: true, BaseURL: "http://proxy.local/v1"},
			{ID: "anthropic", Enabled: false},
		},
		CredentialStore: store,
	}

	p, err := ForAgent(cfg, config.AgentConfig{ID: "a", Kind: config.AgentLocal, Provider: "openai", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	oa, ok := p.(*OpenAIProvider)
	if !ok {
		t.Fatalf("expected *OpenAIProvider, got %T", p)
	}
	if oa.baseURL != "http://proxy.local/v1" {
		t.Errorf("baseURL = %q", oa.baseURL)
	}
	if p.GetModel() != "gpt-4o" {
		t.Errorf("model = %q", p.GetModel())
	}

	if _, err := ForAgent(cfg, config.AgentConfig{ID: "b", Kind: config.AgentLocal, Provider: "anthropic", Model: "m"}); err == nil {
		t.Error("expected error for disabled provider")
	}
	if _, err := ForAgent(cfg, config.AgentConfig{ID: "c", Kind: config.AgentLocal, Provider: "openrouter", Model: "m"}); err == nil {
		t.Error("expected error for provider without API key")
	}
	if _, err := ForAgent(cfg, config.AgentConfig{ID: "d", Kind: config.AgentRemote}); err == nil {
		t.Error("expected error for remote agent")
	}

	cfg.Providers = append(cfg.Providers, config.ProviderConfig{ID: "work-gpt", Type: "openai", Enabled: true})
	store.Set("work-gpt", "sk-work")
	typed, err := ForAgent(cfg, config.AgentConfig{ID: "typed", Kind: config.AgentLocal, Provider: "work-gpt", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oa, ok := typed.(*OpenAIProvider); !ok || oa.baseURL != "https://api.openai.com/v1" {
		t.Errorf("typed entry should build an OpenAI provider on the stock URL, got %T", typed)
	}

	ol, err := ForAgent(cfg, config.AgentConfig{ID: "e", Kind: config.AgentLocal, Provider: "ollama", Model: "qwen2.5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ol.(*OllamaProvider).baseURL != "http://localhost:11434" {
		t.Errorf("ollama should fall back to the stock URL")
	}
}
