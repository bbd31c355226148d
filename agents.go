package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"agentchat/agentapi"
	"agentchat/config"
	"agentchat/local"
	"agentchat/mcp"
	"agentchat/model"
	"agentchat/provider"
	"agentchat/storage"
)

// agentRegistry opens agent backends on first use and keeps them for later
// switches. Remote agents share one platform client.
type agentRegistry struct {
	cfg    *config.Config
	runs   *storage.RunLog
	remote *agentapi.Client

	// ctx outlives the tool server connections; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	backends  map[string]*local.Backend
	toolboxes []*mcp.Toolbox
}

func newAgentRegistry(cfg *config.Config, runs *storage.RunLog) *agentRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	return &agentRegistry{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		runs:     runs,
		remote:   agentapi.NewClient(cfg.CredentialStore, cfg.User),
		backends: map[string]*local.Backend{},
	}
}

// Connect returns the backend serving agent. For local agents the returned
// command pings the agent's model provider.
func (r *agentRegistry) Connect(agent config.AgentConfig) (model.AgentService, tea.Cmd, error) {
	if err := agent.Validate(); err != nil {
		return nil, nil, err
	}

	if !agent.IsLocal() {
		baseURL := r.cfg.AgentBaseURL(agent)
		if baseURL == "" {
			return nil, nil, fmt.Errorf("agent %s has no base_url", agent.ID)
		}
		r.remote.AddAgent(agent.ID, baseURL)
		return r.remote, nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.backends[agent.ID]; ok {
		return b, nil, nil
	}

	p, err := provider.ForAgent(r.cfg, agent)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create provider for agent %s: %w", agent.ID, err)
	}

	store, err := storage.NewConversationStorage(config.AgentDataDir(r.cfg.DataDir(), agent.ID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open conversations of agent %s: %w", agent.ID, err)
	}

	var tools local.Tools
	if servers := r.cfg.ToolServers(agent); len(servers) > 0 {
		tb := mcp.NewToolbox(r.ctx, servers)

		for name, err := range tb.Failed() {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Main] Tool server %s of agent %s failed to start: %v", name, agent.ID, err)
			}
		}
		r.toolboxes = append(r.toolboxes, tb)
		tools = tb
	}

	b := local.New(agent, p, tools, store, r.runs)
	r.backends[agent.ID] = b

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Main] Opened local agent %s on %s", agent.ID, p.GetDisplayName())
	}
	return b, provider.PingProvider(agent.ID, p), nil
}

// Close stops every tool server started for local agents.
func (r *agentRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, tb := range r.toolboxes {
		if err := tb.Close(ctx); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Main] Failed to stop tool servers: %v", err)
		}
	}
	r.toolboxes = nil
	r.cancel()
}
