package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentchat/config"
)

// ServerProcess is a connected MCP server and the tools it advertised.
type ServerProcess struct {
	ID       string
	Process  *exec.Cmd // nil for remote and in-process servers
	Client   *client.Client
	Tools    []mcptypes.Tool
	IsRemote bool
}

// ProcessManager owns the MCP server connections of one agent. It is safe
// for concurrent use.
type ProcessManager struct {
	mu      sync.RWMutex
	servers map[string]*ServerProcess
}

func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		servers: make(map[string]*ServerProcess),
	}
}

// StartServer connects to the server described by cfg, initializes the
// session and caches its tool list.
func (pm *ProcessManager) StartServer(ctx context.Context, cfg config.ToolServerConfig) error {
	pm.mu.RLock()
	_, running := pm.servers[cfg.ID]
	pm.mu.RUnlock()
	if running {
		return fmt.Errorf("tool server %s already running", cfg.ID)
	}

	var (
		mcpClient *client.Client
		cmd       *exec.Cmd
		err       error
	)
	switch {
	case cfg.URL != "":
		mcpClient, err = createRemoteClient(ctx, cfg)
	case cfg.Command != "":
		mcpClient, cmd, err = createLocalClient(cfg)
	default:
		err = fmt.Errorf("neither command nor url set")
	}
	if err != nil {
		return fmt.Errorf("failed to start tool server %s: %w", cfg.ID, err)
	}

	return pm.register(ctx, &ServerProcess{
		ID:       cfg.ID,
		Process:  cmd,
		Client:   mcpClient,
		IsRemote: cfg.URL != "",
	})
}

// Attach registers an already started client under id.
func (pm *ProcessManager) Attach(ctx context.Context, id string, c *client.Client) error {
	return pm.register(ctx, &ServerProcess{ID: id, Client: c})
}

func (pm *ProcessManager) register(ctx context.Context, proc *ServerProcess) error {
	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "agentchat",
				Version: "1.0.0",
			},
		},
	}

	if _, err := proc.Client.Initialize(ctx, initReq); err != nil {
		pm.kill(proc)
		return fmt.Errorf("failed to initialize tool server %s: %w", proc.ID, err)
	}

	toolsResult, err := proc.Client.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		pm.kill(proc)
		return fmt.Errorf("failed to list tools for %s: %w", proc.ID, err)
	}
	proc.Tools = toolsResult.Tools

	pm.mu.Lock()
	pm.servers[proc.ID] = proc
	pm.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Tool server '%s' ready with %d tools", proc.ID, len(proc.Tools))
	}
	return nil
}

func (pm *ProcessManager) GetClient(id string) (*client.Client, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	proc, ok := pm.servers[id]
	if !ok {
		return nil, fmt.Errorf("tool server %s not running", id)
	}
	return proc.Client, nil
}

// IDs returns the ids of all running servers.
func (pm *ProcessManager) IDs() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	ids := make([]string, 0, len(pm.servers))
	for id := range pm.servers {
		ids = append(ids, id)
	}
	return ids
}

func (pm *ProcessManager) GetTools(id string) ([]mcptypes.Tool, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	proc, ok := pm.servers[id]
	if !ok {
		return nil, fmt.Errorf("tool server %s not running", id)
	}
	return proc.Tools, nil
}

// StopServer closes the client, killing the process if close does not
// finish within a second.
func (pm *ProcessManager) StopServer(ctx context.Context, id string) error {
	pm.mu.Lock()
	proc, ok := pm.servers[id]
	delete(pm.servers, id)
	pm.mu.Unlock()

	if !ok {
		return fmt.Errorf("tool server %s not found", id)
	}

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	closeDone := make(chan error, 1)
	go func() {
		closeDone <- proc.Client.Close()
	}()

	select {
	case err := <-closeDone:
		if err == nil {
			return nil
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[MCP] StopServer: error closing '%s': %v", id, err)
		}
	case <-closeCtx.Done():
		if config.DebugLog != nil {
			config.DebugLog.Printf("[MCP] StopServer: close timeout for '%s'", id)
		}
	}

	pm.kill(proc)
	return nil
}

func (pm *ProcessManager) kill(proc *ServerProcess) {
	if proc.Process == nil || proc.Process.Process == nil {
		return
	}
	if err := proc.Process.Process.Kill(); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Error killing process for '%s': %v", proc.ID, err)
	}
}

// Shutdown stops all servers in parallel.
func (pm *ProcessManager) Shutdown(ctx context.Context) error {
	ids := pm.IDs()

	var wg sync.WaitGroup
	errCh := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := pm.StopServer(ctx, id); err != nil {
				errCh <- err
			}
		}(id)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// createRemoteClient connects over SSE or streamable HTTP. Env entries are
// sent as headers.
func createRemoteClient(ctx context.Context, cfg config.ToolServerConfig) (*client.Client, error) {
	var (
		mcpClient *client.Client
		err       error
	)

	switch cfg.Transport {
	case "", "sse":
		var opts []transport.ClientOption
		if len(cfg.Env) > 0 {
			opts = append(opts, transport.WithHeaders(cfg.Env))
		}
		mcpClient, err = client.NewSSEMCPClient(cfg.URL, opts...)
	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Env) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Env))
		}
		mcpClient, err = client.NewStreamableHttpClient(cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("unknown transport type: %s", cfg.Transport)
	}
	if err != nil {
		return nil, err
	}

	// Remote transports must be started before Initialize.
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start %s transport: %w", cfg.Transport, err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Connected to remote tool server '%s' at %s", cfg.ID, cfg.URL)
	}
	return mcpClient, nil
}

// createLocalClient spawns the server over stdio and returns its command.
func createLocalClient(cfg config.ToolServerConfig) (*client.Client, *exec.Cmd, error) {
	var captured *exec.Cmd

	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		captured = cmd
		return cmd, nil
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(
		cfg.Command,
		serverEnv(cfg.Env),
		cfg.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return nil, nil, err
	}

	if captured != nil && captured.Process != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Started tool server '%s' with PID %d", cfg.ID, captured.Process.Pid)
	}
	return mcpClient, captured, nil
}

// serverEnv starts from the current environment so PATH survives.
func serverEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
