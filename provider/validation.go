package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"agentchat/config"
)

// ErrModelNotFound is reported when the provider answers but does not list
// the agent's model.
var ErrModelNotFound = errors.New("model not available")

// PingProviderMsg is sent when a provider ping completes.
type PingProviderMsg struct {
	AgentID string
	Model   string
	Err     error
}

// PingProvider checks that a local agent's provider is reachable and serves
// the configured model.
func PingProvider(agentID string, p Provider) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := p.Ping(ctx)
		if err == nil {
			err = checkModelListed(ctx, p)
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Ping for agent %s (%s): err=%v", agentID, p.GetDisplayName(), err)
		}

		return PingProviderMsg{
			AgentID: agentID,
			Model:   p.GetDisplayName(),
			Err:     err,
		}
	}
}

// checkModelListed looks the model up in the provider's listing. A failed
// listing is not an error; the ping already succeeded.
func checkModelListed(ctx context.Context, p Provider) error {
	models, err := p.ListModels(ctx)
	if err != nil || len(models) == 0 {
		return nil
	}
	if !modelListed(models, p.GetModel()) {
		return fmt.Errorf("%s: %w", p.GetModel(), ErrModelNotFound)
	}
	return nil
}

// modelListed matches exact ids, Ollama's implicit ":latest" tag and
// undated aliases of dated model ids.
func modelListed(models []ModelInfo, name string) bool {
	for _, m := range models {
		id := m.InternalName
		if id == "" {
			id = m.Name
		}
		if id == name || id == name+":latest" || strings.HasPrefix(id, name+"-") {
			return true
		}
	}
	return false
}
