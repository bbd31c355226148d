package provider_test

import (
	"context"
	"errors"
	"testing"

	"agentchat/provider"
	"agentchat/provider/testutil"
)

func TestPingProvider(t *testing.T) {
	listing := func(ids ...string) func(ctx context.Context) ([]provider.ModelInfo, error) {
		return func(ctx context.Context) ([]provider.ModelInfo, error) {
			var models []provider.ModelInfo
			for _, id := range ids {
				models = append(models, provider.ModelInfo{Name: id, InternalName: id})
			}
			return models, nil
		}
	}

	tests := []struct {
		name    string
		model   string
		setup   func(m *testutil.MockProvider)
		wantErr error
	}{
		{
			name:  "listed",
			model: "mock-model-1",
		},
		{
			name:  "implicit latest tag",
			model: "llama3.1",
			setup: func(m *testutil.MockProvider) { m.ListModelsFunc = listing("llama3.1:latest") },
		},
		{
			name:  "undated alias",
			model: "claude-sonnet-4-5",
			setup: func(m *testutil.MockProvider) { m.ListModelsFunc = listing("claude-sonnet-4-5-20250929") },
		},
		{
			name:    "not listed",
			model:   "gpt-5",
			wantErr: provider.ErrModelNotFound,
		},
		{
			name:  "listing unavailable",
			model: "gpt-5",
			setup: func(m *testutil.MockProvider) {
				m.ListModelsFunc = func(ctx context.Context) ([]provider.ModelInfo, error) {
					return nil, errors.New("forbidden")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockProvider(tt.model)
			if tt.setup != nil {
				tt.setup(mock)
			}

			msg, ok := provider.PingProvider("bot", mock)().(provider.PingProviderMsg)
			if !ok {
				t.Fatal("PingProvider did not return a PingProviderMsg")
			}
			if msg.AgentID != "bot" {
				t.Errorf("AgentID = %q", msg.AgentID)
			}
			if tt.wantErr == nil && msg.Err != nil {
				t.Errorf("Err = %v, want nil", msg.Err)
			}
			if tt.wantErr != nil && !errors.Is(msg.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", msg.Err, tt.wantErr)
			}
		})
	}
}

func TestPingProviderUnreachable(t *testing.T) {
	mock := testutil.NewMockProvider("mock-model-1")
	mock.PingFunc = func(ctx context.Context) error { return errors.New("connection refused") }
	mock.ListModelsFunc = func(ctx context.Context) ([]provider.ModelInfo, error) {
		t.Error("models listed after a failed ping")
		return nil, nil
	}

	msg := provider.PingProvider("bot", mock)().(provider.PingProviderMsg)
	if msg.Err == nil || errors.Is(msg.Err, provider.ErrModelNotFound) {
		t.Errorf("Err = %v", msg.Err)
	}
}
