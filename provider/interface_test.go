package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentchat/provider"
	"agentchat/provider/testutil"
)

var _ provider.Provider = (*testutil.MockProvider)(nil)

func TestProviderContract(t *testing.T) {
	tests := []struct {
		name     string
		provider provider.Provider
	}{
		{"Mock", testutil.NewMockProvider("test-model")},
		{"Scripted", testutil.Scripted("test-model", testutil.Round{Chunks: []string{"a", "b"}}, testutil.Round{Chunks: []string{"c"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Run("BasicChat", func(t *testing.T) {
				testProviderBasicChat(t, tt.provider)
			})
			t.Run("ChatWithTools", func(t *testing.T) {
				testProviderChatWithTools(t, tt.provider)
			})
			t.Run("ModelManagement", func(t *testing.T) {
				testProviderModelManagement(t, tt.provider)
			})
			t.Run("HealthCheck", func(t *testing.T) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tt.provider.Ping(ctx); err != nil {
					t.Errorf("Ping() error = %v", err)
				}
			})
		})
	}
}

func testProviderBasicChat(t *testing.T, p provider.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var received string
	err := p.Chat(ctx, testutil.UserQuery("Hello"), func(chunk string, toolCalls []provider.ToolCall) error {
		received += chunk
		return nil
	})
	if err != nil {
		t.Errorf("Chat() error = %v", err)
	}
	if received == "" {
		t.Error("Chat() did not receive any chunks")
	}
}

func testProviderChatWithTools(t *testing.T, p provider.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var received string
	err := p.ChatWithTools(ctx, testutil.UserQuery("How do I reset my password?"), testutil.AgentTools(), func(chunk string, toolCalls []provider.ToolCall) error {
		received += chunk
		return nil
	})
	if err != nil {
		t.Errorf("ChatWithTools() error = %v", err)
	}
	if received == "" {
		t.Error("ChatWithTools() did not receive any chunks")
	}
}

func testProviderModelManagement(t *testing.T, p provider.Provider) {
	if p.GetModel() == "" {
		t.Error("GetModel() returned empty string")
	}
	if p.GetDisplayName() == "" {
		t.Error("GetDisplayName() returned empty string")
	}

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) == 0 {
		t.Error("ListModels() returned no models")
	}
}

func TestScriptedRoundBlocksUntilCancelled(t *testing.T) {
	p := testutil.Scripted("m", testutil.Round{Chunks: []string{"partial"}, Block: true})

	ctx, cancel := context.WithCancel(context.Background())
	var got string
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Chat(ctx, testutil.UserQuery("hi"), func(chunk string, _ []provider.ToolCall) error {
			got += chunk
			return nil
		})
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scripted round did not stop on cancel")
	}
	if len(p.Calls()) != 1 {
		t.Errorf("calls = %d, want 1", len(p.Calls()))
	}
}
