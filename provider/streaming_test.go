package provider_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agentchat/provider"
	"agentchat/provider/testutil"
)

func TestOllamaStreamsChunksAndToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"fs.read","arguments":{"path":"a.txt"}}}]},"done":true}`)
	}))
	defer srv.Close()

	p, err := provider.NewOllamaProvider(srv.URL, "llama3.1")
	if err != nil {
		t.Fatal(err)
	}

	var text strings.Builder
	var calls []provider.ToolCall
	err = p.ChatWithTools(context.Background(), testutil.UserQuery("hi"), testutil.AgentTools(), func(chunk string, toolCalls []provider.ToolCall) error {
		text.WriteString(chunk)
		calls = append(calls, toolCalls...)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatWithTools() error = %v", err)
	}
	if text.String() != "Hello" {
		t.Errorf("text = %q", text.String())
	}
	if len(calls) != 1 || calls[0].Name != "fs.read" || calls[0].Arguments["path"] != "a.txt" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestOpenAIStreamsChunksAndLeakedToolCalls(t *testing.T) {
	chunk := func(content string) string {
		return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, content)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{"Calling ", `<tool_call>{"name": "tickets.create_ticket", "arguments": {"title": "Printer offline"}}</tool_call>`} {
			fmt.Fprintf(w, "data: %s\n\n", chunk(c))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, err := provider.NewOpenAIProvider(srv.URL, "test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}

	var text strings.Builder
	var calls []provider.ToolCall
	err = p.Chat(context.Background(), testutil.UserQuery("My printer is offline"), func(chunk string, toolCalls []provider.ToolCall) error {
		text.WriteString(chunk)
		calls = append(calls, toolCalls...)
		return nil
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !strings.HasPrefix(text.String(), "Calling ") {
		t.Errorf("text = %q", text.String())
	}
	if len(calls) != 1 || calls[0].Name != "tickets.create_ticket" {
		t.Errorf("calls = %+v", calls)
	}
}
