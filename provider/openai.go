package provider

import (
	"context"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"agentchat/mcp"
)

// OpenAIProvider implements Provider with the official OpenAI Go SDK.
type OpenAIProvider struct {
	client  openai.Client
	model   string
	baseURL string
}

// NewOpenAIProvider creates an OpenAI provider. The API key is required.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenAIProvider{
		client:  client,
		model:   model,
		baseURL: baseURL,
	}, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, callback StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []Message, tools []mcptypes.Tool, callback StreamCallback) error {
	if len(tools) > 0 {
		messages = append([]Message{{Role: "system", Content: buildOpenAIToolInstructions(tools)}}, messages...)
	}

	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(messages),
		Model:    openai.ChatModel(p.model),
	}
	if len(tools) > 0 {
		params.Tools = mcp.ConvertMCPToolsToOpenAIFormat(tools)
	}

	if err := streamChatCompletion(ctx, &p.client, params, nil, callback); err != nil {
		return fmt.Errorf("OpenAI streaming error: %w", err)
	}
	return nil
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenAI models: %w", err)
	}

	result := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		result = append(result, ModelInfo{
			Name:         m.ID,
			InternalName: m.ID,
			Provider:     string(ProviderTypeOpenAI),
		})
	}
	return result, nil
}

func (p *OpenAIProvider) GetModel() string {
	return p.model
}

func (p *OpenAIProvider) GetDisplayName() string {
	return p.model
}

// Ping lists models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenAI ping failed: %w", err)
	}
	return nil
}

// streamChatCompletion runs a streaming chat completion shared by the
// OpenAI-compatible providers. rename maps wire tool names back to MCP names
// and may be nil. When the API reports no tool calls, the accumulated text
// is checked for tool calls the model wrote out as JSON or XML.
func streamChatCompletion(ctx context.Context, client *openai.Client, params openai.ChatCompletionNewParams, rename func(string) string, callback StreamCallback) error {
	if rename == nil {
		rename = func(name string) string { return name }
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	var apiToolCalls bool
	var content strings.Builder

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			apiToolCalls = true
			if callback != nil {
				call := ToolCall{Name: rename(tool.Name), Arguments: ParseToolArguments(tool.Arguments)}
				if err := callback("", []ToolCall{call}); err != nil {
					return err
				}
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			delta := chunk.Choices[0].Delta.Content
			content.WriteString(delta)
			if callback != nil {
				if err := callback(delta, nil); err != nil {
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return err
	}

	if apiToolCalls || callback == nil {
		return nil
	}

	// XML blocks wrap the JSON form, so they are checked first.
	leaked := ParseLeakedXMLToolCalls(content.String())
	if len(leaked) == 0 {
		leaked = ParseLeakedJSONToolCalls(content.String())
	}
	if len(leaked) == 0 {
		return nil
	}
	for i := range leaked {
		leaked[i].Name = rename(leaked[i].Name)
	}
	return callback("", leaked)
}
