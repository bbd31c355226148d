// Package agentapi is the transport for agents hosted on a Dify-compatible
// agent platform. Replies are streamed as server-sent events and decoded by
// package stream; everything else is plain JSON over REST.
package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"agentchat/config"
	"agentchat/model"
	"agentchat/stream"
	"agentchat/transcript"
)

// requestTimeout bounds the non-streaming calls. Streams only end through
// their context.
const requestTimeout = 30 * time.Second

// pageLimit is the page size of list calls; maxPages bounds pagination.
const (
	pageLimit = 100
	maxPages  = 10
)

// TokenSource returns the API key of an agent. *config.CredentialStore
// implements it.
type TokenSource interface {
	TokenFor(agentID string) (string, error)
}

// Client talks to remote agents. Each agent has its own base URL and key.
// It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	user       string

	mu        sync.RWMutex
	endpoints map[string]string
}

var _ model.AgentService = (*Client)(nil)

// NewClient creates a client that identifies the end user as user.
func NewClient(tokens TokenSource, user string) *Client {
	return &Client{
		httpClient: &http.Client{},
		tokens:     tokens,
		user:       user,
		endpoints:  make(map[string]string),
	}
}

// AddAgent registers the endpoint of an agent.
func (c *Client) AddAgent(agentID, baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[agentID] = strings.TrimRight(baseURL, "/")
}

// SetHTTPClient sets a custom HTTP client. It must not carry a timeout
// shorter than the longest expected reply stream.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) endpoint(agentID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	base, ok := c.endpoints[agentID]
	if !ok || base == "" {
		return "", fmt.Errorf("no endpoint configured for agent %q", agentID)
	}
	return base, nil
}

func (c *Client) userFor(user string) string {
	if user != "" {
		return user
	}
	return c.user
}

// newRequest builds an authorized request. A nil body sends no payload.
func (c *Client) newRequest(ctx context.Context, agentID, method, path string, query url.Values, body any) (*http.Request, error) {
	base, err := c.endpoint(agentID)
	if err != nil {
		return nil, err
	}
	token, err := c.tokens.TokenFor(agentID)
	if err != nil {
		return nil, fmt.Errorf("no API key for agent %q: %w", agentID, err)
	}

	target := base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do runs a non-streaming call and returns the response body. Non-2xx
// responses become *APIError.
func (c *Client) do(ctx context.Context, agentID, method, path string, query url.Values, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, agentID, method, path, query, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[AgentAPI] %s %s: %v", method, path, apiErr)
		}
		return nil, apiErr
	}
	return respBody, nil
}

// SendMessage posts a chat message in streaming mode and walks the reply
// stream into h. Transport failures are delivered to h as Error and Done.
func (c *Client) SendMessage(ctx context.Context, req model.SendRequest, h stream.Handler) error {
	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	body := map[string]any{
		"inputs":          inputs,
		"query":           req.Query,
		"response_mode":   "streaming",
		"conversation_id": req.ConversationID,
		"user":            c.userFor(req.User),
	}

	httpReq, err := c.newRequest(ctx, req.AgentID, http.MethodPost, "/chat-messages", nil, body)
	if err != nil {
		fail(h, err)
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	if config.DebugLog != nil {
		config.DebugLog.Printf("[AgentAPI] Sending message to agent %s (conversation %q)", req.AgentID, req.ConversationID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			for _, ev := range stream.CancelledEvents(ctx.Err()) {
				h.Handle(ev)
			}
			return ctx.Err()
		}
		err = fmt.Errorf("failed to make request: %w", err)
		fail(h, err)
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		apiErr := parseAPIError(resp.StatusCode, respBody)
		h.Handle(stream.Error{Reason: apiErr.Message, Code: apiErr.Code, Status: apiErr.Status, Err: apiErr})
		h.Handle(stream.Done{HadError: true})
		return apiErr
	}

	dec := stream.NewDecoder(resp)
	defer dec.Close()

	err = stream.Walk(ctx, dec, h)
	if err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[AgentAPI] Stream for agent %s ended: %v", req.AgentID, err)
	}
	return err
}

func fail(h stream.Handler, err error) {
	h.Handle(stream.Error{Reason: err.Error(), Err: err})
	h.Handle(stream.Done{HadError: true})
}

// StopGeneration asks the platform to stop a streaming task.
func (c *Client) StopGeneration(ctx context.Context, agentID, taskID string) error {
	if taskID == "" {
		return nil
	}
	_, err := c.do(ctx, agentID, http.MethodPost, "/chat-messages/"+url.PathEscape(taskID)+"/stop", nil,
		map[string]any{"user": c.user})
	return err
}

// GetConversations lists the user's conversations, newest first.
func (c *Client) GetConversations(ctx context.Context, agentID string) ([]model.Conversation, error) {
	var (
		convs  []model.Conversation
		lastID string
	)
	for page := 0; page < maxPages; page++ {
		query := url.Values{"user": {c.user}, "limit": {fmt.Sprint(pageLimit)}}
		if lastID != "" {
			query.Set("last_id", lastID)
		}

		body, err := c.do(ctx, agentID, http.MethodGet, "/conversations", query, nil)
		if err != nil {
			return nil, err
		}

		items, hasMore := parseConversations(body)
		convs = append(convs, items...)
		if !hasMore || len(items) == 0 {
			break
		}
		lastID = items[len(items)-1].ID
	}
	return convs, nil
}

// GetMessages loads the history of a conversation in chronological order.
// Every stored item expands into the user message and its answer.
func (c *Client) GetMessages(ctx context.Context, agentID, conversationID string) ([]transcript.Message, error) {
	var (
		msgs    []transcript.Message
		firstID string
	)
	// Pages walk backwards in time: each one holds older messages.
	for page := 0; page < maxPages; page++ {
		query := url.Values{
			"conversation_id": {conversationID},
			"user":            {c.user},
			"limit":           {fmt.Sprint(pageLimit)},
		}
		if firstID != "" {
			query.Set("first_id", firstID)
		}

		body, err := c.do(ctx, agentID, http.MethodGet, "/messages", query, nil)
		if err != nil {
			return nil, err
		}

		items, oldestID, hasMore := parseMessages(body, conversationID)
		msgs = append(items, msgs...)
		if !hasMore || oldestID == "" {
			break
		}
		firstID = oldestID
	}
	return msgs, nil
}

func (c *Client) CreateConversation(ctx context.Context, agentID string) (model.Conversation, error) {
	body, err := c.do(ctx, agentID, http.MethodPost, "/conversations", nil, map[string]any{"user": c.user})
	if err != nil {
		return model.Conversation{}, err
	}
	conv, ok := parseConversation(body)
	if !ok {
		return model.Conversation{}, fmt.Errorf("create conversation: response carries no id")
	}
	return conv, nil
}

func (c *Client) DeleteConversation(ctx context.Context, agentID, conversationID string) error {
	_, err := c.do(ctx, agentID, http.MethodDelete, "/conversations/"+url.PathEscape(conversationID), nil,
		map[string]any{"user": c.user})
	return err
}

func (c *Client) GetApplicationParameters(ctx context.Context, agentID string) (*model.AppParameters, error) {
	body, err := c.do(ctx, agentID, http.MethodGet, "/parameters", url.Values{"user": {c.user}}, nil)
	if err != nil {
		return nil, err
	}
	return parseParameters(body), nil
}

// Ping reports whether the agent is reachable with the configured key.
func (c *Client) Ping(ctx context.Context, agentID string) error {
	_, err := c.GetApplicationParameters(ctx, agentID)
	return err
}
