package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentchat/config"
	"agentchat/model"
	"agentchat/provider"
	"agentchat/stream"
	"agentchat/transcript"
	"agentchat/typewriter"
)

// stubService answers every send with a fixed reply.
type stubService struct {
	reply    string
	thoughts []stream.ThoughtDelta
	convs    []model.Conversation
	sent     []model.SendRequest
}

func (s *stubService) SendMessage(ctx context.Context, req model.SendRequest, h stream.Handler) error {
	s.sent = append(s.sent, req)
	h.Handle(stream.MessageMeta{MessageID: "m1", ConversationID: "c1", TaskID: "t1"})
	for _, th := range s.thoughts {
		h.Handle(th)
	}
	h.Handle(stream.ContentDelta{Text: s.reply})
	h.Handle(stream.MessageEnd{})
	h.Handle(stream.Done{})
	return nil
}

func (s *stubService) StopGeneration(ctx context.Context, agentID, taskID string) error {
	return nil
}

func (s *stubService) GetConversations(ctx context.Context, agentID string) ([]model.Conversation, error) {
	return s.convs, nil
}

func (s *stubService) GetMessages(ctx context.Context, agentID, conversationID string) ([]transcript.Message, error) {
	return nil, nil
}

func (s *stubService) CreateConversation(ctx context.Context, agentID string) (model.Conversation, error) {
	return model.Conversation{ID: "c-created", Name: "New conversation"}, nil
}

func (s *stubService) DeleteConversation(ctx context.Context, agentID, conversationID string) error {
	return nil
}

func (s *stubService) GetApplicationParameters(ctx context.Context, agentID string) (*model.AppParameters, error) {
	return &model.AppParameters{}, nil
}

var noReveal = typewriter.Options{Threshold: 1 << 20, Slice: 10, Interval: time.Millisecond}

func newTestView(t *testing.T, svc *stubService, params *model.AppParameters) ChatView {
	t.Helper()
	session := model.NewModel("bot", svc, "tester", noReveal)
	session.Parameters = params
	agents := []config.AgentConfig{{ID: "bot", Name: "Helper Bot"}}

	v := NewChatView(session, agents, nil)
	next, _ := v.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(ChatView)
}

// drive runs cmd and everything it produces through v.Update. Spinner ticks
// are dropped so the loop settles.
func drive(t *testing.T, v ChatView, cmd tea.Cmd) ChatView {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 1000, "command loop did not settle")
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		msg := c()
		switch msg := msg.(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
			continue
		case spinner.TickMsg:
			continue
		}
		next, out := v.Update(msg)
		v = next.(ChatView)
		queue = append(queue, out)
	}
	return v
}

func press(t *testing.T, v ChatView, keyName string) ChatView {
	t.Helper()
	var msg tea.KeyMsg
	switch keyName {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+o":
		msg = tea.KeyMsg{Type: tea.KeyCtrlO}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "alt+1":
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'1'}, Alt: true}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keyName)}
	}
	next, cmd := v.Update(msg)
	return drive(t, next.(ChatView), cmd)
}

func TestWelcomeShowsOpeningStatement(t *testing.T) {
	v := newTestView(t, &stubService{}, &model.AppParameters{
		OpeningStatement:   "Hello, I plan trips.",
		SuggestedQuestions: []string{"Where should I go in May?"},
	})

	view := v.View()
	assert.Contains(t, view, "Hello, I plan trips.")
	assert.Contains(t, view, "Where should I go in May?")
	assert.Contains(t, view, "Helper Bot")
}

func TestEnterSendsAndRendersAnswer(t *testing.T) {
	svc := &stubService{
		reply:    "Lisbon is **lovely**",
		thoughts: []stream.ThoughtDelta{{ID: "th1", Tool: "weather", ToolInput: `{"city":"Lisbon"}`, Observation: "sunny"}},
	}
	v := newTestView(t, svc, &model.AppParameters{})

	v.textarea.SetValue("Where to?")
	v = press(t, v, "enter")

	require.Len(t, svc.sent, 1)
	assert.Equal(t, "Where to?", svc.sent[0].Query)
	assert.Empty(t, v.textarea.Value())
	assert.False(t, v.session.Responding)
	assert.Equal(t, "c1", v.session.ActiveConversationID)

	content := v.renderTranscript()
	assert.Contains(t, content, "Where to?")
	assert.Contains(t, content, "lovely")
	assert.Contains(t, content, "weather")
	assert.Contains(t, content, "sunny")
}

func TestSuggestedQuestionIsSent(t *testing.T) {
	svc := &stubService{reply: "ok"}
	v := newTestView(t, svc, &model.AppParameters{SuggestedQuestions: []string{"What can you do?"}})

	v = press(t, v, "alt+1")

	require.Len(t, svc.sent, 1)
	assert.Equal(t, "What can you do?", svc.sent[0].Query)
}

func TestRequiredInputBlocksFirstTurn(t *testing.T) {
	svc := &stubService{reply: "ok"}
	params := &model.AppParameters{UserInputForm: []model.InputField{
		{Variable: "city", Label: "City", Type: "text-input", Required: true},
		{Variable: "mood", Label: "Mood", Type: "select", Options: []string{"calm", "busy"}, Default: "calm"},
	}}
	v := newTestView(t, svc, params)

	v.textarea.SetValue("Plan a day")
	v = press(t, v, "enter")
	assert.Empty(t, svc.sent)
	require.NotNil(t, v.status)
	assert.Contains(t, v.status.Text, "city")
	assert.Equal(t, "Plan a day", v.textarea.Value())

	v.textarea.SetValue("/set mood=angry")
	v = press(t, v, "enter")
	assert.Contains(t, v.status.Text, "calm, busy")

	v.textarea.SetValue("/set city=Porto")
	v = press(t, v, "enter")

	v.textarea.SetValue("Plan a day")
	v = press(t, v, "enter")
	require.Len(t, svc.sent, 1)
	assert.Equal(t, map[string]any{"city": "Porto", "mood": "calm"}, svc.sent[0].Inputs)

	// Later turns reuse the remembered inputs.
	v.textarea.SetValue("And tomorrow?")
	press(t, v, "enter")
	require.Len(t, svc.sent, 2)
	assert.Equal(t, map[string]any{"city": "Porto", "mood": "calm"}, svc.sent[1].Inputs)
}

func TestPickerFiltersAndSwitches(t *testing.T) {
	svc := &stubService{}
	v := newTestView(t, svc, &model.AppParameters{})
	v.session.Conversations = []model.Conversation{
		{ID: "c1", Name: "Trip to Lisbon"},
		{ID: "c2", Name: "Tax questions"},
	}

	v = press(t, v, "ctrl+o")
	require.True(t, v.picker.active)
	assert.Len(t, v.picker.visible, 2)

	for _, r := range "tax" {
		v = press(t, v, string(r))
	}
	require.Len(t, v.picker.visible, 1)
	assert.Equal(t, "c2", v.picker.visible[0].ID)
	assert.Contains(t, v.View(), "Tax questions")

	v = press(t, v, "enter")
	assert.False(t, v.picker.active)
	assert.Equal(t, "c2", v.session.ActiveConversationID)
}

func providerPingFailed() provider.PingProviderMsg {
	return provider.PingProviderMsg{AgentID: "bot", Model: "llama3", Err: errors.New("connection refused")}
}

func TestPingFailureBecomesStatus(t *testing.T) {
	v := newTestView(t, &stubService{}, &model.AppParameters{})

	next, _ := v.Update(providerPingFailed())
	v = next.(ChatView)

	require.NotNil(t, v.status)
	assert.Equal(t, model.NoticeWarning, v.status.Level)
	assert.True(t, strings.Contains(v.statusLine(), "not reachable"))
}

func TestMissingModelBecomesStatus(t *testing.T) {
	v := newTestView(t, &stubService{}, &model.AppParameters{})

	next, _ := v.Update(provider.PingProviderMsg{AgentID: "bot", Model: "llama3", Err: fmt.Errorf("llama3: %w", provider.ErrModelNotFound)})
	v = next.(ChatView)

	require.NotNil(t, v.status)
	assert.Contains(t, v.statusLine(), "not served")
}

func TestRenderMarkdownFramesCode(t *testing.T) {
	out := renderMarkdown("Run this:\n\n```\ngo version\n```\n", 60)
	assert.Contains(t, out, "[code]")
	assert.Contains(t, out, "go version")
	assert.NotContains(t, out, codeBar)
}

func TestFormatFooter(t *testing.T) {
	out := FormatFooter("Enter", "Send", "Esc")
	assert.Contains(t, out, "Enter")
	assert.Contains(t, out, "Send")
	assert.NotContains(t, out, "Esc")
}
