package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentchat/config"
	"agentchat/model"
	"agentchat/provider"
	"agentchat/provider/testutil"
	"agentchat/storage"
	"agentchat/stream"
)

type fakeTools struct {
	mu      sync.Mutex
	results map[string]string
	errs    map[string]error
	called  []string
}

func (f *fakeTools) Tools() []mcptypes.Tool {
	return []mcptypes.Tool{mcptypes.NewTool("calc.add", mcptypes.WithDescription("Add two numbers"))}
}

func (f *fakeTools) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	f.mu.Lock()
	f.called = append(f.called, name)
	f.mu.Unlock()
	if err := f.errs[name]; err != nil {
		return "", err
	}
	return f.results[name], nil
}

// recorder collects events; it is safe to use from the sending goroutine.
type recorder struct {
	mu     sync.Mutex
	events []stream.Event
	notify chan stream.Event
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan stream.Event, 64)}
}

func (r *recorder) Handle(ev stream.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.notify <- ev
}

func (r *recorder) all() []stream.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stream.Event(nil), r.events...)
}

func (r *recorder) meta(t *testing.T) stream.MessageMeta {
	t.Helper()
	for _, ev := range r.all() {
		if m, ok := ev.(stream.MessageMeta); ok {
			return m
		}
	}
	t.Fatal("no MessageMeta event")
	return stream.MessageMeta{}
}

var testAgent = config.AgentConfig{
	ID:                 "helper",
	Name:               "Helper",
	Kind:               config.AgentLocal,
	Provider:           "ollama",
	Model:              "llama3.1:latest",
	SystemPrompt:       "You are helpful.",
	OpeningStatement:   "Hi there",
	SuggestedQuestions: []string{"What can you do?"},
	Inputs: []config.InputFieldConfig{
		{Variable: "language", Type: "select", Options: []string{"en", "de"}, Required: true},
	},
}

func newBackend(t *testing.T, p provider.Provider, tools Tools) (*Backend, *storage.RunLog) {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewConversationStorage(dir)
	require.NoError(t, err)
	runs, err := storage.NewRunLog(dir)
	require.NoError(t, err)
	t.Cleanup(func() { runs.Close() })

	return New(testAgent, p, tools, store, runs), runs
}

func send(t *testing.T, b *Backend, req model.SendRequest) (*recorder, error) {
	t.Helper()
	rec := newRecorder()
	err := b.SendMessage(context.Background(), req, rec)
	return rec, err
}

func TestSendStreamsAndPersistsTurn(t *testing.T) {
	mock := testutil.Scripted("llama3.1:latest", testutil.Round{Chunks: []string{"Hel", "lo"}})
	b, runs := newBackend(t, mock, nil)

	rec, err := send(t, b, model.SendRequest{AgentID: "helper", Query: "hi there", Inputs: map[string]any{"language": "en"}})
	require.NoError(t, err)

	events := rec.all()
	require.Len(t, events, 5)
	meta := events[0].(stream.MessageMeta)
	assert.NotEmpty(t, meta.MessageID)
	assert.NotEmpty(t, meta.ConversationID)
	assert.NotEmpty(t, meta.TaskID)
	assert.Equal(t, stream.ContentDelta{Text: "Hel"}, events[1])
	assert.Equal(t, stream.ContentDelta{Text: "lo"}, events[2])
	assert.IsType(t, stream.MessageEnd{}, events[3])
	assert.Equal(t, stream.Done{}, events[4])

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "system", calls[0][0].Role)
	assert.Equal(t, "You are helpful.\n\nlanguage: en", calls[0][0].Content)
	assert.Equal(t, provider.Message{Role: "user", Content: "hi there"}, calls[0][len(calls[0])-1])

	convs, err := b.GetConversations(context.Background(), "helper")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, meta.ConversationID, convs[0].ID)
	assert.Equal(t, "hi there", convs[0].Name)

	msgs, err := b.GetMessages(context.Background(), "helper", meta.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].IsAnswer)
	assert.Equal(t, "hi there", msgs[0].Content)
	assert.True(t, msgs[1].IsAnswer)
	assert.Equal(t, meta.MessageID, msgs[1].ID)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)

	run, err := runs.Get(context.Background(), meta.TaskID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunSucceeded, run.Status)
	assert.Empty(t, b.Tasks().Active())
}

func TestFollowUpTurnCarriesHistory(t *testing.T) {
	mock := testutil.Scripted("m",
		testutil.Round{Chunks: []string{"first answer"}},
		testutil.Round{Chunks: []string{"second answer"}},
	)
	b, _ := newBackend(t, mock, nil)

	rec, err := send(t, b, model.SendRequest{AgentID: "helper", Query: "one", Inputs: map[string]any{"language": "de"}})
	require.NoError(t, err)
	convID := rec.meta(t).ConversationID

	// Inputs of later turns do not override the stored first-turn inputs.
	_, err = send(t, b, model.SendRequest{AgentID: "helper", ConversationID: convID, Query: "two", Inputs: map[string]any{"language": "en"}})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []provider.Message{
		{Role: "system", Content: "You are helpful.\n\nlanguage: de"},
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "two"},
	}, calls[1])

	msgs, err := b.GetMessages(context.Background(), "helper", convID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "second answer", msgs[3].Content)
}

func TestToolCallsBecomeThoughts(t *testing.T) {
	mock := testutil.Scripted("m",
		testutil.Round{
			Chunks:    []string{"Let me add. "},
			ToolCalls: []provider.ToolCall{{Name: "calc.add", Arguments: map[string]any{"a": 1, "b": 1}}},
		},
		testutil.Round{Chunks: []string{"It is 2."}},
	)
	tools := &fakeTools{results: map[string]string{"calc.add": "2"}}
	b, runs := newBackend(t, mock, tools)

	rec, err := send(t, b, model.SendRequest{AgentID: "helper", Query: "1+1?"})
	require.NoError(t, err)

	var thoughts []stream.ThoughtDelta
	for _, ev := range rec.all() {
		if th, ok := ev.(stream.ThoughtDelta); ok {
			thoughts = append(thoughts, th)
		}
	}
	require.Len(t, thoughts, 2)
	assert.Equal(t, "calc.add", thoughts[0].Tool)
	assert.JSONEq(t, `{"a":1,"b":1}`, thoughts[0].ToolInput)
	assert.Equal(t, 1, thoughts[0].Position)
	assert.Equal(t, thoughts[0].ID, thoughts[1].ID)
	assert.Equal(t, "2", thoughts[1].Observation)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	second := calls[1]
	assert.Equal(t, provider.Message{Role: "assistant", Content: "Let me add. "}, second[len(second)-2])
	assert.Equal(t, provider.Message{Role: "tool", Content: "2"}, second[len(second)-1])

	meta := rec.meta(t)
	msgs, err := b.GetMessages(context.Background(), "helper", meta.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Let me add. It is 2.", msgs[1].Content)
	require.Len(t, msgs[1].AgentThoughts, 1)
	assert.Equal(t, "calc.add", msgs[1].AgentThoughts[0].Tool)
	assert.Equal(t, "2", msgs[1].AgentThoughts[0].Observation)

	run, err := runs.Get(context.Background(), meta.TaskID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.ToolCalls)
}

func TestToolFailureIsReportedToModel(t *testing.T) {
	mock := testutil.Scripted("m",
		testutil.Round{ToolCalls: []provider.ToolCall{{Name: "calc.add", Arguments: map[string]any{}}}},
		testutil.Round{Chunks: []string{"Sorry."}},
	)
	tools := &fakeTools{errs: map[string]error{"calc.add": errors.New("server down")}}
	b, _ := newBackend(t, mock, tools)

	rec, err := send(t, b, model.SendRequest{AgentID: "helper", Query: "add"})
	require.NoError(t, err)

	events := rec.all()
	assert.Equal(t, stream.Done{}, events[len(events)-1])

	calls := mock.Calls()
	require.Len(t, calls, 2)
	last := calls[1][len(calls[1])-1]
	assert.Equal(t, "tool", last.Role)
	assert.Contains(t, last.Content, "server down")
}

func TestToolRoundsAreBounded(t *testing.T) {
	loop := testutil.Round{ToolCalls: []provider.ToolCall{{Name: "calc.add"}}}
	rounds := make([]testutil.Round, MaxToolRounds+3)
	for i := range rounds {
		rounds[i] = loop
	}
	mock := testutil.Scripted("m", rounds...)
	tools := &fakeTools{results: map[string]string{"calc.add": "0"}}
	b, _ := newBackend(t, mock, tools)

	_, err := send(t, b, model.SendRequest{AgentID: "helper", Query: "loop"})
	require.NoError(t, err)
	assert.Len(t, mock.Calls(), MaxToolRounds+1)
	assert.Len(t, tools.called, MaxToolRounds)
}

func TestProviderErrorEndsStreamWithError(t *testing.T) {
	mock := testutil.Scripted("m", testutil.Round{Chunks: []string{"par"}, Err: errors.New("model crashed")})
	b, runs := newBackend(t, mock, nil)

	rec, err := send(t, b, model.SendRequest{AgentID: "helper", Query: "hi"})
	require.Error(t, err)

	events := rec.all()
	require.GreaterOrEqual(t, len(events), 2)
	errEv, ok := events[len(events)-2].(stream.Error)
	require.True(t, ok)
	assert.False(t, errEv.Cancelled())
	assert.Contains(t, errEv.Error(), "model crashed")
	assert.Equal(t, stream.Done{HadError: true}, events[len(events)-1])

	run, err := runs.Get(context.Background(), rec.meta(t).TaskID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunFailed, run.Status)
	assert.Equal(t, "model crashed", run.Error)
}

func TestStopGenerationCancelsRunningTask(t *testing.T) {
	mock := testutil.Scripted("m", testutil.Round{Chunks: []string{"partial"}, Block: true})
	b, runs := newBackend(t, mock, nil)

	rec := newRecorder()
	done := make(chan error, 1)
	go func() {
		done <- b.SendMessage(context.Background(), model.SendRequest{AgentID: "helper", Query: "long"}, rec)
	}()

	var (
		taskID    string
		streaming bool
	)
	for taskID == "" || !streaming {
		select {
		case ev := <-rec.notify:
			switch e := ev.(type) {
			case stream.MessageMeta:
				taskID = e.TaskID
			case stream.ContentDelta:
				streaming = true
			}
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not start")
		}
	}
	assert.Equal(t, []string{taskID}, b.Tasks().Active())

	require.NoError(t, b.StopGeneration(context.Background(), "helper", taskID))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, stream.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("send did not stop")
	}

	events := rec.all()
	errEv, ok := events[len(events)-2].(stream.Error)
	require.True(t, ok)
	assert.True(t, errEv.Cancelled())
	assert.Equal(t, stream.Done{HadError: true}, events[len(events)-1])

	meta := rec.meta(t)
	msgs, err := b.GetMessages(context.Background(), "helper", meta.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "partial", msgs[1].Content)

	run, err := runs.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStopped, run.Status)
	assert.Empty(t, b.Tasks().Active())
}

func TestStopGenerationUnknownTaskIsNoop(t *testing.T) {
	b, _ := newBackend(t, testutil.NewMockProvider("m"), nil)
	assert.NoError(t, b.StopGeneration(context.Background(), "helper", "nope"))
}

func TestOtherAgentIsRejected(t *testing.T) {
	b, _ := newBackend(t, testutil.NewMockProvider("m"), nil)

	rec, err := send(t, b, model.SendRequest{AgentID: "someone-else", Query: "hi"})
	require.Error(t, err)
	assert.Equal(t, stream.Done{HadError: true}, rec.all()[len(rec.all())-1])

	_, err = b.GetConversations(context.Background(), "someone-else")
	assert.Error(t, err)
	_, err = b.GetApplicationParameters(context.Background(), "someone-else")
	assert.Error(t, err)
}

func TestCreatedConversationIsRenamedOnFirstTurn(t *testing.T) {
	b, _ := newBackend(t, testutil.Scripted("m", testutil.Round{Chunks: []string{"ok"}}), nil)
	ctx := context.Background()

	conv, err := b.CreateConversation(ctx, "helper")
	require.NoError(t, err)
	assert.Equal(t, newConversationName, conv.Name)

	_, err = send(t, b, model.SendRequest{AgentID: "helper", ConversationID: conv.ID, Query: "plan my week"})
	require.NoError(t, err)

	convs, err := b.GetConversations(ctx, "helper")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "plan my week", convs[0].Name)

	require.NoError(t, b.DeleteConversation(ctx, "helper", conv.ID))
	require.NoError(t, b.DeleteConversation(ctx, "helper", conv.ID))
	convs, err = b.GetConversations(ctx, "helper")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestApplicationParametersFromConfig(t *testing.T) {
	b, _ := newBackend(t, testutil.NewMockProvider("m"), nil)

	params, err := b.GetApplicationParameters(context.Background(), "helper")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", params.OpeningStatement)
	assert.Equal(t, []string{"What can you do?"}, params.SuggestedQuestions)
	require.Len(t, params.UserInputForm, 1)
	assert.Equal(t, model.InputField{
		Variable: "language",
		Label:    "language",
		Type:     "select",
		Required: true,
		Options:  []string{"en", "de"},
	}, params.UserInputForm[0])
}

func TestSystemPrompt(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		inputs map[string]any
		want   string
	}{
		{"no inputs", "Be brief.", nil, "Be brief."},
		{"inputs only", "", map[string]any{"b": 2, "a": "x"}, "a: x\nb: 2"},
		{"both", "Be brief.", map[string]any{"tone": "dry"}, "Be brief.\n\ntone: dry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SystemPrompt(tt.base, tt.inputs))
		})
	}
}

func TestTaskRegistry(t *testing.T) {
	r := NewTaskRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	r.Add("t1", cancel)
	assert.Equal(t, []string{"t1"}, r.Active())

	assert.True(t, r.Cancel("t1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, r.Cancel("t1"))
	assert.Empty(t, r.Active())
}
