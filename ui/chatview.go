// Package ui is the terminal host of agentchat: a transcript viewport, an
// input box and a conversation sidebar over a model.Model session.
package ui

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agentchat/config"
	"agentchat/model"
	"agentchat/provider"
)

// ConnectFunc opens the backend of an agent. The returned command, if any,
// runs alongside the session reload (a provider ping for local agents).
type ConnectFunc func(agent config.AgentConfig) (model.AgentService, tea.Cmd, error)

// ChatView is the root bubbletea model.
type ChatView struct {
	session *model.Model
	agents  []config.AgentConfig
	connect ConnectFunc

	startup tea.Cmd

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	picker   conversationPicker
	rendered renderCache

	// Inputs staged with /set for the next first turn
	pendingInputs map[string]any
	status        *model.Notice

	width  int
	height int
	ready  bool
}

// NewChatView creates the host for session. agents lists the agents ctrl+t
// cycles through; connect may be nil when switching is not offered.
func NewChatView(session *model.Model, agents []config.AgentConfig, connect ConnectFunc) ChatView {
	ta := textarea.New()
	ta.Placeholder = "Type your message here... (/set name=value sets an input)"
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)

	// Enter sends; Alt+Enter inserts a newline
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = AgentStyle

	return ChatView{
		session:       session,
		agents:        agents,
		connect:       connect,
		textarea:      ta,
		viewport:      viewport.New(80, 20),
		spinner:       sp,
		picker:        newConversationPicker(),
		rendered:      renderCache{},
		pendingInputs: map[string]any{},
	}
}

// WithStartupCmd returns a copy of v that also runs cmd on Init.
func (v ChatView) WithStartupCmd(cmd tea.Cmd) ChatView {
	v.startup = cmd
	return v
}

func (v ChatView) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, v.session.Init(), v.startup)
}

func (v ChatView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		v.resize()
		v.ready = true

	case tea.KeyMsg:
		var quit bool
		cmd, quit = v.handleKey(msg)
		if quit {
			return v, cmd
		}

	case spinner.TickMsg:
		if !v.session.Responding {
			return v, nil
		}
		v.spinner, cmd = v.spinner.Update(msg)

	case provider.PingProviderMsg:
		switch {
		case errors.Is(msg.Err, provider.ErrModelNotFound):
			v.setStatus(model.NoticeWarning, fmt.Sprintf("Model %s is not served by its provider", msg.Model))
		case msg.Err != nil:
			v.setStatus(model.NoticeWarning, fmt.Sprintf("Model %s is not reachable: %v", msg.Model, msg.Err))
		}

	default:
		cmd = v.session.Update(msg)
	}

	if notices := v.session.TakeNotices(); len(notices) > 0 {
		last := notices[len(notices)-1]
		v.status = &last
	}
	if v.picker.active {
		v.picker.refresh(v.session)
	}
	v.updateViewportContent()

	return v, cmd
}

// handleKey routes a key press. The bool reports that the program exits.
func (v *ChatView) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "alt+q":
		return tea.Sequence(v.session.Stop(), tea.Quit), true
	}

	if v.picker.active {
		cmd := v.picker.update(msg, v.session)
		v.resize()
		return cmd, false
	}

	switch msg.String() {
	case "esc":
		return v.session.Stop(), false

	case "enter":
		return v.submit(), false

	case "ctrl+n":
		v.pendingInputs = map[string]any{}
		return v.session.CreateNewConversation(), false

	case "ctrl+o":
		cmd := v.picker.open(v.session)
		v.resize()
		return cmd, false

	case "ctrl+t":
		return v.nextAgent(), false

	case "ctrl+y":
		v.copyLastAnswer()
		return nil, false

	case "pgup", "alt+k":
		v.viewport.HalfPageUp()
		return nil, false

	case "pgdown", "alt+j":
		v.viewport.HalfPageDown()
		return nil, false

	case "alt+1", "alt+2", "alt+3", "alt+4", "alt+5", "alt+6", "alt+7", "alt+8", "alt+9":
		return v.askSuggested(int(msg.String()[4] - '1')), false
	}

	var taCmd tea.Cmd
	v.textarea, taCmd = v.textarea.Update(msg)
	return taCmd, false
}

// submit sends the input box, or applies it when it is a /set command.
func (v *ChatView) submit() tea.Cmd {
	text := strings.TrimSpace(v.textarea.Value())
	if text == "" {
		return nil
	}
	if rest, ok := strings.CutPrefix(text, "/set "); ok {
		v.setInput(rest)
		v.textarea.Reset()
		return nil
	}
	return v.send(text)
}

func (v *ChatView) send(text string) tea.Cmd {
	if v.session.Responding {
		v.setStatus(model.NoticeInfo, "Wait for the answer or press Esc to stop it")
		return nil
	}

	inputs, missing := v.firstTurnInputs()
	if missing != "" {
		v.setStatus(model.NoticeWarning, fmt.Sprintf("Input %q is required: /set %s=<value>", missing, missing))
		return nil
	}

	cmd := v.session.SendMessage(text, inputs)
	if cmd == nil {
		return nil
	}
	v.textarea.Reset()
	v.pendingInputs = map[string]any{}
	v.status = nil
	return tea.Batch(cmd, v.spinner.Tick)
}

// firstTurnInputs collects the inputs of a conversation's first turn: staged
// /set values over the form defaults. Later turns reuse what the session
// remembered, so nothing is collected for them.
func (v *ChatView) firstTurnInputs() (inputs map[string]any, missing string) {
	params := v.session.Parameters
	if params == nil || len(v.session.FirstTurnInputs) > 0 || len(v.session.Messages) > 0 {
		return v.pendingInputs, ""
	}

	inputs = map[string]any{}
	for _, field := range params.UserInputForm {
		if val, ok := v.pendingInputs[field.Variable]; ok {
			inputs[field.Variable] = val
			continue
		}
		if field.Default != "" {
			inputs[field.Variable] = field.Default
			continue
		}
		if field.Required && missing == "" {
			missing = field.Variable
		}
	}
	for k, val := range v.pendingInputs {
		if _, ok := inputs[k]; !ok {
			inputs[k] = val
		}
	}
	return inputs, missing
}

// setInput stages a name=value input for the next first turn.
func (v *ChatView) setInput(assignment string) {
	name, value, ok := strings.Cut(assignment, "=")
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)
	if !ok || name == "" {
		v.setStatus(model.NoticeWarning, "Usage: /set name=value")
		return
	}

	if params := v.session.Parameters; params != nil {
		idx := slices.IndexFunc(params.UserInputForm, func(f model.InputField) bool { return f.Variable == name })
		if idx < 0 {
			v.setStatus(model.NoticeWarning, fmt.Sprintf("The agent has no input %q", name))
			return
		}
		field := params.UserInputForm[idx]
		if len(field.Options) > 0 && !slices.Contains(field.Options, value) {
			v.setStatus(model.NoticeWarning, fmt.Sprintf("%s must be one of: %s", name, strings.Join(field.Options, ", ")))
			return
		}
	}

	v.pendingInputs[name] = value
	v.setStatus(model.NoticeInfo, fmt.Sprintf("%s = %s", name, value))
}

func (v *ChatView) askSuggested(i int) tea.Cmd {
	params := v.session.Parameters
	if params == nil || len(v.session.Messages) > 0 || i >= len(params.SuggestedQuestions) {
		return nil
	}
	return v.send(params.SuggestedQuestions[i])
}

// nextAgent switches the session to the agent after the current one.
func (v *ChatView) nextAgent() tea.Cmd {
	if v.connect == nil || len(v.agents) < 2 {
		return nil
	}

	idx := slices.IndexFunc(v.agents, func(a config.AgentConfig) bool { return a.ID == v.session.AgentID })
	next := v.agents[(idx+1)%len(v.agents)]

	svc, connectCmd, err := v.connect(next)
	if err != nil {
		v.setStatus(model.NoticeError, fmt.Sprintf("Could not open agent %s: %v", next.DisplayName(), err))
		return nil
	}

	v.rendered = renderCache{}
	v.pendingInputs = map[string]any{}
	v.picker.close()
	v.resize()
	v.setStatus(model.NoticeInfo, "Switched to "+next.DisplayName())
	return tea.Batch(v.session.SwitchAgent(next.ID, svc), connectCmd)
}

func (v *ChatView) copyLastAnswer() {
	last, ok := v.session.Messages.LastAnswer()
	if !ok {
		return
	}
	if err := clipboard.WriteAll(last.Content); err != nil {
		v.setStatus(model.NoticeWarning, fmt.Sprintf("Could not copy: %v", err))
		return
	}
	v.setStatus(model.NoticeInfo, "Copied last answer")
}

func (v *ChatView) setStatus(level model.NoticeLevel, text string) {
	v.status = &model.Notice{Level: level, Text: text}
}

func (v *ChatView) resize() {
	// Title (1), separator (1), textarea (3) and status bar (1)
	v.viewport.Height = max(v.height-6, 1)
	v.viewport.Width = v.width
	if v.picker.active {
		v.viewport.Width = max(v.width-pickerWidth-1, 10)
	}
	v.textarea.SetWidth(v.width)
}

func (v *ChatView) updateViewportContent() {
	follow := v.viewport.AtBottom() || v.session.Responding
	v.viewport.SetContent(v.renderTranscript())
	if follow {
		v.viewport.GotoBottom()
	}
}

func (v ChatView) View() string {
	if !v.ready {
		return "Loading agentchat..."
	}

	body := v.viewport.View()
	if v.picker.active {
		body = lipgloss.JoinHorizontal(lipgloss.Top, v.picker.view(v.session, v.viewport.Height), body)
	}

	return strings.Join([]string{
		v.title(),
		DimStyle.Render(strings.Repeat("─", max(v.width, 1))),
		body,
		v.textarea.View(),
		v.statusLine(),
	}, "\n")
}

func (v ChatView) title() string {
	agentName := v.session.AgentID
	if idx := slices.IndexFunc(v.agents, func(a config.AgentConfig) bool { return a.ID == v.session.AgentID }); idx >= 0 {
		agentName = v.agents[idx].DisplayName()
	}

	convName := "New conversation"
	for _, c := range v.session.Conversations {
		if c.ID == v.session.ActiveConversationID && c.Name != "" {
			convName = c.Name
			break
		}
	}
	return TitleStyle.Render("agentchat") + DimStyle.Render(" · ") + AgentStyle.Render(agentName) + DimStyle.Render(" · "+convName)
}

func (v ChatView) statusLine() string {
	if v.status != nil {
		return noticeStyle(v.status.Level).Render(v.status.Text)
	}
	if v.session.Responding {
		return StatusStyle.Render(v.spinner.View()+" responding  ") + FormatFooter("Esc", "Stop")
	}
	return FormatFooter("Enter", "Send", "^O", "Conversations", "^N", "New", "^T", "Agent", "^Y", "Copy", "^C", "Quit")
}
