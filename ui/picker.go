package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"agentchat/model"
)

const pickerWidth = 36

// conversationPicker is the sidebar listing the agent's conversations with
// a fuzzy filter on their names.
type conversationPicker struct {
	active   bool
	filter   textinput.Model
	selected int
	visible  []model.Conversation
}

func newConversationPicker() conversationPicker {
	ti := textinput.New()
	ti.Placeholder = "Filter conversations..."
	ti.CharLimit = 100
	ti.Width = pickerWidth - 4
	return conversationPicker{filter: ti}
}

func (p *conversationPicker) open(session *model.Model) tea.Cmd {
	p.active = true
	p.filter.SetValue("")
	p.selected = 0
	p.refresh(session)
	return p.filter.Focus()
}

func (p *conversationPicker) close() {
	p.active = false
	p.filter.Blur()
}

func (p *conversationPicker) refresh(session *model.Model) {
	p.visible = session.FilterConversations(p.filter.Value())
	if p.selected >= len(p.visible) {
		p.selected = max(len(p.visible)-1, 0)
	}
}

// current returns the highlighted conversation, if any.
func (p *conversationPicker) current() (model.Conversation, bool) {
	if p.selected < 0 || p.selected >= len(p.visible) {
		return model.Conversation{}, false
	}
	return p.visible[p.selected], true
}

// update handles a key while the picker is open. Keys it does not bind go
// to the filter input.
func (p *conversationPicker) update(msg tea.KeyMsg, session *model.Model) tea.Cmd {
	switch msg.String() {
	case "esc":
		p.close()
		return nil
	case "up", "ctrl+k":
		if p.selected > 0 {
			p.selected--
		}
		return nil
	case "down", "ctrl+j":
		if p.selected < len(p.visible)-1 {
			p.selected++
		}
		return nil
	case "enter":
		conv, ok := p.current()
		p.close()
		if !ok {
			return nil
		}
		return session.SwitchConversation(conv.ID)
	case "ctrl+d":
		conv, ok := p.current()
		if !ok {
			return nil
		}
		return session.DeleteConversation(conv.ID)
	}

	var cmd tea.Cmd
	p.filter, cmd = p.filter.Update(msg)
	p.selected = 0
	p.refresh(session)
	return cmd
}

func (p *conversationPicker) view(session *model.Model, height int) string {
	var lines []string
	lines = append(lines, TitleStyle.Render("Conversations"), p.filter.View(), "")

	if len(p.visible) == 0 {
		lines = append(lines, DimStyle.Render("No conversations"))
	}

	// Keep the selection inside the rows that fit.
	rows := max(height-5, 1)
	start := 0
	if p.selected >= rows {
		start = p.selected - rows + 1
	}
	end := min(start+rows, len(p.visible))

	for i := start; i < end; i++ {
		conv := p.visible[i]
		name := conv.Name
		if name == "" {
			name = conv.ID
		}
		name = runewidth.Truncate(name, pickerWidth-6, "...")

		line := "  " + name
		if conv.ID == session.ActiveConversationID {
			line = ActiveStyle.Render("• " + name)
		}
		if i == p.selected {
			line = SelectedStyle.Render("> " + name)
		}
		lines = append(lines, line)
	}

	lines = append(lines, "", HelpStyle.Render(FormatFooter("Enter", "Open", "^D", "Delete", "Esc", "Close")))

	return lipgloss.NewStyle().
		Width(pickerWidth).
		Height(height).
		BorderRight(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(strings.Join(lines, "\n"))
}
