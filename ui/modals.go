package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// renderModal draws the borderless three-section modal: title, message and
// footer, centered in the terminal.
func renderModal(title string, body []string, footer string, titleColor lipgloss.Color, width, height int) string {
	modalWidth := 60
	if width < modalWidth+10 {
		modalWidth = max(width-10, 20)
	}

	titleSection := lipgloss.NewStyle().
		Bold(true).
		Foreground(titleColor).
		Align(lipgloss.Center).
		Width(modalWidth).
		Render(title)

	lineStyle := lipgloss.NewStyle().Width(modalWidth).Align(lipgloss.Center)
	lines := []string{""}
	for _, line := range body {
		lines = append(lines, lineStyle.Render(line))
	}
	lines = append(lines, "")

	section := lipgloss.NewStyle().
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Width(modalWidth)

	content := strings.Join([]string{
		titleSection,
		section.Render(strings.Join(lines, "\n")),
		section.Foreground(dimColor).Align(lipgloss.Center).Render(footer),
	}, "\n")

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

// ErrorModal shows a startup error before the chat opens.
type ErrorModal struct {
	title   string
	message string
	width   int
	height  int
}

func NewErrorModal(title, message string) ErrorModal {
	return ErrorModal{title: title, message: message}
}

func (m ErrorModal) Init() tea.Cmd {
	return nil
}

func (m ErrorModal) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "esc", "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ErrorModal) View() string {
	if m.width < 20 || m.height < 10 {
		return m.title + ": " + m.message
	}
	return renderModal(m.title, strings.Split(m.message, "\n"), "Press Enter to quit", dangerColor, m.width, m.height)
}

// PassphraseModal prompts for the passphrase of the SSH key that encrypts
// the credential file.
type PassphraseModal struct {
	keyPath   string
	input     textinput.Model
	err       string
	width     int
	height    int
	cancelled bool
}

func NewPassphraseModal(keyPath string) PassphraseModal {
	input := textinput.New()
	input.Placeholder = "Enter passphrase"
	input.EchoMode = textinput.EchoPassword
	input.EchoCharacter = '•'
	input.CharLimit = 256
	input.Width = 40
	input.Focus()

	return PassphraseModal{keyPath: keyPath, input: input}
}

func (m PassphraseModal) Init() tea.Cmd {
	return textinput.Blink
}

func (m PassphraseModal) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			if strings.TrimSpace(m.input.Value()) == "" {
				m.err = "Passphrase cannot be empty"
				return m, nil
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m PassphraseModal) View() string {
	body := []string{"Unlock credentials with", DimStyle.Render(m.keyPath), "", m.input.View()}
	if m.err != "" {
		body = append(body, "", ErrorStyle.Render(m.err))
	}
	return renderModal("SSH Key Passphrase Required", body, FormatFooter("Enter", "Unlock", "Esc", "Cancel"), warningColor, m.width, m.height)
}

// Passphrase returns the entered passphrase, empty if cancelled.
func (m PassphraseModal) Passphrase() string {
	if m.cancelled {
		return ""
	}
	return m.input.Value()
}

func (m PassphraseModal) Cancelled() bool {
	return m.cancelled
}
