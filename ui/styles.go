package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"agentchat/model"
)

// ANSI palette; terminals map these to their own theme.
var (
	dimColor       = lipgloss.Color("7")
	accentColor    = lipgloss.Color("12")
	successColor   = lipgloss.Color("10")
	warningColor   = lipgloss.Color("11")
	dangerColor    = lipgloss.Color("9")
	highlightColor = lipgloss.Color("13")
)

// Transcript
var (
	UserStyle    = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	AgentStyle   = lipgloss.NewStyle().Foreground(accentColor)
	ThoughtStyle = lipgloss.NewStyle().Foreground(dimColor).Italic(true)
	ToolStyle    = lipgloss.NewStyle().Foreground(highlightColor)
	FileStyle    = lipgloss.NewStyle().Foreground(accentColor).Underline(true)
)

// Chrome around the transcript
var (
	TitleStyle     = lipgloss.NewStyle().Bold(true)
	DimStyle       = lipgloss.NewStyle().Foreground(dimColor)
	StatusStyle    = DimStyle
	HelpStyle      = DimStyle
	SelectedStyle  = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	ActiveStyle    = lipgloss.NewStyle().Foreground(successColor)
	HighlightStyle = lipgloss.NewStyle().Foreground(highlightColor).Bold(true)
	keyStyle       = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
)

// Notices
var (
	ErrorStyle   = lipgloss.NewStyle().Foreground(dangerColor).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
)

func noticeStyle(level model.NoticeLevel) lipgloss.Style {
	switch level {
	case model.NoticeError:
		return ErrorStyle
	case model.NoticeWarning:
		return WarningStyle
	default:
		return StatusStyle
	}
}

// FormatFooter renders key/description pairs, e.g.
// FormatFooter("Enter", "Send", "Esc", "Stop"). A trailing key without a
// description is dropped.
func FormatFooter(parts ...string) string {
	pairs := make([]string, 0, len(parts)/2)
	for i := 0; i+1 < len(parts); i += 2 {
		pairs = append(pairs, parts[i]+" "+keyStyle.Render(parts[i+1]))
	}
	return strings.Join(pairs, "  ")
}
