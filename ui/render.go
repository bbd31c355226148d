package ui

import (
	"fmt"
	"strings"

	"agentchat/model"
	"agentchat/transcript"
)

// renderCache keeps the markdown of finished answers keyed by message id.
// An entry is reused only while content and width are unchanged.
type renderCache map[string]cachedRender

type cachedRender struct {
	content  string
	width    int
	rendered string
}

func (c renderCache) get(msg transcript.Message, width int) string {
	if e, ok := c[msg.ID]; ok && e.content == msg.Content && e.width == width {
		return e.rendered
	}
	rendered := renderMarkdown(msg.Content, width)
	c[msg.ID] = cachedRender{content: msg.Content, width: width, rendered: rendered}
	return rendered
}

// renderTranscript renders the conversation. The streaming answer is shown
// as plain text with a cursor; finished answers are rendered as markdown.
func (v *ChatView) renderTranscript() string {
	m := v.session
	if len(m.Messages) == 0 {
		return renderWelcome(m.Parameters, v.width)
	}

	var b strings.Builder
	for _, msg := range m.Messages {
		timestamp := DimStyle.Render(msg.CreatedAt.Format("[15:04]"))

		if !msg.IsAnswer {
			b.WriteString(formatUserMessage(timestamp, UserStyle.Render("You"), msg.Content))
			continue
		}

		b.WriteString(fmt.Sprintf("%s %s\n", timestamp, AgentStyle.Render("Agent")))
		if thoughts := renderThoughts(msg.AgentThoughts); thoughts != "" {
			b.WriteString(thoughts)
		}

		switch {
		case msg.IsStreaming && msg.Content == "":
			b.WriteString(v.spinner.View())
		case msg.IsStreaming:
			b.WriteString(msg.Content + "▋")
		case msg.IsError:
			b.WriteString(ErrorStyle.Render("The answer failed."))
			if msg.Content != "" {
				b.WriteString("\n" + msg.Content)
			}
		default:
			b.WriteString(v.rendered.get(msg, v.width))
		}
		b.WriteString("\n")

		if files := renderFiles(msg.Files); files != "" {
			b.WriteString(files)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatUserMessage(timestamp, role, content string) string {
	bar := UserStyle.Render("┃")

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s %s\n", bar, timestamp, role))
	for _, line := range strings.Split(content, "\n") {
		b.WriteString(fmt.Sprintf("%s %s\n", bar, line))
	}
	b.WriteString("\n")
	return b.String()
}

func renderThoughts(thoughts []transcript.Thought) string {
	var b strings.Builder
	for _, t := range thoughts {
		switch {
		case t.Tool != "":
			line := "🔧 " + ToolStyle.Render(t.Tool)
			if t.ToolInput != "" {
				line += " " + ThoughtStyle.Render(t.ToolInput)
			}
			b.WriteString(line + "\n")
			if t.Observation != "" {
				b.WriteString(ThoughtStyle.Render("  → "+firstLine(t.Observation)) + "\n")
			}
		case t.Thought != "":
			b.WriteString(ThoughtStyle.Render("💭 "+firstLine(t.Thought)) + "\n")
		}
	}
	return b.String()
}

func renderFiles(files []transcript.File) string {
	var b strings.Builder
	for _, f := range files {
		b.WriteString(fmt.Sprintf("📎 %s %s\n", DimStyle.Render(f.Type), FileStyle.Render(f.URL)))
	}
	return b.String()
}

// renderWelcome shows the agent's opening statement and numbered suggested
// questions on an empty transcript.
func renderWelcome(params *model.AppParameters, width int) string {
	if params == nil {
		return DimStyle.Render("Connecting to agent...")
	}

	var b strings.Builder
	if params.OpeningStatement != "" {
		b.WriteString(renderMarkdown(params.OpeningStatement, width))
		b.WriteString("\n\n")
	}
	for i, q := range params.SuggestedQuestions {
		if i >= 9 {
			break
		}
		b.WriteString(fmt.Sprintf("%s %s\n", HighlightStyle.Render(fmt.Sprintf("alt+%d", i+1)), q))
	}
	if b.Len() == 0 {
		return DimStyle.Render("No messages yet. Start chatting!")
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
