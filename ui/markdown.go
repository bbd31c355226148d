package ui

import (
	"regexp"
	"strings"
	"time"

	markdown "github.com/MichaelMure/go-term-markdown"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"agentchat/config"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	urlRegex        = regexp.MustCompile(`(https?://[^\s]+)`)
)

const (
	codeBar  = "┃"
	darkGray = "\x1b[90m"
	red      = "\x1b[31m"
	reset    = "\x1b[0m"
)

// renderMarkdown renders an answer for a terminal of the given width.
// Links are flattened to plain URLs so the terminal can detect them.
func renderMarkdown(content string, width int) string {
	start := time.Now()

	content = mdLinkRegex.ReplaceAllString(content, "$2")

	ext := markdown.Extensions() &^ parser.Autolink
	p := parser.NewWithExtensions(ext)
	r := markdown.NewRenderer(max(width-4, 20), 0)
	rendered := string(gomarkdown.Render(p.Parse([]byte(content)), r))

	rendered = inlineCodeRegex.ReplaceAllString(rendered, red+"$1"+reset)
	rendered = colorURLs(rendered)
	rendered = frameCodeBlocks(rendered, width)

	if config.DebugLog != nil {
		config.DebugLog.Printf("[UI] Rendered %d chars of markdown in %v", len(content), time.Since(start))
	}
	return strings.TrimRight(rendered, "\n")
}

// colorURLs colors plain URLs outside code blocks.
func colorURLs(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if !strings.Contains(line, codeBar) {
			lines[i] = urlRegex.ReplaceAllString(line, red+"$1"+reset)
		}
	}
	return strings.Join(lines, "\n")
}

// frameCodeBlocks replaces the renderer's bar gutter of code blocks with a
// horizontal frame labelled [code].
func frameCodeBlocks(s string, width int) string {
	rule := func(label string) string {
		n := max(width-4-len(label), 0)
		left := n / 2
		return darkGray + strings.Repeat("━", left) + reset + label + darkGray + strings.Repeat("━", n-left) + reset
	}

	var out []string
	inBlock := false
	for _, line := range strings.Split(s, "\n") {
		isCode := strings.Contains(line, codeBar)
		switch {
		case isCode && !inBlock:
			out = append(out, "", rule("[code]"), "")
			inBlock = true
		case !isCode && inBlock:
			out = append(out, "", rule(""), "")
			inBlock = false
		}
		if isCode {
			line = stripCodeBar(line)
		}
		out = append(out, line)
	}
	if inBlock {
		out = append(out, "", rule(""), "")
	}
	return strings.Join(out, "\n")
}

func stripCodeBar(line string) string {
	idx := strings.Index(line, codeBar)
	if idx < 0 {
		return line
	}
	rest := line[idx+len(codeBar):]
	return strings.TrimPrefix(rest, " ")
}
