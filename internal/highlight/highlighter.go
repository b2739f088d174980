// Package highlight renders source files with terminal syntax colors.
package highlight

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// Highlighter provides syntax highlighting for project files.
type Highlighter struct {
	style     string
	formatter chroma.Formatter
}

// New creates a new Highlighter with the specified style.
// Supported styles: "monokai", "dracula", "github-dark", "native".
func New(style string) *Highlighter {
	if style == "" {
		style = "monokai"
	}
	return &Highlighter{
		style:     style,
		formatter: formatters.Get("terminal256"),
	}
}

// Highlight applies syntax highlighting to code based on language.
func (h *Highlighter) Highlight(code, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(h.style)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// File highlights a project file with a header and line numbers.
func (h *Highlighter) File(p, content string) string {
	header := lipgloss.NewStyle().Foreground(lipgloss.Color("#22D3EE")).Bold(true).Render(p)
	lineNum := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	lines := strings.Split(strings.TrimRight(h.Highlight(content, DetectLanguage(p)), "\n"), "\n")
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for i, line := range lines {
		b.WriteString(lineNum.Render(fmt.Sprintf("%4d", i+1)))
		b.WriteString(" │ ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// DetectLanguage maps a file name to a lexer name.
func DetectLanguage(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".jsx":
		return "react"
	case ".tsx":
		return "tsx"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".css":
		return "css"
	case ".scss":
		return "scss"
	case ".html", ".htm":
		return "html"
	case ".json":
		return "json"
	case ".md":
		return "markdown"
	case ".svg":
		return "xml"
	}
	if base := path.Base(filename); strings.HasPrefix(base, ".env") {
		return "bash"
	}
	return ""
}
