package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"adorable/internal/events"
	"adorable/internal/logging"
)

// Renderer writes events as terminal lines. It implements events.Writer.
type Renderer struct {
	w        io.Writer
	styles   Styles
	markdown *glamour.TermRenderer

	reply strings.Builder
	raw   bool // token text written without a trailing newline
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithStyles sets the styles.
func WithStyles(s Styles) RendererOption {
	return func(r *Renderer) { r.styles = s }
}

// WithMarkdown buffers assistant text and renders it as markdown between
// other events instead of streaming it raw.
func WithMarkdown(width int) RendererOption {
	return func(r *Renderer) {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			logging.Debug("markdown renderer unavailable", "error", err)
			return
		}
		r.markdown = md
	}
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer, opts ...RendererOption) *Renderer {
	r := &Renderer{w: w, styles: DefaultStyles()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Write(ev events.Event) error {
	if ev.Type == events.TypeToken {
		if r.markdown != nil {
			r.reply.WriteString(ev.Content)
			return nil
		}
		r.raw = !strings.HasSuffix(ev.Content, "\n")
		_, err := io.WriteString(r.w, ev.Content)
		return err
	}

	if err := r.flush(); err != nil {
		return err
	}
	line := r.Line(ev)
	if line == "" {
		return nil
	}
	_, err := fmt.Fprintln(r.w, line)
	return err
}

// flush ends pending assistant text.
func (r *Renderer) flush() error {
	if r.raw {
		r.raw = false
		if _, err := io.WriteString(r.w, "\n"); err != nil {
			return err
		}
	}
	if r.reply.Len() == 0 {
		return nil
	}
	text := r.reply.String()
	r.reply.Reset()
	out, err := r.markdown.Render(text)
	if err != nil {
		out = text + "\n"
	}
	_, err = io.WriteString(r.w, out)
	return err
}

// Line formats a non-token event as one line. Done renders as nothing.
func (r *Renderer) Line(ev events.Event) string {
	s := r.styles
	switch ev.Type {
	case events.TypeStatus:
		return s.Status.Render(MessageIcons["info"] + " " + ev.Message)
	case events.TypeTool:
		return s.Tool.Render(MessageIcons["tool"] + " " + ev.Tool)
	case events.TypeFileUpdate:
		if ev.File == nil {
			return ""
		}
		icon := MessageIcons[string(ev.File.Action)]
		if icon == "" {
			icon = MessageIcons["modify"]
		}
		line := icon + " " + s.Path.Render(ev.File.Path)
		if ev.Diff != nil {
			line += "  " + s.Added.Render(fmt.Sprintf("+%d", ev.Diff.Added)) +
				" " + s.Removed.Render(fmt.Sprintf("-%d", ev.Diff.Removed))
		}
		return line
	case events.TypeWarning:
		return s.Warning.Render(MessageIcons["warning"] + " " + ev.Message)
	case events.TypeVersionCreated:
		build := s.Success.Render("build passed")
		if ev.Passed != nil && !*ev.Passed {
			build = s.Warning.Render("build failing")
		}
		line := fmt.Sprintf("%s version %s of %s (%s)", MessageIcons["success"], ev.VersionID, ev.ProjectID, build)
		if ev.Preview != "" {
			line += "\n  preview: " + s.Path.Render(ev.Preview)
		}
		return line
	case events.TypeError:
		return s.Error.Render(MessageIcons["error"] + " " + ev.Message)
	}
	return ""
}
