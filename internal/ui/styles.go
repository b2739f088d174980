// Package ui renders pipeline events for the terminal.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors for the UI theme - Muted Professional Palette
var (
	ColorPrimary   = lipgloss.Color("#A78BFA") // Soft Purple (Lavender 400)
	ColorSecondary = lipgloss.Color("#22D3EE") // Bright Cyan (Cyan 400)
	ColorSuccess   = lipgloss.Color("#059669") // Emerald 600 (muted green)
	ColorWarning   = lipgloss.Color("#D97706") // Amber 600 (muted amber)
	ColorError     = lipgloss.Color("#DC2626") // Red 600 (muted red)
	ColorMuted     = lipgloss.Color("#9CA3AF") // Neutral Gray (Gray 400)
	ColorDim       = lipgloss.Color("#6B7280") // Gray 500
	ColorAdded     = lipgloss.Color("#10B981")
	ColorRemoved   = lipgloss.Color("#EF4444")
)

// MessageIcons provides consistent icons for different message types
var MessageIcons = map[string]string{
	"success": "✓",
	"error":   "✗",
	"warning": "⚠",
	"info":    "ℹ",
	"tool":    "⚙",
	"create":  "+",
	"modify":  "~",
	"delete":  "-",
	"done":    "✨",
}

// Styles holds the lipgloss styles used by the renderer.
type Styles struct {
	Status   lipgloss.Style
	Tool     lipgloss.Style
	Path     lipgloss.Style
	Added    lipgloss.Style
	Removed  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Success  lipgloss.Style
	Muted    lipgloss.Style
	Title    lipgloss.Style
	KeyLabel lipgloss.Style
}

// DefaultStyles returns the default theme.
func DefaultStyles() Styles {
	return Styles{
		Status:   lipgloss.NewStyle().Foreground(ColorSecondary),
		Tool:     lipgloss.NewStyle().Foreground(ColorDim),
		Path:     lipgloss.NewStyle().Foreground(ColorPrimary),
		Added:    lipgloss.NewStyle().Foreground(ColorAdded),
		Removed:  lipgloss.NewStyle().Foreground(ColorRemoved),
		Warning:  lipgloss.NewStyle().Foreground(ColorWarning).Bold(true),
		Error:    lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		Success:  lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true),
		Muted:    lipgloss.NewStyle().Foreground(ColorMuted),
		Title:    lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true),
		KeyLabel: lipgloss.NewStyle().Foreground(ColorMuted).Width(12),
	}
}

// PlainStyles returns styles that add no escape codes.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{
		Status: s, Tool: s, Path: s, Added: s, Removed: s, Warning: s,
		Error: s, Success: s, Muted: s, Title: s, KeyLabel: s.Width(12),
	}
}
