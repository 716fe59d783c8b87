// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the sbrchat TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	// ==========================================================================
	// HEADER AND STATUS BAR
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	StatusBar   lipgloss.Style
	StatusKey   lipgloss.Style
	StatusDesc  lipgloss.Style

	// ==========================================================================
	// SESSION SIDEBAR
	// ==========================================================================

	Sidebar        lipgloss.Style
	SidebarTitle   lipgloss.Style
	SidebarItem    lipgloss.Style
	SidebarActive  lipgloss.Style
	SidebarDraft   lipgloss.Style

	// ==========================================================================
	// MESSAGE BUBBLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserBubble     lipgloss.Style
	AssistantText  lipgloss.Style
	ErrorBubble    lipgloss.Style
	ButtonChip     lipgloss.Style
	Timestamp      lipgloss.Style

	// ==========================================================================
	// ATTACHMENTS
	// ==========================================================================

	Attachment  lipgloss.Style
	TableHeader lipgloss.Style
	TableCell   lipgloss.Style

	// ==========================================================================
	// FEEDBACK
	// ==========================================================================

	VerdictLike    lipgloss.Style
	VerdictDislike lipgloss.Style
	ModalBox       lipgloss.Style
	ModalTitle     lipgloss.Style
	ModalError     lipgloss.Style

	// ==========================================================================
	// INPUT AND SPINNER
	// ==========================================================================

	InputContainer lipgloss.Style
	Spinner        lipgloss.Style
	ThinkingText   lipgloss.Style
}

// palette groups the colors a theme variant is built from.
type palette struct {
	accent    lipgloss.Color
	accentDim lipgloss.Color
	text      lipgloss.Color
	dim       lipgloss.Color
	surface   lipgloss.Color
	danger    lipgloss.Color
	success   lipgloss.Color
}

var darkPalette = palette{
	accent:    lipgloss.Color("#4FC3F7"),
	accentDim: lipgloss.Color("#2E6C8A"),
	text:      lipgloss.Color("#E0E0E0"),
	dim:       lipgloss.Color("#757575"),
	surface:   lipgloss.Color("#1E2430"),
	danger:    lipgloss.Color("#EF5350"),
	success:   lipgloss.Color("#66BB6A"),
}

var lightPalette = palette{
	accent:    lipgloss.Color("#0277BD"),
	accentDim: lipgloss.Color("#81D4FA"),
	text:      lipgloss.Color("#212121"),
	dim:       lipgloss.Color("#9E9E9E"),
	surface:   lipgloss.Color("#ECEFF1"),
	danger:    lipgloss.Color("#C62828"),
	success:   lipgloss.Color("#2E7D32"),
}

// NewTheme builds a theme for the named variant ("dark" or "light").
func NewTheme(name string) *Theme {
	p := darkPalette
	isDark := true
	if name == "light" {
		p = lightPalette
		isDark = false
	}

	t := &Theme{
		IsDark:       isDark,
		ColorProfile: termenv.ColorProfile(),
	}

	t.Header = lipgloss.NewStyle().
		Background(p.surface).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().
		Foreground(p.accent).
		Bold(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(p.surface).
		Foreground(p.dim).
		Padding(0, 1)
	t.StatusKey = lipgloss.NewStyle().
		Foreground(p.accent).
		Bold(true)
	t.StatusDesc = lipgloss.NewStyle().
		Foreground(p.dim)

	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(p.accentDim).
		PaddingRight(1)
	t.SidebarTitle = lipgloss.NewStyle().
		Foreground(p.dim).
		Bold(true)
	t.SidebarItem = lipgloss.NewStyle().
		Foreground(p.text)
	t.SidebarActive = lipgloss.NewStyle().
		Foreground(p.accent).
		Bold(true)
	t.SidebarDraft = lipgloss.NewStyle().
		Foreground(p.dim).
		Italic(true)

	t.UserLabel = lipgloss.NewStyle().
		Foreground(p.accent).
		Bold(true)
	t.AssistantLabel = lipgloss.NewStyle().
		Foreground(p.success).
		Bold(true)
	t.UserBubble = lipgloss.NewStyle().
		Foreground(p.text)
	t.AssistantText = lipgloss.NewStyle().
		Foreground(p.text)
	t.ErrorBubble = lipgloss.NewStyle().
		Foreground(p.danger)
	t.ButtonChip = lipgloss.NewStyle().
		Foreground(p.accent).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(p.accentDim).
		Padding(0, 1)
	t.Timestamp = lipgloss.NewStyle().
		Foreground(p.dim)

	t.Attachment = lipgloss.NewStyle().
		Foreground(p.accent).
		Underline(true)
	t.TableHeader = lipgloss.NewStyle().
		Foreground(p.accent).
		Bold(true)
	t.TableCell = lipgloss.NewStyle().
		Foreground(p.text)

	t.VerdictLike = lipgloss.NewStyle().
		Foreground(p.success)
	t.VerdictDislike = lipgloss.NewStyle().
		Foreground(p.danger)
	t.ModalBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(p.accent).
		Padding(1, 2)
	t.ModalTitle = lipgloss.NewStyle().
		Foreground(p.accent).
		Bold(true)
	t.ModalError = lipgloss.NewStyle().
		Foreground(p.danger)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(p.accentDim)
	t.Spinner = lipgloss.NewStyle().
		Foreground(p.accent)
	t.ThinkingText = lipgloss.NewStyle().
		Foreground(p.dim).
		Italic(true)

	return t
}

// SetSize records the terminal dimensions for styles that depend on them.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}
