// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/sbrchat-tui/internal/api"
	"github.com/jeranaias/sbrchat-tui/internal/i18n"
	"github.com/jeranaias/sbrchat-tui/internal/store"
	"github.com/jeranaias/sbrchat-tui/internal/util"
)

// sidebarWidth is the fixed column reserved for the session directory.
const sidebarWidth = 24

// tablePreviewRows caps how many result rows render inline.
const tablePreviewRows = 5

// =============================================================================
// LAYOUT
// =============================================================================

func (m Model) renderChat() string {
	if m.width == 0 {
		return ""
	}

	header := m.renderHeader()
	sidebar := m.renderSidebar()
	transcript := m.viewport.View()
	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, transcript)
	input := m.renderInput()
	status := m.renderStatusBar()

	if m.modalOpen {
		return m.renderModal()
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, status)
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("SBR Chat")
	sub := ""
	for _, s := range m.store.Sessions() {
		if s.Active {
			label := s.Title
			if s.Draft {
				label = i18n.T("sidebar.newChat")
			}
			sub = "  " + util.TruncateWidth(label, m.width-20)
			break
		}
	}
	return m.theme.Header.Width(m.width).Render(title + sub)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(m.theme.SidebarTitle.Render(i18n.T("sidebar.sessions")))
	b.WriteString("\n")

	itemWidth := sidebarWidth - 2
	for _, s := range m.store.Sessions() {
		label := s.Title
		if s.Draft {
			label = i18n.T("sidebar.newChat")
		}
		label = util.TruncateWidth(label, itemWidth)

		style := m.theme.SidebarItem
		switch {
		case s.Active:
			style = m.theme.SidebarActive
		case s.Draft:
			style = m.theme.SidebarDraft
		}
		b.WriteString(style.Render(label))
		b.WriteString("\n")
	}

	return m.theme.Sidebar.
		Width(sidebarWidth).
		Height(m.viewport.Height).
		Render(b.String())
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m Model) renderMessages() string {
	msgs := m.store.ActiveMessages()
	if len(msgs) == 0 {
		return ""
	}

	width := m.viewport.Width - 2
	if width < 20 {
		width = 20
	}

	var parts []string
	button := 0
	for i, msg := range msgs {
		switch {
		case msg.Button:
			button++
			parts = append(parts, m.theme.ButtonChip.Render(fmt.Sprintf("%d. %s", button, msg.Text)))
		case msg.Role == store.RoleUser:
			parts = append(parts, m.renderUserMessage(msg, width))
		default:
			parts = append(parts, m.renderAssistantMessage(msg, i, width))
		}
	}

	if m.state == StateStreaming && pendingAt(msgs) < 0 {
		parts = append(parts, m.renderTyping())
	}

	return strings.Join(parts, "\n\n")
}

func pendingAt(msgs []store.Message) int {
	for i := range msgs {
		if msgs[i].Pending {
			return i
		}
	}
	return -1
}

func (m Model) renderUserMessage(msg store.Message, width int) string {
	label := m.theme.UserLabel.Render("You")
	bubble := m.theme.UserBubble.MaxWidth(width).Render(msg.Text)
	block := label + "\n" + bubble
	return lipgloss.PlaceHorizontal(width, lipgloss.Right, block)
}

func (m Model) renderAssistantMessage(msg store.Message, position, width int) string {
	var b strings.Builder
	b.WriteString(m.theme.AssistantLabel.Render("Assistant"))
	b.WriteString("\n")

	switch {
	case msg.Errored:
		b.WriteString(m.theme.ErrorBubble.MaxWidth(width).Render(msg.Text))
	case msg.Pending && msg.Text == "":
		b.WriteString(m.renderTyping())
	default:
		b.WriteString(m.renderMarkdown(msg.Text))
	}

	if msg.FileRef != nil {
		b.WriteString("\n")
		b.WriteString(m.theme.Attachment.Render(
			fmt.Sprintf("[%s] %s", i18n.T("file.attachment"), msg.FileRef.Filename)))
	}
	if msg.TableRef != nil {
		b.WriteString("\n")
		b.WriteString(m.renderTable(msg.TableRef, width))
	}
	if msg.ChartRef != nil {
		b.WriteString("\n")
		b.WriteString(m.renderChart(msg, position))
	}

	if verdict, ok := m.verdicts[position]; ok && !msg.Pending {
		b.WriteString("\n")
		switch verdict {
		case string(api.FeedbackLike):
			b.WriteString(m.theme.VerdictLike.Render("+ " + i18n.T("feedback.like")))
		case string(api.FeedbackDislike):
			b.WriteString(m.theme.VerdictDislike.Render("- " + i18n.T("feedback.dislike")))
		}
	}

	return b.String()
}

func (m Model) renderMarkdown(text string) string {
	if m.renderer == nil || text == "" {
		return m.theme.AssistantText.Render(text)
	}
	rendered, err := m.renderer.Render(text)
	if err != nil {
		return m.theme.AssistantText.Render(text)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m Model) renderTable(tbl *store.TableRef, width int) string {
	if len(tbl.Columns) == 0 {
		return ""
	}

	colWidth := (width - 2) / len(tbl.Columns)
	if colWidth < 6 {
		colWidth = 6
	}

	var b strings.Builder
	for _, col := range tbl.Columns {
		b.WriteString(m.theme.TableHeader.Render(util.PadWidth(col, colWidth)))
	}
	b.WriteString("\n")

	shown := tbl.Rows
	if len(shown) > tablePreviewRows {
		shown = shown[:tablePreviewRows]
	}
	for _, row := range shown {
		for _, col := range tbl.Columns {
			cell := fmt.Sprintf("%v", row[col])
			b.WriteString(m.theme.TableCell.Render(util.PadWidth(util.TruncateWidth(cell, colWidth-1), colWidth)))
		}
		b.WriteString("\n")
	}
	if len(tbl.Rows) > tablePreviewRows {
		b.WriteString(m.theme.TableCell.Render(
			fmt.Sprintf("... %d %s", len(tbl.Rows), i18n.T("table.rows"))))
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderChart shows the chart attachment line. Terminal cells cannot
// host the server-rendered markup, so the title stands in for it.
func (m Model) renderChart(msg store.Message, position int) string {
	title := msg.ChartRef.ChartType
	if title == "" {
		title = msg.ChartRef.ChartID
	}
	label := "[Chart] " + title
	if _, loaded := m.charts[position]; loaded || msg.ChartRef.ChartHTML != "" {
		label += " *"
	}
	return m.theme.Attachment.Render(label)
}

func (m Model) renderTyping() string {
	label := " " + i18n.T("chat.typing") + "..."
	if !m.thinkingStart.IsZero() {
		label += fmt.Sprintf(" (%ds)", int(time.Since(m.thinkingStart).Seconds()))
	}
	return m.theme.Spinner.Render(m.spinner.View()) + m.theme.ThinkingText.Render(label)
}

// =============================================================================
// INPUT AND STATUS
// =============================================================================

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width - 2).Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	type hint struct{ key, desc string }
	hints := []hint{
		{"enter", "send"},
		{"^n", "new"},
		{"^j/^k", "switch"},
		{"^x", "delete"},
		{"^g/^b", "rate"},
		{"^q", "quit"},
	}

	var b strings.Builder
	for i, h := range hints {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(m.theme.StatusKey.Render(h.key))
		b.WriteString(" ")
		b.WriteString(m.theme.StatusDesc.Render(h.desc))
	}

	if m.statusMsg != "" {
		pad := m.width - runewidth.StringWidth(b.String()) - runewidth.StringWidth(m.statusMsg) - 4
		if pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		} else {
			b.WriteString("  ")
		}
		b.WriteString(m.statusMsg)
	}

	return m.theme.StatusBar.Width(m.width).Render(b.String())
}

// =============================================================================
// FEEDBACK MODAL
// =============================================================================

func (m Model) renderModal() string {
	var b strings.Builder
	b.WriteString(m.theme.ModalTitle.Render(i18n.T("feedback.dislike")))
	b.WriteString("\n\n")
	b.WriteString(i18n.T("feedback.promptText"))
	b.WriteString("\n\n")
	b.WriteString(m.modalInput.View())
	if m.modalError != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.ModalError.Render(m.modalError))
	}
	b.WriteString("\n\n")
	b.WriteString(m.theme.StatusDesc.Render("enter: send  esc: cancel"))

	box := m.theme.ModalBox.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
