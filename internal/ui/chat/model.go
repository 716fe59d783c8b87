// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/sbrchat-tui/internal/api"
	"github.com/jeranaias/sbrchat-tui/internal/feedback"
	"github.com/jeranaias/sbrchat-tui/internal/i18n"
	"github.com/jeranaias/sbrchat-tui/internal/localstore"
	"github.com/jeranaias/sbrchat-tui/internal/store"
	"github.com/jeranaias/sbrchat-tui/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Receiving a response
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	state State
	theme *styles.Theme

	width  int
	height int

	// Domain collaborators
	store         *store.Store
	client        *api.Client
	local         *localstore.Store
	dispatcher    *feedback.Dispatcher
	streamingMode bool

	// Streaming render batching
	gate *RenderGate

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	keyMap   KeyMap

	// Markdown rendering for assistant answers
	renderer *glamour.TermRenderer

	// Feedback modal (dislike explanation)
	modalOpen     bool
	modalPosition int
	modalInput    textinput.Model
	modalError    string

	// Inline chart markup fetched per message position
	charts map[int]string

	// Verdict marks for the active session, position to "like"/"dislike"
	verdicts map[int]string

	// pendingBin holds a /bin command awaiting its year choice
	pendingBin string

	// Transient status line
	statusMsg string

	thinkingStart time.Time
}

// New creates a new chat model wired to its domain collaborators.
func New(theme *styles.Theme, st *store.Store, client *api.Client, local *localstore.Store, dispatcher *feedback.Dispatcher, streamingMode bool) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = i18n.T("chat.placeholder")
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	mi := textinput.New()
	mi.Prompt = "> "
	mi.CharLimit = 1024

	return Model{
		state:         StateReady,
		theme:         theme,
		store:         st,
		client:        client,
		local:         local,
		dispatcher:    dispatcher,
		streamingMode: streamingMode,
		gate:          NewRenderGate(),
		viewport:      vp,
		input:         ti,
		spinner:       sp,
		keyMap:        DefaultKeyMap(),
		modalInput:    mi,
		charts:        make(map[int]string),
		verdicts:      make(map[int]string),
	}
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadDirectoryCmd())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateChangedMsg:
		// Store mutations outside a stream repaint immediately; during
		// streaming the tick handler batches them.
		if m.state != StateStreaming {
			m.updateViewport()
		}
		return m, nil

	case StreamTickMsg:
		if m.state != StateStreaming {
			return m, nil
		}
		if m.gate.TakeRepaint() {
			m.updateViewport()
			m.viewport.GotoBottom()
		}
		return m, streamTickCmd()

	case StreamFinishedMsg:
		return m.handleStreamFinished(msg)

	case DirectoryLoadedMsg:
		if msg.Err != nil {
			m.statusMsg = i18n.T("chat.error")
		}
		m.updateViewport()
		return m, nil

	case SessionSwitchedMsg:
		if msg.Err != nil {
			m.statusMsg = i18n.T("chat.error")
		}
		m.verdicts = msg.Verdicts
		if m.verdicts == nil {
			m.verdicts = make(map[int]string)
		}
		m.charts = make(map[int]string)
		m.updateViewport()
		m.viewport.GotoBottom()
		return m, nil

	case SessionRemovedMsg:
		if msg.Err != nil {
			m.statusMsg = i18n.T("sidebar.deleteFailed")
		} else {
			m.statusMsg = ""
			m.verdicts = msg.Verdicts
			if m.verdicts == nil {
				m.verdicts = make(map[int]string)
			}
			m.charts = make(map[int]string)
		}
		m.updateViewport()
		return m, nil

	case FeedbackSentMsg:
		return m.handleFeedbackSent(msg)

	case ChartLoadedMsg:
		if msg.Err == nil && msg.HTML != "" {
			m.charts[msg.Position] = msg.HTML
			m.updateViewport()
		}
		return m, nil

	case spinner.TickMsg:
		if m.state == StateStreaming {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	default:
		var cmds []tea.Cmd
		if m.state == StateReady && !m.modalOpen {
			var inputCmd tea.Cmd
			m.input, inputCmd = m.input.Update(msg)
			cmds = append(cmds, inputCmd)
		}
		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)
		return m, tea.Batch(cmds...)
	}
}

// View renders the chat view.
func (m Model) View() string {
	return m.renderChat()
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	const (
		headerHeight    = 2
		inputAreaHeight = 3
		statusBarHeight = 2
	)

	viewportHeight := m.height - headerHeight - inputAreaHeight - statusBarHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}
	viewportWidth := m.width - sidebarWidth - 1
	if viewportWidth < 20 {
		viewportWidth = 20
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight

	inputWidth := m.width - 8
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth
	m.modalInput.Width = 60

	if m.theme != nil {
		m.theme.SetSize(m.width, m.height)
	}

	// Rebuild the markdown renderer at the new wrap width.
	if r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(viewportWidth-4),
	); err == nil {
		m.renderer = r
	}

	m.updateViewport()

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, vpCmd
}

func (m Model) handleStreamFinished(msg StreamFinishedMsg) (tea.Model, tea.Cmd) {
	m.state = StateReady
	m.thinkingStart = time.Time{}
	m.gate.Flush()

	switch {
	case msg.Err == nil:
		m.statusMsg = ""
	case errors.Is(msg.Err, store.ErrBusy):
		m.statusMsg = i18n.T("chat.busy")
	default:
		m.statusMsg = i18n.T("chat.error")
	}

	m.updateViewport()
	m.viewport.GotoBottom()
	m.input.Focus()

	// Charts referenced by the final answer load lazily.
	var cmds []tea.Cmd
	cmds = append(cmds, textinput.Blink)
	if pos := m.store.LastAssistantPosition(msg.SessionID); pos >= 0 && msg.SessionID == m.store.ActiveID() {
		msgs := m.store.ActiveMessages()
		if pos < len(msgs) && msgs[pos].ChartRef != nil && msgs[pos].ChartRef.ChartHTML == "" {
			cmds = append(cmds, m.chartCmd(pos, msgs[pos].ChartRef.ChartID))
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleFeedbackSent(msg FeedbackSentMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Err == nil:
		m.verdicts[msg.Position] = msg.Verdict
		m.statusMsg = i18n.T("feedback.thanks")
		if msg.Result.PromptImprove {
			m.statusMsg = i18n.T("feedback.promptText")
		}
	case errors.Is(msg.Err, feedback.ErrAlreadyVoted):
		m.statusMsg = ""
	default:
		m.statusMsg = i18n.T("chat.error")
	}
	m.updateViewport()
	return m, nil
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.modalOpen {
		return m.handleModalKey(msg)
	}

	switch {
	case key.Matches(msg, m.keyMap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.NewChat):
		m.store.CreateNew()
		m.verdicts = make(map[int]string)
		m.charts = make(map[int]string)
		m.updateViewport()
		return m, nil

	case key.Matches(msg, m.keyMap.NextSession):
		return m.moveSession(1)

	case key.Matches(msg, m.keyMap.PrevSession):
		return m.moveSession(-1)

	case key.Matches(msg, m.keyMap.Delete):
		if id := m.store.ActiveID(); id != "" {
			return m, m.removeSessionCmd(id)
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Like):
		if pos := m.feedbackTarget(); pos >= 0 {
			return m, m.feedbackCmd(pos, api.FeedbackLike, "")
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Dislike):
		if pos := m.feedbackTarget(); pos >= 0 {
			m.modalOpen = true
			m.modalPosition = pos
			m.modalError = ""
			m.modalInput.Reset()
			m.modalInput.Focus()
			m.input.Blur()
			return m, textinput.Blink
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Send):
		if m.state == StateStreaming {
			m.statusMsg = i18n.T("chat.busy")
			return m, nil
		}
		query := strings.TrimSpace(m.input.Value())
		if query == "" {
			return m, nil
		}
		if strings.HasPrefix(query, "/bin") {
			return m.handleBinCommand(query)
		}
		m.input.Reset()
		m.state = StateStreaming
		m.thinkingStart = time.Now()
		m.statusMsg = ""
		return m, tea.Batch(m.sendCmd(query), m.spinner.Tick, streamTickCmd())

	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keyMap.ScrollUp):
		m.viewport.LineUp(1)
		return m, nil

	case key.Matches(msg, m.keyMap.ScrollDown):
		m.viewport.LineDown(1)
		return m, nil

	case key.Matches(msg, m.keyMap.Cancel):
		if m.pendingBin != "" {
			m.pendingBin = ""
			m.store.AppendButtons(m.store.ActiveID(), nil)
			m.updateViewport()
		}
		return m, nil
	}

	// A year choice button is picked by its number.
	if m.pendingBin != "" {
		years := recentYears()
		if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(years) {
			return m.enterBinFlow(m.pendingBin, years[n-1])
		}
	}

	if m.state == StateReady {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleModalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Cancel):
		// Abandoning the modal leaves the position unvoted.
		m.modalOpen = false
		m.modalError = ""
		m.input.Focus()
		return m, textinput.Blink

	case key.Matches(msg, m.keyMap.Send):
		text := strings.TrimSpace(m.modalInput.Value())
		if text == "" {
			// Validated before any network call.
			m.modalError = i18n.T("feedback.textRequired")
			return m, nil
		}
		position := m.modalPosition
		m.modalOpen = false
		m.modalError = ""
		m.input.Focus()
		return m, tea.Batch(m.feedbackCmd(position, api.FeedbackDislike, text), textinput.Blink)
	}

	var cmd tea.Cmd
	m.modalInput, cmd = m.modalInput.Update(msg)
	return m, cmd
}

// moveSession activates the adjacent session in the sidebar order.
func (m Model) moveSession(delta int) (tea.Model, tea.Cmd) {
	sessions := m.store.Sessions()
	if len(sessions) < 2 {
		return m, nil
	}
	current := 0
	for i, s := range sessions {
		if s.Active {
			current = i
			break
		}
	}
	next := (current + delta + len(sessions)) % len(sessions)
	return m, m.switchSessionCmd(sessions[next].ID)
}

// feedbackTarget returns the position eligible for a verdict: the last
// finalized assistant answer in the active session.
func (m Model) feedbackTarget() int {
	sessionID := m.store.ActiveID()
	if sessionID == "" {
		return -1
	}
	pos := m.store.LastAssistantPosition(sessionID)
	if pos < 0 {
		return -1
	}
	msgs := m.store.ActiveMessages()
	if pos >= len(msgs) || msgs[pos].Pending || msgs[pos].Errored {
		return -1
	}
	return pos
}

// =============================================================================
// BIN FLOW
// =============================================================================

// handleBinCommand parses "/bin <12 digits> [year]". Without a year the
// recent reporting years are offered as choice buttons.
func (m Model) handleBinCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)

	bin := ""
	if len(fields) >= 2 && isDigits(fields[1], 12) {
		bin = fields[1]
	}
	year := ""
	if len(fields) == 3 && isDigits(fields[2], 4) {
		year = fields[2]
	}
	if bin == "" || len(fields) > 3 || (len(fields) == 3 && year == "") {
		m.statusMsg = i18n.T("bin.invalid")
		return m, nil
	}

	m.input.Reset()
	if year == "" {
		m.pendingBin = bin
		m.store.AppendButtons(m.store.ActiveID(), recentYears())
		m.updateViewport()
		m.viewport.GotoBottom()
		return m, nil
	}
	return m.enterBinFlow(bin, year)
}

func (m Model) enterBinFlow(bin, year string) (tea.Model, tea.Cmd) {
	m.pendingBin = ""
	m.statusMsg = ""
	m.store.StartBinFlow(m.store.ActiveID(), fmt.Sprintf(i18n.T("bin.start"), bin, year))
	m.updateViewport()
	m.viewport.GotoBottom()
	return m, nil
}

func recentYears() []string {
	y := time.Now().Year()
	return []string{strconv.Itoa(y), strconv.Itoa(y - 1), strconv.Itoa(y - 2)}
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// =============================================================================
// VIEWPORT UPDATE
// =============================================================================

func (m *Model) updateViewport() {
	m.viewport.SetContent(m.renderMessages())
}
