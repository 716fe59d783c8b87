// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"log"
	"time"

	"github.com/jeranaias/sbrchat-tui/internal/api"
)

// =============================================================================
// STREAM TOKENS
// =============================================================================

// StreamToken ties stream mutations to one session generation. A token
// issued by SendUserMessage goes stale as soon as the session is removed,
// reset, or starts a newer stream; mutations through a stale token are
// silent no-ops. This keeps an abandoned network read from leaking
// updates into a reused session slot.
type StreamToken struct {
	sessionID string
	gen       uint64
}

// SessionID returns the session the token addresses.
func (t StreamToken) SessionID() string {
	return t.sessionID
}

// resolve returns the token's session if the token is still current.
func (st *Store) resolveLocked(t StreamToken) *Session {
	s := st.findLocked(t.sessionID)
	if s == nil || s.gen != t.gen {
		return nil
	}
	return s
}

// =============================================================================
// SEND PATH
// =============================================================================

// SendUserMessage appends the user message and the pending assistant
// placeholder to the session, returning a token for the stream that will
// fill the placeholder. The session must already have a server id.
//
// Returns ErrBusy if a response is already in progress for the session;
// callers surface this instead of queueing a second request.
func (st *Store) SendUserMessage(sessionID, text string) (StreamToken, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	session := st.findLocked(sessionID)
	if session == nil {
		return StreamToken{}, ErrSessionNotFound
	}
	if session.pendingIndex() >= 0 {
		return StreamToken{}, ErrBusy
	}

	// Stale choice buttons from a guided flow don't belong in the
	// transcript being extended.
	session.dropButtons()

	now := time.Now()
	session.Messages = append(session.Messages,
		Message{Role: RoleUser, Text: text, Timestamp: now},
		Message{Role: RoleAssistant, Pending: true, Timestamp: now},
	)
	session.Empty = false
	session.LastUpdated = now
	session.gen++
	session.accum.Reset()

	return StreamToken{sessionID: sessionID, gen: session.gen}, nil
}

// =============================================================================
// STREAM MUTATIONS
// =============================================================================

// ApplyText appends a delta to the pending message's text. Stale tokens
// are ignored.
func (st *Store) ApplyText(t StreamToken, delta string) {
	st.mu.Lock()
	session := st.resolveLocked(t)
	if session == nil {
		st.mu.Unlock()
		return
	}
	idx := session.pendingIndex()
	if idx == -1 {
		st.mu.Unlock()
		return
	}
	session.accum.WriteString(delta)
	session.Messages[idx].Text = session.accum.String()
	st.mu.Unlock()
	st.notify()
}

// Finalize writes the terminal payload onto the pending message in one
// update. The complete text replaces the accumulated deltas; streaming
// artifacts never survive into the frozen transcript. Pending stays set
// until EndStream.
func (st *Store) Finalize(t StreamToken, payload *api.CompletePayload) {
	st.mu.Lock()
	session := st.resolveLocked(t)
	if session == nil {
		st.mu.Unlock()
		return
	}
	idx := session.pendingIndex()
	if idx == -1 {
		st.mu.Unlock()
		log.Printf("store: finalize with no pending message in session %s", t.sessionID)
		return
	}

	msg := &session.Messages[idx]
	// Unconditional: a payload that normalizes to empty text still wins
	// over the accumulated deltas.
	msg.Text = payload.Text
	if payload.Chart != nil && payload.Chart.ChartID != "" {
		msg.ChartRef = payload.Chart
	}
	if payload.HasExcel && payload.ExcelFile != nil {
		msg.FileRef = payload.ExcelFile
	}
	if payload.ShowTable && len(payload.TableColumns) > 0 {
		msg.TableRef = &TableRef{Columns: payload.TableColumns, Rows: payload.RawData}
	}
	session.LastUpdated = time.Now()
	st.mu.Unlock()
	st.notify()
}

// EndStream clears the pending flag, freezing the message.
func (st *Store) EndStream(t StreamToken) {
	st.mu.Lock()
	session := st.resolveLocked(t)
	if session == nil {
		st.mu.Unlock()
		return
	}
	if idx := session.pendingIndex(); idx >= 0 {
		session.Messages[idx].Pending = false
	}
	st.mu.Unlock()
	st.notify()
}

// FailPending replaces the pending message with a static error text and
// clears the pending flag. Used when the stream dies before completing.
func (st *Store) FailPending(t StreamToken, errorText string) {
	st.mu.Lock()
	session := st.resolveLocked(t)
	if session == nil {
		st.mu.Unlock()
		return
	}
	idx := session.pendingIndex()
	if idx == -1 {
		st.mu.Unlock()
		return
	}
	msg := &session.Messages[idx]
	msg.Text = errorText
	msg.Pending = false
	msg.Errored = true
	st.mu.Unlock()
	st.notify()
}

// LastAssistantPosition returns the list position of the most recent
// non-greeting assistant message, or -1.
func (st *Store) LastAssistantPosition(sessionID string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	session := st.findLocked(sessionID)
	if session == nil {
		return -1
	}
	for i := len(session.Messages) - 1; i >= 0; i-- {
		m := session.Messages[i]
		if m.Role == RoleAssistant && !m.Greeting && !m.Button {
			return i
		}
	}
	return -1
}

// ServerMessageID returns the backend id recorded for the message at
// the given position, or empty if unknown.
func (st *Store) ServerMessageID(sessionID string, position int) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	session := st.findLocked(sessionID)
	if session == nil || position < 0 || position >= len(session.Messages) {
		return ""
	}
	return session.Messages[position].ServerID
}

// AssistantOrdinal returns the assistant-message ordinal for a list
// position in the session, or -1. See Session.AssistantOrdinal.
func (st *Store) AssistantOrdinal(sessionID string, position int) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	session := st.findLocked(sessionID)
	if session == nil {
		return -1
	}
	return session.AssistantOrdinal(position)
}

// SetServerMessageID records the backend id of a finalized assistant
// message so feedback can address it later.
func (st *Store) SetServerMessageID(sessionID string, position int, messageID string) {
	st.mu.Lock()
	session := st.findLocked(sessionID)
	if session == nil || position < 0 || position >= len(session.Messages) {
		st.mu.Unlock()
		return
	}
	session.Messages[position].ServerID = messageID
	st.mu.Unlock()
}

// AppendButtons installs choice-button pseudo-messages for a guided
// flow, replacing any previous set. An empty session id targets the
// active draft, which has no server id yet.
func (st *Store) AppendButtons(sessionID string, labels []string) {
	st.mu.Lock()
	session := st.guidedTargetLocked(sessionID)
	if session == nil {
		st.mu.Unlock()
		return
	}
	session.dropButtons()
	for _, label := range labels {
		session.Messages = append(session.Messages, Message{
			Role:   RoleAssistant,
			Text:   label,
			Button: true,
		})
	}
	st.mu.Unlock()
	st.notify()
}

// guidedTargetLocked resolves the session a guided-flow mutation
// applies to. An empty id means the active draft.
func (st *Store) guidedTargetLocked(sessionID string) *Session {
	if sessionID != "" {
		return st.findLocked(sessionID)
	}
	if st.active < 0 || st.active >= len(st.sessions) {
		return nil
	}
	if s := st.sessions[st.active]; s.IsDraft() {
		return s
	}
	return nil
}

// StartBinFlow puts a session into the guided business-identifier flow:
// stale choice buttons are dropped, the localized notice is appended as
// an assistant message, and the session stops being empty. CreateNew
// replaces such a session outright instead of reusing it.
func (st *Store) StartBinFlow(sessionID, notice string) {
	st.mu.Lock()
	session := st.guidedTargetLocked(sessionID)
	if session == nil {
		st.mu.Unlock()
		return
	}
	session.dropButtons()
	session.BinFlow = true
	session.Empty = false
	session.Messages = append(session.Messages, Message{
		Role:      RoleAssistant,
		Text:      notice,
		Timestamp: time.Now(),
	})
	session.LastUpdated = time.Now()
	st.mu.Unlock()
	st.notify()
}
