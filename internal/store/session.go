// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store owns the in-memory chat state: the session directory and
// each session's ordered message list. All mutation goes through the
// Store; network collaborators are injected and never touch state
// directly.
package store

import (
	"strings"
	"time"

	"github.com/jeranaias/sbrchat-tui/internal/api"
)

// =============================================================================
// MESSAGE
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TableRef is an inline result table attached to an assistant message.
type TableRef struct {
	Columns []string
	Rows    []map[string]any
}

// Message is one entry in a session's transcript.
type Message struct {
	Role Role
	// Text is mutable while Pending is true and frozen afterwards.
	Text string
	// Pending marks the single message currently being streamed into.
	Pending bool
	// Greeting marks the permanent assistant greeting that opens every
	// session.
	Greeting bool
	// Button marks a choice-button pseudo-message injected by guided
	// flows. Buttons are presentation state, not transcript content.
	Button bool
	// Errored marks a static error placeholder left by a failed request.
	Errored bool

	// ServerID is the backend message id, known only after persistence
	// is confirmed. It may stay empty forever, which is a valid state.
	ServerID string

	ChartRef  *api.ChartRef
	FileRef   *api.ExcelFile
	TableRef  *TableRef
	Timestamp time.Time
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one conversation thread. An empty ID means the session is a
// draft not yet persisted server-side; at most one draft exists in the
// directory at any time.
type Session struct {
	ID          string
	Title       string
	Messages    []Message
	LastUpdated time.Time
	// Empty is true until the first user message.
	Empty bool
	// BinFlow marks the guided business-identifier sub-flow.
	BinFlow bool

	// historyLoaded is set once server history was merged in.
	historyLoaded bool
	// gen invalidates stream tokens when the session is reset or a new
	// stream starts. See StreamToken.
	gen uint64
	// accum grows the pending message's text without rescanning it.
	accum strings.Builder
}

// newDraftSession creates a fresh draft opened by the permanent greeting.
func newDraftSession(greeting string) *Session {
	return &Session{
		Messages: []Message{{
			Role:      RoleAssistant,
			Text:      greeting,
			Greeting:  true,
			Timestamp: time.Now(),
		}},
		LastUpdated: time.Now(),
		Empty:       true,
	}
}

// IsDraft reports whether the session has no server id yet.
func (s *Session) IsDraft() bool {
	return s.ID == ""
}

// pendingIndex returns the index of the pending message, or -1. The
// reference is re-derived per use rather than cached so that a session
// reset between stream events cannot leave a dangling pointer.
func (s *Session) pendingIndex() int {
	for i := range s.Messages {
		if s.Messages[i].Pending {
			return i
		}
	}
	return -1
}

// dropButtons removes choice-button pseudo-messages in place.
func (s *Session) dropButtons() {
	kept := s.Messages[:0]
	for _, m := range s.Messages {
		if !m.Button {
			kept = append(kept, m)
		}
	}
	s.Messages = kept
}

// AssistantOrdinal returns the zero-based ordinal of the assistant
// message at the given list position, counting only non-greeting
// assistant messages. Returns -1 if the position is not such a message.
func (s *Session) AssistantOrdinal(position int) int {
	if position < 0 || position >= len(s.Messages) {
		return -1
	}
	m := s.Messages[position]
	if m.Role != RoleAssistant || m.Greeting || m.Button {
		return -1
	}

	ordinal := 0
	for i := 0; i < position; i++ {
		prev := s.Messages[i]
		if prev.Role == RoleAssistant && !prev.Greeting && !prev.Button {
			ordinal++
		}
	}
	return ordinal
}
