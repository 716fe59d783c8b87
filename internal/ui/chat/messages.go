// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/sbrchat-tui/internal/feedback"
)

// =============================================================================
// BUBBLE TEA MESSAGES
// =============================================================================

// StateChangedMsg signals that the store mutated and the view should
// re-render. Sent by the store's change callback from any goroutine.
type StateChangedMsg struct{}

// StreamTickMsg drives batched viewport refreshes during streaming.
type StreamTickMsg struct{}

// StreamFinishedMsg reports a completed or failed streaming exchange.
type StreamFinishedMsg struct {
	SessionID string
	Err       error
}

// DirectoryLoadedMsg reports the startup session-list fetch.
type DirectoryLoadedMsg struct {
	Err error
}

// SessionSwitchedMsg reports a sidebar session switch (and its history
// load, if one was needed). Verdicts carries the stored feedback marks
// for the session so the view needs no storage access.
type SessionSwitchedMsg struct {
	SessionID string
	Verdicts  map[int]string
	Err       error
}

// SessionRemovedMsg reports a session delete attempt. On success the
// removal may have activated a different session; Verdicts carries that
// session's stored feedback marks.
type SessionRemovedMsg struct {
	SessionID string
	Verdicts  map[int]string
	Err       error
}

// FeedbackSentMsg reports a verdict submission.
type FeedbackSentMsg struct {
	Position int
	Verdict  string
	Result   feedback.Result
	Err      error
}

// ChartLoadedMsg carries fetched chart markup for an assistant message.
type ChartLoadedMsg struct {
	Position int
	HTML     string
	Err      error
}
