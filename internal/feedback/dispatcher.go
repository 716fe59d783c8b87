// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package feedback submits like/dislike verdicts for assistant messages,
// resolving UI positions to durable server message ids with a bounded
// history-refetch fallback.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jeranaias/sbrchat-tui/internal/api"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyText rejects a dislike with no explanation. Validated
	// before any network call.
	ErrEmptyText = errors.New("dislike feedback requires a text explanation")
	// ErrAlreadyVoted means a verdict is already recorded for the
	// position; re-submission is a no-op.
	ErrAlreadyVoted = errors.New("feedback already recorded for this message")
	// ErrVotePending means a submission for the position is in flight.
	ErrVotePending = errors.New("feedback submission already in progress")
	// ErrUnresolved means the server message id could not be determined
	// even after a history refetch.
	ErrUnresolved = errors.New("message id could not be resolved")
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Backend is the slice of the API client the dispatcher depends on.
type Backend interface {
	FetchHistory(ctx context.Context, sessionID string, limit int) ([]api.HistoryMessage, error)
	SendFeedback(ctx context.Context, messageID, sessionID string, kind api.FeedbackType, text string) error
}

// Local is the slice of local persistence the dispatcher depends on.
type Local interface {
	Verdict(ctx context.Context, sessionID string, position int) (string, error)
	SaveVerdict(ctx context.Context, sessionID string, position int, verdict, text string) error
	DeleteVerdict(ctx context.Context, sessionID string, position int) error
	MessageID(ctx context.Context, sessionID string, ordinal int) (string, error)
	CacheMessageIDs(ctx context.Context, sessionID string, ids map[int]string) error
	PromptShown(ctx context.Context, sessionID string) (bool, error)
	MarkPromptShown(ctx context.Context, sessionID string) error
}

// Transcript is the slice of the message store the dispatcher depends on.
type Transcript interface {
	AssistantOrdinal(sessionID string, position int) int
	ServerMessageID(sessionID string, position int) string
	SetServerMessageID(sessionID string, position int, messageID string)
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher runs the per-message feedback state machine:
// Unvoted -> Voting -> Voted. The vote is recorded optimistically and
// rolled back if the submission fails or the message id never resolves.
type Dispatcher struct {
	backend    Backend
	local      Local
	transcript Transcript

	mu sync.Mutex
	// voting tracks in-flight submissions per (session, position).
	voting map[string]bool
	// refetched caps the history fallback at one attempt per position.
	refetched map[string]bool
	// refetchLimiter is a global backstop against refetch storms when
	// many positions are unresolved at once.
	refetchLimiter *rate.Limiter

	historyLimit int
}

// New creates a dispatcher.
func New(backend Backend, local Local, transcript Transcript, historyLimit int) *Dispatcher {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Dispatcher{
		backend:        backend,
		local:          local,
		transcript:     transcript,
		voting:         make(map[string]bool),
		refetched:      make(map[string]bool),
		refetchLimiter: rate.NewLimiter(rate.Limit(1), 3),
		historyLimit:   historyLimit,
	}
}

func key(sessionID string, position int) string {
	return fmt.Sprintf("%s:%d", sessionID, position)
}

// Result reports the outcome of a successful submission.
type Result struct {
	// PromptImprove is set on the first accepted dislike in a session;
	// the UI shows the improvement prompt once.
	PromptImprove bool
}

// Submit records a verdict for the assistant message at the given list
// position. Dislike requires non-empty text; like ignores text. The
// verdict is saved locally before the network call and removed again if
// the call fails.
func (d *Dispatcher) Submit(ctx context.Context, sessionID string, position int, kind api.FeedbackType, text string) (Result, error) {
	if kind == api.FeedbackDislike && text == "" {
		return Result{}, ErrEmptyText
	}
	if kind == api.FeedbackLike {
		text = ""
	}

	existing, err := d.local.Verdict(ctx, sessionID, position)
	if err != nil {
		return Result{}, err
	}
	if existing != "" {
		return Result{}, ErrAlreadyVoted
	}

	k := key(sessionID, position)
	d.mu.Lock()
	if d.voting[k] {
		d.mu.Unlock()
		return Result{}, ErrVotePending
	}
	d.voting[k] = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.voting, k)
		d.mu.Unlock()
	}()

	// Optimistic: the UI reads the verdict from local state immediately.
	if err := d.local.SaveVerdict(ctx, sessionID, position, string(kind), text); err != nil {
		return Result{}, err
	}
	rollback := func() {
		if err := d.local.DeleteVerdict(ctx, sessionID, position); err != nil {
			log.Printf("feedback: rolling back verdict %s: %v", k, err)
		}
	}

	messageID, err := d.ResolveMessageID(ctx, sessionID, position)
	if err != nil {
		rollback()
		log.Printf("feedback: session %s position %d: %v", sessionID, position, err)
		return Result{}, err
	}

	if err := d.backend.SendFeedback(ctx, messageID, sessionID, kind, text); err != nil {
		rollback()
		return Result{}, err
	}

	var result Result
	if kind == api.FeedbackDislike {
		shown, err := d.local.PromptShown(ctx, sessionID)
		if err == nil && !shown {
			result.PromptImprove = true
			if err := d.local.MarkPromptShown(ctx, sessionID); err != nil {
				log.Printf("feedback: marking prompt for %s: %v", sessionID, err)
			}
		}
	}
	return result, nil
}

// Verdict returns the recorded verdict for a position, empty if none.
func (d *Dispatcher) Verdict(ctx context.Context, sessionID string, position int) string {
	v, err := d.local.Verdict(ctx, sessionID, position)
	if err != nil {
		log.Printf("feedback: reading verdict: %v", err)
		return ""
	}
	return v
}

// =============================================================================
// MESSAGE ID RESOLUTION
// =============================================================================

// ResolveMessageID maps a UI list position to the server message id.
// Lookup order: in-memory transcript, local cache, then at most one
// history refetch per position. An id that stays unresolved after the
// refetch is permanently unresolvable; the caller abandons the
// submission.
func (d *Dispatcher) ResolveMessageID(ctx context.Context, sessionID string, position int) (string, error) {
	if id := d.transcript.ServerMessageID(sessionID, position); id != "" {
		return id, nil
	}

	ordinal := d.transcript.AssistantOrdinal(sessionID, position)
	if ordinal < 0 {
		return "", fmt.Errorf("%w: position %d is not a feedback target", ErrUnresolved, position)
	}

	if id, err := d.local.MessageID(ctx, sessionID, ordinal); err == nil && id != "" {
		return id, nil
	}

	k := key(sessionID, position)
	d.mu.Lock()
	attempted := d.refetched[k]
	if !attempted {
		d.refetched[k] = true
	}
	d.mu.Unlock()
	if attempted {
		return "", ErrUnresolved
	}
	if !d.refetchLimiter.Allow() {
		return "", ErrUnresolved
	}

	if err := d.refreshCache(ctx, sessionID); err != nil {
		return "", err
	}

	if id, err := d.local.MessageID(ctx, sessionID, ordinal); err == nil && id != "" {
		d.transcript.SetServerMessageID(sessionID, position, id)
		return id, nil
	}
	return "", ErrUnresolved
}

// refreshCache refetches the session history and caches every assistant
// message id by ordinal.
func (d *Dispatcher) refreshCache(ctx context.Context, sessionID string) error {
	history, err := d.backend.FetchHistory(ctx, sessionID, d.historyLimit)
	if err != nil {
		return err
	}

	ids := make(map[int]string)
	ordinal := 0
	for _, h := range history {
		if h.Role != "assistant" {
			continue
		}
		if h.ID != "" {
			ids[ordinal] = h.ID
		}
		ordinal++
	}
	return d.local.CacheMessageIDs(ctx, sessionID, ids)
}
