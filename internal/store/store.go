// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jeranaias/sbrchat-tui/internal/api"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBusy is returned when a message is sent while another request
	// is still streaming into the same session.
	ErrBusy = errors.New("a response is still in progress")
	// ErrSessionNotFound is returned for operations addressing an
	// unknown session id.
	ErrSessionNotFound = errors.New("session not found")
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Backend is the slice of the API client the store depends on.
type Backend interface {
	CreateSession(ctx context.Context, name string) (string, error)
	RenameSession(ctx context.Context, sessionID, name string) error
	ListSessions(ctx context.Context) ([]api.SessionInfo, error)
	FetchHistory(ctx context.Context, sessionID string, limit int) ([]api.HistoryMessage, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Tombstones is the slice of local persistence the store depends on.
type Tombstones interface {
	AddTombstone(ctx context.Context, sessionID string) error
	RemoveTombstone(ctx context.Context, sessionID string) error
	Tombstones(ctx context.Context) (map[string]bool, error)
}

// =============================================================================
// STORE
// =============================================================================

// DefaultStaleAfter is how long an untouched session survives before
// directory load hides it.
const DefaultStaleAfter = 7 * 24 * time.Hour

// Config tunes store behavior.
type Config struct {
	// Greeting opens every session, in the active locale.
	Greeting string
	// HistoryLimit caps history fetches.
	HistoryLimit int
	// StaleAfter is the session expiry age. Zero means DefaultStaleAfter.
	StaleAfter time.Duration
}

// Store holds the session directory and the active session. All methods
// are safe for concurrent use; network calls run outside the lock and
// their results are revalidated before being applied.
type Store struct {
	mu       sync.Mutex
	sessions []*Session
	active   int

	backend Backend
	local   Tombstones
	config  Config

	// onChange fires after every committed state mutation.
	onChange func()
}

// New creates a store with a single fresh draft session active.
func New(backend Backend, local Tombstones, config Config) *Store {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultStaleAfter
	}

	return &Store{
		sessions: []*Session{newDraftSession(config.Greeting)},
		active:   0,
		backend:  backend,
		local:    local,
		config:   config,
	}
}

// SetOnChange registers a callback fired after each state change. The
// callback runs outside the lock.
func (st *Store) SetOnChange(fn func()) {
	st.mu.Lock()
	st.onChange = fn
	st.mu.Unlock()
}

func (st *Store) notify() {
	st.mu.Lock()
	fn := st.onChange
	st.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// findLocked returns the session with the given id, or nil. Draft
// sessions (empty id) are not addressable this way.
func (st *Store) findLocked(sessionID string) *Session {
	if sessionID == "" {
		return nil
	}
	for _, s := range st.sessions {
		if s.ID == sessionID {
			return s
		}
	}
	return nil
}

// =============================================================================
// SNAPSHOT ACCESS
// =============================================================================

// SessionSummary is a read-only directory entry for rendering.
type SessionSummary struct {
	ID          string
	Title       string
	LastUpdated time.Time
	Draft       bool
	Active      bool
}

// Sessions returns the directory in display order.
func (st *Store) Sessions() []SessionSummary {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]SessionSummary, len(st.sessions))
	for i, s := range st.sessions {
		out[i] = SessionSummary{
			ID:          s.ID,
			Title:       s.Title,
			LastUpdated: s.LastUpdated,
			Draft:       s.IsDraft(),
			Active:      i == st.active,
		}
	}
	return out
}

// ActiveMessages returns a copy of the active session's transcript.
func (st *Store) ActiveMessages() []Message {
	st.mu.Lock()
	defer st.mu.Unlock()

	msgs := st.sessions[st.active].Messages
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// ActiveID returns the active session's server id, empty for a draft.
func (st *Store) ActiveID() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[st.active].ID
}

// Busy reports whether the active session has a response in progress.
func (st *Store) Busy() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[st.active].pendingIndex() >= 0
}

// =============================================================================
// DIRECTORY LOAD
// =============================================================================

// LoadDirectory fetches the server-side session listing, filters out
// tombstoned and stale entries, and installs the result behind the
// active draft. Call once at startup.
func (st *Store) LoadDirectory(ctx context.Context) error {
	infos, err := st.backend.ListSessions(ctx)
	if err != nil {
		return err
	}
	dead, err := st.local.Tombstones(ctx)
	if err != nil {
		log.Printf("store: loading tombstones: %v", err)
		dead = map[string]bool{}
	}

	cutoff := time.Now().Add(-st.config.StaleAfter)

	st.mu.Lock()
	// Keep the current draft; replace everything else.
	var draft *Session
	for _, s := range st.sessions {
		if s.IsDraft() {
			draft = s
			break
		}
	}
	if draft == nil {
		draft = newDraftSession(st.config.Greeting)
	}

	sessions := []*Session{draft}
	for _, info := range infos {
		if dead[info.ID] {
			continue
		}
		if info.UpdatedAt.Before(cutoff) {
			continue
		}
		sessions = append(sessions, &Session{
			ID:          info.ID,
			Title:       info.Name,
			Messages:    []Message{{Role: RoleAssistant, Text: st.config.Greeting, Greeting: true}},
			LastUpdated: info.UpdatedAt,
		})
	}
	sort.SliceStable(sessions[1:], func(i, j int) bool {
		return sessions[i+1].LastUpdated.After(sessions[j+1].LastUpdated)
	})

	st.sessions = sessions
	st.active = 0
	st.mu.Unlock()

	st.notify()
	return nil
}

// =============================================================================
// SESSION DIRECTORY OPERATIONS
// =============================================================================

// EnsureSession guarantees the active session has a server id, creating
// the session (and publishing its title) on first need. Subsequent calls
// return the bound id without further network traffic.
func (st *Store) EnsureSession(ctx context.Context, proposedTitle string) (string, error) {
	st.mu.Lock()
	active := st.sessions[st.active]
	if active.ID != "" {
		id := active.ID
		st.mu.Unlock()
		return id, nil
	}
	gen := active.gen
	st.mu.Unlock()

	id, err := st.backend.CreateSession(ctx, proposedTitle)
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	// The directory may have moved on while the call was in flight.
	if st.sessions[st.active] != active || active.gen != gen {
		st.mu.Unlock()
		return id, nil
	}
	if active.ID != "" {
		id = active.ID
		st.mu.Unlock()
		return id, nil
	}
	active.ID = id
	active.Title = proposedTitle
	st.mu.Unlock()
	st.notify()

	// Title publication is best-effort; the session works without it.
	if err := st.backend.RenameSession(ctx, id, proposedTitle); err != nil {
		log.Printf("store: renaming session %s: %v", id, err)
	}
	return id, nil
}

// SwitchTo activates the session with the given id, loading its history
// on first visit. Switching to the already-active session is a no-op.
func (st *Store) SwitchTo(ctx context.Context, sessionID string) error {
	st.mu.Lock()
	target := -1
	for i, s := range st.sessions {
		if s.ID == sessionID && sessionID != "" {
			target = i
			break
		}
		if sessionID == "" && s.IsDraft() {
			target = i
			break
		}
	}
	if target == -1 {
		st.mu.Unlock()
		return ErrSessionNotFound
	}
	if target == st.active {
		st.mu.Unlock()
		return nil
	}
	st.active = target
	session := st.sessions[target]
	st.mu.Unlock()
	st.notify()

	return st.loadHistory(ctx, session)
}

// loadHistory fetches and merges server history for a session on first
// visit. Drafts and already-loaded sessions are a no-op.
func (st *Store) loadHistory(ctx context.Context, session *Session) error {
	st.mu.Lock()
	sessionID := session.ID
	needHistory := sessionID != "" && !session.historyLoaded
	st.mu.Unlock()

	if !needHistory {
		return nil
	}

	history, err := st.backend.FetchHistory(ctx, sessionID, st.config.HistoryLimit)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if !session.historyLoaded {
		st.mergeHistoryLocked(session, history)
	}
	st.mu.Unlock()
	st.notify()
	return nil
}

// mergeHistoryLocked installs fetched history behind the permanent
// greeting.
func (st *Store) mergeHistoryLocked(session *Session, history []api.HistoryMessage) {
	msgs := []Message{{Role: RoleAssistant, Text: st.config.Greeting, Greeting: true}}
	for _, h := range history {
		m := Message{
			Role: Role(h.Role),
			Text: h.Content,
		}
		if ts, err := time.Parse(time.RFC3339, h.Timestamp); err == nil {
			m.Timestamp = ts
		}
		if h.HasExcel && h.ExcelFileID != "" {
			m.FileRef = &api.ExcelFile{FileID: h.ExcelFileID, Filename: h.ExcelFilename}
		}
		if h.HasChart && h.ChartID != "" {
			m.ChartRef = &api.ChartRef{ChartID: h.ChartID, ChartType: h.ChartType}
		}
		if h.Role == string(RoleAssistant) {
			m.ServerID = h.ID
		}
		msgs = append(msgs, m)
	}
	session.Messages = msgs
	session.historyLoaded = true
	session.Empty = len(history) == 0
}

// CreateNew activates a fresh draft. An existing empty draft is reused
// so the directory never holds more than one; a BIN-flow session is
// reset and replaced outright.
func (st *Store) CreateNew() {
	st.mu.Lock()
	active := st.sessions[st.active]
	if active.BinFlow {
		// The guided flow's transcript does not carry over.
		fresh := newDraftSession(st.config.Greeting)
		st.sessions[st.active] = fresh
		st.mu.Unlock()
		st.notify()
		return
	}

	for i, s := range st.sessions {
		if s.IsDraft() && s.Empty {
			st.active = i
			st.mu.Unlock()
			st.notify()
			return
		}
	}

	fresh := newDraftSession(st.config.Greeting)
	st.sessions = append([]*Session{fresh}, st.sessions...)
	st.active = 0
	st.mu.Unlock()
	st.notify()
}

// Remove deletes a session. The in-memory removal is optimistic: the
// server call follows, and a failure restores the directory to its
// pre-delete state. The tombstone is written only after server success.
func (st *Store) Remove(ctx context.Context, sessionID string) error {
	st.mu.Lock()
	idx := -1
	for i, s := range st.sessions {
		if s.ID == sessionID && sessionID != "" {
			idx = i
			break
		}
	}
	if idx == -1 {
		st.mu.Unlock()
		return ErrSessionNotFound
	}

	// Snapshot the whole directory: mostRecentLocked may create a fresh
	// draft when the last session is removed, and rolling back by index
	// would leave that draft behind.
	snapshot := make([]*Session, len(st.sessions))
	copy(snapshot, st.sessions)
	prevActive := st.active

	rest := make([]*Session, 0, len(st.sessions)-1)
	rest = append(rest, st.sessions[:idx]...)
	rest = append(rest, st.sessions[idx+1:]...)
	st.sessions = rest
	if st.active == idx {
		st.active = st.mostRecentLocked()
	} else if st.active > idx {
		st.active--
	}
	st.mu.Unlock()
	st.notify()

	if err := st.backend.DeleteSession(ctx, sessionID); err != nil {
		st.mu.Lock()
		st.sessions = snapshot
		st.active = prevActive
		st.mu.Unlock()
		st.notify()
		log.Printf("store: deleting session %s: %v", sessionID, err)
		return err
	}

	if err := st.local.AddTombstone(ctx, sessionID); err != nil {
		log.Printf("store: tombstoning session %s: %v", sessionID, err)
	}

	// The survivor activated by the removal may never have been visited;
	// give it the same first-visit history load a switch would.
	st.mu.Lock()
	var survivor *Session
	if st.active >= 0 && st.active < len(st.sessions) {
		survivor = st.sessions[st.active]
	}
	st.mu.Unlock()
	if survivor != nil {
		if err := st.loadHistory(ctx, survivor); err != nil {
			log.Printf("store: loading history after delete: %v", err)
		}
	}
	return nil
}

// mostRecentLocked returns the index of the most recently updated
// remaining session, creating a fresh draft if the directory is empty.
func (st *Store) mostRecentLocked() int {
	if len(st.sessions) == 0 {
		st.sessions = []*Session{newDraftSession(st.config.Greeting)}
		return 0
	}
	best := 0
	for i, s := range st.sessions {
		if s.LastUpdated.After(st.sessions[best].LastUpdated) {
			best = i
		}
	}
	return best
}

// ExpireStale tombstones every non-draft session older than the
// configured threshold. If the active session was expired, the draft
// (or the most recent survivor) takes over.
func (st *Store) ExpireStale(ctx context.Context) {
	cutoff := time.Now().Add(-st.config.StaleAfter)

	st.mu.Lock()
	activeSession := st.sessions[st.active]

	var kept []*Session
	var expired []string
	for _, s := range st.sessions {
		if !s.IsDraft() && s.LastUpdated.Before(cutoff) {
			expired = append(expired, s.ID)
			continue
		}
		kept = append(kept, s)
	}
	if len(expired) == 0 {
		st.mu.Unlock()
		return
	}
	if len(kept) == 0 {
		kept = []*Session{newDraftSession(st.config.Greeting)}
	}
	st.sessions = kept

	st.active = 0
	for i, s := range kept {
		if s == activeSession {
			st.active = i
			break
		}
		if s.IsDraft() {
			st.active = i
		}
	}
	st.mu.Unlock()
	st.notify()

	for _, id := range expired {
		if err := st.local.AddTombstone(ctx, id); err != nil {
			log.Printf("store: tombstoning expired session %s: %v", id, err)
		}
	}
}
