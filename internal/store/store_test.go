// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jeranaias/sbrchat-tui/internal/api"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeBackend struct {
	createCalls int
	renameCalls int
	deleteCalls int
	historyCall int

	nextID    string
	sessions  []api.SessionInfo
	history   []api.HistoryMessage
	deleteErr error
	createErr error
}

func (f *fakeBackend) CreateSession(ctx context.Context, name string) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.nextID, nil
}

func (f *fakeBackend) RenameSession(ctx context.Context, id, name string) error {
	f.renameCalls++
	return nil
}

func (f *fakeBackend) ListSessions(ctx context.Context) ([]api.SessionInfo, error) {
	return f.sessions, nil
}

func (f *fakeBackend) FetchHistory(ctx context.Context, id string, limit int) ([]api.HistoryMessage, error) {
	f.historyCall++
	return f.history, nil
}

func (f *fakeBackend) DeleteSession(ctx context.Context, id string) error {
	f.deleteCalls++
	return f.deleteErr
}

type fakeTombstones struct {
	dead map[string]bool
}

func newFakeTombstones() *fakeTombstones {
	return &fakeTombstones{dead: map[string]bool{}}
}

func (f *fakeTombstones) AddTombstone(ctx context.Context, id string) error {
	f.dead[id] = true
	return nil
}

func (f *fakeTombstones) RemoveTombstone(ctx context.Context, id string) error {
	delete(f.dead, id)
	return nil
}

func (f *fakeTombstones) Tombstones(ctx context.Context) (map[string]bool, error) {
	return f.dead, nil
}

func newTestStore(backend *fakeBackend) (*Store, *fakeTombstones) {
	tombs := newFakeTombstones()
	st := New(backend, tombs, Config{Greeting: "Здравствуйте!"})
	return st, tombs
}

// =============================================================================
// DIRECTORY TESTS
// =============================================================================

func TestEnsureSessionIdempotent(t *testing.T) {
	backend := &fakeBackend{nextID: "S1"}
	st, _ := newTestStore(backend)
	ctx := context.Background()

	first, err := st.EnsureSession(ctx, "hello world")
	if err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	second, err := st.EnsureSession(ctx, "different title")
	if err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}

	if first != "S1" || second != "S1" {
		t.Errorf("ids = %q, %q, want S1 both times", first, second)
	}
	if backend.createCalls != 1 {
		t.Errorf("createCalls = %d, want exactly 1", backend.createCalls)
	}
}

func TestSingleDraftInvariant(t *testing.T) {
	st, _ := newTestStore(&fakeBackend{})

	// Repeated new-chat clicks must not multiply empty drafts.
	st.CreateNew()
	st.CreateNew()
	st.CreateNew()

	drafts := 0
	for _, s := range st.Sessions() {
		if s.Draft {
			drafts++
		}
	}
	if drafts != 1 {
		t.Errorf("draft count = %d, want 1", drafts)
	}
}

func TestRemoveRollbackOnServerFailure(t *testing.T) {
	backend := &fakeBackend{
		nextID:    "S1",
		deleteErr: errors.New("server down"),
	}
	st, tombs := newTestStore(backend)
	ctx := context.Background()

	if _, err := st.EnsureSession(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	before := st.Sessions()

	err := st.Remove(ctx, "S1")
	if err == nil {
		t.Fatal("Remove() succeeded, want error")
	}

	after := st.Sessions()
	if len(after) != len(before) {
		t.Fatalf("session count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Active != after[i].Active {
			t.Errorf("slot %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
	if tombs.dead["S1"] {
		t.Error("failed delete must not tombstone the session")
	}

	// Still selectable.
	if err := st.SwitchTo(ctx, "S1"); err != nil && !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("SwitchTo after failed delete: %v", err)
	}
}

func TestRemoveSuccessTombstones(t *testing.T) {
	backend := &fakeBackend{nextID: "S1"}
	st, tombs := newTestStore(backend)
	ctx := context.Background()

	if _, err := st.EnsureSession(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	if err := st.Remove(ctx, "S1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !tombs.dead["S1"] {
		t.Error("successful delete must tombstone the session")
	}
	for _, s := range st.Sessions() {
		if s.ID == "S1" {
			t.Error("removed session still listed")
		}
	}
}

func TestExpireStaleKeepsDraft(t *testing.T) {
	backend := &fakeBackend{nextID: "OLD"}
	st, tombs := newTestStore(backend)
	ctx := context.Background()

	if _, err := st.EnsureSession(ctx, "aged"); err != nil {
		t.Fatal(err)
	}
	// Backdate the aged session and make it active, then add a draft.
	st.mu.Lock()
	st.sessions[0].LastUpdated = time.Now().Add(-10 * 24 * time.Hour)
	st.mu.Unlock()
	st.CreateNew()
	if err := st.SwitchTo(ctx, "OLD"); err != nil {
		t.Fatal(err)
	}

	st.ExpireStale(ctx)

	sessions := st.Sessions()
	if len(sessions) != 1 || !sessions[0].Draft {
		t.Fatalf("sessions after expiry = %+v, want single draft", sessions)
	}
	if !sessions[0].Active {
		t.Error("draft must take over as active after the active session expired")
	}
	if !tombs.dead["OLD"] {
		t.Error("aged session must be tombstoned")
	}
}

func TestLoadDirectoryFiltersTombstonedAndStale(t *testing.T) {
	now := time.Now()
	backend := &fakeBackend{
		sessions: []api.SessionInfo{
			{ID: "live", Name: "Live", UpdatedAt: now.Add(-time.Hour)},
			{ID: "dead", Name: "Dead", UpdatedAt: now.Add(-time.Hour)},
			{ID: "stale", Name: "Stale", UpdatedAt: now.Add(-8 * 24 * time.Hour)},
		},
	}
	st, tombs := newTestStore(backend)
	tombs.dead["dead"] = true

	if err := st.LoadDirectory(context.Background()); err != nil {
		t.Fatalf("LoadDirectory() error = %v", err)
	}

	sessions := st.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2 (draft + live)", len(sessions))
	}
	if !sessions[0].Draft || sessions[1].ID != "live" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestSwitchToLoadsHistoryOnce(t *testing.T) {
	backend := &fakeBackend{
		nextID: "S1",
		history: []api.HistoryMessage{
			{ID: "m1", Role: "user", Content: "hi"},
			{ID: "m2", Role: "assistant", Content: "hello"},
		},
		sessions: []api.SessionInfo{
			{ID: "S1", Name: "old chat", UpdatedAt: time.Now()},
		},
	}
	st, _ := newTestStore(backend)
	ctx := context.Background()

	if err := st.LoadDirectory(ctx); err != nil {
		t.Fatal(err)
	}
	if err := st.SwitchTo(ctx, "S1"); err != nil {
		t.Fatalf("SwitchTo() error = %v", err)
	}

	msgs := st.ActiveMessages()
	// Greeting stays in front of the merged history.
	if len(msgs) != 3 || !msgs[0].Greeting {
		t.Fatalf("messages = %+v, want greeting + 2 history entries", msgs)
	}
	if msgs[2].ServerID != "m2" {
		t.Errorf("assistant history message lost its server id: %+v", msgs[2])
	}

	// Round trip away and back: no second fetch.
	st.CreateNew()
	if err := st.SwitchTo(ctx, "S1"); err != nil {
		t.Fatal(err)
	}
	if backend.historyCall != 1 {
		t.Errorf("historyCall = %d, want 1", backend.historyCall)
	}
}

func TestRemoveActivatesSurvivorWithHistory(t *testing.T) {
	now := time.Now()
	backend := &fakeBackend{
		history: []api.HistoryMessage{
			{ID: "m1", Role: "user", Content: "hi"},
			{ID: "m2", Role: "assistant", Content: "hello"},
		},
		sessions: []api.SessionInfo{
			{ID: "S1", Name: "first", UpdatedAt: now},
			{ID: "S2", Name: "second", UpdatedAt: now.Add(time.Hour)},
		},
	}
	st, _ := newTestStore(backend)
	ctx := context.Background()

	if err := st.LoadDirectory(ctx); err != nil {
		t.Fatal(err)
	}
	if err := st.SwitchTo(ctx, "S1"); err != nil {
		t.Fatal(err)
	}

	if err := st.Remove(ctx, "S1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got := st.ActiveID(); got != "S2" {
		t.Fatalf("ActiveID() = %q, want S2", got)
	}

	// The survivor gets the same first-visit history load a manual
	// switch would have given it.
	msgs := st.ActiveMessages()
	if len(msgs) != 3 || !msgs[0].Greeting {
		t.Fatalf("survivor transcript = %+v, want greeting + 2 history entries", msgs)
	}
	if backend.historyCall != 2 {
		t.Errorf("historyCall = %d, want 2 (one per first visit)", backend.historyCall)
	}
}

func TestRemoveLastSessionRollbackSpawnsNoDraft(t *testing.T) {
	backend := &fakeBackend{
		nextID:    "S1",
		deleteErr: errors.New("server down"),
	}
	st, _ := newTestStore(backend)
	ctx := context.Background()

	if _, err := st.EnsureSession(ctx, "only one"); err != nil {
		t.Fatal(err)
	}

	if err := st.Remove(ctx, "S1"); err == nil {
		t.Fatal("Remove() succeeded, want error")
	}

	sessions := st.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions after rollback, want 1", len(sessions))
	}
	if sessions[0].ID != "S1" || !sessions[0].Active {
		t.Errorf("sessions[0] = %+v, want active S1", sessions[0])
	}
}
