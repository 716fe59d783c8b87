// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jeranaias/sbrchat-tui/internal/api"
	"github.com/jeranaias/sbrchat-tui/internal/feedback"
	"github.com/jeranaias/sbrchat-tui/internal/localstore"
	"github.com/jeranaias/sbrchat-tui/internal/store"
	"github.com/jeranaias/sbrchat-tui/internal/ui/styles"
)

type stubBackend struct{}

func (stubBackend) CreateSession(ctx context.Context, name string) (string, error) {
	return "S1", nil
}

func (stubBackend) RenameSession(ctx context.Context, sessionID, name string) error {
	return nil
}

func (stubBackend) ListSessions(ctx context.Context) ([]api.SessionInfo, error) {
	return nil, nil
}

func (stubBackend) FetchHistory(ctx context.Context, sessionID string, limit int) ([]api.HistoryMessage, error) {
	return nil, nil
}

func (stubBackend) DeleteSession(ctx context.Context, sessionID string) error {
	return nil
}

func newTestModel(t *testing.T) Model {
	t.Helper()

	local, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("localstore.Open() error = %v", err)
	}
	t.Cleanup(func() { local.Close() })

	client := api.NewClient(api.DefaultConfig())
	st := store.New(stubBackend{}, local, store.Config{Greeting: "Здравствуйте!"})
	dispatcher := feedback.New(client, local, st, 50)

	return New(styles.NewTheme("dark"), st, client, local, dispatcher, false)
}

func TestSessionRemovedResetsPerSessionState(t *testing.T) {
	m := newTestModel(t)
	m.verdicts[2] = "like"
	m.charts[2] = "<div/>"

	updated, _ := m.Update(SessionRemovedMsg{SessionID: "S1"})
	got := updated.(Model)

	// The survivor session never voted; the removed session's marks
	// must not bleed onto its messages.
	if len(got.verdicts) != 0 {
		t.Errorf("verdicts = %v, want empty after removal", got.verdicts)
	}
	if len(got.charts) != 0 {
		t.Errorf("charts = %v, want empty after removal", got.charts)
	}
}

func TestSessionRemovedErrorKeepsState(t *testing.T) {
	m := newTestModel(t)
	m.verdicts[2] = "like"

	updated, _ := m.Update(SessionRemovedMsg{SessionID: "S1", Err: context.DeadlineExceeded})
	got := updated.(Model)

	if got.verdicts[2] != "like" {
		t.Error("a failed removal must not discard the current session's marks")
	}
	if got.statusMsg == "" {
		t.Error("a failed removal must surface a status message")
	}
}

func TestBinCommandEntersGuidedFlow(t *testing.T) {
	m := newTestModel(t)

	updated, _ := m.handleBinCommand("/bin 123456789012 2024")
	got := updated.(Model)

	msgs := got.store.ActiveMessages()
	last := msgs[len(msgs)-1]
	if last.Role != store.RoleAssistant || last.Text == "" {
		t.Errorf("last message = %+v, want guided-flow notice", last)
	}
	if got.pendingBin != "" {
		t.Errorf("pendingBin = %q, want empty after a full command", got.pendingBin)
	}
}

func TestBinCommandWithoutYearOffersButtons(t *testing.T) {
	m := newTestModel(t)

	updated, _ := m.handleBinCommand("/bin 123456789012")
	got := updated.(Model)

	if got.pendingBin != "123456789012" {
		t.Fatalf("pendingBin = %q, want the parsed number", got.pendingBin)
	}
	buttons := 0
	for _, msg := range got.store.ActiveMessages() {
		if msg.Button {
			buttons++
		}
	}
	if buttons != 3 {
		t.Errorf("got %d year buttons, want 3", buttons)
	}
}

func TestBinCommandRejectsMalformed(t *testing.T) {
	m := newTestModel(t)

	for _, input := range []string{"/bin", "/bin 123", "/bin 123456789012 24", "/bin 123456789012 2024 extra"} {
		updated, _ := m.handleBinCommand(input)
		got := updated.(Model)
		if got.statusMsg == "" {
			t.Errorf("handleBinCommand(%q) accepted malformed input", input)
		}
	}
}
