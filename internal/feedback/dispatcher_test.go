// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/jeranaias/sbrchat-tui/internal/api"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeBackend struct {
	historyCalls  int
	feedbackCalls int

	history     []api.HistoryMessage
	feedbackErr error
	lastKind    api.FeedbackType
	lastText    string
	lastMsgID   string
}

func (f *fakeBackend) FetchHistory(ctx context.Context, sessionID string, limit int) ([]api.HistoryMessage, error) {
	f.historyCalls++
	return f.history, nil
}

func (f *fakeBackend) SendFeedback(ctx context.Context, messageID, sessionID string, kind api.FeedbackType, text string) error {
	f.feedbackCalls++
	f.lastMsgID = messageID
	f.lastKind = kind
	f.lastText = text
	return f.feedbackErr
}

type fakeLocal struct {
	verdicts map[string]string
	msgIDs   map[int]string
	prompted map[string]bool
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{
		verdicts: map[string]string{},
		msgIDs:   map[int]string{},
		prompted: map[string]bool{},
	}
}

func (f *fakeLocal) Verdict(ctx context.Context, sessionID string, position int) (string, error) {
	return f.verdicts[key(sessionID, position)], nil
}

func (f *fakeLocal) SaveVerdict(ctx context.Context, sessionID string, position int, verdict, text string) error {
	f.verdicts[key(sessionID, position)] = verdict
	return nil
}

func (f *fakeLocal) DeleteVerdict(ctx context.Context, sessionID string, position int) error {
	delete(f.verdicts, key(sessionID, position))
	return nil
}

func (f *fakeLocal) MessageID(ctx context.Context, sessionID string, ordinal int) (string, error) {
	return f.msgIDs[ordinal], nil
}

func (f *fakeLocal) CacheMessageIDs(ctx context.Context, sessionID string, ids map[int]string) error {
	for k, v := range ids {
		f.msgIDs[k] = v
	}
	return nil
}

func (f *fakeLocal) PromptShown(ctx context.Context, sessionID string) (bool, error) {
	return f.prompted[sessionID], nil
}

func (f *fakeLocal) MarkPromptShown(ctx context.Context, sessionID string) error {
	f.prompted[sessionID] = true
	return nil
}

type fakeTranscript struct {
	serverIDs map[int]string
	ordinals  map[int]int
}

func (f *fakeTranscript) AssistantOrdinal(sessionID string, position int) int {
	if o, ok := f.ordinals[position]; ok {
		return o
	}
	return -1
}

func (f *fakeTranscript) ServerMessageID(sessionID string, position int) string {
	return f.serverIDs[position]
}

func (f *fakeTranscript) SetServerMessageID(sessionID string, position int, messageID string) {
	f.serverIDs[position] = messageID
}

func setup() (*Dispatcher, *fakeBackend, *fakeLocal, *fakeTranscript) {
	backend := &fakeBackend{}
	local := newFakeLocal()
	transcript := &fakeTranscript{
		serverIDs: map[int]string{},
		ordinals:  map[int]int{2: 0, 4: 1},
	}
	return New(backend, local, transcript, 50), backend, local, transcript
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestDislikeRequiresText(t *testing.T) {
	d, backend, local, _ := setup()

	_, err := d.Submit(context.Background(), "S1", 2, api.FeedbackDislike, "")
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("Submit() error = %v, want ErrEmptyText", err)
	}
	if backend.feedbackCalls != 0 {
		t.Error("empty dislike must not reach the network")
	}
	if len(local.verdicts) != 0 {
		t.Error("empty dislike must not record a verdict")
	}
}

func TestDislikeWithTextPostsOnce(t *testing.T) {
	d, backend, _, transcript := setup()
	transcript.serverIDs[2] = "msg-a"

	result, err := d.Submit(context.Background(), "S1", 2, api.FeedbackDislike, "numbers look wrong")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if backend.feedbackCalls != 1 {
		t.Errorf("feedbackCalls = %d, want 1", backend.feedbackCalls)
	}
	if backend.lastKind != api.FeedbackDislike || backend.lastText != "numbers look wrong" {
		t.Errorf("posted %v %q", backend.lastKind, backend.lastText)
	}
	if !result.PromptImprove {
		t.Error("first dislike in a session must request the improvement prompt")
	}
}

func TestPromptShownOnlyOnce(t *testing.T) {
	d, _, _, transcript := setup()
	transcript.serverIDs[2] = "msg-a"
	transcript.serverIDs[4] = "msg-b"
	ctx := context.Background()

	first, err := d.Submit(ctx, "S1", 2, api.FeedbackDislike, "bad")
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Submit(ctx, "S1", 4, api.FeedbackDislike, "also bad")
	if err != nil {
		t.Fatal(err)
	}
	if !first.PromptImprove || second.PromptImprove {
		t.Errorf("prompt flags = %v, %v, want true then false", first.PromptImprove, second.PromptImprove)
	}
}

func TestResubmissionIsNoOp(t *testing.T) {
	d, backend, _, transcript := setup()
	transcript.serverIDs[2] = "msg-a"
	ctx := context.Background()

	if _, err := d.Submit(ctx, "S1", 2, api.FeedbackLike, ""); err != nil {
		t.Fatal(err)
	}
	_, err := d.Submit(ctx, "S1", 2, api.FeedbackDislike, "changed my mind")
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("second submit error = %v, want ErrAlreadyVoted", err)
	}
	if backend.feedbackCalls != 1 {
		t.Errorf("feedbackCalls = %d, want 1", backend.feedbackCalls)
	}
}

func TestSubmitFailureRollsBack(t *testing.T) {
	d, backend, local, transcript := setup()
	transcript.serverIDs[2] = "msg-a"
	backend.feedbackErr = errors.New("server down")

	_, err := d.Submit(context.Background(), "S1", 2, api.FeedbackLike, "")
	if err == nil {
		t.Fatal("Submit() succeeded, want error")
	}
	if v := d.Verdict(context.Background(), "S1", 2); v != "" {
		t.Errorf("verdict after failed submit = %q, want rolled back", v)
	}
	_ = local
}

// =============================================================================
// ID RESOLUTION TESTS
// =============================================================================

func TestResolveCachedSkipsRefetch(t *testing.T) {
	d, backend, local, _ := setup()
	local.msgIDs[0] = "msg-cached"

	id, err := d.ResolveMessageID(context.Background(), "S1", 2)
	if err != nil {
		t.Fatalf("ResolveMessageID() error = %v", err)
	}
	if id != "msg-cached" {
		t.Errorf("id = %q", id)
	}
	if backend.historyCalls != 0 {
		t.Error("cached id must not trigger a history refetch")
	}
}

func TestResolveRefetchesExactlyOnce(t *testing.T) {
	d, backend, _, _ := setup()
	backend.history = []api.HistoryMessage{
		{ID: "u1", Role: "user", Content: "q"},
		{ID: "a1", Role: "assistant", Content: "ans"},
	}

	id, err := d.ResolveMessageID(context.Background(), "S1", 2)
	if err != nil {
		t.Fatalf("ResolveMessageID() error = %v", err)
	}
	if id != "a1" {
		t.Errorf("id = %q, want a1", id)
	}
	if backend.historyCalls != 1 {
		t.Errorf("historyCalls = %d, want 1", backend.historyCalls)
	}
}

func TestResolveUnresolvableIsBounded(t *testing.T) {
	d, backend, _, _ := setup()
	// History comes back with no assistant ids: permanently unresolvable.
	backend.history = []api.HistoryMessage{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "ans"},
	}
	ctx := context.Background()

	if _, err := d.ResolveMessageID(ctx, "S1", 2); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("first resolve error = %v, want ErrUnresolved", err)
	}
	if _, err := d.ResolveMessageID(ctx, "S1", 2); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("second resolve error = %v, want ErrUnresolved", err)
	}
	if backend.historyCalls != 1 {
		t.Errorf("historyCalls = %d, want exactly 1 across repeated clicks", backend.historyCalls)
	}
}

func TestResolveNonAssistantPosition(t *testing.T) {
	d, _, _, _ := setup()

	// Position 1 is a user message (no ordinal mapping).
	if _, err := d.ResolveMessageID(context.Background(), "S1", 1); !errors.Is(err, ErrUnresolved) {
		t.Errorf("resolve of non-assistant position error = %v, want ErrUnresolved", err)
	}
}

func TestUnresolvedSubmitRollsBack(t *testing.T) {
	d, backend, _, _ := setup()
	backend.history = nil // refetch yields nothing

	_, err := d.Submit(context.Background(), "S1", 2, api.FeedbackLike, "")
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("Submit() error = %v, want ErrUnresolved", err)
	}
	if backend.feedbackCalls != 0 {
		t.Error("unresolved id must not reach the network")
	}
	if v := d.Verdict(context.Background(), "S1", 2); v != "" {
		t.Errorf("verdict = %q, want rolled back", v)
	}
}
