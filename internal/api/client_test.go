// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{BaseURL: srv.URL, UserID: "user-1"})
	return client, srv
}

func TestCreateSession(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.UserID != "user-1" || req.SessionName != "New chat" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(CreateSessionResponse{SessionID: "sess-42"})
	})

	id, err := client.CreateSession(context.Background(), "New chat")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if id != "sess-42" {
		t.Errorf("session id = %q, want sess-42", id)
	}
}

func TestCreateSessionEmptyID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CreateSessionResponse{})
	})

	_, err := client.CreateSession(context.Background(), "x")
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Type != ErrTypeInvalidResponse {
		t.Errorf("CreateSession() error = %v, want invalid response", err)
	}
}

func TestRenameSession(t *testing.T) {
	var gotPath, gotName string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		var req RenameSessionRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotName = req.SessionName
	})

	if err := client.RenameSession(context.Background(), "sess-1", "Revenue 2025"); err != nil {
		t.Fatalf("RenameSession() error = %v", err)
	}
	if gotPath != "PUT /api/sessions/sess-1/name" {
		t.Errorf("request = %q", gotPath)
	}
	if gotName != "Revenue 2025" {
		t.Errorf("name = %q", gotName)
	}
}

func TestListSessions(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/user-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ListSessionsResponse{
			Sessions:   []SessionInfo{{ID: "a", Name: "first"}, {ID: "b", Name: "second"}},
			TotalCount: 2,
		})
	})

	sessions, err := client.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "a" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestFetchHistory(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/sess-1/history" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if limit := r.URL.Query().Get("limit"); limit != "50" {
			t.Errorf("limit = %q, want 50", limit)
		}
		json.NewEncoder(w).Encode(HistoryResponse{
			Messages: []HistoryMessage{
				{ID: "m1", Role: "user", Content: "hi"},
				{ID: "m2", Role: "assistant", Content: "hello"},
			},
		})
	})

	msgs, err := client.FetchHistory(context.Background(), "sess-1", 50)
	if err != nil {
		t.Fatalf("FetchHistory() error = %v", err)
	}
	if len(msgs) != 2 || msgs[1].ID != "m2" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestDeleteSessionNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	err := client.DeleteSession(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteSession() error = %v, want not found", err)
	}
}

func TestChatStatic(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Language != "ru" {
			t.Errorf("language = %q, want ru", req.Language)
		}
		w.Write([]byte(`{"response":{"response":"wrapped answer"},"session_id":"s1","message_id":"m9"}`))
	})

	resp, err := client.Chat(context.Background(), "s1", "question")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Text() != "wrapped answer" {
		t.Errorf("Text() = %q, want wrapped answer", resp.Text())
	}
	if resp.MessageID != "m9" {
		t.Errorf("MessageID = %q", resp.MessageID)
	}
}

func TestChatStream(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"type\":\"text\",\"content\":\"part\"}\n"))
		w.Write([]byte("data: {\"type\":\"end\"}\n"))
	})

	reader, err := client.ChatStream(context.Background(), "s1", "question")
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	var got string
	err = reader.Process(context.Background(), func(e StreamEvent) error {
		if e.Type == EventText {
			got += e.Delta
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got != "part" {
		t.Errorf("streamed text = %q, want part", got)
	}
}

func TestChatStreamServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.ChatStream(context.Background(), "s1", "q")
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Type != ErrTypeServer {
		t.Errorf("ChatStream() error = %v, want server error", err)
	}
}

func TestSendFeedback(t *testing.T) {
	var got FeedbackRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/messages/msg-7/feedback" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
	})

	err := client.SendFeedback(context.Background(), "msg-7", "sess-1", FeedbackDislike, "wrong numbers")
	if err != nil {
		t.Fatalf("SendFeedback() error = %v", err)
	}
	if got.FeedbackType != FeedbackDislike || got.FeedbackText != "wrong numbers" {
		t.Errorf("request = %+v", got)
	}
	if got.UserID != "user-1" || got.SessionID != "sess-1" {
		t.Errorf("identity fields = %+v", got)
	}
}

func TestFetchChart(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/charts/chart-3" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ChartResponse{Success: true, ChartHTML: "<div>chart</div>"})
	})

	resp, err := client.FetchChart(context.Background(), "chart-3")
	if err != nil {
		t.Fatalf("FetchChart() error = %v", err)
	}
	if !resp.Success || resp.ChartHTML == "" {
		t.Errorf("chart = %+v", resp)
	}
}

func TestConnectionRefused(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", UserID: "u"})

	_, err := client.ListSessions(context.Background())
	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want ClientError", err)
	}
	if ce.Type != ErrTypeConnection && ce.Type != ErrTypeUnknown {
		t.Errorf("error type = %v, want connection", ce.Type)
	}
}

func TestDefaultConfigFill(t *testing.T) {
	c := NewClient(ClientConfig{UserID: "u"})
	if c.config.BaseURL != "http://localhost:8001" {
		t.Errorf("BaseURL = %q", c.config.BaseURL)
	}
	if c.config.Timeout == 0 {
		t.Error("Timeout not defaulted")
	}
	if c.config.Language != "ru" {
		t.Errorf("Language = %q, want ru", c.config.Language)
	}
}
