// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the SBR assistant backend.
package api

import (
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// SESSION ENDPOINTS
// =============================================================================

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	UserID      string `json:"user_id"`
	SessionName string `json:"session_name"`
}

// CreateSessionResponse carries the server-issued session id.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// RenameSessionRequest is the body of PUT /api/sessions/{id}/name.
type RenameSessionRequest struct {
	SessionName string `json:"session_name"`
}

// SessionInfo describes one server-side session in a listing.
type SessionInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ListSessionsResponse is the body of GET /api/sessions/{user_id}.
type ListSessionsResponse struct {
	Sessions   []SessionInfo `json:"sessions"`
	TotalCount int           `json:"total_count"`
}

// HistoryMessage is one persisted message in a session history.
type HistoryMessage struct {
	ID            string `json:"id"`
	Role          string `json:"role"`
	Content       string `json:"content"`
	Timestamp     string `json:"timestamp"`
	HasExcel      bool   `json:"has_excel"`
	ExcelFileID   string `json:"excel_file_id"`
	ExcelFilename string `json:"excel_filename"`
	HasChart      bool   `json:"has_chart"`
	ChartID       string `json:"chart_id"`
	ChartType     string `json:"chart_type"`
}

// HistoryResponse is the body of GET /api/sessions/{id}/history.
type HistoryResponse struct {
	Messages     []HistoryMessage `json:"messages"`
	MessageCount int              `json:"message_count"`
}

// =============================================================================
// CHAT ENDPOINT
// =============================================================================

// ChatRequest is the body of POST /api/chat for both streaming and static mode.
type ChatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id"`
	Language  string `json:"language"`
}

// ExcelFile identifies a downloadable spreadsheet produced by the assistant.
type ExcelFile struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}

// ChartRef identifies a server-rendered chart, optionally with inline markup.
type ChartRef struct {
	Success   bool   `json:"success"`
	ChartID   string `json:"chart_id"`
	ChartType string `json:"chart_type"`
	ChartHTML string `json:"chart_html"`
}

// ChatResponse is the single-JSON body returned in non-streaming mode.
type ChatResponse struct {
	Response     json.RawMessage  `json:"response"`
	SessionID    string           `json:"session_id"`
	SQLQuery     string           `json:"sql_query"`
	RawData      []map[string]any `json:"raw_data"`
	Error        bool             `json:"error"`
	MessageID    string           `json:"message_id"`
	Chart        *ChartRef        `json:"chart"`
	HasExcel     bool             `json:"has_excel"`
	ExcelFile    *ExcelFile       `json:"excel_file"`
	ShowTable    bool             `json:"show_table"`
	TableColumns []string         `json:"table_columns"`
}

// Text returns the normalized answer text of a static chat response.
func (r *ChatResponse) Text() string {
	return normalizeResponse(r.Response)
}

// =============================================================================
// FEEDBACK AND CHART ENDPOINTS
// =============================================================================

// FeedbackType is the verdict submitted for an assistant message.
type FeedbackType string

const (
	FeedbackLike    FeedbackType = "like"
	FeedbackDislike FeedbackType = "dislike"
)

// FeedbackRequest is the body of POST /api/messages/{message_id}/feedback.
type FeedbackRequest struct {
	SessionID    string       `json:"session_id"`
	UserID       string       `json:"user_id"`
	FeedbackType FeedbackType `json:"feedback_type"`
	FeedbackText string       `json:"feedback_text"`
}

// ChartResponse is the body of GET /api/charts/{chart_id}.
type ChartResponse struct {
	Success   bool   `json:"success"`
	ChartHTML string `json:"chart_html"`
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventType discriminates the records of a streaming chat response.
type EventType string

const (
	// EventText carries an incremental text delta.
	EventText EventType = "text"
	// EventComplete carries the final normalized payload of the answer.
	EventComplete EventType = "complete"
	// EventEnd terminates the stream.
	EventEnd EventType = "end"
)

// StreamEvent is one decoded record of a streaming chat response.
// Exactly one of Delta / Payload is meaningful, selected by Type.
type StreamEvent struct {
	Type    EventType
	Delta   string           // EventText: text fragment to append
	Payload *CompletePayload // EventComplete: terminal message state
}

// CompletePayload is the normalized terminal state of an assistant answer.
// The wire shape is ambiguous (fields appear both at the top level and
// nested under "response"); normalization happens once at the parse
// boundary so downstream code sees a single strict shape.
type CompletePayload struct {
	Text         string
	ExcelFile    *ExcelFile
	HasExcel     bool
	ShowTable    bool
	TableColumns []string
	RawData      []map[string]any
	Chart        *ChartRef
}

// streamEnvelope is the raw wire shape of one stream record.
type streamEnvelope struct {
	Type         string           `json:"type"`
	Content      json.RawMessage  `json:"content"`
	Response     json.RawMessage  `json:"response"`
	ExcelFile    *ExcelFile       `json:"excel_file"`
	HasExcel     bool             `json:"has_excel"`
	ShowTable    bool             `json:"show_table"`
	TableColumns []string         `json:"table_columns"`
	RawData      []map[string]any `json:"raw_data"`
	Chart        *ChartRef        `json:"chart"`
}

// =============================================================================
// PAYLOAD NORMALIZATION
// =============================================================================

// decodeContent extracts the text of a "text" event. The server usually
// sends a plain string, but partial structured content arrives as an object
// whose values are joined with single spaces, in wire order.
func decodeContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	// Object form: walk the token stream so wire order is preserved
	// (a map would lose it).
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	tok, err := dec.Token()
	if err != nil {
		return ""
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ""
	}

	var parts []string
	for dec.More() {
		if _, err := dec.Token(); err != nil { // key
			break
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			break
		}
		if s, ok := v.(string); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// nestedResponse mirrors the wrapped form {"response": {"response": "...", ...}}.
type nestedResponse struct {
	Response     json.RawMessage  `json:"response"`
	ExcelFile    *ExcelFile       `json:"excel_file"`
	HasExcel     bool             `json:"has_excel"`
	ShowTable    bool             `json:"show_table"`
	TableColumns []string         `json:"table_columns"`
	RawData      []map[string]any `json:"raw_data"`
}

// normalizeResponse unwraps one level of response nesting and returns the
// answer text. Non-string leaves degrade to an empty string rather than
// propagating the ambiguity.
func normalizeResponse(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var nested nestedResponse
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested.Response) > 0 {
		var inner string
		if err := json.Unmarshal(nested.Response, &inner); err == nil {
			return inner
		}
	}
	return ""
}

// completePayload normalizes a "complete" envelope: the answer text and all
// terminal metadata, preferring top-level fields and falling back to the
// nested response object.
func (e *streamEnvelope) completePayload() *CompletePayload {
	p := &CompletePayload{
		Text:         normalizeResponse(e.Response),
		ExcelFile:    e.ExcelFile,
		HasExcel:     e.HasExcel,
		ShowTable:    e.ShowTable,
		TableColumns: e.TableColumns,
		RawData:      e.RawData,
		Chart:        e.Chart,
	}

	var nested nestedResponse
	if err := json.Unmarshal(e.Response, &nested); err == nil {
		if p.ExcelFile == nil {
			p.ExcelFile = nested.ExcelFile
		}
		if !p.HasExcel {
			p.HasExcel = nested.HasExcel || nested.ExcelFile != nil
		}
		if !p.ShowTable {
			p.ShowTable = nested.ShowTable
		}
		if len(p.TableColumns) == 0 {
			p.TableColumns = nested.TableColumns
		}
		if len(p.RawData) == 0 {
			p.RawData = nested.RawData
		}
	}

	return p
}
