// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sbrchat-tui/internal/api"
	"github.com/jeranaias/sbrchat-tui/internal/i18n"
	"github.com/jeranaias/sbrchat-tui/internal/util"
)

// sessionTitleLen caps the proposed session title derived from the
// first question.
const sessionTitleLen = 48

// =============================================================================
// DIRECTORY COMMANDS
// =============================================================================

func (m Model) loadDirectoryCmd() tea.Cmd {
	st := m.store
	return func() tea.Msg {
		return DirectoryLoadedMsg{Err: st.LoadDirectory(context.Background())}
	}
}

func (m Model) switchSessionCmd(sessionID string) tea.Cmd {
	st := m.store
	local := m.local
	return func() tea.Msg {
		ctx := context.Background()
		err := st.SwitchTo(ctx, sessionID)
		verdicts, verr := local.Verdicts(ctx, sessionID)
		if verr != nil {
			log.Printf("feedback: loading verdicts for %s: %v", sessionID, verr)
		}
		return SessionSwitchedMsg{SessionID: sessionID, Verdicts: verdicts, Err: err}
	}
}

func (m Model) removeSessionCmd(sessionID string) tea.Cmd {
	st := m.store
	local := m.local
	return func() tea.Msg {
		ctx := context.Background()
		err := st.Remove(ctx, sessionID)

		// The removal may have activated another session; its verdict
		// marks replace the removed session's.
		var verdicts map[int]string
		if err == nil {
			if active := st.ActiveID(); active != "" {
				var verr error
				verdicts, verr = local.Verdicts(ctx, active)
				if verr != nil {
					log.Printf("feedback: loading verdicts for %s: %v", active, verr)
				}
			}
		}
		return SessionRemovedMsg{SessionID: sessionID, Verdicts: verdicts, Err: err}
	}
}

// =============================================================================
// SEND COMMANDS
// =============================================================================

// sendCmd runs one full question/answer exchange: session creation on
// first use, transcript mutation, then either the streaming or the
// static chat path depending on configuration.
func (m Model) sendCmd(query string) tea.Cmd {
	st := m.store
	client := m.client
	local := m.local
	gate := m.gate
	streaming := m.streamingMode

	return func() tea.Msg {
		ctx := context.Background()

		sessionID, err := st.EnsureSession(ctx, util.Truncate(util.Flatten(query), sessionTitleLen))
		if err != nil {
			return StreamFinishedMsg{Err: err}
		}

		token, err := st.SendUserMessage(sessionID, query)
		if err != nil {
			return StreamFinishedMsg{SessionID: sessionID, Err: err}
		}

		if !streaming {
			resp, err := client.Chat(ctx, sessionID, query)
			if err != nil {
				st.FailPending(token, i18n.T("chat.error"))
				return StreamFinishedMsg{SessionID: sessionID, Err: err}
			}

			st.Finalize(token, &api.CompletePayload{
				Text:         resp.Text(),
				ExcelFile:    resp.ExcelFile,
				HasExcel:     resp.HasExcel,
				ShowTable:    resp.ShowTable,
				TableColumns: resp.TableColumns,
				RawData:      resp.RawData,
				Chart:        resp.Chart,
			})
			st.EndStream(token)

			// The static path returns the persisted message id
			// directly; cache it so feedback never needs the refetch
			// fallback.
			if resp.MessageID != "" {
				if pos := st.LastAssistantPosition(sessionID); pos >= 0 {
					st.SetServerMessageID(sessionID, pos, resp.MessageID)
					if ordinal := st.AssistantOrdinal(sessionID, pos); ordinal >= 0 {
						if err := local.CacheMessageID(ctx, sessionID, ordinal, resp.MessageID); err != nil {
							log.Printf("chat: caching message id: %v", err)
						}
					}
				}
			}
			return StreamFinishedMsg{SessionID: sessionID}
		}

		reader, err := client.ChatStream(ctx, sessionID, query)
		if err != nil {
			st.FailPending(token, i18n.T("chat.error"))
			return StreamFinishedMsg{SessionID: sessionID, Err: err}
		}

		err = reader.Process(ctx, func(e api.StreamEvent) error {
			switch e.Type {
			case api.EventText:
				st.ApplyText(token, e.Delta)
				gate.MarkDirty()
			case api.EventComplete:
				st.Finalize(token, e.Payload)
				gate.MarkDirty()
			case api.EventEnd:
				st.EndStream(token)
				gate.MarkDirty()
			}
			return nil
		})
		if err != nil {
			st.FailPending(token, i18n.T("chat.error"))
			return StreamFinishedMsg{SessionID: sessionID, Err: err}
		}

		// Streams that close without an explicit end record still
		// finish cleanly.
		st.EndStream(token)
		return StreamFinishedMsg{SessionID: sessionID}
	}
}

// =============================================================================
// FEEDBACK AND CHART COMMANDS
// =============================================================================

func (m Model) feedbackCmd(position int, kind api.FeedbackType, text string) tea.Cmd {
	dispatcher := m.dispatcher
	sessionID := m.store.ActiveID()
	return func() tea.Msg {
		result, err := dispatcher.Submit(context.Background(), sessionID, position, kind, text)
		return FeedbackSentMsg{Position: position, Verdict: string(kind), Result: result, Err: err}
	}
}

func (m Model) chartCmd(position int, chartID string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		resp, err := client.FetchChart(context.Background(), chartID)
		if err != nil {
			return ChartLoadedMsg{Position: position, Err: err}
		}
		return ChartLoadedMsg{Position: position, HTML: resp.ChartHTML}
	}
}
