// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// =============================================================================
// STREAM READER
// =============================================================================

// dataPrefix marks a payload-bearing line of the chat stream. The space
// after the colon is optional on the wire.
const dataPrefix = "data:"

// Individual records can carry whole table payloads, so the cap is generous.
const (
	streamBufferSize    = 64 * 1024
	streamMaxRecordSize = 4 * 1024 * 1024
)

// StreamReader decodes a newline-delimited chat stream. Each record is a
// line of the form "data: <json>"; lines without the prefix and blank
// lines are keep-alive noise and skipped. A trailing fragment without a
// terminating newline is an aborted record and discarded.
type StreamReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

// NewStreamReader wraps a streaming response body.
func NewStreamReader(body io.ReadCloser) *StreamReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, streamBufferSize), streamMaxRecordSize)
	scanner.Split(scanTerminatedLines)
	return &StreamReader{scanner: scanner, closer: body}
}

// Process reads records until an end event, EOF, context cancellation, or
// a malformed record, invoking callback for each decoded event. The end
// event itself is delivered to the callback before Process returns.
//
// RELIABILITY: one corrupt record fails the whole stream. Skipping it
// would silently drop answer text, which is worse than a visible error.
func (r *StreamReader) Process(ctx context.Context, callback func(StreamEvent) error) error {
	defer r.closer.Close()

	for r.scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, ok := strings.CutPrefix(r.scanner.Text(), dataPrefix)
		payload = strings.TrimSpace(payload)
		if !ok || payload == "" {
			continue
		}

		event, err := decodeRecord(payload)
		if err != nil {
			return err
		}
		if err := callback(event); err != nil {
			return err
		}
		if event.Type == EventEnd {
			return nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classifyError(err, "stream read")
	}
	return nil
}

// Close releases the underlying body without draining it.
func (r *StreamReader) Close() error {
	return r.closer.Close()
}

// decodeRecord parses one "data: " payload into a stream event.
func decodeRecord(payload string) (StreamEvent, error) {
	var env streamEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return StreamEvent{}, &ClientError{
			Type:    ErrTypeMalformedStream,
			Message: "unparseable stream record",
			Cause:   err,
		}
	}

	switch env.Type {
	case "text":
		return StreamEvent{Type: EventText, Delta: decodeContent(env.Content)}, nil
	case "complete":
		return StreamEvent{Type: EventComplete, Payload: env.completePayload()}, nil
	case "end":
		return StreamEvent{Type: EventEnd}, nil
	default:
		// Unknown record types are forward-compatibility noise; the
		// caller's switch ignores them.
		return StreamEvent{Type: EventType(env.Type)}, nil
	}
}

// scanTerminatedLines is a bufio.SplitFunc that emits only complete lines.
// A final fragment with no newline was cut off mid-write and is consumed
// without being surfaced as a token.
func scanTerminatedLines(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, dropCR(data[:i]), nil
	}
	if atEOF {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[:len(data)-1]
	}
	return data
}
