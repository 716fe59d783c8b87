// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for retry and display decisions.
type ErrorType int

const (
	// ErrTypeConnection indicates the backend is unreachable.
	ErrTypeConnection ErrorType = iota
	// ErrTypeTimeout indicates a request exceeded its deadline.
	ErrTypeTimeout
	// ErrTypeNotFound indicates a missing session, message, or chart.
	ErrTypeNotFound
	// ErrTypeInvalidResponse indicates an unparseable non-stream body.
	ErrTypeInvalidResponse
	// ErrTypeMalformedStream indicates a corrupt record inside a stream.
	ErrTypeMalformedStream
	// ErrTypeServer indicates an HTTP 5xx from the backend.
	ErrTypeServer
	// ErrTypeUnknown indicates an unclassified failure.
	ErrTypeUnknown
)

// String returns a human-readable name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeNotFound:
		return "not_found"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeMalformedStream:
		return "malformed_stream"
	case ErrTypeServer:
		return "server"
	default:
		return "unknown"
	}
}

// ClientError wraps API failures with a type for programmatic handling.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is matching on the error type.
func (e *ClientError) Is(target error) bool {
	var ce *ClientError
	if errors.As(target, &ce) {
		return e.Type == ce.Type
	}
	return false
}

// Sentinel errors for errors.Is checks.
var (
	ErrConnection      = &ClientError{Type: ErrTypeConnection, Message: "backend unreachable"}
	ErrTimeout         = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrNotFound        = &ClientError{Type: ErrTypeNotFound, Message: "resource not found"}
	ErrMalformedStream = &ClientError{Type: ErrTypeMalformedStream, Message: "malformed stream record"}
)

// classifyError maps transport failures to typed client errors.
func classifyError(err error, operation string) *ClientError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{
			Type:    ErrTypeTimeout,
			Message: fmt.Sprintf("%s timed out", operation),
			Cause:   err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{
			Type:    ErrTypeTimeout,
			Message: fmt.Sprintf("%s timed out", operation),
			Cause:   err,
		}
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: fmt.Sprintf("%s: backend unreachable", operation),
			Cause:   err,
		}
	}

	return &ClientError{
		Type:    ErrTypeUnknown,
		Message: operation + " failed",
		Cause:   err,
	}
}
