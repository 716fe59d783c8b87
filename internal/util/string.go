// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the sbrchat TUI.
package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Truncate shortens a string to maxLen runes, appending "..." when truncated.
// Rune-based so multi-byte text (Cyrillic, Kazakh) is never cut mid-character.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// TruncateWidth shortens a string to the given display width, accounting for
// wide characters, appending an ellipsis when truncated.
func TruncateWidth(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

// PadWidth pads a string with spaces to the given display width.
func PadWidth(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// Flatten collapses newlines so a message can be shown on a single line.
func Flatten(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}
