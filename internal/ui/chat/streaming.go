// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file implements streaming render batching. Stream deltas can
// arrive far faster than a terminal can usefully repaint; the render
// gate caps viewport refreshes at a fixed frame rate so a fast stream
// does not burn CPU on flicker.
package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// RENDER GATE
// =============================================================================

// renderFPS caps streaming viewport refreshes.
const renderFPS = 30

// RenderGate coalesces change notifications into at most one repaint
// per frame. Deltas mark the gate dirty from the stream goroutine; the
// tick handler repaints only when something actually changed.
//
// Thread-safety: marks arrive from the streaming goroutine while takes
// happen on the Bubble Tea loop.
type RenderGate struct {
	mu        sync.Mutex
	dirty     bool
	lastPaint time.Time
	minFrame  time.Duration
}

// NewRenderGate creates a gate capped at renderFPS.
func NewRenderGate() *RenderGate {
	return &RenderGate{
		minFrame:  time.Second / renderFPS,
		lastPaint: time.Now(),
	}
}

// MarkDirty records that the transcript changed.
func (g *RenderGate) MarkDirty() {
	g.mu.Lock()
	g.dirty = true
	g.mu.Unlock()
}

// TakeRepaint reports whether a repaint is due and consumes the dirty
// flag if so.
func (g *RenderGate) TakeRepaint() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.dirty {
		return false
	}
	if time.Since(g.lastPaint) < g.minFrame {
		return false
	}
	g.dirty = false
	g.lastPaint = time.Now()
	return true
}

// Flush consumes the dirty flag unconditionally. Used at stream end so
// the final state is never held back by the frame cap.
func (g *RenderGate) Flush() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	wasDirty := g.dirty
	g.dirty = false
	g.lastPaint = time.Now()
	return wasDirty
}

// streamTickCmd schedules the next streaming repaint check.
func streamTickCmd() tea.Cmd {
	return tea.Tick(time.Second/renderFPS, func(time.Time) tea.Msg {
		return StreamTickMsg{}
	})
}
