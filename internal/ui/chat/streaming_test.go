// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"
)

func TestRenderGateCleanByDefault(t *testing.T) {
	g := NewRenderGate()
	if g.TakeRepaint() {
		t.Error("TakeRepaint() = true on a clean gate, want false")
	}
}

func TestRenderGateRepaintAfterFrame(t *testing.T) {
	g := NewRenderGate()
	g.minFrame = time.Millisecond

	g.MarkDirty()
	time.Sleep(5 * time.Millisecond)

	if !g.TakeRepaint() {
		t.Fatal("TakeRepaint() = false after MarkDirty and frame elapse, want true")
	}
	if g.TakeRepaint() {
		t.Error("TakeRepaint() = true twice for one MarkDirty, want false")
	}
}

func TestRenderGateCapsFrameRate(t *testing.T) {
	g := NewRenderGate()
	g.minFrame = time.Hour
	g.lastPaint = time.Now()

	g.MarkDirty()
	if g.TakeRepaint() {
		t.Error("TakeRepaint() = true inside the frame window, want false")
	}

	// The dirty flag must survive a suppressed repaint.
	g.minFrame = 0
	if !g.TakeRepaint() {
		t.Error("TakeRepaint() = false once the window passes, want true")
	}
}

func TestRenderGateFlushUnconditional(t *testing.T) {
	g := NewRenderGate()
	g.minFrame = time.Hour

	g.MarkDirty()
	if !g.Flush() {
		t.Error("Flush() = false on a dirty gate, want true")
	}
	if g.Flush() {
		t.Error("Flush() = true on a clean gate, want false")
	}
}
