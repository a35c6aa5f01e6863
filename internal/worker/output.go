// Package worker implements the worker agent and its multi-server
// fairness rotation: per-server heartbeat loops sharing one run slot,
// the download pipeline, and the two bench methods.
package worker

import (
	"sync"

	"github.com/Garmelon/tablejohn/internal/wire"
)

// tailLength is how many of the most recent output lines a heartbeat
// carries while a run is in progress.
const tailLength = 50

// outputBuffer accumulates a run's (source, line) pairs. Heartbeats read a
// bounded tail; the final submission reads everything.
type outputBuffer struct {
	mu    sync.Mutex
	lines []wire.OutputLine
}

func newOutputBuffer() *outputBuffer {
	return &outputBuffer{}
}

func (b *outputBuffer) Append(source wire.Source, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, wire.OutputLine{Source: source, Text: text})
}

// Tail returns (a copy of) the last tailLength lines, for heartbeats.
func (b *outputBuffer) Tail() []wire.OutputLine {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if len(b.lines) > tailLength {
		start = len(b.lines) - tailLength
	}

	out := make([]wire.OutputLine, len(b.lines)-start)
	copy(out, b.lines[start:])

	return out
}

// All returns (a copy of) every line recorded so far, for submission.
func (b *outputBuffer) All() []wire.OutputLine {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]wire.OutputLine, len(b.lines))
	copy(out, b.lines)

	return out
}
