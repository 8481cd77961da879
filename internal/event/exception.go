package event

import (
	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/crash-insights/internal/fixed"
)

// Stackframe is one frame of an exception stack trace.
type Stackframe struct {
	// Addresses are unset when 0.
	FrameAddress  uint64
	SymbolAddress uint64
	LoadAddress   uint64
	// LineNumber is unset when 0.
	LineNumber uint32

	File   fixed.String256
	Method fixed.String256
}

// Exception is the error that originated the event.
type Exception struct {
	ErrorClass fixed.String64
	Message    fixed.String256
	// Type is the kind of stack trace, "c" for native frames or "go".
	Type fixed.String32

	Frames     [constants.MaxFrames]Stackframe
	FrameCount int
}

// IsSet reports whether anything was recorded on the exception.
func (e *Exception) IsSet() bool {
	return e.ErrorClass.IsSet() || e.Message.IsSet() || e.FrameCount > 0
}

// AddFrame returns the next free frame, and false when the stack trace is full.
// The returned frame is cleared.
func (e *Exception) AddFrame() (*Stackframe, bool) {
	if e.FrameCount >= len(e.Frames) {
		return nil, false
	}
	f := &e.Frames[e.FrameCount]
	*f = Stackframe{}
	e.FrameCount++
	return f, true
}

// Stack calls fn for each recorded frame, innermost first.
func (e *Exception) Stack(fn func(f *Stackframe)) {
	for i := range min(e.FrameCount, len(e.Frames)) {
		fn(&e.Frames[i])
	}
}
