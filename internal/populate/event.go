package populate

import (
	"time"

	"github.com/ubuntu/crash-insights/internal/event"
	"gopkg.in/guregu/null.v3"
)

// HandledSource describes how the event was caught.
type HandledSource struct {
	// Severity is one of error, warning or info.
	Severity  null.String
	Unhandled null.Bool

	ReasonType  null.String
	ReasonKey   null.String
	ReasonValue null.String
}

// HandledState fills the handled state. An unknown severity is dropped.
func HandledState(h *event.HandledState, src *HandledSource) (st Status) {
	if src.Severity.Valid {
		s, ok := event.ParseSeverity(src.Severity.String)
		if ok {
			h.Severity = s
		} else {
			st.Dropped++
		}
	}
	if src.Unhandled.Valid {
		h.Unhandled = src.Unhandled.Bool
	}
	setText(&st, &h.ReasonType, src.ReasonType)
	setText(&st, &h.ReasonKey, src.ReasonKey)
	setText(&st, &h.ReasonValue, src.ReasonValue)
	return st
}

// Frame is one stack frame, innermost first.
type Frame struct {
	FrameAddress  uint64
	SymbolAddress uint64
	LoadAddress   uint64
	LineNumber    uint32
	File          string
	Method        string
}

// ExceptionSource describes the error at the origin of the event.
type ExceptionSource struct {
	ErrorClass null.String
	Message    null.String
	Type       null.String
	Frames     []Frame
}

// Exception fills the exception. Frames are appended to the recorded ones, the ones beyond
// the stack trace capacity are dropped.
func Exception(e *event.Exception, src *ExceptionSource) (st Status) {
	setText(&st, &e.ErrorClass, src.ErrorClass)
	setText(&st, &e.Message, src.Message)
	setText(&st, &e.Type, src.Type)
	for i := range src.Frames {
		f, ok := e.AddFrame()
		if !ok {
			st.Dropped += len(src.Frames) - i
			break
		}
		in := &src.Frames[i]
		f.FrameAddress = in.FrameAddress
		f.SymbolAddress = in.SymbolAddress
		f.LoadAddress = in.LoadAddress
		f.LineNumber = in.LineNumber
		_, t := f.File.Set(in.File)
		st.truncated(t)
		_, t = f.Method.Set(in.Method)
		st.truncated(t)
	}
	return st
}

// Pair is a breadcrumb metadata entry.
type Pair struct {
	Key   string
	Value string
}

// BreadcrumbSource is a trail entry left before the event.
type BreadcrumbSource struct {
	Name string
	// Type is a breadcrumb type name. An unknown one is recorded as manual.
	Type      string
	Timestamp time.Time
	Metadata  []Pair
}

// Breadcrumb records a new breadcrumb, evicting the oldest one when the trail is full.
// An evicted breadcrumb is not counted as dropped.
func Breadcrumb(bs *event.Breadcrumbs, src *BreadcrumbSource) (st Status) {
	b, _ := bs.Add()
	_, t := b.Name.Set(src.Name)
	st.truncated(t)
	b.Type, _ = event.ParseBreadcrumbType(src.Type)
	b.Timestamp = src.Timestamp.UnixMilli()
	for _, p := range src.Metadata {
		st.stored(b.AddMetadata(p.Key, p.Value))
	}
	return st
}

// SessionSource describes the session in which the event happened.
type SessionSource struct {
	ID        null.String
	StartedAt null.Time
	Handled   null.Int
	Unhandled null.Int
}

// Session fills the session.
func Session(s *event.Session, src *SessionSource) (st Status) {
	setText(&st, &s.ID, src.ID)
	if src.StartedAt.Valid {
		s.StartedAt = src.StartedAt.Time.UnixMilli()
	}
	if src.Handled.Valid {
		s.Handled = src.Handled.Int64
	}
	if src.Unhandled.Valid {
		s.Unhandled = src.Unhandled.Int64
	}
	return st
}
