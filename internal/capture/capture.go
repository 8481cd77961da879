// Package capture turns errors and panics into stored events.
//
// A Handler keeps a template report holding everything known before an error happens: app and
// device facts, user, context, metadata and breadcrumbs. When an error is captured, the
// template is copied into a report allocated at start, the error is added, and the report is
// serialized into a preallocated buffer before being stored.
//
// Only one event is captured at a time. Errors happening while an event is being captured,
// like a panic raised by another goroutine during a crash, are dropped and counted.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/crash-insights/internal/event"
	"github.com/ubuntu/crash-insights/internal/populate"
	"github.com/ubuntu/crash-insights/internal/serializer"
	"github.com/ubuntu/crash-insights/internal/store"
	"github.com/ubuntu/decorate"
	"gopkg.in/guregu/null.v3"
)

var (
	// ErrBusy is returned when an event is captured while another one is being captured.
	ErrBusy = errors.New("another event is being captured")

	// ErrNoConsent is returned when events may not be stored.
	ErrNoConsent = errors.New("consent to store events was not given")
)

// Reasons of the severity of captured events.
const (
	ReasonUnhandledPanic = "unhandledPanic"
	ReasonUnhandledError = "unhandledError"
	ReasonHandledError   = "handledError"
	ReasonUserSpecified  = "userSpecifiedSeverity"
)

// stackType is the exception type of Go stack traces.
const stackType = "go"

// Store keeps serialized events.
type Store interface {
	Write(data []byte) (store.Event, error)
}

// Consent tells whether events of a source may be stored.
type Consent interface {
	HasConsent(source string) (bool, error)
}

// Input describes an error to capture.
type Input struct {
	ErrorClass string
	Message    string
	Severity   event.Severity
	Unhandled  bool
	// ReasonType explains the severity. ReasonKey and ReasonValue are an optional attribute of it.
	ReasonType  string
	ReasonKey   string
	ReasonValue string
	// Frames is the stack trace, innermost first.
	Frames []populate.Frame
}

// Handler captures events.
type Handler struct {
	store   Store
	consent Consent
	source  string

	mu       sync.Mutex
	template event.Report

	handling  atomic.Bool
	dropped   atomic.Int64
	handled   atomic.Int64
	unhandled atomic.Int64

	arena  *event.Arena
	enc    *serializer.Encoder
	pcs    []uintptr
	frames []populate.Frame

	refresh func(r *event.Report) populate.Status
	repanic bool
	now     func() time.Time
	log     *slog.Logger
}

type options struct {
	refresh    func(r *event.Report) populate.Status
	repanic    bool
	bufferSize int
	arenaSize  int
	now        func() time.Time
	log        *slog.Logger
}

// Options represents an optional function to override Handler default values.
type Options func(*options)

// WithRepanic sets whether Recover panics again once the panic is captured. Defaults to true.
func WithRepanic(repanic bool) Options {
	return func(o *options) {
		o.repanic = repanic
	}
}

// WithRefresh sets a function updating the facts which change while the program runs, like
// its run time. It is called on the copy of the template of each event, before the error is added.
func WithRefresh(fn func(r *event.Report) populate.Status) Options {
	return func(o *options) {
		o.refresh = fn
	}
}

// WithLogger sets the logger used by the handler.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// New returns a Handler storing the events of source into st, when c allows it.
// Every buffer the handler needs to capture an event is allocated here.
func New(st Store, c Consent, source string, args ...Options) *Handler {
	opts := options{
		repanic:    true,
		bufferSize: constants.MaxPayloadSize,
		arenaSize:  constants.ArenaSize,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Handler{
		store:   st,
		consent: c,
		source:  source,
		arena:   event.NewArena(opts.arenaSize),
		enc:     serializer.NewEncoder(opts.bufferSize),
		pcs:     make([]uintptr, constants.MaxFrames),
		frames:  make([]populate.Frame, 0, constants.MaxFrames),
		refresh: opts.refresh,
		repanic: opts.repanic,
		now:     opts.now,
		log:     opts.log,
	}
}

// Update runs fn on the template report. fn must not keep r.
func (h *Handler) Update(fn func(r *event.Report) populate.Status) populate.Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	return fn(&h.template)
}

// Dropped returns the number of events which could not be captured because another one was.
func (h *Handler) Dropped() int64 {
	return h.dropped.Load()
}

// Recover captures a panic as an unhandled event. It must be deferred directly:
//
//	defer h.Recover()
//
// Once captured, the panic continues unless the handler was created WithRepanic(false).
func (h *Handler) Recover() {
	v := recover()
	if v == nil {
		return
	}
	h.HandlePanic(v)
}

// HandlePanic captures v, a value returned by recover, as an unhandled event. It is meant for
// deferred functions wrapping Recover, as recover only stops a panic when called by the deferred
// function itself.
func (h *Handler) HandlePanic(v any) {
	if h.repanic {
		defer panic(v)
	}

	if !h.acquire() {
		return
	}
	defer h.release()

	in := Input{
		ErrorClass: errorClass(v),
		Message:    fmt.Sprint(v),
		Severity:   event.SeverityError,
		Unhandled:  true,
		ReasonType: ReasonUnhandledPanic,
		Frames:     h.callers(0, true),
	}
	_, err := h.save(&in, false)
	if errors.Is(err, ErrNoConsent) {
		h.log.Debug("Panic not captured", "error", err)
		return
	}
	if err != nil {
		h.log.Warn("Failed to capture panic", "panic", in.Message, "error", err)
	}
}

// Notify captures err as a handled event of the given severity, with the stack of the caller.
func (h *Handler) Notify(err error, severity event.Severity) (store.Event, error) {
	return h.notify(0, err, severity)
}

// NotifyDepth is like Notify, but skips depth more frames of the caller stack.
// NotifyDepth(0, ...) is Notify.
func (h *Handler) NotifyDepth(depth int, err error, severity event.Severity) (store.Event, error) {
	return h.notify(depth, err, severity)
}

func (h *Handler) notify(depth int, err error, severity event.Severity) (e store.Event, cerr error) {
	defer decorate.OnError(&cerr, "could not notify error")

	if err == nil {
		return store.Event{}, errors.New("no error to notify")
	}
	if !h.acquire() {
		return store.Event{}, ErrBusy
	}
	defer h.release()

	in := Input{
		ErrorClass: errorClass(err),
		Message:    err.Error(),
		Severity:   severity,
		ReasonType: ReasonHandledError,
		Frames:     h.callers(depth, false),
	}
	if severity != event.SeverityWarning {
		in.ReasonType = ReasonUserSpecified
	}
	return h.save(&in, true)
}

// Capture captures in and stores it.
func (h *Handler) Capture(in Input) (e store.Event, err error) {
	defer decorate.OnError(&err, "could not capture event")

	if !h.acquire() {
		return store.Event{}, ErrBusy
	}
	defer h.release()

	return h.save(&in, true)
}

// Render serializes in as it would be captured, without storing it nor requiring consent.
func (h *Handler) Render(in Input) (data []byte, err error) {
	defer decorate.OnError(&err, "could not render event")

	if !h.acquire() {
		return nil, ErrBusy
	}
	defer h.release()

	// The session counts are the ones the event would have, were it stored.
	handled, unhandled := h.handled.Load(), h.unhandled.Load()
	if in.Unhandled {
		unhandled++
	} else {
		handled++
	}

	data, _, err = h.build(&in, true, handled, unhandled)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(data), nil
}

// acquire takes the handling flag, or counts the event as dropped if another one holds it.
func (h *Handler) acquire() bool {
	if !h.handling.CompareAndSwap(false, true) {
		h.dropped.Add(1)
		return false
	}
	return true
}

func (h *Handler) release() {
	h.handling.Store(false)
}

// save builds, serializes and stores an event. On the crash path, wait is false: the
// template is skipped rather than waited for when it is being updated.
// The caller holds the handling flag.
func (h *Handler) save(in *Input, wait bool) (store.Event, error) {
	allowed, err := h.consent.HasConsent(h.source)
	if err != nil {
		return store.Event{}, fmt.Errorf("could not get consent state: %v", err)
	}
	if !allowed {
		return store.Event{}, ErrNoConsent
	}

	handled, unhandled := h.handled.Load(), h.unhandled.Load()
	if in.Unhandled {
		unhandled = h.unhandled.Add(1)
	} else {
		handled = h.handled.Add(1)
	}

	data, st, err := h.build(in, wait, handled, unhandled)
	if err != nil {
		return store.Event{}, err
	}

	e, err := h.store.Write(data)
	if err != nil {
		return store.Event{}, err
	}
	h.log.Debug("Captured event", "file", e.Path, "class", in.ErrorClass, "truncated", st.Truncated, "dropped", st.Dropped)
	return e, nil
}

// build serializes in into the preallocated buffer, with the given session counts. The returned
// data is only valid until the next capture. The caller holds the handling flag.
func (h *Handler) build(in *Input, wait bool, handled, unhandled int64) ([]byte, populate.Status, error) {
	r, ok := h.arena.Acquire()
	if !ok {
		return nil, populate.Status{}, ErrBusy
	}
	defer h.arena.Release(r)

	if wait {
		h.mu.Lock()
		*r = h.template
		h.mu.Unlock()
	} else if h.mu.TryLock() {
		*r = h.template
		h.mu.Unlock()
	}

	var st populate.Status
	if h.refresh != nil {
		st.Add(h.refresh(r))
	}
	st.Add(populate.HandledState(&r.Handled, &populate.HandledSource{
		Severity:    null.StringFrom(in.Severity.String()),
		Unhandled:   null.BoolFrom(in.Unhandled),
		ReasonType:  nullString(in.ReasonType),
		ReasonKey:   nullString(in.ReasonKey),
		ReasonValue: nullString(in.ReasonValue),
	}))
	st.Add(populate.Exception(&r.Exception, &populate.ExceptionSource{
		ErrorClass: nullString(in.ErrorClass),
		Message:    nullString(in.Message),
		Type:       null.StringFrom(stackType),
		Frames:     in.Frames,
	}))
	st.Add(populate.DeviceMetadata(&r.Device, &populate.DeviceMetadataSource{
		Time: null.TimeFrom(h.now()),
	}))
	if r.Session.ID.IsSet() {
		st.Add(populate.Session(&r.Session, &populate.SessionSource{
			Handled:   null.IntFrom(handled),
			Unhandled: null.IntFrom(unhandled),
		}))
	}

	data, err := h.enc.Encode(r)
	if err != nil {
		return nil, st, err
	}
	return data, st, nil
}

// callers returns the stack of the goroutine calling into the handler, innermost first.
// Runtime frames are skipped. For panics, so are the frames above the panic call.
func (h *Handler) callers(depth int, panicking bool) []populate.Frame {
	// Skip runtime.Callers, callers, notify, and Notify or NotifyDepth. Panics are cut at
	// runtime.gopanic instead.
	skip := 4 + depth
	if panicking {
		skip = 2
	}
	n := runtime.Callers(skip, h.pcs)
	frames := runtime.CallersFrames(h.pcs[:n])

	out := h.frames[:0]
	for {
		f, more := frames.Next()
		switch {
		case panicking && f.Function == "runtime.gopanic":
			out = out[:0]
		case strings.HasPrefix(f.Function, "runtime."):
		case len(out) < cap(out):
			out = append(out, populate.Frame{
				FrameAddress:  uint64(f.PC),
				SymbolAddress: uint64(f.Entry),
				LineNumber:    uint32(max(f.Line, 0)),
				File:          f.File,
				Method:        f.Function,
			})
		}
		if !more {
			break
		}
	}
	return out
}

// errorClass names the type of an error, like *fs.PathError. Panics with a plain value are
// named after the value type.
func errorClass(v any) string {
	if _, ok := v.(string); ok {
		return "panic"
	}
	return fmt.Sprintf("%T", v)
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}
