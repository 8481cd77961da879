// Package serializer turns an event.Report into the JSON document expected by the ingestion service.
//
// The output is deterministic: keys are written in a fixed order, metadata sections and keys
// in insertion order. Each field has its own omission rule:
//   - text fields are omitted when never set, and written (possibly empty) otherwise;
//   - sentinel numbers (versionCode, totalMemory, apiLevel, dpi, time, frame addresses and
//     line numbers) are omitted when 0;
//   - flagged scalars (durations, inForeground, lowMemory, emulator, jailbroken,
//     screenDensity) are omitted only when never set;
//   - NaN and infinities are omitted from fixed fields and written as null in metadata;
//   - app, device, user, metadata, breadcrumbs and session are omitted when they would be empty.
//
// severity, unhandled and exceptions are always written.
// Invalid UTF-8 sequences in text are replaced by U+FFFD.
package serializer

import (
	"errors"
	"math"
	"time"

	"github.com/mailru/easyjson/buffer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/ubuntu/crash-insights/internal/event"
)

// ErrOutputExhausted is returned when the document does not fit in the preallocated output buffer.
var ErrOutputExhausted = errors.New("serialized event does not fit in the output buffer")

const timestampMillis = "2006-01-02T15:04:05.000Z07:00"

// Marshal serializes r.
//
// If dst is not nil, it is the preallocated output buffer: the document is written into it
// when it fits in cap(dst), and ErrOutputExhausted is returned otherwise.
// If dst is nil, a new buffer is allocated.
//
// Marshal allocates its writer on each call. Use an Encoder where serializing must not allocate.
func Marshal(r *event.Report, dst []byte) ([]byte, error) {
	w := newWriter()
	writeReport(w, r)
	return build(w, dst)
}

// encoderSlack is the room kept past the limit of an Encoder, so that the writer never spills
// out of its buffer when reserving space for the last values of a document that fits.
const encoderSlack = 64

// Encoder serializes reports into a buffer allocated once, without allocating.
// An Encoder is not safe for concurrent use.
type Encoder struct {
	w     jwriter.Writer
	buf   []byte
	limit int
}

// NewEncoder returns an Encoder for documents of up to size bytes.
func NewEncoder(size int) *Encoder {
	return &Encoder{
		buf:   make([]byte, 0, size+encoderSlack),
		limit: size,
	}
}

// Encode serializes r into the buffer of the Encoder. The returned data is only valid until the
// next call. ErrOutputExhausted is returned when the document is larger than the Encoder size.
func (e *Encoder) Encode(r *event.Report) ([]byte, error) {
	e.w = jwriter.Writer{NoEscapeHTML: true, Buffer: buffer.Buffer{Buf: e.buf[:0]}}
	writeReport(&e.w, r)

	out := e.w.Buffer.Buf
	// Once the buffer is full, the writer carries on in chunks of its own.
	spilled := e.w.Size() != len(out)
	e.w = jwriter.Writer{}

	if spilled || len(out) > e.limit {
		return nil, ErrOutputExhausted
	}
	return out, nil
}

// User serializes the user object alone.
func User(u *event.User) []byte {
	return standalone(func(o *object) { writeUser(o, u) })
}

// App serializes the app object, identity and metadata parts included.
func App(a *event.App) []byte {
	return standalone(func(o *object) { writeApp(o, a) })
}

// AppMetadata serializes only the metadata part of the app object.
func AppMetadata(a *event.App) []byte {
	return standalone(func(o *object) { writeAppMetadata(o, a) })
}

// Device serializes the device object, identity and metadata parts included.
func Device(d *event.Device) []byte {
	return standalone(func(o *object) { writeDevice(o, d) })
}

// DeviceMetadata serializes only the metadata part of the device object.
func DeviceMetadata(d *event.Device) []byte {
	return standalone(func(o *object) { writeDeviceMetadata(o, d) })
}

// HandledState serializes the severity, unhandled and severityReason keys as one object.
func HandledState(h *event.HandledState) []byte {
	return standalone(func(o *object) { writeHandledState(o, h) })
}

// Metadata serializes the metadata object.
func Metadata(m *event.Metadata) []byte {
	return standalone(func(o *object) { writeMetadata(o, m) })
}

func newWriter() *jwriter.Writer {
	return &jwriter.Writer{NoEscapeHTML: true}
}

func standalone(fn func(o *object)) []byte {
	w := newWriter()
	o := root(w)
	fn(&o)
	o.close()
	b, _ := build(w, nil)
	return b
}

// appender writes into a slice without ever growing it past its capacity.
type appender struct {
	b []byte
}

func (a *appender) Write(p []byte) (int, error) {
	if len(a.b)+len(p) > cap(a.b) {
		return 0, ErrOutputExhausted
	}
	a.b = append(a.b, p...)
	return len(p), nil
}

func build(w *jwriter.Writer, dst []byte) ([]byte, error) {
	if w.Error != nil {
		return nil, w.Error
	}
	if dst == nil {
		return w.BuildBytes()
	}
	if w.Size() > cap(dst) {
		return nil, ErrOutputExhausted
	}

	out := appender{b: dst[:0]}
	if _, err := w.DumpTo(&out); err != nil {
		return nil, err
	}
	return out.b, nil
}

func writeReport(w *jwriter.Writer, r *event.Report) {
	o := root(w)

	o.text("context", &r.Context)

	app := o.child("app")
	writeApp(&app, &r.App)
	app.close()

	device := o.child("device")
	writeDevice(&device, &r.Device)
	device.close()

	user := o.child("user")
	writeUser(&user, &r.User)
	user.close()

	metadata := o.child("metadata")
	writeMetadata(&metadata, &r.Metadata)
	metadata.close()

	writeHandledState(&o, &r.Handled)

	o.key("exceptions")
	w.RawByte('[')
	if r.Exception.IsSet() {
		exception := root(w)
		writeException(&exception, &r.Exception)
		exception.close()
	}
	w.RawByte(']')

	if r.Breadcrumbs.Len() > 0 {
		o.key("breadcrumbs")
		writeBreadcrumbs(w, &r.Breadcrumbs)
	}

	if r.Session.ID.IsSet() {
		session := o.child("session")
		writeSession(&session, &r.Session)
		session.close()
	}

	o.close()
}

func writeHandledState(o *object, h *event.HandledState) {
	w := o.w
	o.key("severity")
	w.String(h.Severity.String())
	o.key("unhandled")
	w.Bool(h.Unhandled)

	if !h.ReasonType.IsSet() {
		return
	}
	reason := o.child("severityReason")
	reason.text("type", &h.ReasonType)
	if h.ReasonKey.Len() > 0 {
		attrs := reason.child("attributes")
		attrs.key(h.ReasonKey.View())
		w.String(h.ReasonValue.View())
		attrs.close()
	}
	reason.close()
}

func writeUser(o *object, u *event.User) {
	o.text("id", &u.ID)
	o.text("email", &u.Email)
	o.text("name", &u.Name)
}

func writeApp(o *object, a *event.App) {
	writeAppIdentity(o, a)
	writeAppMetadata(o, a)
}

func writeAppIdentity(o *object, a *event.App) {
	w := o.w
	o.text("version", &a.Version)
	o.text("id", &a.ID)
	o.text("type", &a.Type)
	o.text("releaseStage", &a.ReleaseStage)
	o.sentinel("versionCode", a.VersionCode)
	o.text("buildUUID", &a.BuildUUID)
	o.text("binaryArch", &a.BinaryArch)
	if v, ok := a.InForeground.Get(); ok {
		o.key("inForeground")
		w.Bool(v)
	}
	if v, ok := a.Duration.Get(); ok {
		o.key("duration")
		w.Int64(v)
	}
	if v, ok := a.DurationInForeground.Get(); ok {
		o.key("durationInForeground")
		w.Int64(v)
	}
}

func writeAppMetadata(o *object, a *event.App) {
	w := o.w
	o.text("packageName", &a.PackageName)
	o.text("versionName", &a.VersionName)
	o.text("activeScreen", &a.ActiveScreen)
	o.text("name", &a.Name)
	if v, ok := a.LowMemory.Get(); ok {
		o.key("lowMemory")
		w.Bool(v)
	}
}

func writeDevice(o *object, d *event.Device) {
	writeDeviceIdentity(o, d)
	writeDeviceMetadata(o, d)
}

func writeDeviceIdentity(o *object, d *event.Device) {
	w := o.w
	o.text("id", &d.ID)
	o.text("osVersion", &d.OSVersion)
	o.text("manufacturer", &d.Manufacturer)
	o.text("model", &d.Model)
	o.text("orientation", &d.Orientation)
	o.text("osBuild", &d.OSBuild)
	o.sentinel("totalMemory", d.TotalMemory)
	o.sentinel("apiLevel", d.APILevel)
	if n := min(d.CPUABICount, len(d.CPUABI)); n > 0 {
		o.key("cpuAbi")
		w.RawByte('[')
		for i := range n {
			if i > 0 {
				w.RawByte(',')
			}
			w.String(d.CPUABI[i].View())
		}
		w.RawByte(']')
	}
}

func writeDeviceMetadata(o *object, d *event.Device) {
	w := o.w
	o.text("brand", &d.Brand)
	o.text("locale", &d.Locale)
	o.text("locationStatus", &d.LocationStatus)
	o.text("networkAccess", &d.NetworkAccess)
	o.text("screenResolution", &d.ScreenResolution)
	if v, ok := d.Emulator.Get(); ok {
		o.key("emulator")
		w.Bool(v)
	}
	if v, ok := d.Jailbroken.Get(); ok {
		o.key("jailbroken")
		w.Bool(v)
	}
	o.sentinel("dpi", d.DPI)
	if d.ScreenDensity.Finite() {
		o.key("screenDensity")
		w.Float64(d.ScreenDensity.Value())
	}
	if d.Time != 0 {
		o.key("time")
		writeTime(w, time.Unix(d.Time, 0), time.RFC3339)
	}
}

func writeMetadata(o *object, m *event.Metadata) {
	w := o.w
	for i := range m.Len() {
		if !m.SectionStart(i) {
			continue
		}
		section := m.At(i).Section.View()

		values := o.child(section)
		for j := i; j < m.Len(); j++ {
			v := m.At(j)
			if v.Section.View() != section {
				continue
			}
			values.key(v.Key.View())
			writeMetadataValue(w, v)
		}
		values.close()
	}
}

func writeMetadataValue(w *jwriter.Writer, v *event.MetadataValue) {
	switch v.Kind {
	case event.KindString:
		w.String(v.Str.View())
	case event.KindNumber:
		if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
			w.RawString("null")
			return
		}
		w.Float64(v.Number)
	case event.KindBool:
		w.Bool(v.Bool)
	default:
		w.RawString("null")
	}
}

func writeException(o *object, e *event.Exception) {
	w := o.w
	o.text("errorClass", &e.ErrorClass)
	o.text("message", &e.Message)
	o.text("type", &e.Type)

	o.key("stacktrace")
	w.RawByte('[')
	for i := range min(e.FrameCount, len(e.Frames)) {
		if i > 0 {
			w.RawByte(',')
		}
		frame := root(w)
		writeStackframe(&frame, &e.Frames[i])
		frame.close()
	}
	w.RawByte(']')
}

func writeStackframe(o *object, f *event.Stackframe) {
	o.address("frameAddress", f.FrameAddress)
	o.address("symbolAddress", f.SymbolAddress)
	o.address("loadAddress", f.LoadAddress)
	o.sentinel("lineNumber", int64(f.LineNumber))
	o.text("file", &f.File)
	o.text("method", &f.Method)
}

func writeBreadcrumbs(w *jwriter.Writer, bs *event.Breadcrumbs) {
	w.RawByte('[')
	for i := range bs.Len() {
		if i > 0 {
			w.RawByte(',')
		}
		b := bs.At(i)

		o := root(w)
		o.key("timestamp")
		writeTime(w, time.UnixMilli(b.Timestamp), timestampMillis)
		o.text("name", &b.Name)
		o.key("type")
		w.String(b.Type.String())

		meta := o.child("metadata")
		for j := range min(b.MetadataCount, len(b.Metadata)) {
			meta.key(b.Metadata[j].Key.View())
			w.String(b.Metadata[j].Value.View())
		}
		meta.close()
		o.close()
	}
	w.RawByte(']')
}

func writeSession(o *object, s *event.Session) {
	w := o.w
	o.text("id", &s.ID)
	if s.StartedAt != 0 {
		o.key("startedAt")
		writeTime(w, time.UnixMilli(s.StartedAt), timestampMillis)
	}
	events := o.child("events")
	events.key("handled")
	w.Int64(s.Handled)
	events.key("unhandled")
	w.Int64(s.Unhandled)
	events.close()
}

// writeTime writes t, in UTC, as a JSON string.
func writeTime(w *jwriter.Writer, t time.Time, layout string) {
	w.Buffer.EnsureSpace(len(layout) + 8)
	w.RawByte('"')
	w.Buffer.Buf = t.UTC().AppendFormat(w.Buffer.Buf, layout)
	w.RawByte('"')
}
