package serializer

import (
	"strconv"

	"github.com/mailru/easyjson/jwriter"
)

// textField is implemented by the fixed text types.
type textField interface {
	IsSet() bool
	View() string
}

// object writes the keys of a JSON object.
//
// A child object is lazy: its key in the parent and its opening brace are only written
// with its first key, so an object that ends up empty leaves no trace.
type object struct {
	w *jwriter.Writer

	parent *object
	name   string

	opened bool
	keys   int
}

// root returns an object opened right away.
func root(w *jwriter.Writer) object {
	w.RawByte('{')
	return object{w: w, opened: true}
}

// child returns a lazy object stored under name in o.
func (o *object) child(name string) object {
	return object{w: o.w, parent: o, name: name}
}

// key writes k and the separator before its value.
func (o *object) key(k string) {
	if !o.opened {
		o.parent.key(o.name)
		o.w.RawByte('{')
		o.opened = true
	}
	if o.keys > 0 {
		o.w.RawByte(',')
	}
	o.keys++
	o.w.String(k)
	o.w.RawByte(':')
}

// close ends the object, if anything was written.
func (o *object) close() {
	if o.opened {
		o.w.RawByte('}')
	}
}

// text writes a text field, unless it was never set.
func (o *object) text(k string, f textField) {
	if !f.IsSet() {
		return
	}
	o.key(k)
	o.w.String(f.View())
}

// sentinel writes a number for which 0 means unset.
func (o *object) sentinel(k string, v int64) {
	if v == 0 {
		return
	}
	o.key(k)
	o.w.Int64(v)
}

// address writes a non zero address as a 0x prefixed hexadecimal string.
func (o *object) address(k string, addr uint64) {
	if addr == 0 {
		return
	}
	o.key(k)
	o.w.Buffer.EnsureSpace(20)
	o.w.RawString(`"0x`)
	o.w.Buffer.Buf = strconv.AppendUint(o.w.Buffer.Buf, addr, 16)
	o.w.RawByte('"')
}
