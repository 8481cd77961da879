// Package fixed provides bounded-capacity storage for event fields.
//
// Every type in this package has a statically known size and never allocates on write, so
// values can be embedded in preallocated records and filled from a crash path.
// Writes beyond capacity are silently truncated; callers that can act on it get the
// truncation through the return values.
package fixed

import (
	"unicode/utf8"
	"unsafe"
)

// String32 is a text field holding up to 31 bytes.
type String32 struct {
	buf [32]byte
	n   uint16
	set bool
}

// String64 is a text field holding up to 63 bytes.
type String64 struct {
	buf [64]byte
	n   uint16
	set bool
}

// String256 is a text field holding up to 255 bytes.
type String256 struct {
	buf [256]byte
	n   uint16
	set bool
}

// Set copies s into the field, truncating it to the field capacity.
// It returns the number of bytes stored and whether s was truncated.
func (f *String32) Set(s string) (copied int, truncated bool) {
	copied, truncated = copyBounded(f.buf[:], s)
	f.n, f.set = uint16(copied), true
	return copied, truncated
}

// SetBytes is like Set, but a nil b is treated as an absent value and leaves the field untouched.
func (f *String32) SetBytes(b []byte) (copied int, truncated bool) {
	if b == nil {
		return int(f.n), false
	}
	return f.Set(unsafe.String(unsafe.SliceData(b), len(b)))
}

// Clear resets the field to its never set state.
func (f *String32) Clear() { *f = String32{} }

// IsSet reports whether the field was written, even with an empty value.
func (f *String32) IsSet() bool { return f.set }

// Len returns the number of bytes stored.
func (f *String32) Len() int { return int(f.n) }

// Cap returns the capacity of the field, terminator included.
func (f *String32) Cap() int { return len(f.buf) }

// View returns the content without copying. It is only valid until the next write.
func (f *String32) View() string { return view(f.buf[:], f.n) }

// String returns a copy of the content.
func (f String32) String() string { return string(f.buf[:f.n]) }

// Set copies s into the field, truncating it to the field capacity.
// It returns the number of bytes stored and whether s was truncated.
func (f *String64) Set(s string) (copied int, truncated bool) {
	copied, truncated = copyBounded(f.buf[:], s)
	f.n, f.set = uint16(copied), true
	return copied, truncated
}

// SetBytes is like Set, but a nil b is treated as an absent value and leaves the field untouched.
func (f *String64) SetBytes(b []byte) (copied int, truncated bool) {
	if b == nil {
		return int(f.n), false
	}
	return f.Set(unsafe.String(unsafe.SliceData(b), len(b)))
}

// Clear resets the field to its never set state.
func (f *String64) Clear() { *f = String64{} }

// IsSet reports whether the field was written, even with an empty value.
func (f *String64) IsSet() bool { return f.set }

// Len returns the number of bytes stored.
func (f *String64) Len() int { return int(f.n) }

// Cap returns the capacity of the field, terminator included.
func (f *String64) Cap() int { return len(f.buf) }

// View returns the content without copying. It is only valid until the next write.
func (f *String64) View() string { return view(f.buf[:], f.n) }

// String returns a copy of the content.
func (f String64) String() string { return string(f.buf[:f.n]) }

// Set copies s into the field, truncating it to the field capacity.
// It returns the number of bytes stored and whether s was truncated.
func (f *String256) Set(s string) (copied int, truncated bool) {
	copied, truncated = copyBounded(f.buf[:], s)
	f.n, f.set = uint16(copied), true
	return copied, truncated
}

// SetBytes is like Set, but a nil b is treated as an absent value and leaves the field untouched.
func (f *String256) SetBytes(b []byte) (copied int, truncated bool) {
	if b == nil {
		return int(f.n), false
	}
	return f.Set(unsafe.String(unsafe.SliceData(b), len(b)))
}

// Clear resets the field to its never set state.
func (f *String256) Clear() { *f = String256{} }

// IsSet reports whether the field was written, even with an empty value.
func (f *String256) IsSet() bool { return f.set }

// Len returns the number of bytes stored.
func (f *String256) Len() int { return int(f.n) }

// Cap returns the capacity of the field, terminator included.
func (f *String256) Cap() int { return len(f.buf) }

// View returns the content without copying. It is only valid until the next write.
func (f *String256) View() string { return view(f.buf[:], f.n) }

// String returns a copy of the content.
func (f String256) String() string { return string(f.buf[:f.n]) }

// copyBounded copies at most len(dst)-1 bytes of src into dst and terminates it with a NUL byte.
// When src does not fit, the cut is moved back to a rune boundary so a valid UTF-8 source
// stays valid. Bytes past the terminator are zeroed so equal values have equal layouts.
func copyBounded(dst []byte, src string) (n int, truncated bool) {
	limit := len(dst) - 1
	n = len(src)
	if n > limit {
		truncated = true
		n = limit
		// src[n] is the first byte left out: a continuation byte means the cut splits a rune.
		cut := n
		for i := 0; i < utf8.UTFMax && cut > 0 && !utf8.RuneStart(src[cut]); i++ {
			cut--
		}
		if utf8.RuneStart(src[cut]) {
			n = cut
		}
	}

	copy(dst, src[:n])
	clear(dst[n:])
	return n, truncated
}

func view(buf []byte, n uint16) string {
	if n == 0 {
		return ""
	}
	return unsafe.String(&buf[0], int(n))
}
