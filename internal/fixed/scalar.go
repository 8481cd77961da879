package fixed

import "math"

// Int is an integer that remembers whether it was ever set, so a legitimate 0 can be told apart from unset.
type Int struct {
	v   int64
	set bool
}

// Set stores v.
func (i *Int) Set(v int64) { i.v, i.set = v, true }

// Get returns the value and whether it was set.
func (i Int) Get() (int64, bool) { return i.v, i.set }

// Value returns the value, 0 when unset.
func (i Int) Value() int64 { return i.v }

// IsSet reports whether a value was stored.
func (i Int) IsSet() bool { return i.set }

// Bool is a boolean that remembers whether it was ever set.
type Bool struct {
	v   bool
	set bool
}

// Set stores v.
func (b *Bool) Set(v bool) { b.v, b.set = v, true }

// Get returns the value and whether it was set.
func (b Bool) Get() (bool, bool) { return b.v, b.set }

// Value returns the value, false when unset.
func (b Bool) Value() bool { return b.v }

// IsSet reports whether a value was stored.
func (b Bool) IsSet() bool { return b.set }

// Float is a floating point number that remembers whether it was ever set.
type Float struct {
	v   float64
	set bool
}

// Set stores v. NaN and infinities are stored as given; Finite tells them apart.
func (f *Float) Set(v float64) { f.v, f.set = v, true }

// Get returns the value and whether it was set.
func (f Float) Get() (float64, bool) { return f.v, f.set }

// Value returns the value, 0 when unset.
func (f Float) Value() float64 { return f.v }

// IsSet reports whether a value was stored.
func (f Float) IsSet() bool { return f.set }

// Finite reports whether the value is set and neither NaN nor an infinity.
func (f Float) Finite() bool {
	return f.set && !math.IsNaN(f.v) && !math.IsInf(f.v, 0)
}
