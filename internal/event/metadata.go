package event

import (
	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/crash-insights/internal/fixed"
)

// ValueKind is the type of a metadata value.
type ValueKind uint8

const (
	// KindNone is the kind of a value that was never stored.
	KindNone ValueKind = iota
	// KindString is a text value.
	KindString
	// KindNumber is a numeric value.
	KindNumber
	// KindBool is a boolean value.
	KindBool
)

// MetadataValue is one key of a metadata section.
type MetadataValue struct {
	Section fixed.String64
	Key     fixed.String64
	Kind    ValueKind

	Str    fixed.String64
	Number float64
	Bool   bool
}

// Metadata is the open, user supplied part of an event, grouped into named sections.
//
// Values are kept in insertion order. Sections appear in the order their first key was
// added. Overwriting a key keeps its position.
type Metadata struct {
	Values [constants.MaxMetadataValues]MetadataValue
	Count int
}

// SetString stores a text value. It returns false when the table is full.
func (m *Metadata) SetString(section, key, value string) (ok, truncated bool) {
	v, truncated := m.slot(section, key)
	if v == nil {
		return false, false
	}
	_, t := v.Str.Set(value)
	v.Kind = KindString
	return true, truncated || t
}

// SetNumber stores a numeric value. It returns false when the table is full.
func (m *Metadata) SetNumber(section, key string, value float64) (ok, truncated bool) {
	v, truncated := m.slot(section, key)
	if v == nil {
		return false, false
	}
	v.Number, v.Kind = value, KindNumber
	return true, truncated
}

// SetBool stores a boolean value. It returns false when the table is full.
func (m *Metadata) SetBool(section, key string, value bool) (ok, truncated bool) {
	v, truncated := m.slot(section, key)
	if v == nil {
		return false, false
	}
	v.Bool, v.Kind = value, KindBool
	return true, truncated
}

// Clear removes a key, or a whole section when key is empty.
// Remaining values keep their relative order.
func (m *Metadata) Clear(section, key string) {
	n := 0
	for i := range m.Count {
		v := &m.Values[i]
		if v.Section.View() == section && (key == "" || v.Key.View() == key) {
			continue
		}
		if n != i {
			m.Values[n] = *v
		}
		n++
	}
	for i := n; i < m.Count; i++ {
		m.Values[i] = MetadataValue{}
	}
	m.Count = n
}

// Get returns the value stored for section and key.
func (m *Metadata) Get(section, key string) (*MetadataValue, bool) {
	if i := m.find(section, key); i >= 0 {
		return &m.Values[i], true
	}
	return nil, false
}

// Len returns the number of stored values.
func (m *Metadata) Len() int {
	return m.Count
}

// At returns the value at position i, in insertion order.
func (m *Metadata) At(i int) *MetadataValue {
	return &m.Values[i]
}

// SectionStart reports whether the value at position i is the first one of its section.
// Walking positions and keeping only section starts lists sections in insertion order.
func (m *Metadata) SectionStart(i int) bool {
	section := m.Values[i].Section.View()
	for j := range i {
		if m.Values[j].Section.View() == section {
			return false
		}
	}
	return true
}

// slot returns the slot for section and key, claiming a new one at the end if needed.
// Keys are compared after truncation, so two long keys sharing a prefix land on the same slot.
func (m *Metadata) slot(section, key string) (v *MetadataValue, truncated bool) {
	var candidate MetadataValue
	_, ts := candidate.Section.Set(section)
	_, tk := candidate.Key.Set(key)
	truncated = ts || tk

	if i := m.find(candidate.Section.View(), candidate.Key.View()); i >= 0 {
		v = &m.Values[i]
		v.Str, v.Number, v.Bool = fixed.String64{}, 0, false
		return v, truncated
	}

	if m.Count >= len(m.Values) {
		return nil, truncated
	}
	m.Values[m.Count] = candidate
	m.Count++
	return &m.Values[m.Count-1], truncated
}

func (m *Metadata) find(section, key string) int {
	for i := range m.Count {
		v := &m.Values[i]
		if v.Section.View() == section && v.Key.View() == key {
			return i
		}
	}
	return -1
}
