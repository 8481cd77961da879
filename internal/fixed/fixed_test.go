package fixed_test

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/crash-insights/internal/fixed"
)

func TestStringSet(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		src string

		want          string
		wantTruncated bool
	}{
		"Empty source":            {src: "", want: ""},
		"Short source":            {src: "x86", want: "x86"},
		"Exactly capacity minus1": {src: strings.Repeat("a", 31), want: strings.Repeat("a", 31)},
		"Exactly capacity":        {src: strings.Repeat("a", 32), want: strings.Repeat("a", 31), wantTruncated: true},
		"Longer than capacity":    {src: strings.Repeat("b", 100), want: strings.Repeat("b", 31), wantTruncated: true},
		"Cut inside multi-byte rune": {
			// 30 ASCII bytes then a 3 bytes rune: only 1 byte of it would fit.
			src: strings.Repeat("a", 30) + "€", want: strings.Repeat("a", 30), wantTruncated: true,
		},
		"Multi-byte rune fitting exactly": {src: strings.Repeat("a", 28) + "€", want: strings.Repeat("a", 28) + "€"},
		"Invalid bytes are kept":          {src: "a\xffb", want: "a\xffb"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var f fixed.String32
			n, truncated := f.Set(tc.src)

			require.Equal(t, tc.wantTruncated, truncated, "Truncation should be reported")
			assert.Equal(t, len(tc.want), n, "Copied bytes should match the stored length")
			assert.Equal(t, tc.want, f.String(), "Stored value should match")
			assert.Equal(t, tc.want, f.View(), "View should match the stored value")
			assert.LessOrEqual(t, f.Len(), f.Cap()-1, "Stored length should leave room for the terminator")
			assert.True(t, f.IsSet(), "Field should be set after a write")
			if utf8.ValidString(tc.src) {
				assert.True(t, utf8.ValidString(f.String()), "Valid UTF-8 should stay valid after truncation")
			}
		})
	}
}

func TestStringCapacities(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("z", 1000)

	var s32 fixed.String32
	var s64 fixed.String64
	var s256 fixed.String256

	_, t32 := s32.Set(long)
	_, t64 := s64.Set(long)
	_, t256 := s256.Set(long)

	require.True(t, t32 && t64 && t256, "All writes should be truncated")
	assert.Equal(t, 31, s32.Len())
	assert.Equal(t, 63, s64.Len())
	assert.Equal(t, 255, s256.Len())
	assert.Equal(t, 32, s32.Cap())
	assert.Equal(t, 64, s64.Cap())
	assert.Equal(t, 256, s256.Cap())
}

func TestStringSetBytes(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		initial *string
		src     []byte

		want    string
		wantSet bool
	}{
		"Nil source on unset field leaves it unset":  {src: nil, want: "", wantSet: false},
		"Nil source keeps previous value":            {initial: ptr("previous"), src: nil, want: "previous", wantSet: true},
		"Empty source gives empty but present field": {src: []byte{}, want: "", wantSet: true},
		"Empty source clears previous value":         {initial: ptr("previous"), src: []byte{}, want: "", wantSet: true},
		"Source overrides previous value":            {initial: ptr("previous"), src: []byte("next"), want: "next", wantSet: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var f fixed.String64
			if tc.initial != nil {
				f.Set(*tc.initial)
			}
			f.SetBytes(tc.src)

			assert.Equal(t, tc.want, f.String())
			assert.Equal(t, tc.wantSet, f.IsSet())
		})
	}
}

func TestStringClear(t *testing.T) {
	t.Parallel()

	var f fixed.String256
	f.Set("value")
	f.Clear()

	assert.False(t, f.IsSet(), "Cleared field should be unset")
	assert.Empty(t, f.String(), "Cleared field should be empty")
	assert.Equal(t, fixed.String256{}, f, "Cleared field should equal the zero value")
}

func TestStringEqualValuesHaveEqualLayouts(t *testing.T) {
	t.Parallel()

	var a, b fixed.String64
	a.Set("a much longer previous value")
	a.Set("short")
	b.Set("short")

	assert.Equal(t, b, a, "Overwritten field should not keep stale bytes")
}

func TestScalars(t *testing.T) {
	t.Parallel()

	var i fixed.Int
	assert.False(t, i.IsSet())
	i.Set(0)
	v, ok := i.Get()
	assert.True(t, ok, "Zero should be a set value")
	assert.Equal(t, int64(0), v)

	var b fixed.Bool
	assert.False(t, b.IsSet())
	b.Set(false)
	bv, ok := b.Get()
	assert.True(t, ok, "False should be a set value")
	assert.False(t, bv)

	tests := map[string]struct {
		v          float64
		wantFinite bool
	}{
		"Regular":           {v: 3.5, wantFinite: true},
		"Zero":              {v: 0, wantFinite: true},
		"NaN":               {v: math.NaN()},
		"Positive infinity": {v: math.Inf(1)},
		"Negative infinity": {v: math.Inf(-1)},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var f fixed.Float
			require.False(t, f.Finite(), "Unset float should not be finite")
			f.Set(tc.v)
			assert.True(t, f.IsSet())
			assert.Equal(t, tc.wantFinite, f.Finite())
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
