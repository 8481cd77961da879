package event_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/crash-insights/internal/event"
)

// sections returns the metadata content as "section.key" lists, per section, in walking order.
func sections(m *event.Metadata) [][]string {
	var got [][]string
	for i := range m.Len() {
		if !m.SectionStart(i) {
			continue
		}
		section := m.At(i).Section.String()
		var keys []string
		for j := i; j < m.Len(); j++ {
			if v := m.At(j); v.Section.String() == section {
				keys = append(keys, section+"."+v.Key.String())
			}
		}
		got = append(got, keys)
	}
	return got
}

func TestMetadataOrder(t *testing.T) {
	t.Parallel()

	var m event.Metadata
	m.SetString("app", "flavor", "paid")
	m.SetNumber("device", "battery", 0.5)
	m.SetBool("app", "debug", false)
	m.SetString("custom", "id", "42")
	m.SetString("device", "charging", "yes")

	want := [][]string{
		{"app.flavor", "app.debug"},
		{"device.battery", "device.charging"},
		{"custom.id"},
	}
	assert.Equal(t, want, sections(&m), "Sections and keys should follow insertion order")
}

func TestMetadataOverwrite(t *testing.T) {
	t.Parallel()

	var m event.Metadata
	m.SetString("app", "first", "a")
	m.SetString("app", "second", "b")
	ok, _ := m.SetNumber("app", "first", 12)
	require.True(t, ok)

	require.Equal(t, 2, m.Len(), "Overwriting should not add a value")
	v, found := m.Get("app", "first")
	require.True(t, found)
	assert.Equal(t, event.KindNumber, v.Kind, "Overwrite should change the kind")
	assert.InDelta(t, 12.0, v.Number, 0)
	assert.False(t, v.Str.IsSet(), "Previous text value should be dropped")
	assert.Equal(t, [][]string{{"app.first", "app.second"}}, sections(&m), "Overwrite should keep the position")
}

func TestMetadataClear(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		section string
		key     string

		want [][]string
	}{
		"Clear one key": {
			section: "app", key: "a",
			want: [][]string{{"app.b"}, {"device.c"}},
		},
		"Clear a section": {
			section: "app",
			want:    [][]string{{"device.c"}},
		},
		"Clear missing key": {
			section: "app", key: "missing",
			want: [][]string{{"app.a", "app.b"}, {"device.c"}},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var m event.Metadata
			m.SetString("app", "a", "1")
			m.SetString("device", "c", "3")
			m.SetString("app", "b", "2")

			m.Clear(tc.section, tc.key)
			assert.Equal(t, tc.want, sections(&m))

			// New values go after the remaining ones.
			m.SetString("app", "z", "26")
			got := sections(&m)
			last := got[len(got)-1]
			if tc.key == "" {
				assert.Equal(t, []string{"app.z"}, last, "A re-created section should come last")
			}
		})
	}
}

func TestMetadataFull(t *testing.T) {
	t.Parallel()

	var m event.Metadata
	for i := range constants.MaxMetadataValues {
		ok, _ := m.SetString("s", fmt.Sprintf("k%d", i), "v")
		require.True(t, ok, "Value %d should fit", i)
	}

	ok, _ := m.SetString("s", "extra", "v")
	assert.False(t, ok, "Values beyond capacity should be dropped")
	assert.Equal(t, constants.MaxMetadataValues, m.Len())

	ok, _ = m.SetString("s", "k0", "updated")
	assert.True(t, ok, "Existing keys can still be updated on a full table")
}

func TestMetadataTruncatedKeys(t *testing.T) {
	t.Parallel()

	var m event.Metadata
	long := strings.Repeat("k", 100)

	ok, truncated := m.SetString("s", long+"1", "first")
	require.True(t, ok)
	assert.True(t, truncated, "Long key should be reported as truncated")

	_, _ = m.SetString("s", long+"2", "second")
	assert.Equal(t, 1, m.Len(), "Keys equal after truncation should share a slot")
	v, _ := m.Get("s", long[:63])
	assert.Equal(t, "second", v.Str.String())
}
