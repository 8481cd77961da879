package populate

import (
	"github.com/ubuntu/crash-insights/internal/event"
	"gopkg.in/guregu/null.v3"
)

// Metadata stores value under section and key.
//
// Strings, booleans, numbers and their null counterparts are supported. A nil or invalid
// null value clears the key. Values of any other type, and values that do not fit in the
// table, are dropped.
func Metadata(m *event.Metadata, section, key string, value any) (st Status) {
	switch v := value.(type) {
	case nil:
		m.Clear(section, key)
	case string:
		st.stored(m.SetString(section, key, v))
	case bool:
		st.stored(m.SetBool(section, key, v))
	case int:
		st.stored(m.SetNumber(section, key, float64(v)))
	case int64:
		st.stored(m.SetNumber(section, key, float64(v)))
	case uint64:
		st.stored(m.SetNumber(section, key, float64(v)))
	case float32:
		st.stored(m.SetNumber(section, key, float64(v)))
	case float64:
		st.stored(m.SetNumber(section, key, v))
	case null.String:
		if !v.Valid {
			m.Clear(section, key)
			break
		}
		st.stored(m.SetString(section, key, v.String))
	case null.Bool:
		if !v.Valid {
			m.Clear(section, key)
			break
		}
		st.stored(m.SetBool(section, key, v.Bool))
	case null.Int:
		if !v.Valid {
			m.Clear(section, key)
			break
		}
		st.stored(m.SetNumber(section, key, float64(v.Int64)))
	case null.Float:
		if !v.Valid {
			m.Clear(section, key)
			break
		}
		st.stored(m.SetNumber(section, key, v.Float64))
	default:
		st.Dropped++
	}
	return st
}
