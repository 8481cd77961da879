// Package populate copies data gathered by the producers into an event.Report.
//
// There is one function per producer. Each only writes its own fields, so producers can run
// in any order. Values that are not valid in the source are absent: the target field is left
// untouched. Nothing here allocates, returns an error or panics: oversized values are
// truncated and values beyond a list capacity are dropped, both being counted in the
// returned Status.
package populate

import (
	"github.com/ubuntu/crash-insights/internal/event"
	"github.com/ubuntu/crash-insights/internal/fixed"
	"gopkg.in/guregu/null.v3"
)

// Status counts what could not be stored as is.
type Status struct {
	// Truncated is the number of text values cut to fit their field.
	Truncated int
	// Dropped is the number of values that could not be stored at all.
	Dropped int
}

// Add accumulates o into s.
func (s *Status) Add(o Status) {
	s.Truncated += o.Truncated
	s.Dropped += o.Dropped
}

// Complete reports whether every value was stored untouched.
func (s Status) Complete() bool {
	return s.Truncated == 0 && s.Dropped == 0
}

func (s *Status) truncated(t bool) {
	if t {
		s.Truncated++
	}
}

func (s *Status) stored(ok, t bool) {
	if !ok {
		s.Dropped++
		return
	}
	s.truncated(t)
}

// textField is implemented by the fixed text types.
type textField interface {
	Set(s string) (copied int, truncated bool)
}

func setText(st *Status, dst textField, src null.String) {
	if !src.Valid {
		return
	}
	_, t := dst.Set(src.String)
	st.truncated(t)
}

func setInt(dst *fixed.Int, src null.Int) {
	if src.Valid {
		dst.Set(src.Int64)
	}
}

func setBool(dst *fixed.Bool, src null.Bool) {
	if src.Valid {
		dst.Set(src.Bool)
	}
}

// UserSource holds the user identity.
type UserSource struct {
	ID    null.String
	Email null.String
	Name  null.String
}

// User fills the user.
func User(u *event.User, src *UserSource) (st Status) {
	setText(&st, &u.ID, src.ID)
	setText(&st, &u.Email, src.Email)
	setText(&st, &u.Name, src.Name)
	return st
}

// Context sets the report context, which names where the error happened.
func Context(r *event.Report, context null.String) (st Status) {
	setText(&st, &r.Context, context)
	return st
}
