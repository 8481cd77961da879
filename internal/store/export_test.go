package store

import "time"

// WithNow overrides the clock used to name new events.
func WithNow(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}
