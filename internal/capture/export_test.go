package capture

import "time"

// WithNow overrides the clock.
func WithNow(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}

// WithBufferSize overrides the size of the serialization buffer.
func WithBufferSize(size int) Options {
	return func(o *options) {
		o.bufferSize = size
	}
}
