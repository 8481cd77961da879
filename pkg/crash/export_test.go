package crash

import (
	"github.com/ubuntu/crash-insights/internal/inspector/app"
	"github.com/ubuntu/crash-insights/internal/inspector/device"
)

// WithDeviceOptions overrides the options of the device inspector.
func WithDeviceOptions(opts ...device.Options) startOption {
	return func(o *startOptions) {
		o.device = opts
	}
}

// WithAppOptions overrides the options of the app inspector.
func WithAppOptions(opts ...app.Options) startOption {
	return func(o *startOptions) {
		o.app = opts
	}
}
