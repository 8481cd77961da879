package commands

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/crash-insights/internal/inspector/app"
	"github.com/ubuntu/crash-insights/internal/inspector/device"
	"gopkg.in/yaml.v3"
)

type (
	AppConfig = appConfig
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetOut sets where command results are printed.
func (a *App) SetOut(w io.Writer) {
	a.cmd.SetOut(w)
}

// Command returns the root command when name is empty, and the named subcommand otherwise.
func (a *App) Command(t *testing.T, name string) *cobra.Command {
	t.Helper()

	if name == "" {
		return a.cmd
	}
	for _, c := range a.cmd.Commands() {
		if c.Name() == name {
			return c
		}
	}
	require.Failf(t, "Setup: missing command", "no %q command", name)
	return nil
}

// WithLogOutput sets where JSON logs are written.
func WithLogOutput(w io.Writer) Options {
	return func(o *options) {
		o.logOutput = w
	}
}

// WithDeviceOptions overrides the options of the device inspector.
func WithDeviceOptions(opts ...device.Options) Options {
	return func(o *options) {
		o.device = opts
	}
}

// WithAppOptions overrides the options of the app inspector.
func WithAppOptions(opts ...app.Options) Options {
	return func(o *options) {
		o.app = opts
	}
}

// GenerateTestConfig generates a temporary config file for testing.
func GenerateTestConfig(t *testing.T, origConf *AppConfig) string {
	t.Helper()

	var conf appConfig
	if origConf != nil {
		conf = *origConf
	}

	d, err := yaml.Marshal(conf)
	require.NoError(t, err, "Setup: failed to marshal config for tests")

	confPath := filepath.Join(t.TempDir(), "testconfig.yaml")
	require.NoError(t, os.WriteFile(confPath, d, 0600), "Setup: failed to write config for tests")

	return confPath
}
