package commands_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"runtime/debug"
	"testing"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/crash-insights/cmd/crash-insights/commands"
	"github.com/ubuntu/crash-insights/internal/inspector/app"
	"github.com/ubuntu/crash-insights/internal/inspector/device"
	"github.com/ubuntu/crash-insights/internal/testutils"
)

type testDirs struct {
	consent, events string
}

// newAppForTests returns an app running args against temporary consent and events directories,
// holding the given files, and the buffer its results are printed into.
func newAppForTests(t *testing.T, args []string, consentFiles, eventFiles map[string]string) (*commands.App, *bytes.Buffer, testDirs) {
	t.Helper()

	d := testDirs{consent: t.TempDir(), events: filepath.Join(t.TempDir(), "events")}
	testutils.WriteFiles(t, d.consent, consentFiles)
	testutils.WriteFiles(t, d.events, eventFiles)

	root := t.TempDir()
	testutils.WriteFiles(t, root, map[string]string{
		"etc/machine-id": "0123456789abcdef",
		"etc/os-release": "VERSION_ID=\"24.04\"\n",
	})

	a, err := commands.New(
		commands.WithLogOutput(io.Discard),
		commands.WithDeviceOptions(
			device.WithRoot(root),
			device.WithHostInfo(func(context.Context) (*host.InfoStat, error) {
				return &host.InfoStat{KernelVersion: "6.8.0"}, nil
			}),
		),
		commands.WithAppOptions(app.WithBuildInfo(func() (*debug.BuildInfo, bool) { return nil, false })),
	)
	require.NoError(t, err, "Setup: could not create app")

	conf := commands.GenerateTestConfig(t, &commands.AppConfig{
		EventsDir:  d.events,
		ConsentDir: d.consent,
		MaxEvents:  10,
	})
	a.SetArgs(append(args, "--config", conf)...)

	var out bytes.Buffer
	a.SetOut(&out)
	return a, &out, d
}

const (
	consentTrue  = "consent_state = true\n"
	consentFalse = "consent_state = false\n"
)
