package device_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/crash-insights/internal/inspector/device"
	"github.com/ubuntu/crash-insights/internal/testutils"
	"gopkg.in/guregu/null.v3"
)

var hostFiles = map[string]string{
	"etc/machine-id":                  "0123456789abcdef0123456789abcdef\n",
	"etc/os-release":                  "NAME=\"Ubuntu\"\nVERSION_ID=\"24.04\"\nPRETTY_NAME=\"Ubuntu 24.04 LTS\"\n",
	"sys/class/dmi/id/sys_vendor":     "LENOVO\n",
	"sys/class/dmi/id/product_name":   "21CBCTO1WW\n",
	"sys/class/dmi/id/product_family": "ThinkPad X1 Carbon Gen 10\n",
	"usr/lib/os-release":              "VERSION_ID=\"22.04\"\n",
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		files   map[string]string
		hostErr bool
		memErr  bool
		arch    string

		wantWarnings bool
	}{
		"All facts available": {files: hostFiles, arch: "amd64"},
		"Falls back to usr lib os-release": {
			files:        map[string]string{"usr/lib/os-release": hostFiles["usr/lib/os-release"], "etc/machine-id": "abc"},
			arch:         "arm64",
			wantWarnings: true,
		},
		"Falls back to host information": {arch: "riscv64", wantWarnings: true},
		"Nothing available":              {hostErr: true, memErr: true, arch: "386", wantWarnings: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			testutils.WriteFiles(t, root, tc.files)

			h := testutils.NewMockHandler(slog.LevelDebug)
			in := device.New(slog.New(&h),
				device.WithRoot(root),
				device.WithArch(tc.arch),
				device.WithHostInfo(func(context.Context) (*host.InfoStat, error) {
					if tc.hostErr {
						return nil, errors.New("host error")
					}
					return &host.InfoStat{HostID: "host-id", PlatformVersion: "23.10", KernelVersion: "6.8.0-31-generic"}, nil
				}),
				device.WithVirtualMemory(func(context.Context) (*mem.VirtualMemoryStat, error) {
					if tc.memErr {
						return nil, errors.New("memory error")
					}
					return &mem.VirtualMemoryStat{Total: 16 << 30}, nil
				}),
			)

			got := in.Identity(context.Background())

			want := testutils.LoadWithUpdateFromGoldenYAML(t, got)
			assert.Equal(t, want, got, "Identity should match the golden file")
			if got.ID.Valid {
				_, err := uuid.Parse(got.ID.String)
				require.NoError(t, err, "ID should be a UUID")
				assert.NotContains(t, got.ID.String, "0123456789abcdef", "ID should not expose the machine id")
			}

			if !tc.wantWarnings {
				h.AssertLevels(t, nil)
				return
			}
			assert.NotZero(t, h.GetLevels()[slog.LevelWarn], "Missing facts should be logged as warnings")
		})
	}
}

func TestIdentityFromHostID(t *testing.T) {
	t.Parallel()

	in := device.New(slog.Default(),
		device.WithRoot(t.TempDir()),
		device.WithHostInfo(func(context.Context) (*host.InfoStat, error) {
			return &host.InfoStat{HostID: "host-id"}, nil
		}),
	)

	got := in.Identity(context.Background())

	assert.Equal(t, uuid.NewSHA1(device.IDNamespace, []byte("host-id")).String(), got.ID.String,
		"ID should derive from the host id without machine id")
}

func TestIdentityIsStable(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutils.WriteFiles(t, root, hostFiles)
	in := device.New(slog.Default(), device.WithRoot(root))

	a := in.Identity(context.Background())
	b := in.Identity(context.Background())
	assert.Equal(t, a.ID, b.ID, "Device ID should be stable")
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.May, 4, 12, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		lang    string
		noLang  bool
		virtSys string
		role    string
	}{
		"Full locale":          {lang: "en_US.UTF-8"},
		"Locale with modifier": {lang: "sr_RS@latin"},
		"Language only":        {lang: "fr"},
		"POSIX locale":         {lang: "C.UTF-8"},
		"Invalid locale":       {lang: "not a locale"},
		"No locale":            {noLang: true},
		"Virtual guest":        {lang: "de_DE", virtSys: "kvm", role: "guest"},
		"Virtualization host":  {lang: "de_DE", virtSys: "kvm", role: "host"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			testutils.WriteFiles(t, root, hostFiles)

			in := device.New(slog.Default(),
				device.WithRoot(root),
				device.WithLang(func() (string, bool) { return tc.lang, !tc.noLang }),
				device.WithHostInfo(func(context.Context) (*host.InfoStat, error) {
					return &host.InfoStat{VirtualizationSystem: tc.virtSys, VirtualizationRole: tc.role}, nil
				}),
				device.WithNow(func() time.Time { return now }),
			)

			got := in.Metadata(context.Background())

			want := testutils.LoadWithUpdateFromGoldenYAML(t, got)
			assert.Equal(t, want, got, "Metadata should match the golden file")
		})
	}
}

func TestMetadataRooted(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		files map[string]string

		want bool
	}{
		"Not rooted":                  {},
		"su binary":                   {files: map[string]string{"system/xbin/su": "#!/bin/sh\n"}, want: true},
		"Superuser app":               {files: map[string]string{"system/app/Superuser.apk": "apk"}, want: true},
		"Systemless root":             {files: map[string]string{"su/bin/su": "#!/bin/sh\n"}, want: true},
		"su elsewhere is not a sign":  {files: map[string]string{"usr/bin/su": "#!/bin/sh\n"}},
		"Similar names are not signs": {files: map[string]string{"system/app/Superuser.txt": "notes"}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			testutils.WriteFiles(t, root, hostFiles)
			testutils.WriteFiles(t, root, tc.files)

			in := device.New(slog.Default(), device.WithRoot(root))

			got := in.Metadata(context.Background())

			assert.Equal(t, null.BoolFrom(tc.want), got.Jailbroken)
		})
	}
}
