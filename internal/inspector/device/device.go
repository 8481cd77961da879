// Package device inspects the host the agent runs on, and produces the device part of events.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/ubuntu/crash-insights/internal/fileutils"
	"github.com/ubuntu/crash-insights/internal/populate"
	"golang.org/x/text/language"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/ini.v1"
)

// idNamespace scopes the device ids derived from the machine id, so they can't be linked back to it.
var idNamespace = uuid.MustParse("8c1f0f4e-4b7a-4d55-9f61-3bb0c3b6e0a2")

// Inspector collects host facts.
type Inspector struct {
	log *slog.Logger

	root          string
	lang          func() (string, bool)
	hostInfo      func(context.Context) (*host.InfoStat, error)
	virtualMemory func(context.Context) (*mem.VirtualMemoryStat, error)
	arch          string
	now           func() time.Time
}

type options struct {
	root          string
	lang          func() (string, bool)
	hostInfo      func(context.Context) (*host.InfoStat, error)
	virtualMemory func(context.Context) (*mem.VirtualMemoryStat, error)
	arch          string
	now           func() time.Time
}

// Options are the variadic options available to the Inspector.
type Options func(*options)

// WithRoot sets the root directory host files are read from.
func WithRoot(root string) Options {
	return func(o *options) {
		o.root = root
	}
}

// WithLang overrides the locale lookup.
func WithLang(lang func() (string, bool)) Options {
	return func(o *options) {
		o.lang = lang
	}
}

// WithHostInfo overrides the host information collection.
func WithHostInfo(f func(context.Context) (*host.InfoStat, error)) Options {
	return func(o *options) {
		o.hostInfo = f
	}
}

// WithVirtualMemory overrides the memory information collection.
func WithVirtualMemory(f func(context.Context) (*mem.VirtualMemoryStat, error)) Options {
	return func(o *options) {
		o.virtualMemory = f
	}
}

// WithArch overrides the architecture of the binary.
func WithArch(arch string) Options {
	return func(o *options) {
		o.arch = arch
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}

// New returns a new Inspector.
func New(l *slog.Logger, args ...Options) Inspector {
	opts := &options{
		root: "/",
		lang: func() (string, bool) {
			if v, ok := os.LookupEnv("LC_ALL"); ok && v != "" {
				return v, true
			}
			return os.LookupEnv("LANG")
		},
		hostInfo:      host.InfoWithContext,
		virtualMemory: mem.VirtualMemoryWithContext,
		arch:          runtime.GOARCH,
		now:           time.Now,
	}
	for _, opt := range args {
		opt(opts)
	}

	return Inspector{
		log:           l,
		root:          opts.root,
		lang:          opts.lang,
		hostInfo:      opts.hostInfo,
		virtualMemory: opts.virtualMemory,
		arch:          opts.arch,
		now:           opts.now,
	}
}

// Identity returns the facts which don't change while the agent runs.
// Facts that can't be collected are left absent.
func (in Inspector) Identity(ctx context.Context) populate.DeviceSource {
	in.log.Debug("Inspecting device identity")

	var src populate.DeviceSource

	info, err := in.hostInfo(ctx)
	if err != nil {
		in.log.Warn("Failed to collect host information", "error", err)
		info = &host.InfoStat{}
	}

	src.ID = in.deviceID(info.HostID)

	osRelease, err := in.osRelease()
	if err != nil {
		in.log.Warn("Failed to read os-release, falling back to host information", "error", err)
	}
	src.OSVersion = firstOf(osRelease["VERSION_ID"], info.PlatformVersion)
	src.OSBuild = firstOf(info.KernelVersion)

	src.Manufacturer = in.dmi("sys_vendor")
	src.Model = in.dmi("product_name")

	if vm, err := in.virtualMemory(ctx); err != nil {
		in.log.Warn("Failed to collect memory information", "error", err)
	} else if vm.Total > 0 {
		src.TotalMemory = null.IntFrom(int64(vm.Total))
	}

	src.CPUABIs = abis(in.arch)
	return src
}

// Metadata returns the facts describing the device state, as of now.
func (in Inspector) Metadata(ctx context.Context) populate.DeviceMetadataSource {
	in.log.Debug("Inspecting device state")

	var src populate.DeviceMetadataSource

	src.Brand = in.dmi("product_family")
	if l, err := in.locale(); err != nil {
		in.log.Info("Could not get locale", "error", err)
	} else {
		src.Locale = null.StringFrom(l)
	}

	if info, err := in.hostInfo(ctx); err != nil {
		in.log.Warn("Failed to collect host information", "error", err)
	} else if info.VirtualizationSystem != "" {
		src.Emulator = null.BoolFrom(info.VirtualizationRole == "guest")
	}

	src.Jailbroken = null.BoolFrom(in.rooted())
	src.Time = null.TimeFrom(in.now())
	return src
}

// rootIndicators are files left by the usual tools granting root on Android.
var rootIndicators = []string{
	"system/xbin/su",
	"system/bin/su",
	"system/app/Superuser.apk",
	"system/app/SuperSU.apk",
	"system/app/Superuser",
	"system/app/SuperSU",
	"system/xbin/daemonsu",
	"su/bin",
}

// rooted reports whether any root indicator exists.
func (in Inspector) rooted() bool {
	for _, p := range rootIndicators {
		_, err := os.Lstat(filepath.Join(in.root, p))
		if err == nil {
			in.log.Debug("Found root indicator", "path", p)
			return true
		}
		if !errors.Is(err, os.ErrNotExist) {
			in.log.Debug("Could not check root indicator", "path", p, "error", err)
		}
	}
	return false
}

// deviceID derives a stable identifier from the machine id, falling back to the host id.
func (in Inspector) deviceID(hostID string) null.String {
	machineID := fileutils.ReadFileLogError(filepath.Join(in.root, "etc", "machine-id"), in.log)
	if machineID == "" {
		machineID = hostID
	}
	if machineID == "" {
		return null.String{}
	}
	return null.StringFrom(uuid.NewSHA1(idNamespace, []byte(machineID)).String())
}

// osRelease reads the os-release file, first from /etc, then from /usr/lib.
func (in Inspector) osRelease() (map[string]string, error) {
	var errs error
	for _, p := range []string{"etc/os-release", "usr/lib/os-release"} {
		cfg, err := ini.Load(filepath.Join(in.root, p))
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		return cfg.Section(ini.DefaultSection).KeysHash(), nil
	}
	return nil, errs
}

// dmi reads a DMI attribute. Missing, empty and multi-line values are absent.
func (in Inspector) dmi(name string) null.String {
	v := fileutils.ReadFileLogError(filepath.Join(in.root, "sys", "class", "dmi", "id", name), in.log)
	if v == "" || strings.ContainsRune(v, '\n') {
		return null.String{}
	}
	return null.StringFrom(v)
}

// locale returns the BCP 47 form of the POSIX locale, like en-US for en_US.UTF-8.
func (in Inspector) locale() (string, error) {
	lang, ok := in.lang()
	if !ok || lang == "" {
		return "", errors.New("no locale environment variable set")
	}

	// Drop the codeset and the modifier.
	l, _, _ := strings.Cut(lang, ".")
	l, _, _ = strings.Cut(l, "@")
	if l == "C" || l == "POSIX" {
		return "", fmt.Errorf("locale %q has no language", lang)
	}

	tag, err := language.Parse(strings.ReplaceAll(l, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("invalid locale %q: %v", lang, err)
	}
	return tag.String(), nil
}

// abis returns the ABIs the binary can run, native first.
func abis(arch string) []string {
	switch arch {
	case "amd64":
		return []string{"x86_64", "x86"}
	case "386":
		return []string{"x86"}
	case "arm64":
		return []string{"arm64-v8a", "armeabi-v7a"}
	case "arm":
		return []string{"armeabi-v7a"}
	}
	return []string{arch}
}

func firstOf(values ...string) null.String {
	for _, v := range values {
		if v != "" {
			return null.StringFrom(v)
		}
	}
	return null.String{}
}
