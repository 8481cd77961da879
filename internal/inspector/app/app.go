// Package app inspects the running program, and produces the app part of events.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/crash-insights/internal/populate"
	"gopkg.in/guregu/null.v3"
)

// lowMemoryRatio is the share of available memory under which the system is low on memory.
const lowMemoryRatio = 0.1

// Config is what the program declares about itself. Empty values are inferred when possible.
type Config struct {
	ID           string
	Name         string
	Version      string
	VersionCode  int64
	Type         string
	ReleaseStage string
	// InForeground reports whether the program interacts with a user, like a command line tool does.
	InForeground bool
}

// Inspector collects facts about the running program.
type Inspector struct {
	log    *slog.Logger
	config Config

	buildInfo     func() (*debug.BuildInfo, bool)
	executable    func() (string, error)
	createTime    func(context.Context) (int64, error)
	virtualMemory func(context.Context) (*mem.VirtualMemoryStat, error)
	arch          string
	now           func() time.Time
}

type options struct {
	buildInfo     func() (*debug.BuildInfo, bool)
	executable    func() (string, error)
	createTime    func(context.Context) (int64, error)
	virtualMemory func(context.Context) (*mem.VirtualMemoryStat, error)
	arch          string
	now           func() time.Time
}

// Options are the variadic options available to the Inspector.
type Options func(*options)

// WithBuildInfo overrides the build information of the binary.
func WithBuildInfo(f func() (*debug.BuildInfo, bool)) Options {
	return func(o *options) {
		o.buildInfo = f
	}
}

// WithExecutable overrides the path to the executable.
func WithExecutable(f func() (string, error)) Options {
	return func(o *options) {
		o.executable = f
	}
}

// WithCreateTime overrides the process start time lookup.
func WithCreateTime(f func(context.Context) (int64, error)) Options {
	return func(o *options) {
		o.createTime = f
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

// New returns a new Inspector for the program described by c.
func New(l *slog.Logger, c Config, args ...Options) Inspector {
	opts := &options{
		buildInfo:     debug.ReadBuildInfo,
		executable:    os.Executable,
		createTime:    processCreateTime,
		virtualMemory: mem.VirtualMemoryWithContext,
		arch:          runtime.GOARCH,
		now:           time.Now,
	}
	for _, opt := range args {
		opt(opts)
	}

	return Inspector{
		log:           l,
		config:        c,
		buildInfo:     opts.buildInfo,
		executable:    opts.executable,
		createTime:    opts.createTime,
		virtualMemory: opts.virtualMemory,
		arch:          opts.arch,
		now:           opts.now,
	}
}

// Identity returns the facts set when the program starts, and its current run time.
func (in Inspector) Identity(ctx context.Context) populate.AppSource {
	in.log.Debug("Inspecting app identity")

	src := populate.AppSource{
		Type:         null.StringFrom(firstOf(in.config.Type, constants.NotifierType)),
		ReleaseStage: null.StringFrom(firstOf(in.config.ReleaseStage, constants.DefaultReleaseStage)),
		BinaryArch:   null.StringFrom(in.arch),
		InForeground: null.BoolFrom(in.config.InForeground),
	}
	if in.config.VersionCode > 0 {
		src.VersionCode = null.IntFrom(in.config.VersionCode)
	}

	bi, ok := in.buildInfo()
	if !ok {
		in.log.Info("No build information embedded in the binary")
		bi = &debug.BuildInfo{}
	}
	src.ID = nullString(firstOf(in.config.ID, bi.Main.Path, bi.Path))
	src.Version = nullString(firstOf(in.config.Version, moduleVersion(bi)))
	src.BuildUUID = nullString(setting(bi, "vcs.revision"))

	if start, err := in.StartTime(ctx); err != nil {
		in.log.Warn("Failed to get process start time", "error", err)
	} else {
		running := in.Running(start)
		src.Duration, src.DurationInForeground = running.Duration, running.DurationInForeground
	}

	return src
}

// StartTime returns when the program started.
func (in Inspector) StartTime(ctx context.Context) (time.Time, error) {
	ms, err := in.createTime(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// Running returns the run time of the program started at start, as of now. Only the durations
// are set, so that it can refresh a report built from Identity.
func (in Inspector) Running(start time.Time) populate.AppSource {
	d := max(in.now().Sub(start).Milliseconds(), 0)

	src := populate.AppSource{Duration: null.IntFrom(d), DurationInForeground: null.IntFrom(0)}
	if in.config.InForeground {
		src.DurationInForeground = null.IntFrom(d)
	}
	return src
}

// Metadata returns the state of the program, as of now.
func (in Inspector) Metadata(ctx context.Context) populate.AppMetadataSource {
	in.log.Debug("Inspecting app state")

	var src populate.AppMetadataSource

	if bi, ok := in.buildInfo(); ok {
		src.PackageName = nullString(bi.Main.Path)
		src.VersionName = nullString(firstOf(in.config.Version, moduleVersion(bi)))
	} else {
		src.VersionName = nullString(in.config.Version)
	}

	name := in.config.Name
	if name == "" {
		if exe, err := in.executable(); err != nil {
			in.log.Warn("Failed to get executable path", "error", err)
		} else {
			name = filepath.Base(exe)
		}
	}
	src.Name = nullString(name)

	src.LowMemory = in.LowMemory(ctx)

	return src
}

// LowMemory returns whether the system is low on memory, or an absent value if it can't be told.
func (in Inspector) LowMemory(ctx context.Context) null.Bool {
	vm, err := in.virtualMemory(ctx)
	if err != nil {
		in.log.Warn("Failed to collect memory information", "error", err)
		return null.Bool{}
	}
	if vm.Total == 0 {
		return null.Bool{}
	}
	return null.BoolFrom(float64(vm.Available)/float64(vm.Total) < lowMemoryRatio)
}

// processCreateTime returns the start time of the current process, in milliseconds since the epoch.
func processCreateTime(ctx context.Context) (int64, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	t, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return 0, err
	}
	if t <= 0 {
		return 0, errors.New("process start time is unknown")
	}
	return t, nil
}

// moduleVersion returns the version of the main module, unless it was built from a working tree.
func moduleVersion(bi *debug.BuildInfo) string {
	if bi.Main.Version == "(devel)" {
		return ""
	}
	return bi.Main.Version
}

func setting(bi *debug.BuildInfo, key string) string {
	for _, s := range bi.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}
