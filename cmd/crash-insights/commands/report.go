package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ubuntu/crash-insights/internal/capture"
	"github.com/ubuntu/crash-insights/internal/consent"
	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/crash-insights/internal/event"
	"github.com/ubuntu/crash-insights/internal/inspector/app"
	"github.com/ubuntu/crash-insights/internal/inspector/device"
	"github.com/ubuntu/crash-insights/internal/populate"
	"github.com/ubuntu/crash-insights/internal/provider"
	"github.com/ubuntu/crash-insights/internal/store"
)

type reportConfig struct {
	Source       string
	AppVersion   string
	ReleaseStage string
	ContextFile  string

	ErrorClass string
	Message    string
	Severity   string
	Unhandled  bool
	Metadata   []string

	DryRun bool
}

// metadataValue is a value of the metadata flag.
type metadataValue struct {
	section, key string
	value        any
}

func installReportCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build an event and store it",
		Long: `Build an event from the host, the application and the user context, and store it.

The event is only stored if the user consented to it, for the source or globally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running report command")
			return app.reportRun(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&app.report.Source, "source", "s", "", "the application the event is for, defaults to this tool")
	cmd.Flags().StringVar(&app.report.AppVersion, "app-version", "", "the version of the application")
	cmd.Flags().StringVar(&app.report.ReleaseStage, "release-stage", constants.DefaultReleaseStage, "the release stage of the application")
	cmd.Flags().StringVar(&app.report.ContextFile, "context-file", filepath.Join(constants.GetDefaultConfigPath(), constants.ContextFileName), "YAML file holding the user context and metadata")
	cmd.Flags().StringVarP(&app.report.ErrorClass, "error-class", "e", "Error", "the class of the error")
	cmd.Flags().StringVarP(&app.report.Message, "message", "m", "", "the error message")
	cmd.Flags().StringVar(&app.report.Severity, "severity", "error", "the severity of the event: error, warning or info")
	cmd.Flags().BoolVar(&app.report.Unhandled, "unhandled", false, "the error was not handled by the application")
	cmd.Flags().StringArrayVar(&app.report.Metadata, "metadata", nil, "metadata value, as section.key=value (repeatable)")
	cmd.Flags().BoolVarP(&app.report.DryRun, "dry-run", "d", false, "print the event instead of storing it")

	if err := cmd.MarkFlagFilename("context-file", "yaml", "yml"); err != nil {
		panic(fmt.Errorf("failed to mark context-file flag as filename: %w", err))
	}

	app.cmd.AddCommand(cmd)
}

func (a App) reportRun(ctx context.Context) error {
	severity, ok := event.ParseSeverity(a.report.Severity)
	if !ok {
		a.cmd.SilenceUsage = false
		return fmt.Errorf("severity must be one of error, warning or info, got %q", a.report.Severity)
	}
	metadata, err := parseMetadata(a.report.Metadata)
	if err != nil {
		a.cmd.SilenceUsage = false
		return err
	}

	userContext, err := loadContext(a.report.ContextFile)
	if err != nil {
		return err
	}

	l := slog.Default()
	st := store.New(a.config.EventsDir, store.WithMaxEvents(a.config.MaxEvents), store.WithLogger(l))
	cm := consent.New(l, a.config.ConsentDir)
	h := capture.New(st, cm, a.report.Source, capture.WithRepanic(false), capture.WithLogger(l))

	dev := device.New(l, a.opts.device...)
	devID, devMeta := dev.Identity(ctx), dev.Metadata(ctx)
	prog := app.New(l, app.Config{
		ID:           a.report.Source,
		Version:      a.report.AppVersion,
		ReleaseStage: a.report.ReleaseStage,
		InForeground: true,
	}, a.opts.app...)
	appID, appMeta := prog.Identity(ctx), prog.Metadata(ctx)

	status := h.Update(func(r *event.Report) (st populate.Status) {
		st.Add(populate.Device(&r.Device, &devID))
		st.Add(populate.DeviceMetadata(&r.Device, &devMeta))
		st.Add(populate.App(&r.App, &appID))
		st.Add(populate.AppMetadata(&r.App, &appMeta))
		st.Add(userContext.Apply(r))
		for _, m := range metadata {
			st.Add(populate.Metadata(&r.Metadata, m.section, m.key, m.value))
		}
		return st
	})
	if !status.Complete() {
		slog.Warn("Some values were truncated or dropped", "truncated", status.Truncated, "dropped", status.Dropped)
	}

	in := capture.Input{
		ErrorClass: a.report.ErrorClass,
		Message:    a.report.Message,
		Severity:   severity,
		Unhandled:  a.report.Unhandled,
		ReasonType: capture.ReasonUserSpecified,
	}
	switch {
	case in.Unhandled:
		in.ReasonType = capture.ReasonUnhandledError
	case severity == event.SeverityWarning:
		in.ReasonType = capture.ReasonHandledError
	}

	if a.report.DryRun {
		data, err := h.Render(in)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out(), string(data))
		return err
	}

	e, err := h.Capture(in)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out(), "Stored event %s\n", e.Path)
	return err
}

// loadContext reads the user context file. A missing file holds an empty context.
func loadContext(path string) (provider.Context, error) {
	if path == "" {
		return provider.Context{}, nil
	}

	c, err := provider.Parse(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("No context file", "file", path)
		return provider.Context{}, nil
	}
	if err != nil {
		return provider.Context{}, fmt.Errorf("invalid context file %s: %v", path, err)
	}
	return c, nil
}

// parseMetadata parses section.key=value entries. Values are booleans, numbers or strings.
func parseMetadata(entries []string) ([]metadataValue, error) {
	values := make([]metadataValue, 0, len(entries))
	for _, entry := range entries {
		name, raw, found := strings.Cut(entry, "=")
		section, key, dotted := strings.Cut(name, ".")
		if !found || !dotted || section == "" || key == "" {
			return nil, fmt.Errorf("metadata must be in the form section.key=value, got %q", entry)
		}

		m := metadataValue{section: section, key: key, value: raw}
		if f, ok := parseNumber(raw); ok {
			m.value = f
		} else if b, err := strconv.ParseBool(raw); err == nil {
			m.value = b
		}
		values = append(values, m)
	}
	return values, nil
}

// parseNumber parses raw as a finite decimal number. Hexadecimal forms, NaN and infinities are not numbers here.
func parseNumber(raw string) (float64, bool) {
	if strings.ContainsAny(raw, "xXpP") {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
