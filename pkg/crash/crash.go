// Package crash records the errors and panics of a Go program as events, stored on disk until
// they are delivered.
//
// A program starts a Client once, then defers its Recover in main and in the goroutines it starts:
//
//	client, err := crash.Config{Source: "myapp", AppVersion: "1.2.0"}.Start()
//	if err != nil {
//		// crash reporting is not available.
//	}
//	defer client.Close()
//	defer client.Recover()
//
// Events are only stored when the user consented to it, for Config.Source or globally.
package crash

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ubuntu/crash-insights/internal/capture"
	"github.com/ubuntu/crash-insights/internal/consent"
	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/crash-insights/internal/event"
	"github.com/ubuntu/crash-insights/internal/inspector/app"
	"github.com/ubuntu/crash-insights/internal/inspector/device"
	"github.com/ubuntu/crash-insights/internal/populate"
	"github.com/ubuntu/crash-insights/internal/provider"
	"github.com/ubuntu/crash-insights/internal/store"
	"gopkg.in/guregu/null.v3"
)

// ErrNoConsent is returned when an event is not stored because the user did not consent to it.
var ErrNoConsent = capture.ErrNoConsent

// Severity is the severity of an event.
type Severity = event.Severity

const (
	// SeverityError is used for crashes and unhandled errors.
	SeverityError = event.SeverityError
	// SeverityWarning is the default severity of notified errors.
	SeverityWarning = event.SeverityWarning
	// SeverityInfo is used for informational events.
	SeverityInfo = event.SeverityInfo
)

// Config represents the parameters of a Client.
type Config struct {
	// Source identifies the application. It is the consent source, and the default app id.
	Source       string
	AppVersion   string
	AppType      string
	ReleaseStage string

	// ConsentDir, EventsDir and MaxEvents default to the ones of the command line tool.
	ConsentDir string
	EventsDir  string
	MaxEvents  int
	// ContextFile is an optional YAML file holding the user, context and metadata. It is reloaded
	// when it changes.
	ContextFile string

	// ContinueOnPanic makes Recover stop panics once they are captured.
	ContinueOnPanic bool
	Verbose         bool
}

// Client captures the events of the program.
type Client struct {
	handler *capture.Handler
	context *provider.Manager
	// applied is the last context copied into the reports.
	applied provider.Context

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

type startOptions struct {
	device []device.Options
	app    []app.Options
}

type startOption = func(*startOptions)

// Start inspects the host and the program, and returns a Client ready to capture events.
func (c Config) Start(opts ...startOption) (*Client, error) {
	o := startOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	l := slog.Default()
	if c.Verbose {
		l = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if c.ConsentDir == "" {
		c.ConsentDir = constants.GetDefaultConfigPath()
	}
	if c.EventsDir == "" {
		c.EventsDir = constants.GetDefaultEventsPath()
	}
	if c.ConsentDir == "" || c.EventsDir == "" {
		return nil, errors.New("could not find default consent or events directory")
	}

	ctx, cancel := context.WithCancel(context.Background())

	dev := device.New(l, o.device...)
	devID, devMeta := dev.Identity(ctx), dev.Metadata(ctx)
	prog := app.New(l, app.Config{
		ID:           c.Source,
		Version:      c.AppVersion,
		Type:         c.AppType,
		ReleaseStage: c.ReleaseStage,
	}, o.app...)
	appID, appMeta := prog.Identity(ctx), prog.Metadata(ctx)

	st := store.New(c.EventsDir, store.WithMaxEvents(c.MaxEvents), store.WithLogger(l))
	cm := consent.New(l, c.ConsentDir)
	h := capture.New(st, cm, c.Source,
		capture.WithRepanic(!c.ContinueOnPanic),
		capture.WithRefresh(refresher(prog, l)),
		capture.WithLogger(l))
	client := &Client{handler: h, cancel: cancel, log: l}

	st0 := h.Update(func(r *event.Report) (st populate.Status) {
		st.Add(populate.Device(&r.Device, &devID))
		st.Add(populate.DeviceMetadata(&r.Device, &devMeta))
		st.Add(populate.App(&r.App, &appID))
		st.Add(populate.AppMetadata(&r.App, &appMeta))
		st.Add(populate.Session(&r.Session, &populate.SessionSource{
			ID:        null.StringFrom(uuid.NewString()),
			StartedAt: null.TimeFrom(time.Now()),
		}))
		return st
	})
	if !st0.Complete() {
		l.Info("Some host facts were truncated or dropped", "truncated", st0.Truncated, "dropped", st0.Dropped)
	}

	if c.ContextFile != "" {
		if err := client.watchContext(ctx, c.ContextFile); err != nil {
			cancel()
			return nil, err
		}
	}

	return client, nil
}

// refresher returns the function updating the app facts which change while the program runs.
func refresher(prog app.Inspector, l *slog.Logger) func(r *event.Report) populate.Status {
	start, err := prog.StartTime(context.Background())
	if err != nil {
		l.Warn("Failed to get process start time, events will have no run time", "error", err)
	}

	return func(r *event.Report) (st populate.Status) {
		if err == nil {
			running := prog.Running(start)
			st.Add(populate.App(&r.App, &running))
		}
		st.Add(populate.AppMetadata(&r.App, &populate.AppMetadataSource{LowMemory: prog.LowMemory(context.Background())}))
		return st
	}
}

// watchContext applies the context file now, and each time it changes.
func (cl *Client) watchContext(ctx context.Context, path string) error {
	cl.context = provider.New(path, provider.WithLogger(cl.log))
	changes, errs, err := cl.context.Watch(ctx)
	if err != nil {
		return err
	}
	cl.applyContext()

	cl.wg.Add(1)
	go func() {
		defer cl.wg.Done()
		for {
			select {
			case _, ok := <-changes:
				if !ok {
					return
				}
				cl.applyContext()
			case err, ok := <-errs:
				if !ok {
					return
				}
				cl.log.Warn("Stopped watching context file", "error", err)
				return
			}
		}
	}()
	return nil
}

// applyContext replaces the previously applied context with the current one.
func (cl *Client) applyContext() {
	next := cl.context.Get()
	prev := cl.applied
	cl.applied = next

	st := cl.handler.Update(func(r *event.Report) populate.Status {
		// Values the file no longer sets are removed, not left as they were.
		clearUnset(&r.Context, prev.Context, next.Context)
		clearUnset(&r.App.ActiveScreen, prev.ActiveScreen, next.ActiveScreen)
		clearUnset(&r.User.ID, prev.User.ID, next.User.ID)
		clearUnset(&r.User.Email, prev.User.Email, next.User.Email)
		clearUnset(&r.User.Name, prev.User.Name, next.User.Name)
		for section, values := range prev.Metadata {
			for key := range values {
				if _, ok := next.Metadata[section][key]; !ok {
					r.Metadata.Clear(section, key)
				}
			}
		}
		return next.Apply(r)
	})
	if !st.Complete() {
		cl.log.Info("Context was truncated or partially dropped", "truncated", st.Truncated, "dropped", st.Dropped)
	}
}

func clearUnset(f interface{ Clear() }, prev, next string) {
	if prev != "" && next == "" {
		f.Clear()
	}
}

// Recover captures a panic as an unhandled event, then lets it continue unless
// Config.ContinueOnPanic is set. It must be deferred directly:
//
//	defer client.Recover()
func (cl *Client) Recover() {
	v := recover()
	if v == nil {
		return
	}
	cl.handler.HandlePanic(v)
}

// Notify captures err as a handled event.
func (cl *Client) Notify(err error, severity Severity) error {
	_, err = cl.handler.NotifyDepth(1, err, severity)
	return err
}

// LeaveBreadcrumb records an action of the program, reported with the next events.
// kind is one of navigation, request, process, log, user, state, error or manual.
func (cl *Client) LeaveBreadcrumb(name, kind string, metadata map[string]string) {
	src := populate.BreadcrumbSource{Name: name, Type: kind, Timestamp: time.Now()}
	for _, k := range slices.Sorted(maps.Keys(metadata)) {
		src.Metadata = append(src.Metadata, populate.Pair{Key: k, Value: metadata[k]})
	}

	cl.update(func(r *event.Report) populate.Status {
		return populate.Breadcrumb(&r.Breadcrumbs, &src)
	})
}

// AddMetadata sets the value of key in section, reported with the next events.
// Strings, booleans and numbers are supported. A nil value removes the key.
func (cl *Client) AddMetadata(section, key string, value any) {
	cl.update(func(r *event.Report) populate.Status {
		return populate.Metadata(&r.Metadata, section, key, value)
	})
}

// SetUser identifies the user of the program.
func (cl *Client) SetUser(id, email, name string) {
	cl.update(func(r *event.Report) populate.Status {
		return populate.User(&r.User, &populate.UserSource{
			ID:    null.StringFrom(id),
			Email: null.StringFrom(email),
			Name:  null.StringFrom(name),
		})
	})
}

// SetContext names where the next events happen, like a screen or a request route.
func (cl *Client) SetContext(value string) {
	cl.update(func(r *event.Report) populate.Status {
		return populate.Context(r, null.StringFrom(value))
	})
}

// Dropped returns the number of events dropped because another one was being captured.
func (cl *Client) Dropped() int64 {
	return cl.handler.Dropped()
}

// Close stops watching the context file.
func (cl *Client) Close() error {
	cl.cancel()
	cl.wg.Wait()
	return nil
}

func (cl *Client) update(fn func(r *event.Report) populate.Status) {
	if st := cl.handler.Update(fn); !st.Complete() {
		cl.log.Debug("Value truncated or dropped", "truncated", st.Truncated, "dropped", st.Dropped)
	}
}
