// Package provider supplies the user context of events from a YAML file, reloaded when it changes.
//
// A context file looks like:
//
//	context: CheckoutActivity
//	activeScreen: PaymentScreen
//	user:
//	  id: "123"
//	  email: jamie@example.com
//	  name: Jamie
//	metadata:
//	  account:
//	    tier: gold
//	    seats: 4
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/ubuntu/crash-insights/internal/event"
	"github.com/ubuntu/crash-insights/internal/populate"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"
)

// User identifies the user of the application.
type User struct {
	ID    string `mapstructure:"id"`
	Email string `mapstructure:"email"`
	Name  string `mapstructure:"name"`
}

// Context is the content of a context file.
type Context struct {
	Context      string `mapstructure:"context"`
	ActiveScreen string `mapstructure:"activeScreen"`
	User         User   `mapstructure:"user"`
	// Metadata values are indexed by section, then by key.
	Metadata map[string]map[string]any `mapstructure:"metadata"`
}

// Manager holds the last valid context read from its file.
type Manager struct {
	path string
	ctx  Context
	lock sync.RWMutex

	log *slog.Logger
}

type options struct {
	log *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// WithLogger sets the logger used by the manager.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// New returns a Manager for the context file at path. The file is not read until Load or Watch.
func New(path string, args ...Options) *Manager {
	opts := options{log: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{path: path, log: opts.log}
}

// Path returns the path of the context file.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the context file and replaces the current context.
// On error, the current context is kept.
func (m *Manager) Load() error {
	c, err := Parse(m.path)
	if err != nil {
		return err
	}

	m.lock.Lock()
	m.ctx = c
	m.lock.Unlock()

	m.log.Debug("Context loaded", "file", m.path, "context", c.Context)
	return nil
}

// Parse reads and decodes the context file at path. An empty file holds an empty context.
func Parse(path string) (c Context, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Context{}, fmt.Errorf("reading context file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Context{}, fmt.Errorf("decoding context YAML: %v", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &c,
	})
	if err != nil {
		return Context{}, fmt.Errorf("failed to create decoder: %v", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Context{}, errors.Join(errors.New("context file does not match expected structure"), err)
	}

	return c, nil
}

// Get returns a copy of the current context.
func (m *Manager) Get() Context {
	m.lock.RLock()
	defer m.lock.RUnlock()

	c := m.ctx
	c.Metadata = make(map[string]map[string]any, len(m.ctx.Metadata))
	for section, values := range m.ctx.Metadata {
		c.Metadata[section] = maps.Clone(values)
	}
	return c
}

// Apply copies the current context into r. Metadata is stored by sorted section and key,
// so that the same context always produces the same report.
func (m *Manager) Apply(r *event.Report) populate.Status {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.ctx.Apply(r)
}

// Apply copies c into r.
func (c Context) Apply(r *event.Report) (st populate.Status) {
	st.Add(populate.Context(r, nullString(c.Context)))
	st.Add(populate.User(&r.User, &populate.UserSource{
		ID:    nullString(c.User.ID),
		Email: nullString(c.User.Email),
		Name:  nullString(c.User.Name),
	}))
	st.Add(populate.AppMetadata(&r.App, &populate.AppMetadataSource{
		ActiveScreen: nullString(c.ActiveScreen),
	}))

	for _, section := range slices.Sorted(maps.Keys(c.Metadata)) {
		values := c.Metadata[section]
		for _, key := range slices.Sorted(maps.Keys(values)) {
			st.Add(populate.Metadata(&r.Metadata, section, key, values[key]))
		}
	}
	return st
}

// Watch loads the context file, then reloads it whenever it changes, until ctx is done.
//
// It returns two channels: one for changes which result in a successful load and another for
// unrecoverable watcher errors.
func (m *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errs <-chan error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	// Watch the directory, as editors commonly replace files instead of writing them.
	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", dir, err)
	}

	m.log.Debug("Watching context directory", "dir", dir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	if err := m.Load(); err != nil {
		m.log.Warn("Error loading initial context", "error", err)
	}

	target := filepath.Clean(m.path)
	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				m.log.Debug("Context watcher stopped")
				return
			case e, ok := <-watcher.Events:
				if !ok {
					errorsCh <- errors.New("watcher events channel closed unexpectedly")
					return
				}
				if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || filepath.Clean(e.Name) != target {
					continue
				}

				m.log.Debug("Context file changed. Reloading...")
				if err := m.Load(); err != nil {
					m.log.Warn("Error reloading context", "error", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- errors.New("watcher errors channel closed unexpectedly")
					return
				}
				m.log.Warn("Watcher error", "error", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}
