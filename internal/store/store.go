// Package store keeps serialized events on disk until they are delivered.
//
// Events are files named after their capture time in nanoseconds since the epoch, with the
// constants.EventExt extension. They are written atomically, and the oldest ones are removed
// when the store holds more than its maximum number of events.
package store

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/crash-insights/internal/fileutils"
	"github.com/ubuntu/decorate"
)

var (
	// ErrInvalidEventExt is returned when an event file has an invalid extension.
	ErrInvalidEventExt = errors.New("invalid event file extension")

	// ErrInvalidEventName is returned when an event file has a name that can't be parsed.
	ErrInvalidEventName = errors.New("invalid event file name")

	// ErrInvalidJSON is returned when an event file does not hold valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON data in event file")
)

// Event is a stored event file.
type Event struct {
	Path string // Path is the path to the event file.
	Name string // Name is the name of the event file, including extension.
	// TimeStamp is the capture time in nanoseconds since the epoch.
	TimeStamp int64
}

// Time returns the capture time of the event.
func (e Event) Time() time.Time {
	return time.Unix(0, e.TimeStamp)
}

// ParseEvent creates a new Event object from a path.
// It does not read the file system, or validate the path.
func ParseEvent(path string) (Event, error) {
	name := filepath.Base(path)
	if filepath.Ext(name) != constants.EventExt {
		return Event{}, ErrInvalidEventExt
	}

	ts, err := strconv.ParseInt(strings.TrimSuffix(name, constants.EventExt), 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEventName, err)
	}
	return Event{Path: path, Name: name, TimeStamp: ts}, nil
}

// ReadJSON reads the JSON data of the event file.
func (e Event) ReadJSON() ([]byte, error) {
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event file: %v", err)
	}

	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return data, nil
}

// Store manages a directory of event files.
type Store struct {
	dir       string
	maxEvents int

	now func() time.Time
	log *slog.Logger
}

type options struct {
	maxEvents int
	now       func() time.Time
	log       *slog.Logger
}

// Options represents an optional function to override Store default values.
type Options func(*options)

// WithMaxEvents sets the number of events kept on disk. Values < 1 keep the default.
func WithMaxEvents(n int) Options {
	return func(o *options) {
		if n > 0 {
			o.maxEvents = n
		}
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// New returns a Store for the events in dir. The directory is created on first write.
func New(dir string, args ...Options) *Store {
	opts := options{
		maxEvents: constants.MaxStoredEvents,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Store{dir: dir, maxEvents: opts.maxEvents, now: opts.now, log: opts.log}
}

// Dir returns the directory of the store.
func (s Store) Dir() string {
	return s.dir
}

// Write stores a serialized event and returns it. The oldest events beyond the store capacity
// are removed afterwards.
func (s Store) Write(data []byte) (e Event, err error) {
	defer decorate.OnError(&err, "could not store event")

	if !gjson.ValidBytes(data) {
		return Event{}, ErrInvalidJSON
	}
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return Event{}, fmt.Errorf("could not create events directory: %v", err)
	}

	// Two events captured within the same nanosecond, or a clock going backward, would collide.
	ts := s.now().UnixNano()
	for {
		e = Event{Name: strconv.FormatInt(ts, 10) + constants.EventExt, TimeStamp: ts}
		e.Path = filepath.Join(s.dir, e.Name)

		err = fileutils.CreateExclusive(e.Path, data)
		if errors.Is(err, os.ErrExist) {
			ts++
			continue
		}
		if err != nil {
			return Event{}, err
		}
		break
	}
	s.log.Debug("Stored event", "file", e.Path, "size", len(data))

	if _, err := s.Cleanup(); err != nil {
		s.log.Warn("Failed to remove old events", "dir", s.dir, "error", err)
	}
	return e, nil
}

// GetAll returns all events of the store, oldest first.
// Files which are not events are skipped. A missing directory holds no event.
// Does not traverse subdirectories.
func (s Store) GetAll() ([]Event, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read events directory: %v", err)
	}

	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		e, err := ParseEvent(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.log.Info("Skipping non-event file", "file", entry.Name(), "error", err)
			continue
		}
		events = append(events, e)
	}

	slices.SortFunc(events, func(a, b Event) int {
		return cmp.Compare(a.TimeStamp, b.TimeStamp)
	})
	return events, nil
}

// GetSince returns the events captured at or after t, oldest first.
func (s Store) GetSince(t time.Time) ([]Event, error) {
	events, err := s.GetAll()
	if err != nil {
		return nil, err
	}

	i, _ := slices.BinarySearchFunc(events, t.UnixNano(), func(e Event, ts int64) int {
		return cmp.Compare(e.TimeStamp, ts)
	})
	return events[i:], nil
}

// Remove deletes the event file.
func (s Store) Remove(e Event) error {
	if filepath.Dir(e.Path) != filepath.Clean(s.dir) {
		return fmt.Errorf("event %s does not belong to %s", e.Path, s.dir)
	}
	if err := os.Remove(e.Path); err != nil {
		return fmt.Errorf("failed to remove event: %v", err)
	}
	return nil
}

// Cleanup removes the oldest events beyond the store capacity, and returns how many were removed.
func (s Store) Cleanup() (removed int, err error) {
	events, err := s.GetAll()
	if err != nil {
		return 0, err
	}

	extra := len(events) - s.maxEvents
	for i := range max(extra, 0) {
		if err := s.Remove(events[i]); err != nil {
			return removed, err
		}
		removed++
		s.log.Debug("Removed old event", "file", events[i].Path)
	}
	return removed, nil
}
