// Package constants is responsible for defining the constants used in the application.
// It also provides utility functions to get the default configuration and cache paths.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Version is the version of the application.
var Version = "Dev"

const (
	// CmdName is the name of the command line tool.
	CmdName = "crash-insights"

	// DefaultAppFolder is the name of the default root folder.
	DefaultAppFolder = "crash-insights"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// GlobalFileName is the default base name of the consent state files.
	GlobalFileName = "consent.toml"

	// ConsentSourceBaseSeparator is the default separator between the source and the base name of the consent state files.
	ConsentSourceBaseSeparator = "-"

	// EventExt is the extension of the stored event files.
	EventExt = ".json"

	// EventsFolder is the name of the folder, under the cache path, holding the stored events.
	EventsFolder = "events"

	// ContextFileName is the default name of the user context file.
	ContextFileName = "context.yaml"

	// MaxStoredEvents is the default number of events kept on disk.
	MaxStoredEvents = 64
)

// Capacities of the event model. They bound the size of a Report, which is allocated once.
const (
	// MaxABIs is the maximum number of CPU ABIs recorded for a device.
	MaxABIs = 8

	// MaxFrames is the maximum number of stack frames recorded for an exception.
	MaxFrames = 192

	// MaxBreadcrumbs is the number of breadcrumbs kept, oldest first out.
	MaxBreadcrumbs = 25

	// MaxBreadcrumbMetadata is the maximum number of key/value pairs on a breadcrumb.
	MaxBreadcrumbMetadata = 8

	// MaxMetadataValues is the maximum number of values in the metadata of an event.
	MaxMetadataValues = 128

	// MaxPayloadSize is the size of the preallocated serialization buffer.
	MaxPayloadSize = 512 * 1024

	// ArenaSize is the default number of preallocated reports.
	ArenaSize = 2
)

const (
	// NotifierType is the app type reported when none was provided.
	NotifierType = "go"

	// DefaultReleaseStage is the release stage reported when none was provided.
	DefaultReleaseStage = "production"
)

type options struct {
	baseDir func() (string, error)
}

type option func(*options)

// GetDefaultConfigPath is the default path to the configuration file.
func GetDefaultConfigPath(opts ...option) string {
	o := options{baseDir: os.UserConfigDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// GetDefaultCachePath is the default path to the cache directory.
func GetDefaultCachePath(opts ...option) string {
	o := options{baseDir: os.UserCacheDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// GetDefaultEventsPath is the default directory events are stored into.
func GetDefaultEventsPath(opts ...option) string {
	return filepath.Join(GetDefaultCachePath(opts...), EventsFolder)
}

// getBaseDir is a helper function to handle the case where the baseDir function returns an error, and instead return an empty string.
func getBaseDir(baseDirFunc func() (string, error)) string {
	dir, err := baseDirFunc()
	if err != nil {
		return ""
	}
	return dir
}
