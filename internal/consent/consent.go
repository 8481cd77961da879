// Package consent is the implementation of the consent manager component.
// The consent manager is responsible for managing consent files, which store whether events
// may be stored for a given source (an application), or for every source.
package consent

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/decorate"
)

var (
	// ErrConsentFileNotFound is returned when a consent file is not found.
	ErrConsentFileNotFound = errors.New("consent file not found")
)

// Manager is a struct that manages consent files.
type Manager struct {
	path string

	log *slog.Logger
}

// CFile is a struct that represents a consent file.
type CFile struct {
	ConsentState bool `toml:"consent_state"`
}

// New returns a new consent Manager.
// path is the folder the consents are stored into.
func New(l *slog.Logger, path string) *Manager {
	return &Manager{log: l, path: path}
}

// GetState gets the consent state for the given source.
// If the source is an empty string, then the global consent state will be returned.
// If the target consent file does not exist, it will not be created, and
// ErrConsentFileNotFound will be returned.
func (cm Manager) GetState(source string) (state bool, err error) {
	defer func() {
		var pe *os.PathError
		if errors.As(err, &pe) && errors.Is(pe.Err, os.ErrNotExist) {
			err = errors.Join(ErrConsentFileNotFound, err)
		}
	}()

	consent, err := readFile(cm.log, cm.getFile(source))
	if err != nil {
		return false, err
	}

	return consent.ConsentState, nil
}

var consentSourceFilePattern = `%s` + constants.ConsentSourceBaseSeparator + constants.GlobalFileName

// SetState updates the consent state for the given source.
// If the source is an empty string, then the global consent state will be set.
// If the target consent file does not exist, it will be created.
func (cm Manager) SetState(source string, state bool) (err error) {
	defer decorate.OnError(&err, "could not set consent state")

	consent := CFile{ConsentState: state}
	return consent.write(cm.log, cm.getFile(source))
}

// HasConsent returns whether events of the given source may be stored.
//
// A valid source consent file takes precedence. Otherwise, the global consent state is used,
// and an error is returned if it can't be read.
func (cm Manager) HasConsent(source string) (bool, error) {
	if source != "" {
		state, err := cm.GetState(source)
		if err == nil {
			return state, nil
		}
		cm.log.Debug("Falling back to global consent state", "source", source, "error", err)
	}

	state, err := cm.GetState("")
	if err != nil {
		return false, fmt.Errorf("could not get global consent state: %w", err)
	}
	return state, nil
}

// GetAllStates gets the consent states of every source having a consent file.
// The global state is not included.
// If continueOnErr is true, invalid files are skipped instead of returning an error.
func (cm Manager) GetAllStates(continueOnErr bool) (map[string]bool, error) {
	files, err := cm.getFiles()
	if err != nil {
		return nil, err
	}

	states := make(map[string]bool)
	for source, path := range files {
		consent, err := readFile(cm.log, path)
		if err != nil && !continueOnErr {
			return nil, err
		}
		if err != nil {
			cm.log.Warn("Skipping invalid consent file", "file", path, "error", err)
			continue
		}

		states[source] = consent.ConsentState
	}

	return states, nil
}

// getFile returns the expected path to the consent file for the given source.
// If source is blank, it returns the path to the global consent file.
// It does not check if the file exists, or if it is valid.
func (cm Manager) getFile(source string) string {
	if source == "" {
		return filepath.Join(cm.path, constants.GlobalFileName)
	}
	return filepath.Join(cm.path, fmt.Sprintf(consentSourceFilePattern, source))
}

// getFiles returns a map of all paths to validly named source consent files in the folder.
func (cm Manager) getFiles() (map[string]string, error) {
	sourceFiles := make(map[string]string)

	entries, err := os.ReadDir(cm.path)
	if err != nil {
		return sourceFiles, err
	}

	suffix := constants.ConsentSourceBaseSeparator + constants.GlobalFileName
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}

		source := strings.TrimSuffix(entry.Name(), suffix)
		if source == "" {
			continue
		}
		sourceFiles[source] = filepath.Join(cm.path, entry.Name())
		cm.log.Debug("Found source consent file", "file", sourceFiles[source])
	}

	return sourceFiles, nil
}

func readFile(l *slog.Logger, path string) (CFile, error) {
	var consent CFile
	_, err := toml.DecodeFile(path, &consent)
	l.Debug("Read consent file", "file", path, "consent", consent.ConsentState)

	return consent, err
}

// write writes the consent file to the given path atomically, replacing it if it already exists.
// Not atomic on Windows.
// Makes dir if it does not exist.
func (cf CFile) write(l *slog.Logger, path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("could not create directory: %v", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "consent-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %v", err)
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			l.Warn("Failed to remove temporary file when writing consent file", "file", tmp.Name(), "error", err)
		}
	}()

	if err := toml.NewEncoder(tmp).Encode(cf); err != nil {
		return fmt.Errorf("could not encode consent file: %v", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temporary file: %v", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not rename temporary file: %v", err)
	}
	l.Debug("Wrote consent file", "file", path, "consent", cf.ConsentState)

	return nil
}
