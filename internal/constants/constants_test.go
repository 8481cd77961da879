package constants_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ubuntu/crash-insights/internal/constants"
)

func TestGetDefaultPaths(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		baseDir func() (string, error)

		wantConfig string
		wantCache  string
		wantEvents string
	}{
		"Base dir is used": {
			baseDir:    func() (string, error) { return "abc/def", nil },
			wantConfig: filepath.Join("abc/def", constants.DefaultAppFolder),
			wantCache:  filepath.Join("abc/def", constants.DefaultAppFolder),
			wantEvents: filepath.Join("abc/def", constants.DefaultAppFolder, constants.EventsFolder),
		},
		"Base dir error falls back to relative": {
			baseDir:    func() (string, error) { return "abc", errors.New("error") },
			wantConfig: constants.DefaultAppFolder,
			wantCache:  constants.DefaultAppFolder,
			wantEvents: filepath.Join(constants.DefaultAppFolder, constants.EventsFolder),
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.wantConfig, constants.GetDefaultConfigPath(constants.WithBaseDir(tc.baseDir)))
			assert.Equal(t, tc.wantCache, constants.GetDefaultCachePath(constants.WithBaseDir(tc.baseDir)))
			assert.Equal(t, tc.wantEvents, constants.GetDefaultEventsPath(constants.WithBaseDir(tc.baseDir)))
		})
	}
}
