package consent_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/crash-insights/internal/consent"
)

// consentFiles are the files available to every test, by source.
var consentFiles = map[string]string{
	"valid_true":    "consent_state = true\n",
	"valid_false":   "consent_state = false\n",
	"invalid_value": "consent_state = \"maybe\"\n",
	"invalid_file":  "consent_state = \n[[[\n",
}

func TestGetState(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		source     string
		globalFile string

		want        bool
		wantErr     bool
		wantMissing bool
	}{
		"No Global File": {wantErr: true, wantMissing: true},

		"Valid True Global File":    {globalFile: "valid_true", want: true},
		"Valid False Global File":   {globalFile: "valid_false"},
		"Invalid Value Global File": {globalFile: "invalid_value", wantErr: true},
		"Invalid File Global File":  {globalFile: "invalid_file", wantErr: true},

		"Valid True Global File, Valid False Source":   {globalFile: "valid_true", source: "valid_false"},
		"Valid False Global File, Valid True Source":   {globalFile: "valid_false", source: "valid_true", want: true},
		"Valid True Global File, Invalid Value Source": {globalFile: "valid_true", source: "invalid_value", wantErr: true},
		"Valid True Global File, No File Source":       {globalFile: "valid_true", source: "not_a_file", wantErr: true, wantMissing: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cm := consent.New(slog.Default(), setupConsentDir(t, tc.globalFile))

			got, err := cm.GetState(tc.source)
			if tc.wantErr {
				require.Error(t, err, "GetState should return an error")
				if tc.wantMissing {
					require.ErrorIs(t, err, consent.ErrConsentFileNotFound)
				}
				return
			}
			require.NoError(t, err, "GetState should not return an error")
			assert.Equal(t, tc.want, got, "GetState should return the stored consent state")
		})
	}
}

func TestSetState(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		globalFile  string
		missingDir  bool
		writeSource string
		writeState  bool

		wantSources int
	}{
		"New File, Write Global True":        {writeState: true},
		"New File, Write Global False":       {},
		"New File, Write Source True":        {writeSource: "new_true", writeState: true, wantSources: 1},
		"Overwrite File, Write Diff Global":  {globalFile: "valid_true"},
		"Overwrite File, Write Diff Source":  {globalFile: "valid_true", writeSource: "valid_false", writeState: true},
		"Missing Dir, Write Global Creates":  {missingDir: true, writeState: true},
		"Missing Dir, Write Source Creates":  {missingDir: true, writeSource: "app", writeState: true, wantSources: 1},
		"Overwrite Invalid File, Write True": {globalFile: "valid_true", writeSource: "invalid_file", writeState: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(t.TempDir(), "consents")
			if !tc.missingDir {
				dir = setupConsentDir(t, tc.globalFile)
			}
			cm := consent.New(slog.Default(), dir)

			require.NoError(t, cm.SetState(tc.writeSource, tc.writeState), "SetState should not return an error")

			got, err := cm.GetState(tc.writeSource)
			require.NoError(t, err, "GetState should read back the written state")
			assert.Equal(t, tc.writeState, got, "GetState should return the written state")

			states, err := cm.GetAllStates(true)
			require.NoError(t, err)
			if tc.missingDir {
				assert.Len(t, states, tc.wantSources, "Only written sources should be listed")
			}
			if tc.writeSource != "" {
				assert.Equal(t, tc.writeState, states[tc.writeSource], "GetAllStates should list the written source")
			}

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			for _, e := range entries {
				assert.NotEqual(t, ".tmp", filepath.Ext(e.Name()), "No temporary file should be left behind")
			}
		})
	}
}

func TestHasConsent(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		source     string
		globalFile string

		want    bool
		wantErr bool
	}{
		"True Global-True Source":          {source: "valid_true", globalFile: "valid_true", want: true},
		"True Global-False Source":         {source: "valid_false", globalFile: "valid_true"},
		"True Global-Invalid Value Source": {source: "invalid_value", globalFile: "valid_true", want: true},
		"True Global-Invalid File Source":  {source: "invalid_file", globalFile: "valid_true", want: true},
		"True Global-Not A File Source":    {source: "not_a_file", globalFile: "valid_true", want: true},
		"True Global-No Source":            {globalFile: "valid_true", want: true},

		"False Global-True Source":       {source: "valid_true", globalFile: "valid_false", want: true},
		"False Global-Not A File Source": {source: "not_a_file", globalFile: "valid_false"},

		"No Global-True Source":          {source: "valid_true", want: true},
		"No Global-False Source":         {source: "valid_false"},
		"No Global-Invalid Value Source": {source: "invalid_value", wantErr: true},
		"No Global-Not A File Source":    {source: "not_a_file", wantErr: true},
		"No Global-No Source":            {wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cm := consent.New(slog.Default(), setupConsentDir(t, tc.globalFile))

			got, err := cm.HasConsent(tc.source)
			if tc.wantErr {
				require.Error(t, err, "HasConsent should return an error")
				return
			}
			require.NoError(t, err, "HasConsent should not return an error")
			require.Equal(t, tc.want, got, "HasConsent should return the expected consent state")
		})
	}
}

func TestGetAllStates(t *testing.T) {
	t.Parallel()

	cm := consent.New(slog.Default(), setupConsentDir(t, "valid_true"))

	_, err := cm.GetAllStates(false)
	require.Error(t, err, "Invalid files should make GetAllStates fail when not continuing on errors")

	got, err := cm.GetAllStates(true)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"valid_true": true, "valid_false": false}, got,
		"Invalid files and the global file should not be listed")
}

func TestFileNames(t *testing.T) {
	t.Parallel()

	cm := consent.New(slog.Default(), "/consents")
	assert.Equal(t, filepath.Join("/consents", "consent.toml"), cm.File(""))
	assert.Equal(t, filepath.Join("/consents", "myapp-consent.toml"), cm.File("myapp"))
}

// setupConsentDir writes every source consent file in a temporary directory.
// The content of globalFile source, if not empty, is used for the global consent file.
func setupConsentDir(t *testing.T, globalFile string) string {
	t.Helper()

	dir := t.TempDir()
	for source, content := range consentFiles {
		err := os.WriteFile(filepath.Join(dir, source+"-consent.toml"), []byte(content), 0600)
		require.NoError(t, err, "Setup: failed to write consent file")
	}
	if globalFile != "" {
		err := os.WriteFile(filepath.Join(dir, "consent.toml"), []byte(consentFiles[globalFile]), 0600)
		require.NoError(t, err, "Setup: failed to write global consent file")
	}
	return dir
}
