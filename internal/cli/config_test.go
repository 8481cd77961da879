package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/crash-insights/internal/cli"
	"github.com/ubuntu/crash-insights/internal/testutils"
)

//nolint:tparallel // Environment variables are set for some cases.
func TestInitViperConfig(t *testing.T) {
	tests := map[string]struct {
		configFile string
		userConfig string
		env        map[string]string

		wantEventsDir string
		wantVerbose   int
		wantErr       bool
	}{
		"No configuration": {},
		"Config file": {
			configFile:    "events-dir: /from/config\nverbose: 2\n",
			wantEventsDir: "/from/config", wantVerbose: 2,
		},
		"Environment overrides config file": {
			configFile:    "events-dir: /from/config\n",
			env:           map[string]string{"CRASH_INSIGHTS_EVENTS_DIR": "/from/env"},
			wantEventsDir: "/from/env",
		},
		"Config file in user configuration directory": {
			userConfig:    "events-dir: /from/user/config\n",
			wantEventsDir: "/from/user/config",
		},
		"Config flag takes precedence over user configuration directory": {
			configFile:    "events-dir: /from/config\n",
			userConfig:    "events-dir: /from/user/config\n",
			wantEventsDir: "/from/config",
		},
		"Environment only": {
			env:         map[string]string{"CRASH_INSIGHTS_VERBOSE": "1"},
			wantVerbose: 1,
		},

		"Error on invalid config file": {configFile: "events-dir: [unclosed\n", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			xdg := t.TempDir()
			t.Setenv("XDG_CONFIG_HOME", xdg)
			if tc.userConfig != "" {
				testutils.WriteFiles(t, xdg, map[string]string{"crash-insights/crash-insights.yaml": tc.userConfig})
			}

			cmd := &cobra.Command{Use: "crash-insights"}
			cli.InstallConfigFlag(cmd)
			if tc.configFile != "" {
				path := filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tc.configFile), 0600), "Setup: could not write config file")
				require.NoError(t, cmd.PersistentFlags().Set("config", path), "Setup: could not set config flag")
			}

			vip := viper.New()
			err := cli.InitViperConfig("crash-insights", cmd, vip)
			if tc.wantErr {
				require.Error(t, err, "InitViperConfig should return an error")
				return
			}
			require.NoError(t, err, "InitViperConfig should not return an error")

			var got struct {
				EventsDir string `mapstructure:"events-dir"`
				Verbose   int    `mapstructure:"verbose"`
			}
			require.NoError(t, vip.Unmarshal(&got), "Unmarshal should not return an error")
			assert.Equal(t, tc.wantEventsDir, got.EventsDir)
			assert.Equal(t, tc.wantVerbose, got.Verbose)
		})
	}
}

func TestConfigDirs(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/home/user/.config")

	got := cli.ConfigDirs("crash-insights")

	assert.Equal(t, []string{".", "/home/user/.config/crash-insights", "/etc/crash-insights"}, got)
}
