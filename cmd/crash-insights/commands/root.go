// Package commands is the command line interface of crash-insights.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubuntu/crash-insights/internal/cli"
	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/crash-insights/internal/inspector/app"
	"github.com/ubuntu/crash-insights/internal/inspector/device"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	report   reportConfig
	list     listConfig
	fixtures fixturesConfig
	consent  consentConfig

	opts options
}

// appConfig holds the global configuration, read from flags, environment and configuration file.
type appConfig struct {
	Verbosity  int    `mapstructure:"verbose" yaml:"verbose"`
	JSONLogs   bool   `mapstructure:"json-logs" yaml:"json-logs"`
	EventsDir  string `mapstructure:"events-dir" yaml:"events-dir"`
	ConsentDir string `mapstructure:"consent-dir" yaml:"consent-dir"`
	MaxEvents  int    `mapstructure:"max-events" yaml:"max-events"`
}

type options struct {
	logOutput io.Writer

	device []device.Options
	app    []app.Options
}

// Options represents an optional function to override App default values.
type Options func(*options)

// New creates a new App instance with default values.
func New(args ...Options) (*App, error) {
	a := App{
		opts: options{logOutput: os.Stderr},
	}
	for _, opt := range args {
		opt(&a.opts)
	}

	a.cmd = &cobra.Command{
		Use:   constants.CmdName + " [COMMAND]",
		Short: "Capture, serialize and store crash events",
		Long: `Capture, serialize and store crash events.

Events are built from facts about the host, the application and the user context, and are stored
as JSON documents until they are delivered. They are only stored if the user consented to it.`,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.opts.logOutput, a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Debug("Got app config", "config", a.config)

			cli.SetSlog(a.opts.logOutput, a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootFlags(&a)
	installReportCmd(&a)
	installListCmd(&a)
	installFixturesCmd(&a)
	installConsentCmd(&a)
	installVersionCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	return &a, nil
}

func installRootFlags(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")
	cmd.PersistentFlags().StringVar(&app.config.EventsDir, "events-dir", constants.GetDefaultEventsPath(), "directory to store events into")
	cmd.PersistentFlags().StringVar(&app.config.ConsentDir, "consent-dir", constants.GetDefaultConfigPath(), "directory to look for and to store user consent")
	cmd.PersistentFlags().IntVar(&app.config.MaxEvents, "max-events", constants.MaxStoredEvents, "maximum number of events kept on disk")

	if err := cmd.MarkPersistentFlagDirname("events-dir"); err != nil {
		panic(fmt.Errorf("failed to mark events-dir flag as directory: %w", err))
	}
	if err := cmd.MarkPersistentFlagDirname("consent-dir"); err != nil {
		panic(fmt.Errorf("failed to mark consent-dir flag as directory: %w", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// out is where command results are printed.
func (a App) out() io.Writer {
	return a.cmd.OutOrStdout()
}
