package commands

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ubuntu/crash-insights/internal/consent"
)

type consentConfig struct {
	State string
}

func installConsentCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "consent [sources](optional arguments)",
		Short: "Manage or get user consent state",
		Long: `Manage or get user consent state for storing events.

If no sources are provided, the global consent state is managed.`,
		Args: cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseBool(app.consent.State); app.consent.State != "" && err != nil {
				app.cmd.SilenceUsage = false
				return fmt.Errorf("state must be either true or false, or not set: %v", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running consent command")
			return app.consentRun(args)
		},
	}

	cmd.Flags().StringVarP(&app.consent.State, "state", "s", "", "the consent state to set (true or false)")

	app.cmd.AddCommand(cmd)
}

func (a App) consentRun(sources []string) error {
	cm := consent.New(slog.Default(), a.config.ConsentDir)

	if len(sources) == 0 {
		sources = []string{""}
	}

	if a.consent.State != "" {
		state, err := strconv.ParseBool(a.consent.State)
		if err != nil {
			a.cmd.SilenceUsage = false
			return fmt.Errorf("state must be either true or false, or not set")
		}

		for _, source := range sources {
			if err := cm.SetState(source, state); err != nil {
				return err
			}
		}
	}

	var failedSources []string
	for _, source := range sources {
		state, err := cm.GetState(source)
		if source == "" {
			source = "Global"
		}
		if err != nil {
			slog.Error("Failed to get consent state for source", "source", source, "error", err)
			failedSources = append(failedSources, source)
			continue
		}

		if _, err := fmt.Fprintf(a.out(), "%s: %t\n", source, state); err != nil {
			return err
		}
	}

	if len(failedSources) > 0 {
		return fmt.Errorf("failed to get consent state for sources: %s", strings.Join(failedSources, ", "))
	}
	return nil
}
