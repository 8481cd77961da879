package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/ubuntu/crash-insights/internal/store"
)

type listConfig struct {
	Print bool
}

func installListCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored events",
		Long:  "List stored events, oldest first, with the time they were captured at.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running list command")
			return app.listRun()
		},
	}

	cmd.Flags().BoolVarP(&app.list.Print, "print", "p", false, "print the content of the events")

	app.cmd.AddCommand(cmd)
}

func (a App) listRun() error {
	events, err := store.New(a.config.EventsDir).GetAll()
	if err != nil {
		return err
	}

	for _, e := range events {
		if _, err := fmt.Fprintf(a.out(), "%s\t%s\n", e.Name, e.Time().UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
		if !a.list.Print {
			continue
		}

		data, err := e.ReadJSON()
		if err != nil {
			slog.Warn("Skipping unreadable event", "file", e.Path, "error", err)
			continue
		}
		if _, err := fmt.Fprintln(a.out(), string(data)); err != nil {
			return err
		}
	}
	return nil
}
