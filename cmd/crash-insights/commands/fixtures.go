package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ubuntu/crash-insights/internal/fixtures"
)

type fixturesConfig struct {
	Case int
}

func installFixturesCmd(app *App) {
	var kinds []string
	for _, k := range fixtures.Kinds() {
		kinds = append(kinds, string(k))
	}

	cmd := &cobra.Command{
		Use:   "fixtures [KIND...]",
		Short: "Print the reference fixtures and check the serializer against them",
		Long: fmt.Sprintf(`Print the reference fixtures and check the serializer against them.

If no kind is provided, every fixture is checked. Kinds are: %s.`, strings.Join(kinds, ", ")),
		ValidArgs: kinds,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running fixtures command")
			return app.fixturesRun(args)
		},
	}

	cmd.Flags().IntVarP(&app.fixtures.Case, "case", "c", int(fixtures.CaseDefault), "the fixture case to use")

	app.cmd.AddCommand(cmd)
}

func (a App) fixturesRun(args []string) error {
	c := fixtures.Case(a.fixtures.Case)

	kinds := fixtures.Kinds()
	if len(args) > 0 {
		kinds = kinds[:0:0]
		for _, arg := range args {
			kinds = append(kinds, fixtures.Kind(arg))
		}
	}

	var errs error
	for _, k := range kinds {
		got, err := fixtures.Serialize(k, c)
		if errors.Is(err, fixtures.ErrUnknownCase) {
			a.cmd.SilenceUsage = false
			return err
		}
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}

		status := "ok"
		if err := fixtures.Validate(k, c); err != nil {
			status = "MISMATCH"
			errs = errors.Join(errs, err)
		}
		if _, err := fmt.Fprintf(a.out(), "%s\t%s\t%s\n", k, status, got); err != nil {
			return err
		}
	}
	return errs
}
