package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/herald/internal/postgres"
	"github.com/linnemanlabs/herald/internal/rawinput"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		input  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Score and gate one batch of raw items and publish the new alerts",
		Long: `Run reads one batch of raw records, scores, deduplicates and gates them
against the seen state, publishes every new alert and records each confirmed
delivery. Alerts whose delivery fails stay eligible for the next run, and the
command exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := postgres.NewQueryStatsContext(cmd.Context())

			res, err := rawinput.ReadFile(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if res.Skipped > 0 {
				a.logger.Warn(ctx, "skipped input entries that are not objects", "skipped", res.Skipped)
			}

			d, err := a.buildDeps(ctx, depsOptions{deliver: true})
			if err != nil {
				return err
			}
			defer d.close()

			report, runErr := d.svc.Run(ctx, res.Records)
			logQueryStats(ctx, a.logger)

			out := cmd.OutOrStdout()
			if report != nil {
				if asJSON {
					if err := writeJSON(out, report); err != nil {
						return err
					}
				} else {
					printRunReport(out, newStyles(out), report)
				}
			}
			return explainStateErr(runErr)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", rawinput.Stdin, "raw records as a JSON array or NDJSON, - for stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}

// logQueryStats reports the database work a command did, if any.
func logQueryStats(ctx context.Context, L log.Logger) {
	qs, ok := postgres.QueryStatsFromContext(ctx)
	if !ok {
		return
	}
	n, total, errs := qs.Snapshot()
	if n == 0 {
		return
	}
	L.Info(ctx, "database activity", "queries", n, "query_seconds", total.Seconds(), "query_errors", errs)
}
