package main

import (
	"github.com/spf13/cobra"

	"github.com/linnemanlabs/herald/internal/alerting"
)

func newItemsCmd(a *app) *cobra.Command {
	var (
		f        alerting.Filter
		minScore int
		maxScore int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List the scored item pool of the latest run",
		Long: `Items lists every item the latest run scored, including those the gate
rejected and near-duplicates folded into a cluster, with their position in
the score-ranked pool. Use the index or ID with "herald publish".

Statuses: seen, unseen, draft, filtered, passes, or a gate state such as
REJECTED_SEEN_SIMILAR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("min-score") {
				f.MinScore = &minScore
			}
			if cmd.Flags().Changed("max-score") {
				f.MaxScore = &maxScore
			}

			d, err := a.buildDeps(ctx, depsOptions{})
			if err != nil {
				return err
			}
			defer d.close()

			entries, err := d.svc.Query(ctx, f)
			if err != nil {
				return explainStateErr(err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, entries)
			}
			printEntries(out, newStyles(out), entries)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&minScore, "min-score", 0, "only items scoring at least this")
	fl.IntVar(&maxScore, "max-score", 0, "only items scoring at most this")
	fl.StringVar(&f.Topic, "topic", "", "matched topic substring, case-insensitive")
	fl.StringVar(&f.Keyword, "keyword", "", "matched keyword or title substring, case-insensitive")
	fl.StringVar(&f.Status, "status", "", "status filter (see help)")
	fl.StringVar(&f.Sort, "sort", "score", "sort by score, date or title")
	fl.IntVarP(&f.Limit, "limit", "n", 0, "show at most this many items (0 = all)")
	fl.BoolVar(&asJSON, "json", false, "print the items as JSON")
	return cmd
}
