package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/herald/internal/alerting"
)

func newPublishCmd(a *app) *cobra.Command {
	var (
		sel      alerting.Selection
		markSeen bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Force-publish items from the latest pool, bypassing the gate",
		Long: `Publish sends the selected items of the latest run straight to the
configured publishers regardless of score or seen state. Select items by the
index shown by "herald items" or by full or prefix ID.

Published items are recorded in the seen state by default, so the automatic
run never reposts them. Use --dry-run to preview.`,
		Example: `  herald publish --index 1,4
  herald publish --id 3f9a2c --mark-seen=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if len(sel.Indices) == 0 && len(sel.IDs) == 0 {
				return errors.New("nothing selected: pass --index or --id")
			}

			d, err := a.buildDeps(ctx, depsOptions{deliver: true})
			if err != nil {
				return err
			}
			defer d.close()

			report, pubErr := d.svc.ForcePublish(ctx, sel, alerting.ForceOptions{
				DryRun:   a.cfg.DryRun,
				MarkSeen: markSeen,
			})

			out := cmd.OutOrStdout()
			if report != nil {
				if asJSON {
					if err := writeJSON(out, report); err != nil {
						return err
					}
				} else {
					printForceReport(out, newStyles(out), report)
				}
			}
			return pubErr
		},
	}

	fl := cmd.Flags()
	fl.IntSliceVar(&sel.Indices, "index", nil, "1-based pool indices, comma separated or repeated")
	fl.StringSliceVar(&sel.IDs, "id", nil, "item IDs or unique ID prefixes, comma separated or repeated")
	fl.BoolVar(&markSeen, "mark-seen", true, "record published items in the seen state")
	fl.BoolVar(&asJSON, "json", false, "print the publish report as JSON")
	return cmd
}
