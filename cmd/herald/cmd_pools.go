package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/herald/internal/alerting"
	"github.com/linnemanlabs/herald/internal/poolstore"
)

func newPoolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List the runs whose item pools are retained",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ps, err := poolstore.Open(a.poolConfig())
			if err != nil {
				return err
			}
			defer func() { _ = ps.Close() }()

			ids, err := ps.RunIDs(ctx)
			if err != nil {
				return err
			}
			latest := ""
			if p, err := ps.LatestPool(ctx); err == nil {
				latest = p.RunID
			} else if !errors.Is(err, alerting.ErrNoPool) {
				return err
			}

			out := cmd.OutOrStdout()
			st := newStyles(out)
			if len(ids) == 0 {
				fmt.Fprintln(out, st.muted("no pools retained"))
				return nil
			}
			for _, id := range ids {
				p, err := ps.Pool(ctx, id)
				if err != nil {
					return err
				}
				line := fmt.Sprintf("%s  %s  %d items", id, p.CreatedAt.UTC().Format("2006-01-02 15:04:05"), len(p.Entries))
				if id == latest {
					line = st.heading(line + "  (latest)")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
