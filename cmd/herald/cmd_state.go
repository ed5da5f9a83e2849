package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/herald/internal/seen"
)

func newStateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the seen state",
	}
	cmd.AddCommand(newStateShowCmd(a), newStateResetCmd(a))
	return cmd
}

func newStateShowCmd(a *app) *cobra.Command {
	var (
		recent int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print seen-state counts and the newest title fingerprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, closeStore, err := a.openSeenStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			st, err := store.Load(ctx)
			if err != nil {
				return explainStateErr(err)
			}

			sum := st.Summarize(recent)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, sum)
			}
			printSummary(out, newStyles(out), sum)
			return nil
		},
	}

	cmd.Flags().IntVarP(&recent, "recent", "n", 10, "number of newest titles to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func newStateResetCmd(a *app) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace the seen state with an empty one",
		Long: `Reset replaces the seen state, readable or not, with an empty one. It is
the only way to initialize a new deployment or to recover from a corrupt
state. Every item the next run gates will be treated as new.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return errors.New("refusing to reset the seen state without --confirm")
			}

			d, err := a.buildDeps(cmd.Context(), depsOptions{})
			if err != nil {
				return err
			}
			defer d.close()

			if err := d.svc.ResetState(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seen state reset")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm the reset")
	return cmd
}

// explainStateErr points the operator at the recovery command for the two
// fatal load errors.
func explainStateErr(err error) error {
	if errors.Is(err, seen.ErrNotInitialized) || errors.Is(err, seen.ErrCorrupt) {
		return fmt.Errorf("%w (initialize with: herald state reset --confirm)", err)
	}
	return err
}
