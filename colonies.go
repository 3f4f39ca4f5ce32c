package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nstehr/vimy/vimy-colony/colony"
	"github.com/nstehr/vimy/vimy-colony/store"
)

var coloniesCmd = &cobra.Command{
	Use:   "colonies",
	Short: "List persisted colonies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		repo, err := store.Open(cmd.Context(), cfg.Store, logger)
		if err != nil {
			return err
		}
		defer repo.Close()

		summaries, err := repo.Summaries(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPERSONALITY\tSTATE\tTICK\tSAVED")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Personality, s.State, s.Tick, s.SavedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <colony-id>",
	Short: "Print a persisted colony snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := store.Open(cmd.Context(), cfg.Store, logger)
		if err != nil {
			return err
		}
		defer repo.Close()

		snap, err := repo.Load(cmd.Context(), args[0])
		if errors.Is(err, colony.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "no colony %q in %s\n", args[0], cfg.Store.Path)
			return err
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}
