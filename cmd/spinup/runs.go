package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spinup/spinup/internal/runstore"
)

func newRunsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := runstore.Open(cmd.Context(), root.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tROUNDS\tCREATED\tQUERY")
			for _, r := range runs {
				status := string(r.Status)
				if r.ErrorKind != "" {
					status += " (" + string(r.ErrorKind) + ")"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, status, r.Rounds, r.CreatedAt.Format(time.RFC3339), truncate(r.Query, 60))
			}
			return w.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", runstore.DefaultListLimit, "maximum number of runs to show")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print one run with its event trace as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runstore.Open(cmd.Context(), root.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
