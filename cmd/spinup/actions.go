package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spinup/spinup/internal/action"
)

func newActionsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List the actions the engine can dispatch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := action.BuildRegistry(root.cfg.Actions, root.baseDir)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reg.Describe())
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRETRIES\tDEPENDS ON\tDESCRIPTION")
			for _, d := range reg.Describe() {
				a, _ := reg.Lookup(d.ID)
				deps := strings.Join(a.Config.DependsOn, ",")
				if deps == "" {
					deps = "-"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", d.ID, a.Config.Retries, deps, d.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
