package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"decal/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check the external tools the pipeline shells out to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(deps.Defaults(cfg))
			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				note := status.Description
				if !status.Available {
					note = status.Detail
				}
				rows = append(rows, []string{
					status.Name,
					status.Command,
					yesNo(status.Available),
					yesNo(!status.Optional),
					note,
				})
			}
			table := renderTable(
				[]string{"Tool", "Command", "Available", "Required", "Notes"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprint(cmd.OutOrStdout(), table)
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				names := make([]string, 0, len(missing))
				for _, status := range missing {
					names = append(names, status.Name)
				}
				return fmt.Errorf("missing required tools: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
}
