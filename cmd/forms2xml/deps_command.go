package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"forms2xml/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check converter tools and gateway directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cfg)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(results))
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				rows = append(rows, []string{
					result.Name,
					colorText(statusKindLabel(kind), kind, colorize),
					result.Detail,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			if failed := preflight.Failed(results); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, result := range failed {
					names = append(names, result.Name)
				}
				return fmt.Errorf("failed checks: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
}
