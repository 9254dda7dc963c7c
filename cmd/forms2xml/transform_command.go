package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"forms2xml/internal/client"
	"forms2xml/internal/transform"
)

func newTransformCommand(ctx *commandContext) *cobra.Command {
	var cellWidth, cellHeight int

	cmd := &cobra.Command{
		Use:   "transform [src] [dst]",
		Short: "Rewrite Forms 6 module XML for Forms 11",
		Long: `Rewrite Forms 6 module XML for Forms 11 without contacting a gateway.

The XML is read from src, or stdin when src is omitted or "-", and written as
UTF-8 to dst, or stdout when dst is omitted or "-". Libraries the module
subclasses from that have no Forms 11 replacement are listed on stderr.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := "-", "-"
			if len(args) > 0 {
				src = args[0]
			}
			if len(args) > 1 {
				dst = args[1]
			}

			opts := transform.Options{CellWidth: cellWidth, CellHeight: cellHeight}
			if cfg, err := ctx.ensureConfig(); err == nil {
				if !cmd.Flags().Changed("cell-width") {
					opts.CellWidth = cfg.Upgrade.CellWidth
				}
				if !cmd.Flags().Changed("cell-height") {
					opts.CellHeight = cfg.Upgrade.CellHeight
				}
			}

			body, err := readSource(cmd.InOrStdin(), src)
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}

			var report transform.Report
			return writeOutput(cmd.OutOrStdout(), dst, func(w io.Writer) (client.Result, error) {
				var err error
				report, err = transform.Process(w, bytes.NewReader(body), opts)
				return client.Result{}, err
			}, func(_ client.Result, err error) error {
				if err != nil {
					return err
				}
				printUnknownParents(cmd.ErrOrStderr(), report)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&cellWidth, "cell-width", transform.DefaultCellWidth, "Character cell width in pixels")
	cmd.Flags().IntVar(&cellHeight, "cell-height", transform.DefaultCellHeight, "Character cell height in pixels")
	return cmd
}

func printUnknownParents(w io.Writer, report transform.Report) {
	if len(report.UnknownParents) == 0 {
		return
	}
	fmt.Fprintf(w, "%s subclasses from unknown libraries: %s\n", report.Module, strings.Join(report.UnknownParents, ", "))
}
