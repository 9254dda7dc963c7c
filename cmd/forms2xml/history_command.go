package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"forms2xml/internal/api"
	"forms2xml/internal/client"
	"forms2xml/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var offline bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent conversions",
		Long: `List recent conversions from a running gateway.

When no gateway answers, or with --offline, the journal database is read
directly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}

			var items []api.Conversion
			var err error
			if !offline {
				items, err = fetchHistory(cmd.Context(), ctx, limit)
				var respErr *client.ResponseError
				if errors.As(err, &respErr) {
					return err
				}
			}
			if offline || err != nil {
				items, err = readJournal(cmd.Context(), ctx, limit)
				if err != nil {
					return err
				}
			}

			renderHistory(cmd.OutOrStdout(), items)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of conversions to show")
	cmd.Flags().BoolVar(&offline, "offline", false, "Read the journal database instead of asking the gateway")
	return cmd
}

func fetchHistory(cmdCtx context.Context, ctx *commandContext, limit int) ([]api.Conversion, error) {
	c, err := ctx.newClient(client.WithRetryMax(0))
	if err != nil {
		return nil, err
	}
	return c.Conversions(cmdCtx, limit)
}

func readJournal(cmdCtx context.Context, ctx *commandContext, limit int) ([]api.Conversion, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Journal.Enabled {
		return nil, errors.New("conversion journal disabled; enable [journal] to keep history")
	}
	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()
	records, err := store.List(cmdCtx, limit)
	if err != nil {
		return nil, err
	}
	return api.FromRecords(records), nil
}

func renderHistory(out io.Writer, items []api.Conversion) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No conversions recorded")
		return
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			formatHistoryTime(item.CreatedAt),
			item.Method,
			valueOr(item.Direction, "-"),
			colorText(item.Outcome, outcomeKind(item.Outcome), colorize),
			strconv.Itoa(item.Status),
			strconv.FormatInt(item.Bytes, 10),
			(time.Duration(item.DurationMS) * time.Millisecond).String(),
			truncate(valueOr(item.Message, item.SourcePath), 48),
		})
	}
	headers := []string{"ID", "When", "Method", "Direction", "Outcome", "Status", "Bytes", "Took", "Detail"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
	fmt.Fprintln(out, renderTable(headers, rows, aligns))
}

func formatHistoryTime(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return valueOr(value, "-")
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
