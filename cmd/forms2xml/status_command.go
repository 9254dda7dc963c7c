package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"forms2xml/internal/api"
	"forms2xml/internal/client"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context())
			if err != nil {
				var respErr *client.ResponseError
				if errors.As(err, &respErr) {
					return err
				}
				addr, _ := ctx.gatewayAddress()
				return wrapConnectError(err, addr)
			}
			out := cmd.OutOrStdout()
			for _, line := range renderGatewayStatus(status, shouldColorize(out)) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func renderGatewayStatus(status api.GatewayStatus, colorize bool) []string {
	lines := renderSectionHeader("Gateway", colorize)
	if status.Running {
		lines = append(lines, renderStatusLine("Server", statusOK, "listening on "+status.Listen, colorize))
	} else {
		lines = append(lines, renderStatusLine("Server", statusWarn, "not serving", colorize))
	}
	lines = append(lines,
		renderValueLine("PID", strconv.Itoa(status.PID)),
		renderValueLine("Started", valueOr(status.StartedAt, "-")),
		renderValueLine("Staging", status.StagingDir),
		renderValueLine("Staged files", strconv.Itoa(status.StagedFiles)),
		renderValueLine("Lock", status.LockFilePath),
		renderValueLine("Journal", valueOr(status.JournalPath, "disabled")),
	)

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	for _, dep := range status.Dependencies {
		kind, message := statusOK, dep.Command
		if !dep.Available {
			kind, message = statusError, dep.Detail
			if dep.Optional {
				kind = statusWarn
			}
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, message, colorize))
	}

	if len(status.Outcomes) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Outcomes", colorize)...)
		keys := make([]string, 0, len(status.Outcomes))
		for key := range status.Outcomes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			lines = append(lines, renderStatusLine(key, outcomeKind(key), strconv.Itoa(status.Outcomes[key]), colorize))
		}
	}
	return lines
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
