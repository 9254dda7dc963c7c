package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"forms2xml/internal/client"
	"forms2xml/internal/config"
	"forms2xml/internal/transform"
	"forms2xml/internal/upgrade"
)

// upgradeFlags are the pipeline settings shared by upgrade and watch. Unset
// flags fall back to the [upgrade] config section.
type upgradeFlags struct {
	suffix      string
	targetAddr  string
	noTransform bool
	keepXML     bool
}

func (f *upgradeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.suffix, "suffix", upgrade.DefaultSuffix, "Suffix of upgraded modules written next to their source")
	cmd.Flags().StringVar(&f.targetAddr, "target-addr", "", "Gateway that compiles the upgraded module (defaults to upgrade.target_addr, then --addr)")
	cmd.Flags().BoolVar(&f.noTransform, "no-transform", false, "Compile the dumped XML without the Forms 11 rewrite")
	cmd.Flags().BoolVar(&f.keepXML, "keep-xml", false, "Keep the dumped and rewritten XML next to the modules")
}

// resolveSuffix returns the --suffix value when given, else the configured one.
func (f *upgradeFlags) resolveSuffix(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if !cmd.Flags().Changed("suffix") {
		return cfg.Upgrade.Suffix, nil
	}
	if strings.ContainsAny(f.suffix, `/\`) || strings.TrimSpace(f.suffix) == "" {
		return "", fmt.Errorf("invalid --suffix %q", f.suffix)
	}
	return f.suffix, nil
}

func (c *commandContext) newUpgrader(cmd *cobra.Command, flags upgradeFlags, logger *slog.Logger) (*upgrade.Upgrader, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	suffix, err := flags.resolveSuffix(cmd, cfg)
	if err != nil {
		return nil, err
	}
	opts := upgrade.Options{
		Transform: cfg.Upgrade.Transform && !flags.noTransform,
		Suffix:    suffix,
		KeepXML:   flags.keepXML,
		Layout: transform.Options{
			CellWidth:  cfg.Upgrade.CellWidth,
			CellHeight: cfg.Upgrade.CellHeight,
		},
	}
	source, err := c.newClient(client.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	var target upgrade.Converter
	targetAddr := strings.TrimSpace(flags.targetAddr)
	if targetAddr == "" {
		targetAddr = strings.TrimSpace(cfg.Upgrade.TargetAddr)
	}
	if targetAddr != "" {
		tc, err := client.New(targetAddr, client.WithToken(cfg.Server.APIToken), client.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("target gateway: %w", err)
		}
		target = tc
	}
	return upgrade.New(source, target, opts, logger), nil
}

func explainUpgradeError(err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to gateway: %w; start it with `forms2xml serve`", err)
	}
	return err
}

func newUpgradeCommand(ctx *commandContext) *cobra.Command {
	var flags upgradeFlags

	cmd := &cobra.Command{
		Use:     "upgrade <src> [dst]",
		Aliases: []string{"6to11", "6211", "convert"},
		Short:   "Upgrade a Forms 6 module to Forms 11",
		Long: `Upgrade a Forms 6 module to Forms 11.

The binary module src is dumped to XML by the gateway at --addr, rewritten for
Forms 11 and compiled by the target gateway. The result is written to dst, or
next to src with the configured suffix (orders.fmb -> orders-v11.fmb). dst is
replaced only when every step succeeded and may never be src itself.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], ""
			if len(args) > 1 {
				dst = args[1]
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := newCommandLogger(cfg, "warn")
			if err != nil {
				return err
			}
			u, err := ctx.newUpgrader(cmd, flags, logger)
			if err != nil {
				return err
			}

			res, err := u.Run(cmd.Context(), src, dst)
			if err != nil {
				return explainUpgradeError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Upgraded %s -> %s (%d bytes)\n", res.Source, res.Destination, res.Bytes)
			if res.Report != nil {
				printUnknownParents(cmd.ErrOrStderr(), *res.Report)
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
