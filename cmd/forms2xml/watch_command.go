package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"forms2xml/internal/logging"
	"forms2xml/internal/upgrade"
	"forms2xml/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var flags upgradeFlags
	var concurrency, retries int
	var settle time.Duration

	cmd := &cobra.Command{
		Use:   "watch <src-dir> <dst-dir>",
		Short: "Upgrade every Forms 6 module copied into a directory",
		Long: `Watch src-dir and upgrade every .fmb module that appears in it.

Each module is upgraded into dst-dir under its own name once it stopped
changing for the settle period. When both directories are the same, the
configured suffix is added instead and suffixed modules are not picked up
again. Failed upgrades are retried with a growing pause.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcDir, dstDir := args[0], args[1]
			for _, dir := range []string{srcDir, dstDir} {
				info, err := os.Stat(dir)
				if err != nil {
					return err
				}
				if !info.IsDir() {
					return fmt.Errorf("%s is not a directory", dir)
				}
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			suffix, err := flags.resolveSuffix(cmd, cfg)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			u, err := ctx.newUpgrader(cmd, flags, logger)
			if err != nil {
				return err
			}

			opts := watch.Options{
				Concurrency: cfg.Upgrade.WatchConcurrency,
				Retries:     cfg.Upgrade.WatchRetries,
				Settle:      settle,
			}
			if cmd.Flags().Changed("concurrency") {
				opts.Concurrency = concurrency
			}
			if cmd.Flags().Changed("retries") {
				opts.Retries = retries
			}

			inPlace := sameDirectory(srcDir, dstDir)
			opts.Match = func(path string) bool {
				return isUpgradeCandidate(path, suffix, inPlace)
			}
			handle := func(ctx context.Context, path string) error {
				dst := filepath.Join(dstDir, filepath.Base(path))
				if inPlace {
					dst = ""
				}
				_, err := u.Run(ctx, path, dst)
				if errors.Is(err, upgrade.ErrSameFile) || errors.Is(err, upgrade.ErrNotBinary) {
					return watch.Permanent(err)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s, upgrading into %s\n", srcDir, dstDir)
			return watch.New(srcDir, handle, opts, logger).Run(runCtx)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&concurrency, "concurrency", watch.DefaultConcurrency, "Maximum upgrades running in parallel (defaults to upgrade.watch_concurrency)")
	cmd.Flags().IntVar(&retries, "retries", watch.DefaultRetries, "Attempts per module (defaults to upgrade.watch_retries)")
	cmd.Flags().DurationVar(&settle, "settle", watch.DefaultSettle, "Quiet period before a new module is picked up")
	return cmd
}

// isUpgradeCandidate accepts visible .fmb files, skipping modules that are
// themselves upgrade results when upgrading in place.
func isUpgradeCandidate(path, suffix string, inPlace bool) bool {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if strings.HasPrefix(base, ".") || !strings.EqualFold(ext, ".fmb") {
		return false
	}
	return !inPlace || !strings.HasSuffix(strings.TrimSuffix(base, ext), suffix)
}

func sameDirectory(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
