package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"forms2xml/internal/codec"
	"forms2xml/internal/daemon"
	"forms2xml/internal/journal"
	"forms2xml/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion gateway in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			session, err := codec.Connect(runCtx, codec.OptionsFromConfig(cfg), codec.WithLogger(logger))
			if err != nil {
				logging.ErrorWithContext(logger, "forms session unavailable", "session_connect_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check forms.oracle_home and forms.db_conn"),
				)
				return fmt.Errorf("connect forms session: %w", err)
			}

			var store *journal.Store
			if cfg.Journal.Enabled {
				store, err = journal.Open(cfg.Journal.Path)
				if err != nil {
					return fmt.Errorf("open journal: %w", err)
				}
			}

			d, err := daemon.New(cfg, session, store, logger)
			if err != nil {
				if store != nil {
					_ = store.Close()
				}
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			if err := d.Start(runCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forms2xml listening on %s\n", d.Addr())

			if err := d.Wait(); err != nil && runCtx.Err() == nil {
				return err
			}
			logger.Info("forms2xml shutting down")
			return nil
		},
	}
}
