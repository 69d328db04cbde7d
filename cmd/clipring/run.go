package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spideyz0r/clipring/pkg/clipboard"
	"github.com/spideyz0r/clipring/pkg/daemon"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the clipboard and serve the cycling hotkeys",
		Long: `Starts the clipboard watcher, the hotkey cycling controller and the
periodic housekeeping (retention, archiving, snapshots, log cleanup).
Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, sessionOpts{store: true, logFile: true})
			if err != nil {
				return err
			}
			defer s.Close()

			backend := clipboard.New()
			defer backend.Close()

			d, err := daemon.New(s.cfg, daemon.Deps{Store: s.db, Backend: backend})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			slog.Info("clipring starting", "version", Version, "db", s.cfg.Database.Path)
			return d.Run(ctx)
		},
	}
}
