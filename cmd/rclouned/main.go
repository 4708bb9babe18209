package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/anhhuycan83/rclouned/internal/config"
	"github.com/anhhuycan83/rclouned/internal/history"
	"github.com/anhhuycan83/rclouned/internal/logging"
	"github.com/anhhuycan83/rclouned/internal/rclone"
	"github.com/anhhuycan83/rclouned/internal/syncer"
	"github.com/anhhuycan83/rclouned/internal/workspace"
)

var Version = "dev"

var verbosity int

var rootCmd = &cobra.Command{
	Use:     "rclouned <folder>",
	Short:   "Unattended two-way sync between a folder and an rclone remote",
	Args:    cobra.ExactArgs(1),
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, folder string) error {
	ws, err := workspace.New(folder)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{Verbosity: verbosity})

	logger.Info("rclouned starting",
		slog.String("version", Version),
		slog.String("folder", ws.Root()),
	)

	ws.WaitUntilPresent(logger)

	cfg, err := config.Load(ws)
	if err != nil {
		return critical(logger, err)
	}

	if cfg.LogFile {
		if err := ws.EnsureLogsDir(); err != nil {
			return critical(logger, err)
		}

		logger = logging.New(logging.Options{
			Verbosity: verbosity,
			FilePath:  ws.LogFilePath(),
		})
	}

	logger.Info("configuration loaded",
		slog.String("remote", cfg.RemoteRoot()),
		slog.Int("interval_seconds", cfg.Interval),
		slog.Bool("dry_run", cfg.DryRun),
		slog.Bool("careful", cfg.Careful),
	)

	backend := rclone.New(cfg, ws, logger)
	if err := backend.Preflight(ctx); err != nil {
		return critical(logger, err)
	}

	journal, err := history.Open(ws.HistoryPath())
	if err != nil {
		logger.Warn("cycle journal unavailable", slog.String("error", err.Error()))
		journal = nil
	} else {
		defer journal.Close()
		logLastCycle(journal, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	loop := syncer.NewLoop(backend, cfg, ws, journal, logger)
	g.Go(func() error {
		return loop.Run(gctx)
	})

	return g.Wait()
}

// logLastCycle reports how the previous run's final cycle ended, when the
// journal holds one.
func logLastCycle(journal *history.History, logger *slog.Logger) {
	rec, err := journal.Latest()
	if err != nil {
		logger.Warn("reading cycle journal", slog.String("error", err.Error()))
		return
	}

	if rec == nil {
		return
	}

	if rec.Error != "" {
		logger.Info("previous cycle failed",
			slog.Time("start", rec.Start),
			slog.String("error", rec.Error),
		)

		return
	}

	logger.Info("previous cycle",
		slog.Time("start", rec.Start),
		slog.Int("uploads", rec.Uploads),
		slog.Int("downloads", rec.Downloads),
		slog.Int("conflicts", rec.Conflicts),
		slog.Bool("dry_run", rec.DryRun),
	)
}

// critical marks an error as unrecoverable before it aborts the process.
func critical(logger *slog.Logger, err error) error {
	logger.Error("rclouned encountered a critical error and cannot continue",
		slog.String("error", err.Error()),
	)

	return err
}
