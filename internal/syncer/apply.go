package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anhhuycan83/rclouned/internal/config"
	"github.com/anhhuycan83/rclouned/internal/workspace"
)

// Executor realizes an ActionPlan through the backend in a fixed order:
//
//  1. conflict renames, so divergent local copies survive under their new
//     name before anything else touches them
//  2. local archive-and-remove
//  3. remote archive-and-remove
//  4. uploads
//  5. downloads
//
// Archive steps only issue the removal after the archive copy has
// succeeded. Steps with no paths are skipped without a backend call. In
// dry-run mode steps 1-3 are logged instead of executed and steps 4-5 go
// to the backend, which simulates them.
type Executor struct {
	backend Backend
	cfg     *config.Config
	ws      *workspace.Workspace
	logger  *slog.Logger
}

// NewExecutor creates an executor bound to one folder and remote.
func NewExecutor(backend Backend, cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) *Executor {
	return &Executor{
		backend: backend,
		cfg:     cfg,
		ws:      ws,
		logger:  logger,
	}
}

// Apply executes the plan. The stamp names the backup directory for this
// cycle; it is the same stamp the plan's conflict suffix was built from.
func (e *Executor) Apply(ctx context.Context, plan *ActionPlan, stamp string) error {
	if plan.Empty() {
		e.logger.Info("nothing to synchronize")
		return nil
	}

	if err := e.moveConflicts(ctx, plan.LocalMoves); err != nil {
		return err
	}

	backupRel := e.ws.BackupsPrefix(stamp)

	if err := e.archiveLocal(ctx, plan.LocalBackup, backupRel); err != nil {
		return err
	}

	if err := e.archiveRemote(ctx, plan.RemoteBackup, backupRel); err != nil {
		return err
	}

	if len(plan.Upload) > 0 {
		e.logger.Info("uploading", slog.Int("files", len(plan.Upload)))

		if err := e.backend.Copy(ctx, e.cfg.Folder, e.cfg.RemoteRoot(), plan.Upload); err != nil {
			return fmt.Errorf("uploading files: %w", err)
		}
	}

	if len(plan.Download) > 0 {
		e.logger.Info("downloading", slog.Int("files", len(plan.Download)))

		if err := e.backend.Copy(ctx, e.cfg.RemoteRoot(), e.cfg.Folder, plan.Download); err != nil {
			return fmt.Errorf("downloading files: %w", err)
		}
	}

	return nil
}

func (e *Executor) moveConflicts(ctx context.Context, moves []MovePair) error {
	for _, mv := range moves {
		if e.cfg.DryRun {
			e.logger.Info("dry run: would preserve conflict copy",
				slog.String("from", mv.From),
				slog.String("to", mv.To),
			)

			continue
		}

		e.logger.Info("preserving conflict copy",
			slog.String("from", mv.From),
			slog.String("to", mv.To),
		)

		if err := e.backend.Move(ctx, e.ws.AbsPath(mv.From), e.ws.AbsPath(mv.To)); err != nil {
			return fmt.Errorf("preserving conflict copy of %s: %w", mv.From, err)
		}
	}

	return nil
}

func (e *Executor) archiveLocal(ctx context.Context, paths []string, backupRel string) error {
	if len(paths) == 0 {
		return nil
	}

	if e.cfg.DryRun {
		e.logger.Info("dry run: would archive local files",
			slog.Int("files", len(paths)),
			slog.String("to", backupRel),
		)

		return nil
	}

	e.logger.Info("archiving local files",
		slog.Int("files", len(paths)),
		slog.String("to", backupRel),
	)

	if err := e.backend.Copy(ctx, e.cfg.Folder, e.ws.AbsPath(backupRel), paths); err != nil {
		return fmt.Errorf("archiving local files: %w", err)
	}

	if err := e.backend.Delete(ctx, e.cfg.Folder, paths); err != nil {
		return fmt.Errorf("removing archived local files: %w", err)
	}

	return nil
}

func (e *Executor) archiveRemote(ctx context.Context, paths []string, backupRel string) error {
	if len(paths) == 0 {
		return nil
	}

	if e.cfg.DryRun {
		e.logger.Info("dry run: would archive remote files",
			slog.Int("files", len(paths)),
			slog.String("to", backupRel),
		)

		return nil
	}

	e.logger.Info("archiving remote files",
		slog.Int("files", len(paths)),
		slog.String("to", backupRel),
	)

	if err := e.backend.Copy(ctx, e.cfg.RemoteRoot(), e.cfg.RemoteSubPath(backupRel), paths); err != nil {
		return fmt.Errorf("archiving remote files: %w", err)
	}

	if err := e.backend.Delete(ctx, e.cfg.RemoteRoot(), paths); err != nil {
		return fmt.Errorf("removing archived remote files: %w", err)
	}

	return nil
}
