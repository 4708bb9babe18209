package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/anhhuycan83/rclouned/internal/config"
	"github.com/anhhuycan83/rclouned/internal/history"
	"github.com/anhhuycan83/rclouned/internal/workspace"
)

// stampLayout formats a cycle's start time into the tag shared by that
// cycle's conflict suffix and backup directory.
const stampLayout = "20060102-150405"

// historyKeep bounds the cycle journal.
const historyKeep = 500

// Loop drives sync cycles one after another until its context is
// cancelled. Cycles never overlap and a cycle in progress always runs to
// completion; cancellation takes effect between cycles.
type Loop struct {
	backend Backend
	cfg     *config.Config
	ws      *workspace.Workspace
	exec    *Executor
	lock    *Lock
	journal *history.History
	logger  *slog.Logger
}

// NewLoop wires a loop over one folder, one remote, and one backend. The
// journal may be nil; cycles then run unrecorded.
func NewLoop(backend Backend, cfg *config.Config, ws *workspace.Workspace, journal *history.History, logger *slog.Logger) *Loop {
	return &Loop{
		backend: backend,
		cfg:     cfg,
		ws:      ws,
		exec:    NewExecutor(backend, cfg, ws, logger),
		lock:    NewLock(ws.LockPath(), logger),
		journal: journal,
		logger:  logger,
	}
}

// Run blocks, executing one cycle per configured interval. A failed cycle
// is logged and recorded; the loop then proceeds to the next one. Run
// returns nil when ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		start := time.Now()

		// Shutdown is honored between cycles only; the cycle itself
		// runs on a detached context.
		plan, err := l.runCycle(context.WithoutCancel(ctx))
		if err != nil {
			l.logger.Error("sync cycle failed", slog.String("error", err.Error()))
		}

		elapsed := time.Since(start)
		l.record(start, elapsed, plan, err)

		sleep := l.cfg.Period() - elapsed
		if sleep <= 0 {
			l.logger.Info("cycle overran the interval, starting the next immediately",
				slog.Duration("elapsed", elapsed.Truncate(time.Millisecond)),
			)

			select {
			case <-ctx.Done():
				l.logger.Info("shutting down")
				return nil
			default:
			}

			continue
		}

		l.logger.Info("cycle finished, sleeping",
			slog.Duration("elapsed", elapsed.Truncate(time.Millisecond)),
			slog.Duration("sleep", sleep.Truncate(time.Millisecond)),
		)

		select {
		case <-ctx.Done():
			l.logger.Info("shutting down")
			return nil
		case <-time.After(sleep):
		}
	}
}

// runCycle executes one full cycle under the folder lock: diff, modtime
// resolution, planning, apply, and marker update. The returned plan is
// what was attempted, nil if the cycle failed before planning.
func (l *Loop) runCycle(ctx context.Context) (*ActionPlan, error) {
	if err := l.lock.Acquire(); err != nil {
		return nil, err
	}
	defer l.lock.Release()

	lastSync, err := LoadLastSync(l.ws.LastSyncPath(), l.logger)
	if err != nil {
		return nil, err
	}

	l.logger.Info("checking for changes",
		slog.String("folder", l.cfg.Folder),
		slog.String("remote", l.cfg.RemoteRoot()),
	)

	diff, syncStart, err := CollectDiff(ctx, l.backend)
	if err != nil {
		return nil, err
	}

	times, err := ResolveModTimes(ctx, l.backend, l.cfg.Folder, l.cfg.RemoteRoot(), diff)
	if err != nil {
		return nil, err
	}

	stamp := syncStart.Format(stampLayout)

	plan, err := BuildPlan(lastSync, diff, times, l.cfg.Careful, stamp)
	if err != nil {
		return nil, err
	}

	l.logPlan(plan)

	if err := l.exec.Apply(ctx, plan, stamp); err != nil {
		return plan, err
	}

	if l.cfg.DryRun {
		l.logger.Info("dry run: last-sync marker left untouched")
		return plan, nil
	}

	if err := StoreLastSync(l.ws.LastSyncPath(), syncStart); err != nil {
		return plan, err
	}

	return plan, nil
}

func (l *Loop) logPlan(plan *ActionPlan) {
	if plan.Empty() {
		return
	}

	l.logger.Info("plan computed",
		slog.Int("uploads", len(plan.Upload)),
		slog.Int("downloads", len(plan.Download)),
		slog.Int("conflicts", len(plan.LocalMoves)),
		slog.Int("local_archives", len(plan.LocalBackup)),
		slog.Int("remote_archives", len(plan.RemoteBackup)),
	)

	l.logger.Debug("plan detail",
		slog.Any("upload", plan.Upload),
		slog.Any("download", plan.Download),
		slog.Any("local_backup", plan.LocalBackup),
		slog.Any("remote_backup", plan.RemoteBackup),
	)
}

// record appends the cycle outcome to the journal. Journal failures are
// logged and swallowed; the journal is diagnostic, never load-bearing.
func (l *Loop) record(start time.Time, elapsed time.Duration, plan *ActionPlan, cycleErr error) {
	if l.journal == nil {
		return
	}

	rec := history.CycleRecord{
		Start:      start,
		DurationMS: elapsed.Milliseconds(),
		DryRun:     l.cfg.DryRun,
	}

	if plan != nil {
		rec.Uploads = len(plan.Upload)
		rec.Downloads = len(plan.Download)
		rec.Conflicts = len(plan.LocalMoves)
		rec.LocalArchived = len(plan.LocalBackup)
		rec.RemoteArchived = len(plan.RemoteBackup)
	}

	if cycleErr != nil {
		rec.Error = cycleErr.Error()
	}

	if err := l.journal.Append(rec); err != nil {
		l.logger.Warn("recording cycle", slog.String("error", err.Error()))
		return
	}

	if err := l.journal.Prune(historyKeep); err != nil {
		l.logger.Warn("pruning cycle journal", slog.String("error", err.Error()))
	}
}
