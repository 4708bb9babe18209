package syncer

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
)

const lockWaitBaseSeconds = 10

// Lock serializes cycles across processes sharing one sync folder. The
// underlying flock is advisory and released by the OS when its holder
// exits, so a crashed cycle cannot leave the folder locked.
type Lock struct {
	flock  *flock.Flock
	logger *slog.Logger
}

// NewLock creates an unheld lock backed by the given file path.
func NewLock(path string, logger *slog.Logger) *Lock {
	return &Lock{
		flock:  flock.New(path),
		logger: logger,
	}
}

// Acquire blocks until the lock is held. While another process holds it,
// Acquire waits 10+i^2 seconds between attempts and logs each wait. Only
// a filesystem failure is an error.
func (l *Lock) Acquire() error {
	for i := 1; ; i++ {
		locked, err := l.flock.TryLock()
		if err != nil {
			return fmt.Errorf("acquiring sync lock: %w", err)
		}

		if locked {
			return nil
		}

		wait := lockWait(i)
		l.logger.Info("sync lock held by another process, waiting",
			slog.String("path", l.flock.Path()),
			slog.Duration("wait", wait),
		)
		time.Sleep(wait)
	}
}

// lockWait is the pause before the i-th retry of a contended acquisition.
func lockWait(i int) time.Duration {
	return time.Duration(lockWaitBaseSeconds+i*i) * time.Second
}

// Release unlocks and removes the lock file. Failures are logged as
// warnings and never propagated. Calling Release without holding the
// lock is a no-op.
func (l *Lock) Release() {
	if !l.flock.Locked() {
		return
	}

	if err := l.flock.Unlock(); err != nil {
		l.logger.Warn("releasing sync lock", slog.String("error", err.Error()))
		return
	}

	if err := os.Remove(l.flock.Path()); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("removing sync lock file",
			slog.String("path", l.flock.Path()),
			slog.String("error", err.Error()),
		)
	}
}
