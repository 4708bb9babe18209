package syncer

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"
)

const markerFilePerm = fs.FileMode(0o644)

// LoadLastSync reads the completion marker written at the end of the
// previous successful cycle. A missing marker means the folder has never
// finished a sync; the epoch is returned so every timestamp counts as
// changed. An unparseable marker is handled the same way after a warning.
func LoadLastSync(path string, logger *slog.Logger) (time.Time, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Info("no previous sync marker, treating every file as changed")
		return time.Unix(0, 0), nil
	}

	if err != nil {
		return time.Time{}, fmt.Errorf("reading sync marker: %w", err)
	}

	ts, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(string(data)), time.Local)
	if err != nil {
		logger.Warn("sync marker is unreadable, treating every file as changed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return time.Unix(0, 0), nil
	}

	return ts, nil
}

// StoreLastSync records the start time of a cycle that completed without
// errors. The next cycle compares modification times against this value.
func StoreLastSync(path string, syncStart time.Time) error {
	data := []byte(syncStart.Format(TimeLayout) + "\n")
	if err := os.WriteFile(path, data, markerFilePerm); err != nil {
		return fmt.Errorf("writing sync marker: %w", err)
	}

	return nil
}
