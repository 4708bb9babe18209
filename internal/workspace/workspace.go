// Package workspace defines the on-disk layout of a synced folder: the
// .rclouned metadata directory and everything inside it (config, last-sync
// marker, lock file, scratch space, backups, logs, history). All other
// packages go through Workspace for paths so the layout is defined once.
package workspace

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	// MetadataDirName is the directory inside the sync folder that holds
	// all rclouned state. It is excluded from every transfer and diff.
	MetadataDirName = ".rclouned"

	// scratchDirName holds the transient path-list files handed to the
	// transfer backend. Emptied as the cycle progresses.
	scratchDirName = "sync.tmp"

	// backupsDirName holds per-cycle archive subdirectories, named by the
	// cycle stamp. Present on both the local and the remote side.
	backupsDirName = "backups"

	logsDirName = "logs"

	configFileName   = "config.yaml"
	lastSyncFileName = "lastsync.txt"
	lockFileName     = "sync.lock"
	historyFileName  = "history.db"
	logFileName      = "rclouned.log"
)

const (
	// dirPerm is the permission mode for directories created inside the
	// metadata dir. Group and other get read+execute.
	dirPerm = fs.FileMode(0o755)
)

// waitBaseSeconds is the base of the quadratic backoff used while waiting
// for the sync folder to appear: wait = waitBaseSeconds + i*i.
const waitBaseSeconds = 10

// Workspace is the on-disk layout of one synced folder. The root is
// absolute; every other path derives from it. Values are computed once at
// construction and never change.
type Workspace struct {
	root        string
	metadataDir string
}

// New creates a Workspace rooted at folder. The folder path is resolved to
// an absolute path but is not required to exist yet; WaitUntilPresent
// blocks until it does.
func New(folder string) (*Workspace, error) {
	if folder == "" {
		return nil, fmt.Errorf("sync folder must not be empty")
	}

	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolving sync folder %s: %w", folder, err)
	}

	return &Workspace{
		root:        abs,
		metadataDir: filepath.Join(abs, MetadataDirName),
	}, nil
}

// Root returns the absolute path of the sync folder.
func (w *Workspace) Root() string {
	return w.root
}

// MetadataDir returns the absolute path of the .rclouned directory.
func (w *Workspace) MetadataDir() string {
	return w.metadataDir
}

// ScratchDir returns the absolute path of the transient path-list
// directory.
func (w *Workspace) ScratchDir() string {
	return filepath.Join(w.metadataDir, scratchDirName)
}

// LogsDir returns the absolute path of the log directory.
func (w *Workspace) LogsDir() string {
	return filepath.Join(w.metadataDir, logsDirName)
}

// ConfigPath returns the absolute path of the config file.
func (w *Workspace) ConfigPath() string {
	return filepath.Join(w.metadataDir, configFileName)
}

// LastSyncPath returns the absolute path of the last-sync marker file.
func (w *Workspace) LastSyncPath() string {
	return filepath.Join(w.metadataDir, lastSyncFileName)
}

// LockPath returns the absolute path of the cycle lock file.
func (w *Workspace) LockPath() string {
	return filepath.Join(w.metadataDir, lockFileName)
}

// HistoryPath returns the absolute path of the cycle history database.
func (w *Workspace) HistoryPath() string {
	return filepath.Join(w.metadataDir, historyFileName)
}

// LogFilePath returns the absolute path of the rotating log file.
func (w *Workspace) LogFilePath() string {
	return filepath.Join(w.LogsDir(), logFileName)
}

// BackupsPrefix returns the folder-relative backup directory for a cycle
// stamp, in slash form. The same relative prefix is used on the local and
// the remote side, so archived paths keep their layout under it.
func (w *Workspace) BackupsPrefix(stamp string) string {
	return path.Join(MetadataDirName, backupsDirName, stamp)
}

// AbsPath converts a folder-relative slash path to an absolute local path.
func (w *Workspace) AbsPath(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

// EnsureScratchDir creates the scratch directory if needed.
func (w *Workspace) EnsureScratchDir() error {
	if err := os.MkdirAll(w.ScratchDir(), dirPerm); err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}

	return nil
}

// EnsureLogsDir creates the log directory if needed.
func (w *Workspace) EnsureLogsDir() error {
	if err := os.MkdirAll(w.LogsDir(), dirPerm); err != nil {
		return fmt.Errorf("creating logs directory: %w", err)
	}

	return nil
}

// WaitUntilPresent blocks until the sync folder exists, polling with a
// quadratic backoff. Covers folders on mounts that appear some time after
// boot. Each wait is logged.
func (w *Workspace) WaitUntilPresent(logger *slog.Logger) {
	for i := 1; ; i++ {
		info, err := os.Stat(w.root)
		if err == nil && info.IsDir() {
			return
		}

		wait := time.Duration(waitBaseSeconds+i*i) * time.Second
		logger.Info("sync folder not present yet, waiting",
			slog.String("folder", w.root),
			slog.Duration("wait", wait),
		)
		time.Sleep(wait)
	}
}

// NormPath normalizes a folder-relative path for use as a lookup key. It
// converts backslashes to forward slashes, collapses repeated slashes,
// trims leading and trailing slashes, and applies Unicode NFC
// normalization. Listings made on macOS come back NFD while diff output
// may be NFC; both must map to the same key.
func NormPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")

	var b strings.Builder

	prevSlash := false

	for _, r := range p {
		if r == '/' {
			if prevSlash {
				continue
			}

			prevSlash = true
		} else {
			prevSlash = false
		}

		b.WriteRune(r)
	}

	p = strings.Trim(b.String(), "/")

	return norm.NFC.String(p)
}
