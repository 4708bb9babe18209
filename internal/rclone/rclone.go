// Package rclone drives the rclone command line tool as the transfer
// backend. Every invocation goes through one folder-scoped Rclone value;
// path lists cross into rclone through --files-from scratch files under
// the metadata directory, which are removed as soon as the invocation
// they fed has finished.
package rclone

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/executor"
	"github.com/tidwall/gjson"

	"github.com/anhhuycan83/rclouned/internal/config"
	"github.com/anhhuycan83/rclouned/internal/errors"
	"github.com/anhhuycan83/rclouned/internal/syncer"
	"github.com/anhhuycan83/rclouned/internal/workspace"
)

const program = "rclone"

const scratchFilePerm = fs.FileMode(0o644)

// Scratch file names under the sync.tmp directory, one per invocation
// kind.
const (
	diffFile         = "diff.txt"
	missingOnDstFile = "dst.txt"
	missingOnSrcFile = "src.txt"
	localCheckFile   = "local_check.txt"
	remoteCheckFile  = "remote_check.txt"
	localBackupFile  = "local_backup.txt"
	remoteBackupFile = "remote_backup.txt"
	uploadFile       = "upload.txt"
	downloadFile     = "download.txt"
)

// Rclone implements the transfer backend over the rclone CLI. Extra
// flags from the configuration are passed to every invocation; in
// dry-run mode every mutating subcommand additionally gets --dry-run.
type Rclone struct {
	cfg    *config.Config
	ws     *workspace.Workspace
	logger *slog.Logger
}

var _ syncer.Backend = (*Rclone)(nil)

// New returns a backend bound to one folder and its configured remote.
func New(cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) *Rclone {
	return &Rclone{
		cfg:    cfg,
		ws:     ws,
		logger: logger,
	}
}

// Preflight verifies that rclone can run at all and that the configured
// remote exists in its configuration. Called once at startup, before the
// first cycle.
func (r *Rclone) Preflight(ctx context.Context) error {
	res, err := executor.New(program, "version").Execute(ctx, executor.WithCapture(true, true, false))
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrBackendUnavailable, err)
	}

	if version, _, found := strings.Cut(res.Stdout, "\n"); found {
		r.logger.Debug("rclone available", slog.String("version", version))
	}

	res, err = executor.New(program, "config", "dump").Execute(ctx, executor.WithCapture(true, true, false))
	if err != nil {
		return fmt.Errorf("reading rclone config: %w", err)
	}

	if _, ok := gjson.Parse(res.Stdout).Map()[r.cfg.Remote]; !ok {
		return fmt.Errorf("%w: %q", errors.ErrRemoteUnknown, r.cfg.Remote)
	}

	return nil
}

// Check diffs the remote subtree against the local folder. The remote is
// the check's source and the folder its destination, so the dst report
// holds paths missing locally and the src report paths missing remotely.
// A non-zero exit only means differences were found; the reports are
// read regardless.
func (r *Rclone) Check(ctx context.Context) (*syncer.CheckReport, error) {
	if err := r.ws.EnsureScratchDir(); err != nil {
		return nil, err
	}

	diffPath := filepath.Join(r.ws.ScratchDir(), diffFile)
	dstPath := filepath.Join(r.ws.ScratchDir(), missingOnDstFile)
	srcPath := filepath.Join(r.ws.ScratchDir(), missingOnSrcFile)

	args := []string{
		"check",
		"--differ", diffPath,
		"--missing-on-dst", dstPath,
		"--missing-on-src", srcPath,
		"--exclude", workspace.MetadataDirName + "/**",
	}
	for _, pattern := range r.cfg.Exclude {
		args = append(args, "--exclude", pattern)
	}
	args = append(args, r.cfg.RemoteRoot(), r.cfg.Folder)

	res, err := r.run(ctx, args)
	if err != nil && (res == nil || res.ExitCode < 0) {
		return nil, fmt.Errorf("running check: %w", err)
	}

	report := &syncer.CheckReport{}

	if report.Differing, err = consumeReport(diffPath); err != nil {
		return nil, err
	}

	if report.MissingOnLocal, err = consumeReport(dstPath); err != nil {
		return nil, err
	}

	if report.MissingOnRemote, err = consumeReport(srcPath); err != nil {
		return nil, err
	}

	return report, nil
}

// List runs a recursive lsf restricted to the given paths, returning one
// "path;timestamp" line per path that exists under root.
func (r *Rclone) List(ctx context.Context, root string, paths []string) ([]string, error) {
	name := remoteCheckFile
	if root == r.cfg.Folder {
		name = localCheckFile
	}

	listPath, err := r.writeScratch(name, paths)
	if err != nil {
		return nil, err
	}
	defer r.removeScratch(listPath)

	res, err := r.run(ctx, []string{
		"lsf",
		"--format", "pt",
		"-R",
		"--files-from", listPath,
		root,
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}

	return splitLines(res.Stdout), nil
}

// Copy transfers the given paths from srcRoot to dstRoot.
func (r *Rclone) Copy(ctx context.Context, srcRoot, dstRoot string, paths []string) error {
	listPath, err := r.writeScratch(r.copyScratchName(srcRoot, dstRoot), paths)
	if err != nil {
		return err
	}
	defer r.removeScratch(listPath)

	if _, err := r.run(ctx, []string{
		"copy",
		"--files-from", listPath,
		srcRoot,
		dstRoot,
	}); err != nil {
		return fmt.Errorf("copying %s to %s: %w", srcRoot, dstRoot, err)
	}

	return nil
}

// Delete removes the given paths under root and prunes directories the
// removals left empty.
func (r *Rclone) Delete(ctx context.Context, root string, paths []string) error {
	name := remoteBackupFile
	if root == r.cfg.Folder {
		name = localBackupFile
	}

	listPath, err := r.writeScratch(name, paths)
	if err != nil {
		return err
	}
	defer r.removeScratch(listPath)

	if _, err := r.run(ctx, []string{
		"delete",
		"--files-from", listPath,
		root,
		"--rmdirs",
	}); err != nil {
		return fmt.Errorf("deleting under %s: %w", root, err)
	}

	return nil
}

// Move renames a local file in place. rclone is not involved; both paths
// are inside the sync folder on the same filesystem.
func (r *Rclone) Move(ctx context.Context, oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("renaming %s: %w", oldPath, err)
	}

	return nil
}

// run executes one rclone invocation: configured extra flags first, then
// --dry-run when applicable, then the subcommand and its arguments. A
// failing invocation's error carries the captured stderr.
func (r *Rclone) run(ctx context.Context, args []string) (*executor.Result, error) {
	full := make([]string, 0, len(args)+len(r.cfg.ExtraArgs())+1)
	full = append(full, r.cfg.ExtraArgs()...)

	if r.cfg.DryRun && args[0] != "check" {
		full = append(full, "--dry-run")
	}

	full = append(full, args...)

	r.logger.Debug("running rclone", slog.Any("args", full))

	res, err := executor.New(program, full...).Execute(ctx, executor.WithCapture(true, true, false))
	if res != nil {
		r.logger.Debug("rclone finished", slog.Int("exit", res.ExitCode))

		if out := strings.TrimSpace(res.Stdout); out != "" {
			r.logger.Debug("rclone stdout", slog.String("output", out))
		}

		if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
			r.logger.Debug("rclone stderr", slog.String("output", errOut))

			if err != nil {
				err = fmt.Errorf("%w: %s", err, errOut)
			}
		}
	}

	return res, err
}

// copyScratchName infers which transfer a copy belongs to from its roots.
func (r *Rclone) copyScratchName(srcRoot, dstRoot string) string {
	switch {
	case srcRoot == r.cfg.Folder && strings.HasPrefix(dstRoot, r.cfg.Folder):
		return localBackupFile
	case srcRoot == r.cfg.Folder:
		return uploadFile
	case dstRoot == r.cfg.Folder:
		return downloadFile
	default:
		return remoteBackupFile
	}
}

func (r *Rclone) writeScratch(name string, paths []string) (string, error) {
	if err := r.ws.EnsureScratchDir(); err != nil {
		return "", err
	}

	path := filepath.Join(r.ws.ScratchDir(), name)
	if err := os.WriteFile(path, []byte(strings.Join(paths, "\n")), scratchFilePerm); err != nil {
		return "", fmt.Errorf("writing scratch file %s: %w", name, err)
	}

	return path, nil
}

func (r *Rclone) removeScratch(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("removing scratch file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// consumeReport reads a check report file and removes it.
func consumeReport(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading check report: %w", err)
	}

	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("removing check report: %w", err)
	}

	return splitLines(string(data)), nil
}

func splitLines(s string) []string {
	var lines []string

	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}
