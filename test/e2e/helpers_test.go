package e2e_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anhhuycan83/rclouned/internal/config"
	"github.com/anhhuycan83/rclouned/internal/rclone"
	"github.com/anhhuycan83/rclouned/internal/syncer"
	"github.com/anhhuycan83/rclouned/internal/workspace"
)

var quietLogger = slog.New(slog.DiscardHandler)

// fakeRcloneScript is a working stand-in for rclone that syncs between
// the local folder and the directory named by RCLONED_E2E_REMOTE. Roots
// of the form "fakeremote:<path>" resolve into that directory. It
// implements exactly the subcommands the backend issues: check, lsf,
// copy, delete, version, and config dump. --dry-run turns copy and
// delete into no-ops, like the real tool.
const fakeRcloneScript = `#!/bin/sh
PATH=/usr/local/bin:/usr/bin:/bin

resolve() {
	case "$1" in
	fakeremote:*) printf '%s/%s' "$RCLONED_E2E_REMOTE" "${1#fakeremote:}" ;;
	*) printf '%s' "$1" ;;
	esac
}

dry=0
while [ $# -gt 0 ]; do
	case "$1" in
	--dry-run) dry=1; shift ;;
	-*) shift ;;
	*) break ;;
	esac
done

sub="$1"
shift

case "$sub" in
version)
	echo "rclone v1.66.0"
	exit 0
	;;
config)
	printf '%s' '{"fakeremote":{"type":"local"}}'
	exit 0
	;;
check)
	differ=""; mdst=""; msrc=""; src=""; dst=""
	while [ $# -gt 0 ]; do
		case "$1" in
		--differ) differ="$2"; shift 2 ;;
		--missing-on-dst) mdst="$2"; shift 2 ;;
		--missing-on-src) msrc="$2"; shift 2 ;;
		--exclude) shift 2 ;;
		*)
			if [ -z "$src" ]; then src="$1"; else dst="$1"; fi
			shift
			;;
		esac
	done
	srcdir=$(resolve "$src")
	dstdir=$(resolve "$dst")
	: > "$differ"; : > "$mdst"; : > "$msrc"
	if [ -d "$srcdir" ]; then
		(cd "$srcdir" && find . -type f ! -path './.rclouned/*' | sed 's|^\./||') |
		while IFS= read -r f; do
			if [ ! -f "$dstdir/$f" ]; then
				printf '%s\n' "$f" >> "$mdst"
			elif ! cmp -s "$srcdir/$f" "$dstdir/$f"; then
				printf '%s\n' "$f" >> "$differ"
			fi
		done
	fi
	if [ -d "$dstdir" ]; then
		(cd "$dstdir" && find . -type f ! -path './.rclouned/*' | sed 's|^\./||') |
		while IFS= read -r f; do
			[ -f "$srcdir/$f" ] || printf '%s\n' "$f" >> "$msrc"
		done
	fi
	if [ -s "$differ" ] || [ -s "$mdst" ] || [ -s "$msrc" ]; then
		exit 1
	fi
	exit 0
	;;
lsf)
	ff=""; root=""
	while [ $# -gt 0 ]; do
		case "$1" in
		--files-from) ff="$2"; shift 2 ;;
		--format) shift 2 ;;
		-R) shift ;;
		*) root="$1"; shift ;;
		esac
	done
	rootdir=$(resolve "$root")
	while IFS= read -r f || [ -n "$f" ]; do
		[ -z "$f" ] && continue
		if [ -f "$rootdir/$f" ]; then
			printf '%s;%s\n' "$f" "$(date -r "$rootdir/$f" '+%Y-%m-%d %H:%M:%S')"
		fi
	done < "$ff"
	exit 0
	;;
copy)
	ff=""; src=""; dst=""
	while [ $# -gt 0 ]; do
		case "$1" in
		--files-from) ff="$2"; shift 2 ;;
		*)
			if [ -z "$src" ]; then src="$1"; else dst="$1"; fi
			shift
			;;
		esac
	done
	[ "$dry" = 1 ] && exit 0
	srcdir=$(resolve "$src")
	dstdir=$(resolve "$dst")
	while IFS= read -r f || [ -n "$f" ]; do
		[ -z "$f" ] && continue
		if [ -f "$srcdir/$f" ]; then
			mkdir -p "$dstdir/$(dirname "$f")"
			cp -p "$srcdir/$f" "$dstdir/$f"
		fi
	done < "$ff"
	exit 0
	;;
delete)
	ff=""; root=""
	while [ $# -gt 0 ]; do
		case "$1" in
		--files-from) ff="$2"; shift 2 ;;
		--rmdirs) shift ;;
		*) root="$1"; shift ;;
		esac
	done
	[ "$dry" = 1 ] && exit 0
	rootdir=$(resolve "$root")
	while IFS= read -r f || [ -n "$f" ]; do
		[ -z "$f" ] && continue
		rm -f "$rootdir/$f"
	done < "$ff"
	find "$rootdir" -mindepth 1 -type d -empty ! -path '*/.rclouned*' -delete 2>/dev/null
	exit 0
	;;
esac
exit 0
`

// harness holds one full sync setup: a local folder with its metadata
// directory and config file, a directory standing in for the remote,
// and a configuration loaded through the real loader.
type harness struct {
	Folder string
	Remote string
	WS     *workspace.Workspace
	Cfg    *config.Config
}

// newHarness installs the fake rclone on PATH, seeds the folder's
// metadata directory with the given config body, and loads it.
func newHarness(t *testing.T, configYAML string) *harness {
	t.Helper()

	clearConfigEnv(t)

	binDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "rclone"), []byte(fakeRcloneScript), 0o755))
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))

	folder := t.TempDir()
	remote := t.TempDir()
	t.Setenv("RCLONED_E2E_REMOTE", remote)

	require.NoError(t, os.MkdirAll(filepath.Join(folder, ".rclouned"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(folder, ".rclouned", "config.yaml"),
		[]byte(configYAML),
		0o644,
	))

	ws, err := workspace.New(folder)
	require.NoError(t, err)

	cfg, err := config.Load(ws)
	require.NoError(t, err)

	return &harness{
		Folder: ws.Root(),
		Remote: remote,
		WS:     ws,
		Cfg:    cfg,
	}
}

// clearConfigEnv unsets ambient overrides so the harness config is
// exactly what the test wrote.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"RCLOUNED_REMOTE",
		"RCLOUNED_SUBDIR",
		"RCLOUNED_OPTIONS",
		"RCLOUNED_INTERVAL",
		"RCLOUNED_DRYRUN",
		"RCLOUNED_CAREFUL",
		"RCLOUNED_EXCLUDE",
		"RCLOUNED_LOGFILE",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

// runCycle executes exactly one sync cycle through the real loop, the
// real backend, and the fake binary.
func (h *harness) runCycle(t *testing.T) {
	t.Helper()

	backend := rclone.New(h.Cfg, h.WS, quietLogger)
	loop := syncer.NewLoop(backend, h.Cfg, h.WS, nil, quietLogger)

	// An already cancelled context lets the first cycle complete and
	// stops the loop at the sleep that follows it.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, loop.Run(ctx))
}

func (h *harness) setMarker(t *testing.T, ts time.Time) {
	t.Helper()
	require.NoError(t, syncer.StoreLastSync(h.WS.LastSyncPath(), ts))
}

func writeFile(t *testing.T, root, rel, content string, mtime time.Time) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)

	return string(data)
}

func exists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

// treeSnapshot maps relative path to content for every file under root,
// skipping the metadata directory.
func treeSnapshot(t *testing.T, root string) map[string]string {
	t.Helper()

	snap := map[string]string{}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}

		if d.IsDir() {
			if rel == workspace.MetadataDirName {
				return filepath.SkipDir
			}
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}

		snap[filepath.ToSlash(rel)] = string(data)

		return nil
	})
	require.NoError(t, err)

	return snap
}

// backupStamps lists the per-cycle backup directories under root.
func backupStamps(t *testing.T, root string) []string {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(root, ".rclouned", "backups"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)

	var stamps []string
	for _, e := range entries {
		stamps = append(stamps, e.Name())
	}

	return stamps
}

// conflictCopies lists files directly under root whose name carries a
// conflict suffix.
func conflictCopies(t *testing.T, root string) []string {
	t.Helper()

	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		if strings.Contains(e.Name(), "_conflict-") {
			names = append(names, e.Name())
		}
	}

	return names
}
