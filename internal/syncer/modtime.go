package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anhhuycan83/rclouned/internal/workspace"
)

// TimeLayout is the second-resolution timestamp format shared by the
// last-sync marker and backend listings. Times are wall-clock local time.
const TimeLayout = "2006-01-02 15:04:05"

// ModTimeTable holds per-side modification times for the paths touched by
// a diff. Keys are normalized so listings that come back in a different
// Unicode form than the check output still match.
type ModTimeTable struct {
	local  map[string]time.Time
	remote map[string]time.Time
}

// NewModTimeTable returns an empty table.
func NewModTimeTable() *ModTimeTable {
	return &ModTimeTable{
		local:  make(map[string]time.Time),
		remote: make(map[string]time.Time),
	}
}

// SetLocal records the local modification time for a path.
func (t *ModTimeTable) SetLocal(path string, ts time.Time) {
	t.local[workspace.NormPath(path)] = ts
}

// SetRemote records the remote modification time for a path.
func (t *ModTimeTable) SetRemote(path string, ts time.Time) {
	t.remote[workspace.NormPath(path)] = ts
}

// Local returns the local modification time for a path.
func (t *ModTimeTable) Local(path string) (time.Time, bool) {
	ts, ok := t.local[workspace.NormPath(path)]

	return ts, ok
}

// Remote returns the remote modification time for a path.
func (t *ModTimeTable) Remote(path string) (time.Time, bool) {
	ts, ok := t.remote[workspace.NormPath(path)]

	return ts, ok
}

// ResolveModTimes fetches modification times for the paths a diff touched:
// local times for the differing and missing-on-remote sets, remote times
// for the differing and missing-on-local sets. Paths outside the diff are
// never queried.
func ResolveModTimes(ctx context.Context, backend Backend, localRoot, remoteRoot string, diff DiffPartitions) (*ModTimeTable, error) {
	table := NewModTimeTable()

	localPaths := unionPaths(diff.Differing, diff.MissingOnRemote)
	if len(localPaths) > 0 {
		lines, err := backend.List(ctx, localRoot, localPaths)
		if err != nil {
			return nil, fmt.Errorf("listing local modtimes: %w", err)
		}

		if err := parseListing(lines, table.SetLocal); err != nil {
			return nil, fmt.Errorf("parsing local listing: %w", err)
		}
	}

	remotePaths := unionPaths(diff.Differing, diff.MissingOnLocal)
	if len(remotePaths) > 0 {
		lines, err := backend.List(ctx, remoteRoot, remotePaths)
		if err != nil {
			return nil, fmt.Errorf("listing remote modtimes: %w", err)
		}

		if err := parseListing(lines, table.SetRemote); err != nil {
			return nil, fmt.Errorf("parsing remote listing: %w", err)
		}
	}

	return table, nil
}

// parseListing parses "path;timestamp" lines. The separator is the last
// semicolon on the line; the path itself may contain semicolons.
func parseListing(lines []string, set func(string, time.Time)) error {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		idx := strings.LastIndex(line, ";")
		if idx < 0 {
			return fmt.Errorf("malformed listing line %q", line)
		}

		path := line[:idx]

		ts, err := time.ParseInLocation(TimeLayout, line[idx+1:], time.Local)
		if err != nil {
			return fmt.Errorf("malformed timestamp in listing line %q: %w", line, err)
		}

		set(path, ts)
	}

	return nil
}

func unionPaths(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)

	return out
}
