package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DiffPartitions is the cleaned-up diff snapshot for one cycle: three
// disjoint, sorted, deduplicated sets of folder-relative paths.
type DiffPartitions struct {
	Differing       []string
	MissingOnRemote []string
	MissingOnLocal  []string
}

// Total returns the number of paths across all three partitions.
func (d DiffPartitions) Total() int {
	return len(d.Differing) + len(d.MissingOnRemote) + len(d.MissingOnLocal)
}

// CollectDiff runs the backend check and partitions its report. The wall
// clock is read immediately before the check is issued; that instant is the
// candidate last-sync value, persisted only if the whole cycle succeeds.
// Any change made after it is re-examined next cycle at the latest.
func CollectDiff(ctx context.Context, backend Backend) (DiffPartitions, time.Time, error) {
	syncStart := time.Now()

	report, err := backend.Check(ctx)
	if err != nil {
		return DiffPartitions{}, time.Time{}, fmt.Errorf("collecting diff: %w", err)
	}

	diff := DiffPartitions{
		Differing:       cleanPaths(report.Differing),
		MissingOnRemote: cleanPaths(report.MissingOnRemote),
		MissingOnLocal:  cleanPaths(report.MissingOnLocal),
	}

	return diff, syncStart, nil
}

// cleanPaths trims, drops blanks, deduplicates, and sorts, so downstream
// stages consume the partition deterministically.
func cleanPaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))

	var out []string

	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if _, dup := seen[p]; dup {
			continue
		}

		seen[p] = struct{}{}
		out = append(out, p)
	}

	sort.Strings(out)

	return out
}
