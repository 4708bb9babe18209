package syncer

import (
	"fmt"
	"time"

	"github.com/anhhuycan83/rclouned/internal/errors"
)

// MovePair is a local rename preserving a divergent copy under a new name
// before a download overwrites the original.
type MovePair struct {
	From string
	To   string
}

// ActionPlan is everything one cycle intends to do, grouped by action
// class. Paths are folder-relative. Backup entries are always resolved by
// archiving the live content to the cycle's backup directory and then
// removing it from the live tree, never by a plain copy.
type ActionPlan struct {
	Upload       []string
	Download     []string
	LocalMoves   []MovePair
	LocalBackup  []string
	RemoteBackup []string

	// ConflictSuffix is the per-cycle tag appended to preserved conflict
	// copies.
	ConflictSuffix string
}

// Empty reports whether the plan contains no actions.
func (p *ActionPlan) Empty() bool {
	return len(p.Upload) == 0 && len(p.Download) == 0 && len(p.LocalMoves) == 0 &&
		len(p.LocalBackup) == 0 && len(p.RemoteBackup) == 0
}

// BuildPlan decides what to do with every path in the diff, comparing each
// side's modification time against the last successful sync start. This is
// a pure function over fetched inputs with no I/O.
//
// For a path differing on both sides:
//   - only local changed since lastSync: upload it (careful mode archives
//     the remote copy first)
//   - only remote changed since lastSync: download it (careful mode
//     archives the local copy first)
//   - anything else is a conflict: the local copy is renamed with the
//     conflict suffix and uploaded, and the remote copy is downloaded, so
//     both versions survive on both sides
//
// A path present on one side only is uploaded or downloaded when that
// side changed since lastSync; otherwise it is a leftover of a deletion on
// the other side and is archived off the live tree, regardless of careful
// mode. Nothing is ever removed without an archive.
//
// A diff path with no modification time on a required side means the diff
// and listing snapshots disagree; the plan is abandoned rather than built
// on inconsistent data.
func BuildPlan(lastSync time.Time, diff DiffPartitions, times *ModTimeTable, careful bool, stamp string) (*ActionPlan, error) {
	plan := &ActionPlan{ConflictSuffix: "_conflict-" + stamp}

	for _, p := range diff.Differing {
		local, ok := times.Local(p)
		if !ok {
			return nil, fmt.Errorf("%w: %s (local)", errors.ErrModTimeMissing, p)
		}

		remote, ok := times.Remote(p)
		if !ok {
			return nil, fmt.Errorf("%w: %s (remote)", errors.ErrModTimeMissing, p)
		}

		localChanged := !local.Before(lastSync)
		remoteChanged := !remote.Before(lastSync)

		switch {
		case localChanged && !remoteChanged:
			plan.Upload = append(plan.Upload, p)
			if careful {
				plan.RemoteBackup = append(plan.RemoteBackup, p)
			}

		case !localChanged && remoteChanged:
			plan.Download = append(plan.Download, p)
			if careful {
				plan.LocalBackup = append(plan.LocalBackup, p)
			}

		default:
			// Both changed, or neither did yet the backend reports a
			// mismatch. Either way there is no safe winner.
			conflict := p + plan.ConflictSuffix
			plan.LocalMoves = append(plan.LocalMoves, MovePair{From: p, To: conflict})
			plan.Download = append(plan.Download, p)
			plan.Upload = append(plan.Upload, conflict)
		}
	}

	for _, p := range diff.MissingOnRemote {
		local, ok := times.Local(p)
		if !ok {
			return nil, fmt.Errorf("%w: %s (local)", errors.ErrModTimeMissing, p)
		}

		if !local.Before(lastSync) {
			plan.Upload = append(plan.Upload, p)
		} else {
			plan.LocalBackup = append(plan.LocalBackup, p)
		}
	}

	for _, p := range diff.MissingOnLocal {
		remote, ok := times.Remote(p)
		if !ok {
			return nil, fmt.Errorf("%w: %s (remote)", errors.ErrModTimeMissing, p)
		}

		if !remote.Before(lastSync) {
			plan.Download = append(plan.Download, p)
		} else {
			plan.RemoteBackup = append(plan.RemoteBackup, p)
		}
	}

	return plan, nil
}
