package syncer

import "context"

// Backend is the transfer capability the sync engine runs on. The engine,
// planner, and executor depend only on this interface, never on a specific
// invocation mechanism. Check tolerates a non-zero backend exit (differences
// found are not a failure); every other operation must succeed. A dry-run
// configured backend simulates Copy and Delete instead of performing them.
type Backend interface {
	// Check computes the three-way diff between the remote subtree and the
	// local folder, excluding the metadata directory.
	Check(ctx context.Context) (*CheckReport, error)

	// List returns one "path;timestamp" line per existing path, restricted
	// to the given relative paths under root. Paths absent on that side
	// produce no line.
	List(ctx context.Context, root string, paths []string) ([]string, error)

	// Copy transfers the given relative paths from srcRoot to dstRoot,
	// creating directories as needed.
	Copy(ctx context.Context, srcRoot, dstRoot string, paths []string) error

	// Delete removes the given relative paths under root, pruning
	// directories left empty.
	Delete(ctx context.Context, root string, paths []string) error

	// Move renames a local file. Both paths are absolute and inside the
	// sync folder.
	Move(ctx context.Context, oldPath, newPath string) error
}

// CheckReport is the raw output of Backend.Check: three disjoint sets of
// folder-relative paths.
type CheckReport struct {
	// Differing paths exist on both sides with mismatched content.
	Differing []string

	// MissingOnLocal paths exist on the remote only.
	MissingOnLocal []string

	// MissingOnRemote paths exist in the folder only.
	MissingOnRemote []string
}
