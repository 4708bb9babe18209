// Package history keeps a journal of completed sync cycles in a bbolt
// database inside the metadata directory. The journal is diagnostic only:
// append and prune failures must never fail a cycle.
package history

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// historyDirPerm is the permission mode for the parent directory when
	// it has to be created.
	historyDirPerm = fs.FileMode(0o755)

	// historyFilePerm is the permission mode for the database file.
	historyFilePerm = fs.FileMode(0o600)

	// historyOpenTimeout is the maximum time to wait for the bolt database
	// lock.
	historyOpenTimeout = 5 * time.Second

	// keyLayout formats a cycle start time as the bucket key. Fixed width
	// in UTC so keys sort in time order.
	keyLayout = "20060102-150405.000000000"
)

var cyclesBucket = []byte("cycles")

// CycleRecord is the outcome of one sync cycle.
type CycleRecord struct {
	Start          time.Time `json:"start"`
	DurationMS     int64     `json:"duration_ms"`
	Uploads        int       `json:"uploads"`
	Downloads      int       `json:"downloads"`
	Conflicts      int       `json:"conflicts"`
	LocalArchived  int       `json:"local_archived"`
	RemoteArchived int       `json:"remote_archived"`
	DryRun         bool      `json:"dry_run"`
	Error          string    `json:"error,omitempty"`
}

// History wraps the bbolt database holding cycle records.
type History struct {
	db *bolt.DB
}

// Open opens the journal at the given path, creating it if it does not
// exist. The cycles bucket is created on open.
func Open(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), historyDirPerm); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := bolt.Open(path, historyFilePerm, &bolt.Options{Timeout: historyOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cyclesBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history db: %w", err)
	}

	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

// Append stores a cycle record, keyed by its start time.
func (h *History) Append(rec CycleRecord) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		return tx.Bucket(cyclesBucket).Put(recordKey(rec.Start), data)
	})
}

// Latest returns the most recent cycle record, or nil when the journal is
// empty.
func (h *History) Latest() (*CycleRecord, error) {
	var rec *CycleRecord

	err := h.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(cyclesBucket).Cursor().Last()
		if v == nil {
			return nil
		}

		rec = &CycleRecord{}

		return json.Unmarshal(v, rec)
	})

	return rec, err
}

// Recent returns up to n cycle records, newest first.
func (h *History) Recent(n int) ([]CycleRecord, error) {
	var recs []CycleRecord

	err := h.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(cyclesBucket).Cursor()
		for k, v := c.Last(); k != nil && len(recs) < n; k, v = c.Prev() {
			var rec CycleRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}

			recs = append(recs, rec)
		}

		return nil
	})

	return recs, err
}

// Prune removes all but the newest keep records.
func (h *History) Prune(keep int) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(cyclesBucket)

		total := 0
		if err := b.ForEach(func(_, _ []byte) error {
			total++

			return nil
		}); err != nil {
			return err
		}

		c := b.Cursor()
		for k, _ := c.First(); k != nil && total > keep; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}

			total--
		}

		return nil
	})
}

func recordKey(start time.Time) []byte {
	return []byte(start.UTC().Format(keyLayout))
}
