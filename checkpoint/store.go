package checkpoint

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mezonai/mmn-replay/jsonx"
	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/snapshot"
)

const recordBucket = "checkpoints"

// Record marks a slot whose recomputed commitment matched the stored
// one, together with the snapshot file that captures account state at
// that slot. Digest mirrors the snapshot file digest so a record whose
// file went missing or stale is detectable on load.
type Record struct {
	Slot         uint64        `json:"slot"`
	BankHash     [32]byte      `json:"bank_hash"`
	SnapshotPath string        `json:"snapshot_path"`
	Kind         snapshot.Kind `json:"kind"`
	BaseSlot     uint64        `json:"base_slot,omitempty"`
	BasePath     string        `json:"base_path,omitempty"`
	Digest       string        `json:"digest"`
	RunID        string        `json:"run_id"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Store is a BoltDB-backed append-only checkpoint log keyed by slot.
type Store struct {
	db *bbolt.DB
}

// Open opens the checkpoint store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("checkpoint store path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordBucket))
		if err != nil {
			return fmt.Errorf("create checkpoint bucket: %w", err)
		}
		return nil
	})
}

// Put appends a record. Slots must be strictly increasing; rewriting
// history is not allowed.
func (s *Store) Put(rec Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("checkpoint store is not configured")
	}
	if rec.SnapshotPath == "" {
		return fmt.Errorf("checkpoint record needs a snapshot path")
	}
	if rec.Kind == snapshot.KindIncremental && rec.BasePath == "" {
		return fmt.Errorf("incremental checkpoint record needs a base snapshot path")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	payload, err := jsonx.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal checkpoint record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return fmt.Errorf("checkpoint bucket is missing")
		}
		if k, _ := bucket.Cursor().Last(); k != nil {
			last := binary.BigEndian.Uint64(k)
			if rec.Slot <= last {
				return fmt.Errorf("checkpoint slot %d not beyond latest %d", rec.Slot, last)
			}
		}
		return bucket.Put(slotKey(rec.Slot), payload)
	})
}

// Latest returns the highest record whose snapshot file still loads
// and matches the recorded digest. Records with a missing or corrupt
// file are skipped with a warning so a torn write at shutdown degrades
// to the previous checkpoint instead of blocking restart. Returns nil
// when no usable record exists.
func (s *Store) Latest() (*Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("checkpoint store is not configured")
	}

	var found *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return fmt.Errorf("checkpoint bucket is missing")
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			rec, ok := decodeRecord(k, v)
			if !ok {
				continue
			}
			if !rec.usable() {
				continue
			}
			found = rec
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// LatestFull returns the highest usable full-snapshot record, the
// anchor for writing further incrementals after a restart.
func (s *Store) LatestFull() (*Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("checkpoint store is not configured")
	}

	var found *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return fmt.Errorf("checkpoint bucket is missing")
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			rec, ok := decodeRecord(k, v)
			if !ok || rec.Kind != snapshot.KindFull {
				continue
			}
			if !rec.usable() {
				continue
			}
			found = rec
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// All returns every record in slot order, including ones whose
// snapshot file no longer verifies. Listing tooling wants the raw log.
func (s *Store) All() ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("checkpoint store is not configured")
	}

	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return fmt.Errorf("checkpoint bucket is missing")
		}
		return bucket.ForEach(func(k, v []byte) error {
			if rec, ok := decodeRecord(k, v); ok {
				out = append(out, *rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadState reads and, for incrementals, collapses the snapshot chain
// behind a record into a single account capture.
func LoadState(rec *Record) (*snapshot.File, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil checkpoint record")
	}
	if rec.Kind == snapshot.KindFull {
		return snapshot.Read(rec.SnapshotPath)
	}
	full, err := snapshot.Read(rec.BasePath)
	if err != nil {
		return nil, fmt.Errorf("load base snapshot: %w", err)
	}
	incr, err := snapshot.Read(rec.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("load incremental snapshot: %w", err)
	}
	return snapshot.Collapse(full, incr)
}

func decodeRecord(k, v []byte) (*Record, bool) {
	var rec Record
	if err := jsonx.Unmarshal(v, &rec); err != nil {
		logx.Warn("CHECKPOINT", fmt.Sprintf("Skipping undecodable record at key %x: %v", k, err))
		return nil, false
	}
	return &rec, true
}

// usable reports whether the record's snapshot chain still loads and
// matches the recorded digest.
func (rec *Record) usable() bool {
	f, err := snapshot.Read(rec.SnapshotPath)
	if err != nil {
		logx.Warn("CHECKPOINT", fmt.Sprintf("Skipping record at slot %d: %v", rec.Slot, err))
		return false
	}
	if f.Meta.Digest != rec.Digest {
		logx.Warn("CHECKPOINT", fmt.Sprintf("Skipping record at slot %d: snapshot digest drifted", rec.Slot))
		return false
	}
	if rec.Kind == snapshot.KindIncremental {
		if _, err := snapshot.Read(rec.BasePath); err != nil {
			logx.Warn("CHECKPOINT", fmt.Sprintf("Skipping record at slot %d: base snapshot unusable: %v", rec.Slot, err))
			return false
		}
	}
	return true
}

func slotKey(slot uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, slot)
	return key
}
