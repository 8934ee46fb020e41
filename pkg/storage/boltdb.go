package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/satellite-operations/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// DBFile is the database file name inside the data directory
const DBFile = "satellite-operations.db"

var (
	// Bucket names
	bucketChecks     = []byte("checks")
	bucketDirectives = []byte("directives")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, DBFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketChecks, bucketDirectives} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Backup writes a consistent copy of the database to path
func (s *BoltStore) Backup(path string) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}

// PruneChecks deletes check records older than before and returns them. With
// dryRun nothing is deleted.
func (s *BoltStore) PruneChecks(before time.Time, dryRun bool) ([]*types.CheckRecord, error) {
	var pruned []*types.CheckRecord

	fn := s.db.Update
	if dryRun {
		fn = s.db.View
	}
	err := fn(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChecks)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec types.CheckRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode check %s: %w", k, err)
			}
			if rec.CheckedAt.Before(before) {
				pruned = append(pruned, &rec)
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil || dryRun {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pruned, nil
}

// Check operations
func (s *BoltStore) RecordCheck(rec *types.CheckRecord) error {
	if rec.SourceID == "" {
		return fmt.Errorf("check record has no source id")
	}
	return s.put(bucketChecks, rec.SourceID, rec)
}

func (s *BoltStore) GetCheck(sourceID string) (*types.CheckRecord, error) {
	var rec types.CheckRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketChecks).Get([]byte(sourceID))
		if data == nil {
			return fmt.Errorf("check for source %s: %w", sourceID, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) ListChecks() ([]*types.CheckRecord, error) {
	return s.list(bucketChecks)
}

func (s *BoltStore) DeleteCheck(sourceID string) error {
	return s.delete(bucketChecks, sourceID)
}

// Directive operations
func (s *BoltStore) SaveDirective(rec *types.CheckRecord) error {
	if rec.MessageID == "" {
		return fmt.Errorf("directive record has no message id")
	}
	return s.put(bucketDirectives, rec.MessageID, rec)
}

func (s *BoltStore) ListDirectives() ([]*types.CheckRecord, error) {
	return s.list(bucketDirectives)
}

func (s *BoltStore) DeleteDirective(messageID string) error {
	return s.delete(bucketDirectives, messageID)
}

func (s *BoltStore) put(bucket []byte, key string, rec *types.CheckRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *BoltStore) list(bucket []byte) ([]*types.CheckRecord, error) {
	var recs []*types.CheckRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var rec types.CheckRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	return recs, err
}

func (s *BoltStore) delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}
