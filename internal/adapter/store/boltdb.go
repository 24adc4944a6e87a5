package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"prdgen/internal/domain"
)

var (
	bucketManifests = []byte("manifests")
	bucketSnapshots = []byte("snapshots")
	bucketCalls     = []byte("calls")
)

// BoltStore persists pipeline state in a single bbolt file: one final
// manifest per stage, sequence-numbered sub-step snapshots, and the
// append-only gateway call log.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketManifests, bucketSnapshots, bucketCalls}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
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

func (s *BoltStore) PutManifest(stage domain.Stage, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketManifests).Put([]byte(stage), data)
	})
}

func (s *BoltStore) GetManifest(stage domain.Stage) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketManifests).Get([]byte(stage))
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, data != nil, nil
}

func (s *BoltStore) PutSnapshot(stage domain.Stage, name string, data []byte) (uint64, error) {
	var seq uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		var err error
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%08d/%s", stage, seq, name)
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to store snapshot %s/%s: %w", stage, name, err)
	}
	return seq, nil
}

// AppendCallRecord writes one gateway call record. Records are keyed by a
// bucket sequence number and never rewritten.
func (s *BoltStore) AppendCallRecord(rec domain.CallRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCalls)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.Seq = seq
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

func (s *BoltStore) CallRecords() ([]domain.CallRecord, error) {
	var records []domain.CallRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCalls).ForEach(func(k, v []byte) error {
			var rec domain.CallRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
