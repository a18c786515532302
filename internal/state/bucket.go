package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketMetadataKey = "metadata:v1"
	lastRunKey        = "lastrun:v1"
)

type Bucket struct {
	db   *bolthold.Store
	name []byte
}

func (b *Bucket) get(tx *bolt.Tx) *bolt.Bucket {
	return tx.Bucket(b.name)
}

type bucketMetadata struct {
	Name   string
	SeenAt time.Time
}

func (s *Store) Bucket(name string) (*Bucket, error) {
	b := &Bucket{
		db:   s.db,
		name: []byte(name),
	}

	now := time.Now()

	if err := b.db.Bolt().Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(b.name)
		if err != nil {
			return err
		}

		return b.db.UpsertBucket(bucket, bucketMetadataKey, bucketMetadata{
			Name:   name,
			SeenAt: now,
		})
	}); err != nil {
		return nil, fmt.Errorf("updating metadata: %w", err)
	}

	return b, nil
}

type deletionRecord struct {
	Key       string
	DeletedAt time.Time
	Size      int64
}

// MarkDeleted records a confirmed object deletion.
func (b *Bucket) MarkDeleted(key string, at time.Time, size int64) error {
	record := deletionRecord{
		Key:       key,
		DeletedAt: at,
		Size:      size,
	}

	return b.db.Bolt().Update(func(tx *bolt.Tx) error {
		bucket := b.get(tx)

		return b.db.UpsertBucket(bucket, record.Key, record)
	})
}

// DeletedAt returns when a key was last deleted by a sweep, or the zero time
// if it never was.
func (b *Bucket) DeletedAt(key string) (time.Time, error) {
	var record deletionRecord

	if err := b.db.Bolt().View(func(tx *bolt.Tx) error {
		bucket := b.get(tx)

		if err := b.db.GetFromBucket(bucket, key, &record); err != nil && !errors.Is(err, bolthold.ErrNotFound) {
			return err
		}

		return nil
	}); err != nil {
		return time.Time{}, err
	}

	return record.DeletedAt, nil
}

// ForgetDeleted drops the deletion record for a key, e.g. after the key has
// legitimately been re-created.
func (b *Bucket) ForgetDeleted(key string) error {
	return b.db.Bolt().Update(func(tx *bolt.Tx) error {
		bucket := b.get(tx)

		if err := b.db.DeleteFromBucket(bucket, key, deletionRecord{}); err != nil && !errors.Is(err, bolthold.ErrNotFound) {
			return err
		}

		return nil
	})
}

// RunRecord summarizes one completed sweep of a bucket.
type RunRecord struct {
	StartedAt  time.Time
	DryRun     bool
	Total      int64
	Deleted    int64
	Excluded   int64
	Retained   int64
	SkippedFee int64
	Protected  int64
}

func (b *Bucket) RecordRun(r RunRecord) error {
	return b.db.Bolt().Update(func(tx *bolt.Tx) error {
		bucket := b.get(tx)

		return b.db.UpsertBucket(bucket, lastRunKey, r)
	})
}

// LastRun returns the most recently recorded sweep. The zero record is
// returned for buckets never swept before.
func (b *Bucket) LastRun() (RunRecord, error) {
	var record RunRecord

	if err := b.db.Bolt().View(func(tx *bolt.Tx) error {
		bucket := b.get(tx)

		if err := b.db.GetFromBucket(bucket, lastRunKey, &record); err != nil && !errors.Is(err, bolthold.ErrNotFound) {
			return err
		}

		return nil
	}); err != nil {
		return RunRecord{}, err
	}

	return record, nil
}
