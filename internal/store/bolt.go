package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var exportsBucket = []byte("exports")

// BoltStore keeps exports as JSON values in a single bbolt bucket.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(exportsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) SaveExport(ctx context.Context, e *Export) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepare(e)
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(exportsBucket).Put([]byte(e.ID), data)
	})
}

func (s *BoltStore) GetExport(ctx context.Context, id string) (*Export, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var e Export
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(exportsBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExports decodes every export; keys are random IDs so ordering happens
// after the scan.
func (s *BoltStore) ListExports(ctx context.Context, limit int) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Summary
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(exportsBucket).ForEach(func(k, v []byte) error {
			var e Export
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decoding export %s: %w", k, err)
			}
			out = append(out, summarize(&e))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
