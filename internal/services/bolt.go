package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the history store using a BoltDB backend. Every client owns one key in the
// historics bucket, holding its topics as a JSON encoded list.
type BoltDB struct {
	db *bolt.DB
}

var historicsBucket = []byte("historics")

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist. Opening a file locked by another
// process fails after one second.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(historicsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create historics bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func readTopics(bucket *bolt.Bucket, clientID string) ([]string, error) {
	v := bucket.Get([]byte(clientID))
	if v == nil {
		return nil, nil
	}

	var topics []string
	if err := json.Unmarshal(v, &topics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal topics: %w", err)
	}
	return topics, nil
}

// Topics retrieves the topics studied by the client in the order they were first studied.
func (b BoltDB) Topics(_ context.Context, clientID string) ([]string, error) {
	var topics []string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(historicsBucket)
		if bucket == nil {
			return nil
		}

		var err error
		topics, err = readTopics(bucket, clientID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return topics, nil
}

// AddTopic appends topic to the client's history. A topic that is already present is not added
// again.
func (b BoltDB) AddTopic(_ context.Context, clientID, topic string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(historicsBucket)
		if bucket == nil {
			return nil
		}

		topics, err := readTopics(bucket, clientID)
		if err != nil {
			return err
		}
		if slices.Contains(topics, topic) {
			return nil
		}

		v, err := json.Marshal(append(topics, topic))
		if err != nil {
			return fmt.Errorf("failed to marshal topics: %w", err)
		}

		return bucket.Put([]byte(clientID), v)
	})
}

// ClearTopics removes every topic of the client. Clearing an empty history is not an error.
func (b BoltDB) ClearTopics(_ context.Context, clientID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(historicsBucket)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(clientID))
	})
}
