// ABOUTME: BoltDB implementation of the Backend interface
// ABOUTME: Stores user records in a single bucket keyed by normalized identity

package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var conversationsBucket = []byte("conversations")

// BoltBackend implements Backend on top of a bbolt database file
type BoltBackend struct {
	db     *bolt.DB
	logger *slog.Logger
}

// NewBoltBackend opens the bolt file at path, creating the bucket if needed.
func NewBoltBackend(path string, logger *slog.Logger) (*BoltBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	logger = logger.With("component", "store", "backend", "bolt")
	logger.Info("bolt backend initialized", "path", path)
	return &BoltBackend{db: db, logger: logger}, nil
}

// Get returns a copy of the stored record for key
func (b *BoltBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(conversationsBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid for the life of the transaction
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores the record for key in a single update transaction
func (b *BoltBackend) Put(ctx context.Context, key string, data []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	b.logger.Debug("record published", "key", key, "bytes", len(data))
	return nil
}

// Delete removes the record for key
func (b *BoltBackend) Delete(ctx context.Context, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// Close closes the bolt database and releases its file lock
func (b *BoltBackend) Close() error {
	b.logger.Debug("closing bolt backend", "path", b.db.Path())
	return b.db.Close()
}
