package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a durable Store on a single bbolt file. Each namespace is a bucket,
// created on first write. bbolt already allows a single writer, so Update is
// serialized by the database itself.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string) (*Bolt, error) {
	if path == "" {
		return nil, errors.New("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir bolt path: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(func(btx *bolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

func (b *Bolt) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(btx *bolt.Tx) error {
		if err := fn(&boltTx{tx: btx}); err != nil {
			return err
		}
		return ctx.Err()
	})
}

func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

type boltTx struct {
	tx *bolt.Tx
}

func (t *boltTx) Get(ns Namespace, key string) ([]byte, error) {
	bucket := t.tx.Bucket([]byte(ns))
	if bucket == nil {
		return nil, ErrNotFound
	}
	data := bucket.Get([]byte(key))
	if data == nil {
		return nil, ErrNotFound
	}
	// bbolt memory is only valid for the life of the transaction.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (t *boltTx) Put(ns Namespace, key string, value []byte) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}
	bucket, err := t.tx.CreateBucketIfNotExists([]byte(ns))
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", ns, err)
	}
	return bucket.Put([]byte(key), value)
}

func (t *boltTx) Has(ns Namespace, key string) (bool, error) {
	bucket := t.tx.Bucket([]byte(ns))
	if bucket == nil {
		return false, nil
	}
	return bucket.Get([]byte(key)) != nil, nil
}
