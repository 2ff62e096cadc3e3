// Package kv is the persistent key-value layer. Records live in named
// namespaces and every mutation happens inside a single Update transaction:
// either all of its writes become visible or none do.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Tx.Get when the key is absent.
	ErrNotFound = errors.New("kv: key not found")
	// ErrReadOnly is returned by Tx.Put inside a View transaction.
	ErrReadOnly = errors.New("kv: read-only transaction")
	// ErrClosed is returned by a store after Close.
	ErrClosed = errors.New("kv: store closed")
)

// Namespace groups related keys, like a table or a bolt bucket.
type Namespace string

// Tx is the view of the store inside one transaction. Reads observe the
// transaction's own writes.
type Tx interface {
	Get(ns Namespace, key string) ([]byte, error)
	Put(ns Namespace, key string, value []byte) error
	Has(ns Namespace, key string) (bool, error)
}

// Store runs transactions. Update calls are serialized: at most one writer
// runs at a time, and a non-nil error from fn discards every write it made.
type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// GetJSON reads key from ns and decodes it into a new T.
func GetJSON[T any](tx Tx, ns Namespace, key string) (*T, error) {
	data, err := tx.Get(ns, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", ns, key, err)
	}
	return &v, nil
}

// PutJSON encodes v and stores it under key in ns.
func PutJSON(tx Tx, ns Namespace, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", ns, key, err)
	}
	return tx.Put(ns, key, data)
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	BoltPath    string
	RedisURL    string
	RedisPrefix string
}

// Open constructs the backend named in opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendBolt:
		return OpenBolt(opts.BoltPath)
	case BackendRedis:
		return OpenRedis(ctx, opts.RedisURL, opts.RedisPrefix)
	}
	return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
}
