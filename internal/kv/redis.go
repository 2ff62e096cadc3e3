package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "escrow"

	// writerLockTTL bounds how long a crashed writer can block the others.
	writerLockTTL   = 30 * time.Second
	writerLockRetry = 5 * time.Millisecond
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Exists(context.Context, ...string) *redis.IntCmd
	MSet(context.Context, ...any) *redis.StatusCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Redis is a Store shared through a Redis server. Writes made inside Update
// are buffered and committed with one MSET, which Redis applies atomically.
// Update holds a writer lock (SETNX with a TTL) on the key prefix, so
// processes sharing the prefix apply their updates one at a time.
type Redis struct {
	mu     sync.RWMutex
	store  cmdable
	closer func() error
	prefix string
}

// OpenRedis connects to the server at url and verifies connectivity.
func OpenRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedis(raw, raw.Close, prefix), nil
}

func newRedis(store cmdable, closer func() error, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{store: store, closer: closer, prefix: prefix}
}

func (r *Redis) key(ns Namespace, key string) string {
	return r.prefix + ":" + string(ns) + ":" + key
}

func (r *Redis) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.store == nil {
		return ErrClosed
	}
	return fn(&redisTx{ctx: ctx, r: r, readOnly: true})
}

func (r *Redis) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store == nil {
		return ErrClosed
	}

	owner, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer r.unlock(owner)

	tx := &redisTx{ctx: ctx, r: r, pending: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (r *Redis) lockKey() string {
	return r.prefix + ":writer-lock"
}

// lock blocks until this process owns the writer lock or ctx is done.
func (r *Redis) lock(ctx context.Context) (string, error) {
	owner := uuid.NewString()
	for {
		ok, err := r.store.SetNX(ctx, r.lockKey(), owner, writerLockTTL).Result()
		if err != nil {
			return "", fmt.Errorf("redis writer lock: %w", err)
		}
		if ok {
			return owner, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("redis writer lock: %w", ctx.Err())
		case <-time.After(writerLockRetry):
		}
	}
}

// unlock frees the writer lock only if owner still holds it. It runs on a
// fresh context so a cancelled request does not leave the lock behind.
func (r *Redis) unlock(owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	value, err := r.store.Get(ctx, r.lockKey()).Result()
	if err != nil || value != owner {
		return
	}
	r.store.Del(ctx, r.lockKey())
}

func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = nil
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

type redisTx struct {
	ctx      context.Context
	r        *Redis
	readOnly bool

	pending map[string][]byte
	order   []string
}

func (t *redisTx) Get(ns Namespace, key string) ([]byte, error) {
	k := t.r.key(ns, key)
	if v, ok := t.pending[k]; ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	data, err := t.r.store.Get(t.ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", k, err)
	}
	return data, nil
}

func (t *redisTx) Put(ns Namespace, key string, value []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	k := t.r.key(ns, key)
	if _, ok := t.pending[k]; !ok {
		t.order = append(t.order, k)
	}
	v := make([]byte, len(value))
	copy(v, value)
	t.pending[k] = v
	return nil
}

func (t *redisTx) Has(ns Namespace, key string) (bool, error) {
	k := t.r.key(ns, key)
	if _, ok := t.pending[k]; ok {
		return true, nil
	}
	n, err := t.r.store.Exists(t.ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", k, err)
	}
	return n > 0, nil
}

func (t *redisTx) commit() error {
	if len(t.order) == 0 {
		return nil
	}
	pairs := make([]any, 0, 2*len(t.order))
	for _, k := range t.order {
		pairs = append(pairs, k, t.pending[k])
	}
	if err := t.r.store.MSet(t.ctx, pairs...).Err(); err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	return nil
}
