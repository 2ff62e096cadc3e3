package kv

import (
	"context"
	"strings"
	"sync"

	"github.com/google/btree"
)

// entry is a single record in the memory tree, ordered by namespace then key.
type entry struct {
	ns    Namespace
	key   string
	value []byte
}

func entryLess(a, b entry) bool {
	if a.ns != b.ns {
		return a.ns < b.ns
	}
	return strings.Compare(a.key, b.key) < 0
}

// Memory is an in-process Store backed by a B-tree. Update works on a
// copy-on-write clone of the committed tree and swaps it in only when fn
// succeeds, so a failed transaction leaves no trace.
type Memory struct {
	writeMu sync.Mutex // serializes Update

	mu     sync.RWMutex // guards tree and closed
	tree   *btree.BTreeG[entry]
	closed bool
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		tree: btree.NewG(32, entryLess),
	}
}

func (m *Memory) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn(&memoryTx{tree: m.tree, readOnly: true})
}

func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	work := m.tree.Clone()
	m.mu.Unlock()

	if err := fn(&memoryTx{tree: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.tree = work
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memoryTx struct {
	tree     *btree.BTreeG[entry]
	readOnly bool
}

func (tx *memoryTx) Get(ns Namespace, key string) ([]byte, error) {
	e, ok := tx.tree.Get(entry{ns: ns, key: key})
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (tx *memoryTx) Put(ns Namespace, key string, value []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	v := make([]byte, len(value))
	copy(v, value)
	tx.tree.ReplaceOrInsert(entry{ns: ns, key: key, value: v})
	return nil
}

func (tx *memoryTx) Has(ns Namespace, key string) (bool, error) {
	return tx.tree.Has(entry{ns: ns, key: key}), nil
}
