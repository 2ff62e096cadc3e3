// Package store gives typed access to the escrow ledger kept in a kv.Store.
// It has no validation logic of its own: callers check preconditions, the
// store only reads and writes records inside the caller's transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/efreitasn/tradeescrow/internal/kv"
)

// Namespaces persisted by the ledger.
const (
	nsSettings          kv.Namespace = "settings"
	nsBuyers            kv.Namespace = "buyers"
	nsSellers           kv.Namespace = "sellers"
	nsBuyerNames        kv.Namespace = "buyer_names"
	nsSellerNames       kv.Namespace = "seller_names"
	nsRoster            kv.Namespace = "roster"
	nsTrades            kv.Namespace = "trades"
	nsPurchaseOrders    kv.Namespace = "purchase_orders"
	nsCustomerInvoices  kv.Namespace = "customer_invoices"
	nsWarehouseReceipts kv.Namespace = "warehouse_receipts"
	nsVLEIDocuments     kv.Namespace = "vlei_documents"
	nsBuyerTrades       kv.Namespace = "buyer_trades"
	nsSellerTrades      kv.Namespace = "seller_trades"
)

// Store runs typed transactions over a kv.Store.
type Store struct {
	kv kv.Store
}

// New wraps a kv.Store.
func New(backend kv.Store) *Store {
	return &Store{kv: backend}
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	return s.kv.View(ctx, func(tx kv.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// Update runs fn in a read-write transaction. If fn returns an error nothing
// it wrote is persisted.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	return s.kv.Update(ctx, func(tx kv.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

// Tx is a typed view of one transaction.
type Tx struct {
	tx kv.Tx
}

func idKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// get decodes ns/key into a new T, translating a missing key into notFound.
func get[T any](tx kv.Tx, ns kv.Namespace, key string, notFound error) (*T, error) {
	v, err := kv.GetJSON[T](tx, ns, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ns, err)
	}
	return v, nil
}

func put(tx kv.Tx, ns kv.Namespace, key string, v any) error {
	if err := kv.PutJSON(tx, ns, key, v); err != nil {
		return fmt.Errorf("write %s: %w", ns, err)
	}
	return nil
}

func has(tx kv.Tx, ns kv.Namespace, key string) (bool, error) {
	ok, err := tx.Has(ns, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", ns, err)
	}
	return ok, nil
}

// list reads a JSON array record, returning an empty slice when absent.
func list[T any](tx kv.Tx, ns kv.Namespace, key string) ([]T, error) {
	v, err := kv.GetJSON[[]T](tx, ns, key)
	if errors.Is(err, kv.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ns, err)
	}
	if *v == nil {
		return []T{}, nil
	}
	return *v, nil
}

// appendList appends item to the JSON array record at ns/key.
func appendList[T any](tx kv.Tx, ns kv.Namespace, key string, item T) error {
	items, err := list[T](tx, ns, key)
	if err != nil {
		return err
	}
	return put(tx, ns, key, append(items, item))
}
