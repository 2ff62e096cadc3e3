package store

import "github.com/efreitasn/tradeescrow/internal/domain"

// PurchaseOrder returns the trade's PO, or domain.ErrPurchaseOrderNotFound.
func (t *Tx) PurchaseOrder(tradeID uint64) (*domain.PurchaseOrder, error) {
	return get[domain.PurchaseOrder](t.tx, nsPurchaseOrders, idKey(tradeID), domain.ErrPurchaseOrderNotFound)
}

func (t *Tx) PutPurchaseOrder(tradeID uint64, po *domain.PurchaseOrder) error {
	return put(t.tx, nsPurchaseOrders, idKey(tradeID), po)
}

func (t *Tx) HasPurchaseOrder(tradeID uint64) (bool, error) {
	return has(t.tx, nsPurchaseOrders, idKey(tradeID))
}

// CustomerInvoice returns the trade's CI, or domain.ErrCustomerInvoiceNotFound.
func (t *Tx) CustomerInvoice(tradeID uint64) (*domain.CustomerInvoice, error) {
	return get[domain.CustomerInvoice](t.tx, nsCustomerInvoices, idKey(tradeID), domain.ErrCustomerInvoiceNotFound)
}

func (t *Tx) PutCustomerInvoice(tradeID uint64, ci *domain.CustomerInvoice) error {
	return put(t.tx, nsCustomerInvoices, idKey(tradeID), ci)
}

func (t *Tx) HasCustomerInvoice(tradeID uint64) (bool, error) {
	return has(t.tx, nsCustomerInvoices, idKey(tradeID))
}

// WarehouseReceipt returns the trade's WR, or domain.ErrWarehouseReceiptNotFound.
func (t *Tx) WarehouseReceipt(tradeID uint64) (*domain.WarehouseReceipt, error) {
	return get[domain.WarehouseReceipt](t.tx, nsWarehouseReceipts, idKey(tradeID), domain.ErrWarehouseReceiptNotFound)
}

func (t *Tx) PutWarehouseReceipt(tradeID uint64, wr *domain.WarehouseReceipt) error {
	return put(t.tx, nsWarehouseReceipts, idKey(tradeID), wr)
}

func (t *Tx) HasWarehouseReceipt(tradeID uint64) (bool, error) {
	return has(t.tx, nsWarehouseReceipts, idKey(tradeID))
}

// VLEIDocuments returns the trade's vLEI record, or domain.ErrVLEIDocumentsNotFound.
func (t *Tx) VLEIDocuments(tradeID uint64) (*domain.VLEIDocuments, error) {
	return get[domain.VLEIDocuments](t.tx, nsVLEIDocuments, idKey(tradeID), domain.ErrVLEIDocumentsNotFound)
}

func (t *Tx) PutVLEIDocuments(tradeID uint64, docs *domain.VLEIDocuments) error {
	return put(t.tx, nsVLEIDocuments, idKey(tradeID), docs)
}
