package store

import (
	"context"
	"errors"
	"testing"

	"github.com/efreitasn/tradeescrow/internal/domain"
)

func TestTx_Documents_NotFound(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		get  func(tx *Tx) error
		want error
	}{
		{"purchase order", func(tx *Tx) error { _, err := tx.PurchaseOrder(1); return err }, domain.ErrPurchaseOrderNotFound},
		{"customer invoice", func(tx *Tx) error { _, err := tx.CustomerInvoice(1); return err }, domain.ErrCustomerInvoiceNotFound},
		{"warehouse receipt", func(tx *Tx) error { _, err := tx.WarehouseReceipt(1); return err }, domain.ErrWarehouseReceiptNotFound},
		{"vlei documents", func(tx *Tx) error { _, err := tx.VLEIDocuments(1); return err }, domain.ErrVLEIDocumentsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.View(context.Background(), tt.get)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTx_Documents_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	po := &domain.PurchaseOrder{
		Description: "Cotton T-shirts",
		Quantity:    1000,
		UnitPrice:   15_0000000,
		TotalPrice:  15000_0000000,
		DocumentRef: "QmPurchaseOrder",
		CreatedBy:   "GBUYER",
		CreatedAt:   1,
	}
	ci := &domain.CustomerInvoice{
		Description: "Cotton T-shirts",
		Quantity:    1000,
		UnitPrice:   15_0000000,
		TotalPrice:  15000_0000000,
		DocumentRef: "QmInvoice",
		CreatedBy:   "GSELLER",
		CreatedAt:   2,
	}
	wr := &domain.WarehouseReceipt{
		Description:       "Cotton T-shirts",
		Quantity:          1000,
		UnitPrice:         15_0000000,
		TotalPrice:        15000_0000000,
		DocumentRef:       "QmReceipt",
		WarehouseLocation: "Rotterdam",
		CreatedBy:         "GSELLER",
		CreatedAt:         2,
	}
	docs := &domain.VLEIDocuments{
		BuyerLEI:  "549300VGEJK8QMIYGZ34",
		SellerLEI: "213800ABCDEF1234XYZ",
	}

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.PutPurchaseOrder(9, po); err != nil {
			return err
		}
		if err := tx.PutCustomerInvoice(9, ci); err != nil {
			return err
		}
		if err := tx.PutWarehouseReceipt(9, wr); err != nil {
			return err
		}
		return tx.PutVLEIDocuments(9, docs)
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.View(ctx, func(tx *Tx) error {
		gotPO, err := tx.PurchaseOrder(9)
		if err != nil {
			return err
		}
		if *gotPO != *po {
			t.Errorf("PO: got %+v, want %+v", gotPO, po)
		}
		gotCI, err := tx.CustomerInvoice(9)
		if err != nil {
			return err
		}
		if *gotCI != *ci {
			t.Errorf("CI: got %+v, want %+v", gotCI, ci)
		}
		gotWR, err := tx.WarehouseReceipt(9)
		if err != nil {
			return err
		}
		if *gotWR != *wr {
			t.Errorf("WR: got %+v, want %+v", gotWR, wr)
		}
		gotDocs, err := tx.VLEIDocuments(9)
		if err != nil {
			return err
		}
		if *gotDocs != *docs {
			t.Errorf("vLEI: got %+v, want %+v", gotDocs, docs)
		}

		for name, has := range map[string]func(uint64) (bool, error){
			"po": tx.HasPurchaseOrder, "ci": tx.HasCustomerInvoice,
			"wr": tx.HasWarehouseReceipt,
		} {
			if ok, _ := has(9); !ok {
				t.Errorf("%s: expected Has(9) true", name)
			}
			if ok, _ := has(10); ok {
				t.Errorf("%s: expected Has(10) false", name)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
