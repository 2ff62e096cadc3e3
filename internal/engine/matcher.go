// Package engine reconciles trade documents. It holds no state: every check
// reads its inputs and returns nil or the first failure.
package engine

import (
	"math"
	"math/bits"

	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/store"
)

// Tolerances, in whole percent. A variance exactly equal to the tolerance
// passes.
const (
	QuantityTolerancePercent = 5
	PriceTolerancePercent    = 2
)

// Document pair labels, in the order the match evaluates them.
const (
	PairPOCI = "po_ci"
	PairPOWR = "po_wr"
	PairCIWR = "ci_wr"
)

// ThreeWayMatch reconciles the purchase order, customer invoice and
// warehouse receipt of one trade. Descriptions must be byte-equal, then
// quantities must agree within QuantityTolerancePercent and total prices
// within PriceTolerancePercent. Each pair is measured against its first
// document. The first failing check is returned.
func ThreeWayMatch(po *domain.PurchaseOrder, ci *domain.CustomerInvoice, wr *domain.WarehouseReceipt) error {
	if po.Description != ci.Description ||
		po.Description != wr.Description ||
		ci.Description != wr.Description {
		return domain.ErrDescriptionMismatch
	}

	for _, p := range [][2]uint64{
		{po.Quantity, ci.Quantity},
		{po.Quantity, wr.Quantity},
		{ci.Quantity, wr.Quantity},
	} {
		v, err := QuantityVariance(p[0], p[1])
		if err != nil {
			return err
		}
		if v > QuantityTolerancePercent {
			return domain.ErrQuantityVarianceTooHigh
		}
	}

	for _, p := range [][2]int64{
		{po.TotalPrice, ci.TotalPrice},
		{po.TotalPrice, wr.TotalPrice},
		{ci.TotalPrice, wr.TotalPrice},
	} {
		v, err := PriceVariance(p[0], p[1])
		if err != nil {
			return err
		}
		if v > PriceTolerancePercent {
			return domain.ErrPriceVarianceTooHigh
		}
	}
	return nil
}

// QuantityVariance returns floor(|a-b|×100 / a). A zero reference quantity
// yields domain.ErrDivisionByZero.
func QuantityVariance(a, b uint64) (uint64, error) {
	if a == 0 {
		return 0, domain.ErrDivisionByZero
	}
	diff := a - b
	if b > a {
		diff = b - a
	}
	return percentOf(diff, a), nil
}

// PriceVariance returns floor(|a-b|×100 / |a|) for signed totals. A zero
// reference price yields domain.ErrDivisionByZero.
func PriceVariance(a, b int64) (uint64, error) {
	if a == 0 {
		return 0, domain.ErrDivisionByZero
	}
	// Two's-complement subtraction in uint64 is exact for any int64 pair.
	var diff uint64
	if a > b {
		diff = uint64(a) - uint64(b)
	} else {
		diff = uint64(b) - uint64(a)
	}
	return percentOf(diff, absUint64(a)), nil
}

// percentOf computes floor(diff×100 / base) in 128 bits. A quotient that does
// not fit in 64 bits saturates to math.MaxUint64, which exceeds any tolerance.
func percentOf(diff, base uint64) uint64 {
	hi, lo := bits.Mul64(diff, 100)
	if hi >= base {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, base)
	return q
}

func absUint64(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}

// DvPCheck is the delivery-versus-payment gate run before settlement. It
// requires the trade to be Fulfilled with all three documents present, then
// runs ThreeWayMatch.
func DvPCheck(tx *store.Tx, tradeID uint64) error {
	trade, err := tx.Trade(tradeID)
	if err != nil {
		return err
	}
	if trade.State != domain.TradeStateFulfilled {
		return domain.ErrTradeNotFulfilled
	}

	required := []struct {
		has     func(uint64) (bool, error)
		missing error
	}{
		{tx.HasPurchaseOrder, domain.ErrPurchaseOrderNotFound},
		{tx.HasCustomerInvoice, domain.ErrCustomerInvoiceNotFound},
		{tx.HasWarehouseReceipt, domain.ErrWarehouseReceiptNotFound},
	}
	for _, doc := range required {
		ok, err := doc.has(tradeID)
		if err != nil {
			return err
		}
		if !ok {
			return doc.missing
		}
	}

	po, err := tx.PurchaseOrder(tradeID)
	if err != nil {
		return err
	}
	ci, err := tx.CustomerInvoice(tradeID)
	if err != nil {
		return err
	}
	wr, err := tx.WarehouseReceipt(tradeID)
	if err != nil {
		return err
	}
	return ThreeWayMatch(po, ci, wr)
}
