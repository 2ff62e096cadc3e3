package domain

import "math"

// BasisPointsDenominator is the divisor for fee rates expressed in bps.
const BasisPointsDenominator = 10000

// MaxFeeRateBps caps the marketplace fee at 10%.
const MaxFeeRateBps = 1000

// ValidateFeeRate returns ErrInvalidFeeRate for rates above MaxFeeRateBps.
func ValidateFeeRate(rateBps uint32) error {
	if rateBps > MaxFeeRateBps {
		return ErrInvalidFeeRate
	}
	return nil
}

// CalculateEscrowCost returns the total a buyer must deposit for amount and
// the marketplace fee included in it. The fee is amount×rate/10000 truncated
// toward zero; overflow is reported as ErrOverflow.
func CalculateEscrowCost(amount int64, rateBps uint32) (total, fee int64, err error) {
	product, ok := checkedMul(amount, int64(rateBps))
	if !ok {
		return 0, 0, ErrOverflow
	}
	fee = product / BasisPointsDenominator

	total, ok = checkedAdd(amount, fee)
	if !ok {
		return 0, 0, ErrOverflow
	}
	return total, fee, nil
}

// Fund records the one-time escrow deposit. It checks the already-funded and
// sufficiency rules before touching the trade, so a failed call leaves
// EscrowBalance and MarketplaceFee unchanged.
func (t *Trade) Fund(payment int64, rateBps uint32) error {
	if t.Funded() {
		return ErrEscrowAlreadyFunded
	}

	required, fee, err := CalculateEscrowCost(t.Amount, rateBps)
	if err != nil {
		return err
	}
	if payment < required {
		return ErrInsufficientEscrowFunding
	}

	t.EscrowBalance = payment
	t.MarketplaceFee = fee
	return nil
}

func checkedMul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}

func checkedAdd(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}
