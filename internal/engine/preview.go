package engine

import "github.com/efreitasn/tradeescrow/internal/domain"

// PairVariance is one pairwise comparison in a MatchReport. Error is set
// instead of Variance when the reference value is zero.
type PairVariance struct {
	Pair      string `json:"pair"`
	Variance  uint64 `json:"variance_percent"`
	Tolerance uint64 `json:"tolerance_percent"`
	Within    bool   `json:"within_tolerance"`
	Error     string `json:"error,omitempty"`
}

// MatchReport describes every dimension of a three-way match. Unlike
// ThreeWayMatch it does not stop at the first failure; Failure holds the
// error ThreeWayMatch would return, or is empty when the documents match.
type MatchReport struct {
	DescriptionsMatch bool           `json:"descriptions_match"`
	Quantity          []PairVariance `json:"quantity"`
	Price             []PairVariance `json:"price"`
	Passed            bool           `json:"passed"`
	Failure           string         `json:"failure,omitempty"`
}

// Preview evaluates all three dimensions of the match.
func Preview(po *domain.PurchaseOrder, ci *domain.CustomerInvoice, wr *domain.WarehouseReceipt) MatchReport {
	report := MatchReport{
		DescriptionsMatch: po.Description == ci.Description &&
			po.Description == wr.Description &&
			ci.Description == wr.Description,
	}

	quantities := []struct {
		pair string
		a, b uint64
	}{
		{PairPOCI, po.Quantity, ci.Quantity},
		{PairPOWR, po.Quantity, wr.Quantity},
		{PairCIWR, ci.Quantity, wr.Quantity},
	}
	for _, q := range quantities {
		v, err := QuantityVariance(q.a, q.b)
		report.Quantity = append(report.Quantity, pairVariance(q.pair, v, err, QuantityTolerancePercent))
	}

	prices := []struct {
		pair string
		a, b int64
	}{
		{PairPOCI, po.TotalPrice, ci.TotalPrice},
		{PairPOWR, po.TotalPrice, wr.TotalPrice},
		{PairCIWR, ci.TotalPrice, wr.TotalPrice},
	}
	for _, p := range prices {
		v, err := PriceVariance(p.a, p.b)
		report.Price = append(report.Price, pairVariance(p.pair, v, err, PriceTolerancePercent))
	}

	if err := ThreeWayMatch(po, ci, wr); err != nil {
		report.Failure = err.Error()
	} else {
		report.Passed = true
	}
	return report
}

func pairVariance(pair string, v uint64, err error, tolerance uint64) PairVariance {
	pv := PairVariance{Pair: pair, Tolerance: tolerance}
	if err != nil {
		pv.Error = err.Error()
		return pv
	}
	pv.Variance = v
	pv.Within = v <= tolerance
	return pv
}
