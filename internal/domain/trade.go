package domain

import "fmt"

// TradeState represents the lifecycle state of a trade.
type TradeState uint8

const (
	TradeStateOrdered TradeState = iota
	TradeStateFulfilled
	TradeStateSettled
	TradeStateRejected
	TradeStateCancelled
)

// String returns the wire name of the state.
func (s TradeState) String() string {
	switch s {
	case TradeStateOrdered:
		return "ordered"
	case TradeStateFulfilled:
		return "fulfilled"
	case TradeStateSettled:
		return "settled"
	case TradeStateRejected:
		return "rejected"
	case TradeStateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Valid reports whether s is one of the declared states.
func (s TradeState) Valid() bool {
	switch s {
	case TradeStateOrdered, TradeStateFulfilled, TradeStateSettled,
		TradeStateRejected, TradeStateCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s TradeState) Terminal() bool {
	switch s {
	case TradeStateSettled, TradeStateRejected, TradeStateCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step.
// Ordered → {Fulfilled, Rejected, Cancelled}; Fulfilled → Settled.
func (s TradeState) CanTransitionTo(next TradeState) bool {
	switch s {
	case TradeStateOrdered:
		switch next {
		case TradeStateFulfilled, TradeStateRejected, TradeStateCancelled:
			return true
		}
		return false
	case TradeStateFulfilled:
		return next == TradeStateSettled
	case TradeStateSettled, TradeStateRejected, TradeStateCancelled:
		return false
	}
	return false
}

// MarshalText encodes the state as its wire name.
func (s TradeState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid trade state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a wire name produced by MarshalText.
func (s *TradeState) UnmarshalText(text []byte) error {
	state, err := ParseTradeState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// ParseTradeState maps a wire name back to its TradeState.
func ParseTradeState(name string) (TradeState, error) {
	switch name {
	case "ordered":
		return TradeStateOrdered, nil
	case "fulfilled":
		return TradeStateFulfilled, nil
	case "settled":
		return TradeStateSettled, nil
	case "rejected":
		return TradeStateRejected, nil
	case "cancelled":
		return TradeStateCancelled, nil
	}
	return 0, fmt.Errorf("unknown trade state %q", name)
}

// Trade is the escrow record for a single buyer/seller deal. Amounts carry
// 7 implied decimals; timestamps are Unix seconds with 0 meaning unset.
type Trade struct {
	TradeID        uint64     `json:"trade_id"`
	Buyer          Identity   `json:"buyer"`
	Seller         Identity   `json:"seller"`
	Amount         int64      `json:"amount"`
	State          TradeState `json:"state"`
	CreatedAt      uint64     `json:"created_at"`
	FulfilledAt    uint64     `json:"fulfilled_at"`
	SettledAt      uint64     `json:"settled_at"`
	EscrowBalance  int64      `json:"escrow_balance"`
	MarketplaceFee int64      `json:"marketplace_fee"`
}

// TransitionTo moves the trade to next, returning ErrInvalidTradeState when
// the graph does not allow it. The trade is left unchanged on error.
func (t *Trade) TransitionTo(next TradeState) error {
	if !t.State.CanTransitionTo(next) {
		return ErrInvalidTradeState
	}
	t.State = next
	return nil
}

// Funded reports whether the escrow has received its one-time deposit.
func (t *Trade) Funded() bool {
	return t.EscrowBalance > 0
}

// SettlementAuthorization is the payout instruction produced when a trade
// settles. The engine never moves funds; an external payment system acts on it.
type SettlementAuthorization struct {
	TradeID      uint64   `json:"trade_id"`
	Seller       Identity `json:"seller"`
	SellerAmount int64    `json:"seller_amount"`
	Treasury     Identity `json:"treasury"`
	TreasuryFee  int64    `json:"treasury_fee"`
	AuthorizedAt uint64   `json:"authorized_at"`
}
