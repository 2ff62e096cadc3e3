package store

import (
	"errors"

	"github.com/efreitasn/tradeescrow/internal/domain"
)

const (
	keySettings    = "config"
	keyNextTradeID = "next_trade_id"
)

// ErrNotInitialized reports a ledger that has never been bootstrapped.
var ErrNotInitialized = errors.New("ledger not initialized")

// Settings returns the persisted marketplace settings, or ErrNotInitialized.
func (t *Tx) Settings() (*domain.Settings, error) {
	return get[domain.Settings](t.tx, nsSettings, keySettings, ErrNotInitialized)
}

// PutSettings persists the marketplace settings.
func (t *Tx) PutSettings(s *domain.Settings) error {
	return put(t.tx, nsSettings, keySettings, s)
}

// NextTradeID returns the id the next created trade will receive.
func (t *Tx) NextTradeID() (uint64, error) {
	v, err := get[uint64](t.tx, nsSettings, keyNextTradeID, ErrNotInitialized)
	if err != nil {
		return 0, err
	}
	return *v, nil
}

// SetNextTradeID stores the id counter.
func (t *Tx) SetNextTradeID(id uint64) error {
	return put(t.tx, nsSettings, keyNextTradeID, id)
}

// Trade returns the trade with the given id, or domain.ErrTradeNotFound.
func (t *Tx) Trade(id uint64) (*domain.Trade, error) {
	return get[domain.Trade](t.tx, nsTrades, idKey(id), domain.ErrTradeNotFound)
}

// PutTrade writes the trade under its id.
func (t *Tx) PutTrade(tr *domain.Trade) error {
	return put(t.tx, nsTrades, idKey(tr.TradeID), tr)
}

// AppendBuyerTrade appends id to the buyer's trade index.
func (t *Tx) AppendBuyerTrade(buyer domain.Identity, id uint64) error {
	return appendList(t.tx, nsBuyerTrades, string(buyer), id)
}

// AppendSellerTrade appends id to the seller's trade index.
func (t *Tx) AppendSellerTrade(seller domain.Identity, id uint64) error {
	return appendList(t.tx, nsSellerTrades, string(seller), id)
}

// BuyerTrades returns the buyer's trade ids in creation order.
// Returns an empty slice if the buyer has no trades.
func (t *Tx) BuyerTrades(buyer domain.Identity) ([]uint64, error) {
	return list[uint64](t.tx, nsBuyerTrades, string(buyer))
}

// SellerTrades returns the seller's trade ids in creation order.
// Returns an empty slice if the seller has no trades.
func (t *Tx) SellerTrades(seller domain.Identity) ([]uint64, error) {
	return list[uint64](t.tx, nsSellerTrades, string(seller))
}
