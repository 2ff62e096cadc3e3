package service

import (
	"context"
	"errors"

	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/engine"
	"github.com/efreitasn/tradeescrow/internal/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// TradePage is one page of trades ordered by id.
type TradePage struct {
	Trades []*domain.Trade `json:"trades"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
	Total  uint64          `json:"total"`
}

// GetTrade returns the trade with the given id.
func (s *TradeService) GetTrade(ctx context.Context, tradeID uint64) (*domain.Trade, error) {
	var trade *domain.Trade
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		trade, err = tx.Trade(tradeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// GetPurchaseOrder returns the trade's purchase order.
func (s *TradeService) GetPurchaseOrder(ctx context.Context, tradeID uint64) (*domain.PurchaseOrder, error) {
	var po *domain.PurchaseOrder
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		po, err = tx.PurchaseOrder(tradeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return po, nil
}

// GetCustomerInvoice returns the trade's invoice once the seller has fulfilled.
func (s *TradeService) GetCustomerInvoice(ctx context.Context, tradeID uint64) (*domain.CustomerInvoice, error) {
	var ci *domain.CustomerInvoice
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		ci, err = tx.CustomerInvoice(tradeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ci, nil
}

// GetWarehouseReceipt returns the trade's receipt once the seller has fulfilled.
func (s *TradeService) GetWarehouseReceipt(ctx context.Context, tradeID uint64) (*domain.WarehouseReceipt, error) {
	var wr *domain.WarehouseReceipt
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		wr, err = tx.WarehouseReceipt(tradeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wr, nil
}

// GetVLEIDocuments returns the trade's legal-entity record.
func (s *TradeService) GetVLEIDocuments(ctx context.Context, tradeID uint64) (*domain.VLEIDocuments, error) {
	var docs *domain.VLEIDocuments
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		docs, err = tx.VLEIDocuments(tradeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// GetTradesByBuyer returns the buyer's trade ids in creation order.
func (s *TradeService) GetTradesByBuyer(ctx context.Context, buyer domain.Identity) ([]uint64, error) {
	var ids []uint64
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		ids, err = tx.BuyerTrades(buyer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetTradesBySeller returns the seller's trade ids in creation order.
func (s *TradeService) GetTradesBySeller(ctx context.Context, seller domain.Identity) ([]uint64, error) {
	var ids []uint64
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		ids, err = tx.SellerTrades(seller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListTrades returns trades by ascending id. page is 1-based; limit defaults
// to 20 and is capped at 100.
func (s *TradeService) ListTrades(ctx context.Context, page, limit int) (*TradePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	result := &TradePage{Trades: []*domain.Trade{}, Page: page, Limit: limit}
	err := s.store.View(ctx, func(tx *store.Tx) error {
		next, err := tx.NextTradeID()
		if err != nil {
			return err
		}
		result.Total = next - 1

		// Pages past the end are empty; checking first keeps the offset
		// multiplication from wrapping for huge page numbers.
		skip := uint64(page - 1)
		if skip > result.Total/uint64(limit) {
			return nil
		}
		first := skip*uint64(limit) + 1
		for id := first; id < next && len(result.Trades) < limit; id++ {
			t, err := tx.Trade(id)
			if err != nil {
				return err
			}
			result.Trades = append(result.Trades, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MatchPreview reports the three-way match variances for a fulfilled trade
// without changing it.
func (s *TradeService) MatchPreview(ctx context.Context, tradeID uint64) (*engine.MatchReport, error) {
	var report engine.MatchReport
	err := s.store.View(ctx, func(tx *store.Tx) error {
		if _, err := tx.Trade(tradeID); err != nil {
			return err
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
		report = engine.Preview(po, ci, wr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// CalculateEscrowCost returns the deposit required for amount under the
// current fee rate, and the fee included in it.
func (s *TradeService) CalculateEscrowCost(ctx context.Context, amount int64) (total, fee int64, err error) {
	err = s.store.View(ctx, func(tx *store.Tx) error {
		settings, err := tx.Settings()
		if err != nil {
			return err
		}
		total, fee, err = domain.CalculateEscrowCost(amount, settings.FeeRateBps)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return total, fee, nil
}

// Settings returns the persisted marketplace settings.
func (s *TradeService) Settings(ctx context.Context) (*domain.Settings, error) {
	var settings *domain.Settings
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		settings, err = tx.Settings()
		return err
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// Bootstrap persists settings and the trade id counter on first start. On
// later starts the stored settings are returned and settings is ignored.
func Bootstrap(ctx context.Context, st *store.Store, settings domain.Settings) (*domain.Settings, error) {
	var result *domain.Settings
	err := st.Update(ctx, func(tx *store.Tx) error {
		existing, err := tx.Settings()
		switch {
		case err == nil:
			result = existing
			return nil
		case !errors.Is(err, store.ErrNotInitialized):
			return err
		}

		if err := settings.Validate(); err != nil {
			return err
		}
		if err := tx.PutSettings(&settings); err != nil {
			return err
		}
		if err := tx.SetNextTradeID(1); err != nil {
			return err
		}
		result = &settings
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
