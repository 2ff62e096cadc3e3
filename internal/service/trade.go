package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/efreitasn/tradeescrow/internal/auth"
	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/engine"
	"github.com/efreitasn/tradeescrow/internal/metrics"
	"github.com/efreitasn/tradeescrow/internal/store"
)

// Clock returns the current time as Unix seconds.
type Clock func() uint64

// SystemClock reads the wall clock.
func SystemClock() uint64 {
	return uint64(time.Now().Unix())
}

// Notifier receives committed lifecycle events. settlement is non-nil only
// for domain.EventTradeSettled.
type Notifier interface {
	Notify(event string, trade *domain.Trade, settlement *domain.SettlementAuthorization)
}

// DocumentInput carries the fields shared by the three trade documents.
type DocumentInput struct {
	Description string
	Quantity    uint64
	UnitPrice   int64
	TotalPrice  int64
	DocumentRef string
}

// CreateTradeRequest represents the input for trade creation.
type CreateTradeRequest struct {
	Buyer         domain.Identity
	Seller        domain.Identity
	PurchaseOrder DocumentInput
	BuyerLEIRef   string
	SellerLEIRef  string
}

// FulfillOrderRequest represents the seller's delivery documents.
type FulfillOrderRequest struct {
	Invoice           DocumentInput
	Receipt           DocumentInput
	WarehouseLocation string
}

// TradeServiceConfig wires a TradeService. Store is required; the rest
// default to no-ops or the system clock.
type TradeServiceConfig struct {
	Store      *store.Store
	Authorizer auth.Authorizer
	// VLEIValidator is the identity allowed to flip vLEI flags. Empty leaves
	// validation open to any caller.
	VLEIValidator domain.Identity
	Clock         Clock
	Notifier      Notifier
	Metrics       *metrics.EscrowMetrics
	Logger        *slog.Logger
}

// TradeService runs the trade lifecycle. Every mutating operation is a single
// store transaction: all preconditions are checked before the first write and
// any error discards the transaction.
type TradeService struct {
	store     *store.Store
	auth      auth.Authorizer
	validator domain.Identity
	clock     Clock
	notifier  Notifier
	metrics   *metrics.EscrowMetrics
	logger    *slog.Logger
}

// NewTradeService creates a new TradeService.
func NewTradeService(cfg TradeServiceConfig) *TradeService {
	s := &TradeService{
		store:     cfg.Store,
		auth:      cfg.Authorizer,
		validator: cfg.VLEIValidator,
		clock:     cfg.Clock,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if s.auth == nil {
		s.auth = auth.ContextAuthorizer{}
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// transition records a committed state change for metrics.
type transition struct {
	from, to domain.TradeState
}

// update runs fn in one transaction and records the outcome.
func (s *TradeService) update(ctx context.Context, op string, tradeID uint64, fn func(tx *store.Tx) (*transition, error)) error {
	start := time.Now()
	var tr *transition
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		tr, err = fn(tx)
		return err
	})
	s.metrics.ObserveOperation(op, time.Since(start), err)

	attrs := []any{slog.String("operation", op)}
	if tradeID != 0 {
		attrs = append(attrs, slog.Uint64("trade_id", tradeID))
	}
	switch {
	case err == nil:
		if tr != nil {
			s.metrics.ObserveTransition(tr.from, tr.to)
			attrs = append(attrs, slog.String("state", tr.to.String()))
		}
		s.logger.InfoContext(ctx, "trade operation committed", attrs...)
	case domain.IsDomainError(err):
		s.logger.WarnContext(ctx, "trade operation rejected", append(attrs, slog.String("error", err.Error()))...)
	default:
		s.logger.ErrorContext(ctx, "trade operation failed", append(attrs, slog.String("error", err.Error()))...)
	}
	return err
}

func (s *TradeService) notify(event string, trade *domain.Trade, settlement *domain.SettlementAuthorization) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(event, trade, settlement)
}

// CreateTrade opens a trade in the Ordered state together with its purchase
// order and unvalidated vLEI record, and appends it to both participants'
// trade indices.
func (s *TradeService) CreateTrade(ctx context.Context, req CreateTradeRequest) (*domain.Trade, error) {
	if err := s.auth.RequireAuth(ctx, req.Buyer); err != nil {
		return nil, err
	}

	var trade *domain.Trade
	err := s.update(ctx, "create_trade", 0, func(tx *store.Tx) (*transition, error) {
		if req.Buyer == req.Seller {
			return nil, domain.ErrBuyerCannotBeSeller
		}
		if err := isActive(tx, domain.RoleBuyer, req.Buyer); err != nil {
			return nil, err
		}
		if err := isActive(tx, domain.RoleSeller, req.Seller); err != nil {
			return nil, err
		}
		if req.PurchaseOrder.TotalPrice <= 0 {
			return nil, domain.ErrInvalidAmount
		}

		buyer, err := info(tx, domain.RoleBuyer, req.Buyer)
		if err != nil {
			return nil, err
		}
		seller, err := info(tx, domain.RoleSeller, req.Seller)
		if err != nil {
			return nil, err
		}

		id, err := tx.NextTradeID()
		if err != nil {
			return nil, err
		}
		now := s.clock()

		trade = &domain.Trade{
			TradeID:   id,
			Buyer:     req.Buyer,
			Seller:    req.Seller,
			Amount:    req.PurchaseOrder.TotalPrice,
			State:     domain.TradeStateOrdered,
			CreatedAt: now,
		}
		po := &domain.PurchaseOrder{
			Description: req.PurchaseOrder.Description,
			Quantity:    req.PurchaseOrder.Quantity,
			UnitPrice:   req.PurchaseOrder.UnitPrice,
			TotalPrice:  req.PurchaseOrder.TotalPrice,
			DocumentRef: req.PurchaseOrder.DocumentRef,
			CreatedBy:   req.Buyer,
			CreatedAt:   now,
		}
		docs := &domain.VLEIDocuments{
			BuyerLEI:     buyer.LEIID,
			BuyerLEIRef:  req.BuyerLEIRef,
			SellerLEI:    seller.LEIID,
			SellerLEIRef: req.SellerLEIRef,
			ValidatedAt:  now,
		}

		if err := tx.PutTrade(trade); err != nil {
			return nil, err
		}
		if err := tx.PutPurchaseOrder(id, po); err != nil {
			return nil, err
		}
		if err := tx.PutVLEIDocuments(id, docs); err != nil {
			return nil, err
		}
		if err := tx.AppendBuyerTrade(req.Buyer, id); err != nil {
			return nil, err
		}
		if err := tx.AppendSellerTrade(req.Seller, id); err != nil {
			return nil, err
		}
		if err := tx.SetNextTradeID(id + 1); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(domain.EventTradeCreated, trade, nil)
	return trade, nil
}

// FundEscrow records the buyer's one-time deposit of amount plus fee.
func (s *TradeService) FundEscrow(ctx context.Context, caller domain.Identity, tradeID uint64, payment int64) (*domain.Trade, error) {
	if err := s.auth.RequireAuth(ctx, caller); err != nil {
		return nil, err
	}

	var trade *domain.Trade
	err := s.update(ctx, "fund_escrow", tradeID, func(tx *store.Tx) (*transition, error) {
		t, err := tx.Trade(tradeID)
		if err != nil {
			return nil, err
		}
		if t.Buyer != caller {
			return nil, domain.ErrNotBuyer
		}
		if t.State != domain.TradeStateOrdered {
			return nil, domain.ErrInvalidTradeState
		}
		settings, err := tx.Settings()
		if err != nil {
			return nil, err
		}
		if err := t.Fund(payment, settings.FeeRateBps); err != nil {
			return nil, err
		}
		if err := tx.PutTrade(t); err != nil {
			return nil, err
		}
		trade = t
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(domain.EventEscrowFunded, trade, nil)
	return trade, nil
}

// ValidateBuyerVLEI marks the buyer's legal-entity identifier as validated.
func (s *TradeService) ValidateBuyerVLEI(ctx context.Context, tradeID uint64) (*domain.VLEIDocuments, error) {
	return s.validateVLEI(ctx, "validate_buyer_vlei", tradeID, func(d *domain.VLEIDocuments) {
		d.BuyerValidated = true
	})
}

// ValidateSellerVLEI marks the seller's legal-entity identifier as validated.
func (s *TradeService) ValidateSellerVLEI(ctx context.Context, tradeID uint64) (*domain.VLEIDocuments, error) {
	return s.validateVLEI(ctx, "validate_seller_vlei", tradeID, func(d *domain.VLEIDocuments) {
		d.SellerValidated = true
	})
}

// validateVLEI sets a flag and refreshes ValidatedAt. Flags never go back to
// false, so repeating the call only moves the timestamp.
func (s *TradeService) validateVLEI(ctx context.Context, op string, tradeID uint64, mark func(*domain.VLEIDocuments)) (*domain.VLEIDocuments, error) {
	if s.validator != "" {
		if err := s.auth.RequireAuth(ctx, s.validator); err != nil {
			return nil, err
		}
	}

	var docs *domain.VLEIDocuments
	err := s.update(ctx, op, tradeID, func(tx *store.Tx) (*transition, error) {
		d, err := tx.VLEIDocuments(tradeID)
		if err != nil {
			return nil, err
		}
		mark(d)
		d.ValidatedAt = s.clock()
		if err := tx.PutVLEIDocuments(tradeID, d); err != nil {
			return nil, err
		}
		docs = d
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// FulfillOrder stores the seller's invoice and warehouse receipt and moves
// the trade to Fulfilled.
func (s *TradeService) FulfillOrder(ctx context.Context, caller domain.Identity, tradeID uint64, req FulfillOrderRequest) (*domain.Trade, error) {
	if err := s.auth.RequireAuth(ctx, caller); err != nil {
		return nil, err
	}

	var trade *domain.Trade
	err := s.update(ctx, "fulfill_order", tradeID, func(tx *store.Tx) (*transition, error) {
		t, err := tx.Trade(tradeID)
		if err != nil {
			return nil, err
		}
		if t.Seller != caller {
			return nil, domain.ErrNotSeller
		}
		if t.State != domain.TradeStateOrdered {
			return nil, domain.ErrInvalidTradeState
		}
		if !t.Funded() {
			return nil, domain.ErrEscrowNotFunded
		}
		docs, err := tx.VLEIDocuments(tradeID)
		if err != nil {
			return nil, err
		}
		if !docs.BuyerValidated {
			return nil, domain.ErrBuyerVLEINotValidated
		}

		now := s.clock()
		ci := &domain.CustomerInvoice{
			Description: req.Invoice.Description,
			Quantity:    req.Invoice.Quantity,
			UnitPrice:   req.Invoice.UnitPrice,
			TotalPrice:  req.Invoice.TotalPrice,
			DocumentRef: req.Invoice.DocumentRef,
			CreatedBy:   caller,
			CreatedAt:   now,
		}
		wr := &domain.WarehouseReceipt{
			Description:       req.Receipt.Description,
			Quantity:          req.Receipt.Quantity,
			UnitPrice:         req.Receipt.UnitPrice,
			TotalPrice:        req.Receipt.TotalPrice,
			DocumentRef:       req.Receipt.DocumentRef,
			WarehouseLocation: req.WarehouseLocation,
			CreatedBy:         caller,
			CreatedAt:         now,
		}

		from := t.State
		if err := t.TransitionTo(domain.TradeStateFulfilled); err != nil {
			return nil, err
		}
		t.FulfilledAt = now

		if err := tx.PutCustomerInvoice(tradeID, ci); err != nil {
			return nil, err
		}
		if err := tx.PutWarehouseReceipt(tradeID, wr); err != nil {
			return nil, err
		}
		if err := tx.PutTrade(t); err != nil {
			return nil, err
		}
		trade = t
		return &transition{from: from, to: t.State}, nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(domain.EventTradeFulfilled, trade, nil)
	return trade, nil
}

// RejectOrder lets the seller decline an Ordered trade.
func (s *TradeService) RejectOrder(ctx context.Context, caller domain.Identity, tradeID uint64) (*domain.Trade, error) {
	trade, err := s.terminate(ctx, "reject_order", caller, tradeID, domain.TradeStateRejected, func(t *domain.Trade) error {
		if t.Seller != caller {
			return domain.ErrNotSeller
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(domain.EventTradeRejected, trade, nil)
	return trade, nil
}

// CancelTrade lets the buyer withdraw an Ordered trade.
func (s *TradeService) CancelTrade(ctx context.Context, caller domain.Identity, tradeID uint64) (*domain.Trade, error) {
	trade, err := s.terminate(ctx, "cancel_trade", caller, tradeID, domain.TradeStateCancelled, func(t *domain.Trade) error {
		if t.Buyer != caller {
			return domain.ErrNotBuyer
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(domain.EventTradeCancelled, trade, nil)
	return trade, nil
}

// terminate moves an Ordered trade to a terminal state after checkCaller
// accepts the caller. Refunds are left to the external payment system.
func (s *TradeService) terminate(ctx context.Context, op string, caller domain.Identity, tradeID uint64, to domain.TradeState, checkCaller func(*domain.Trade) error) (*domain.Trade, error) {
	if err := s.auth.RequireAuth(ctx, caller); err != nil {
		return nil, err
	}

	var trade *domain.Trade
	err := s.update(ctx, op, tradeID, func(tx *store.Tx) (*transition, error) {
		t, err := tx.Trade(tradeID)
		if err != nil {
			return nil, err
		}
		if err := checkCaller(t); err != nil {
			return nil, err
		}
		if t.State != domain.TradeStateOrdered {
			return nil, domain.ErrInvalidTradeState
		}
		from := t.State
		if err := t.TransitionTo(to); err != nil {
			return nil, err
		}
		if err := tx.PutTrade(t); err != nil {
			return nil, err
		}
		trade = t
		return &transition{from: from, to: to}, nil
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// AcceptTrade runs the delivery-versus-payment check and settles the trade.
// No funds move: the returned authorization tells an external payment
// system to release Amount to the seller and MarketplaceFee to the treasury.
// A failed match leaves the trade Fulfilled and is returned unchanged.
func (s *TradeService) AcceptTrade(ctx context.Context, caller domain.Identity, tradeID uint64) (*domain.SettlementAuthorization, error) {
	if err := s.auth.RequireAuth(ctx, caller); err != nil {
		return nil, err
	}

	var (
		trade      *domain.Trade
		settlement *domain.SettlementAuthorization
	)
	err := s.update(ctx, "accept_trade", tradeID, func(tx *store.Tx) (*transition, error) {
		t, err := tx.Trade(tradeID)
		if err != nil {
			return nil, err
		}
		if t.Buyer != caller {
			return nil, domain.ErrNotBuyer
		}
		if t.State != domain.TradeStateFulfilled {
			return nil, domain.ErrTradeNotFulfilled
		}
		if err := engine.DvPCheck(tx, tradeID); err != nil {
			return nil, err
		}
		settings, err := tx.Settings()
		if err != nil {
			return nil, err
		}

		from := t.State
		if err := t.TransitionTo(domain.TradeStateSettled); err != nil {
			return nil, err
		}
		t.SettledAt = s.clock()
		if err := tx.PutTrade(t); err != nil {
			return nil, err
		}

		trade = t
		settlement = &domain.SettlementAuthorization{
			TradeID:      t.TradeID,
			Seller:       t.Seller,
			SellerAmount: t.Amount,
			Treasury:     settings.Treasury,
			TreasuryFee:  t.MarketplaceFee,
			AuthorizedAt: t.SettledAt,
		}
		return &transition{from: from, to: t.State}, nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(domain.EventTradeSettled, trade, settlement)
	return settlement, nil
}
