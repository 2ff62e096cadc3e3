package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/store"
)

// Valid webhook event types, in documentation order.
var webhookEvents = []string{
	domain.EventTradeCreated,
	domain.EventEscrowFunded,
	domain.EventTradeFulfilled,
	domain.EventTradeRejected,
	domain.EventTradeCancelled,
	domain.EventTradeSettled,
}

var validWebhookEvents = func() map[string]bool {
	m := make(map[string]bool, len(webhookEvents))
	for _, e := range webhookEvents {
		m[e] = true
	}
	return m
}()

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	Identity domain.Identity
	URL      string
	Events   []string
}

// WebhookService handles webhook CRUD and lifecycle event dispatch.
type WebhookService struct {
	store  *store.WebhookStore
	ledger *store.Store
	client *http.Client
	logger *slog.Logger
}

// NewWebhookService creates a new WebhookService. ledger is consulted to
// check that subscribers are registered participants.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	ledger *store.Store,
	webhookTimeout time.Duration,
	logger *slog.Logger,
) *WebhookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{
		store:  webhookStore,
		ledger: ledger,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		logger: logger,
	}
}

// registered returns domain.ErrNotRegistered unless id is in either registry.
func (s *WebhookService) registered(ctx context.Context, id domain.Identity) error {
	return s.ledger.View(ctx, func(tx *store.Tx) error {
		for _, role := range []domain.Role{domain.RoleBuyer, domain.RoleSeller} {
			ok, err := tx.HasParticipant(role, id)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
		return domain.ErrNotRegistered
	})
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(ctx context.Context, req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	if err := s.registered(ctx, req.Identity); err != nil {
		return nil, false, err
	}

	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	// Deduplicate events while preserving order.
	seen := make(map[string]bool, len(req.Events))
	events := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !validWebhookEvents[event] {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + event + ". Must be one of: " + strings.Join(webhookEvents, ", "),
			}
		}
		if !seen[event] {
			seen[event] = true
			events = append(events, event)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(events))

	for _, event := range events {
		stored, created := s.store.Upsert(&domain.Webhook{
			WebhookID: uuid.NewString(),
			Identity:  req.Identity,
			Event:     event,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if created {
			anyCreated = true
		}
		webhooks = append(webhooks, stored)
	}

	return webhooks, anyCreated, nil
}

// List returns the participant's webhook subscriptions.
func (s *WebhookService) List(ctx context.Context, id domain.Identity) ([]*domain.Webhook, error) {
	if err := s.registered(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListByIdentity(id), nil
}

// Delete removes a webhook subscription owned by caller. Another
// participant's webhook is reported as not found.
func (s *WebhookService) Delete(caller domain.Identity, webhookID string) error {
	wh, err := s.store.Get(webhookID)
	if err != nil {
		return err
	}
	if wh.Identity != caller {
		return domain.ErrWebhookNotFound
	}
	return s.store.Delete(webhookID)
}

// lifecyclePayload is the JSON payload for every lifecycle webhook.
type lifecyclePayload struct {
	Event     string        `json:"event"`
	Timestamp string        `json:"timestamp"`
	Data      lifecycleData `json:"data"`
}

type lifecycleData struct {
	TradeID        uint64          `json:"trade_id"`
	Buyer          domain.Identity `json:"buyer"`
	Seller         domain.Identity `json:"seller"`
	State          string          `json:"state"`
	Amount         string          `json:"amount"`
	EscrowBalance  string          `json:"escrow_balance"`
	MarketplaceFee string          `json:"marketplace_fee"`
	Settlement     *settlementData `json:"settlement,omitempty"`
}

type settlementData struct {
	Seller       domain.Identity `json:"seller"`
	SellerAmount string          `json:"seller_amount"`
	Treasury     domain.Identity `json:"treasury"`
	TreasuryFee  string          `json:"treasury_fee"`
}

// Notify dispatches event to the buyer's and seller's subscriptions.
// Fire-and-forget: delivery failures are logged and never retried.
func (s *WebhookService) Notify(event string, trade *domain.Trade, settlement *domain.SettlementAuthorization) {
	payload := lifecyclePayload{
		Event:     event,
		Timestamp: time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		Data: lifecycleData{
			TradeID:        trade.TradeID,
			Buyer:          trade.Buyer,
			Seller:         trade.Seller,
			State:          trade.State.String(),
			Amount:         domain.FormatAmount(trade.Amount),
			EscrowBalance:  domain.FormatAmount(trade.EscrowBalance),
			MarketplaceFee: domain.FormatAmount(trade.MarketplaceFee),
		},
	}
	if settlement != nil {
		payload.Data.Settlement = &settlementData{
			Seller:       settlement.Seller,
			SellerAmount: domain.FormatAmount(settlement.SellerAmount),
			Treasury:     settlement.Treasury,
			TreasuryFee:  domain.FormatAmount(settlement.TreasuryFee),
		}
	}

	for _, id := range []domain.Identity{trade.Buyer, trade.Seller} {
		wh := s.store.GetByIdentityEvent(id, event)
		if wh == nil {
			continue
		}
		go s.deliver(wh, event, payload)
	}
}

// deliver sends the webhook payload via HTTP POST with the required headers.
func (s *WebhookService) deliver(wh *domain.Webhook, eventType string, payload any) {
	logger := s.logger.With(
		slog.String("webhook_id", wh.WebhookID),
		slog.String("event", eventType),
	)

	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("webhook payload encoding failed", slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		logger.Warn("webhook request build failed", slog.String("error", err.Error()))
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.NewString())
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", eventType)

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Warn("webhook delivery failed", slog.String("error", err.Error()))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		logger.Warn("webhook delivery rejected", slog.Int("status", resp.StatusCode))
	}
}
