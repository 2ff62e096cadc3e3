package store

import (
	"sync"

	"github.com/efreitasn/tradeescrow/internal/domain"
)

// WebhookStore is a thread-safe in-memory store for webhooks.
// Subscriptions are process state, not ledger state, so they live outside
// the kv transaction.
// Primary index: webhook_id → webhook.
// Secondary index: identity → event → webhook.
type WebhookStore struct {
	mu         sync.RWMutex
	webhooks   map[string]*domain.Webhook                     // webhook_id → webhook
	byIdentity map[domain.Identity]map[string]*domain.Webhook // identity → event → webhook
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		webhooks:   make(map[string]*domain.Webhook),
		byIdentity: make(map[domain.Identity]map[string]*domain.Webhook),
	}
}

// Upsert inserts or updates a subscription keyed by (identity, event).
// An existing subscription keeps its webhook_id; only URL and UpdatedAt
// change, and only when the URL differs. Returns the stored webhook and
// true if a new subscription was created.
func (s *WebhookStore) Upsert(w *domain.Webhook) (*domain.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if events, ok := s.byIdentity[w.Identity]; ok {
		if existing, ok := events[w.Event]; ok {
			if existing.URL != w.URL {
				existing.URL = w.URL
				existing.UpdatedAt = w.UpdatedAt
			}
			cp := *existing
			return &cp, false
		}
	}

	s.webhooks[w.WebhookID] = w
	if s.byIdentity[w.Identity] == nil {
		s.byIdentity[w.Identity] = make(map[string]*domain.Webhook)
	}
	s.byIdentity[w.Identity][w.Event] = w

	cp := *w
	return &cp, true
}

// Get retrieves a webhook by ID. It returns
// domain.ErrWebhookNotFound if the webhook does not exist.
func (s *WebhookStore) Get(id string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	cp := *w
	return &cp, nil
}

// ListByIdentity returns all webhooks for a participant.
// Returns an empty slice if there are no subscriptions.
func (s *WebhookStore) ListByIdentity(id domain.Identity) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byIdentity[id]
	if len(events) == 0 {
		return []*domain.Webhook{}
	}

	result := make([]*domain.Webhook, 0, len(events))
	for _, w := range events {
		cp := *w
		result = append(result, &cp)
	}
	return result
}

// Delete removes a webhook by ID. It returns
// domain.ErrWebhookNotFound if the webhook does not exist.
func (s *WebhookStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}

	delete(s.webhooks, id)
	if events, ok := s.byIdentity[w.Identity]; ok {
		delete(events, w.Event)
		if len(events) == 0 {
			delete(s.byIdentity, w.Identity)
		}
	}
	return nil
}

// GetByIdentityEvent returns the webhook for an identity+event pair,
// or nil if no subscription exists.
func (s *WebhookStore) GetByIdentityEvent(id domain.Identity, event string) *domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w := s.byIdentity[id][event]
	if w == nil {
		return nil
	}
	cp := *w
	return &cp
}
