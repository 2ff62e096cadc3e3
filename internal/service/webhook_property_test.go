package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/store"
)

// TestProperty_WebhookUpsertIdempotency verifies that re-registering the same
// (identity, event) pair keeps the webhook_id stable, and that changing the
// URL updates the subscription in place.
func TestProperty_WebhookUpsertIdempotency(t *testing.T) {
	env := newTestTradeEnv(t)

	rapid.Check(t, func(rt *rapid.T) {
		svc := NewWebhookService(store.NewWebhookStore(), env.store, 5*time.Second, nil)
		ctx := context.Background()

		identity := rapid.SampledFrom([]domain.Identity{testBuyer, testSeller}).Draw(rt, "identity")
		event := rapid.SampledFrom(webhookEvents).Draw(rt, "event")
		url1 := fmt.Sprintf("https://example.com/hook/%d", rapid.IntRange(1, 99999).Draw(rt, "urlSuffix1"))
		url2 := fmt.Sprintf("https://other.example.com/hook/%d", rapid.IntRange(1, 99999).Draw(rt, "urlSuffix2"))

		req := UpsertWebhookRequest{Identity: identity, URL: url1, Events: []string{event}}

		first, created, err := svc.Upsert(ctx, req)
		if err != nil {
			rt.Fatalf("initial upsert failed: %v", err)
		}
		if !created || len(first) != 1 {
			rt.Fatalf("expected one created webhook, got created=%v len=%d", created, len(first))
		}
		originalID := first[0].WebhookID

		repeats := rapid.IntRange(1, 5).Draw(rt, "repeats")
		for i := 0; i < repeats; i++ {
			again, created, err := svc.Upsert(ctx, req)
			if err != nil {
				rt.Fatalf("repeat %d failed: %v", i, err)
			}
			if created {
				rt.Fatalf("repeat %d: expected created=false", i)
			}
			if again[0].WebhookID != originalID || again[0].URL != url1 {
				rt.Fatalf("repeat %d: subscription changed to %+v", i, again[0])
			}
		}

		req.URL = url2
		moved, created, err := svc.Upsert(ctx, req)
		if err != nil {
			rt.Fatalf("URL update failed: %v", err)
		}
		if created {
			rt.Fatal("expected created=false when updating URL")
		}
		if moved[0].WebhookID != originalID {
			rt.Fatalf("webhook_id changed after URL update: %q -> %q", originalID, moved[0].WebhookID)
		}
		if moved[0].URL != url2 {
			rt.Fatalf("expected updated URL %q, got %q", url2, moved[0].URL)
		}

		listed, err := svc.List(ctx, req.Identity)
		if err != nil {
			rt.Fatal(err)
		}
		if len(listed) != 1 {
			rt.Fatalf("expected 1 subscription, got %d", len(listed))
		}
	})
}
