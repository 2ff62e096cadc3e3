package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/service"
)

// WebhookHandler serves the caller's lifecycle notification subscriptions.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// subscribeRequest is the JSON request body for POST /webhooks. URL and
// events are checked by the service so the messages match its rules.
type subscribeRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

type subscriptionResponse struct {
	WebhookID string `json:"webhook_id"`
	Identity  string `json:"identity"`
	Event     string `json:"event"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type webhookListResponse struct {
	Webhooks []subscriptionResponse `json:"webhooks"`
}

// Upsert handles POST /webhooks. It answers 201 when at least one event
// subscription is new and 200 when every event only had its URL replaced.
func (h *WebhookHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := ParseJSON(r, &req); err != nil {
		writeParseError(w, err)
		return
	}

	subs, created, err := h.webhookSvc.Upsert(r.Context(), service.UpsertWebhookRequest{
		Identity: caller(r),
		URL:      req.URL,
		Events:   req.Events,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, buildWebhookList(subs))
}

// List handles GET /webhooks.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.webhookSvc.List(r.Context(), caller(r))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildWebhookList(subs))
}

// Delete handles DELETE /webhooks/{webhook_id}. Only the subscriber may
// delete a subscription.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.webhookSvc.Delete(caller(r), chi.URLParam(r, "webhook_id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildWebhookList(subs []*domain.Webhook) webhookListResponse {
	resp := webhookListResponse{Webhooks: make([]subscriptionResponse, 0, len(subs))}
	for _, sub := range subs {
		resp.Webhooks = append(resp.Webhooks, subscriptionResponse{
			WebhookID: sub.WebhookID,
			Identity:  string(sub.Identity),
			Event:     sub.Event,
			URL:       sub.URL,
			CreatedAt: sub.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt: sub.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp
}
