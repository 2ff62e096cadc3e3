package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradeescrow/internal/auth"
	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/service"
)

// NewRouter creates a chi router with all routes registered, request logging,
// Content-Type validation and bearer-token authentication. metrics may be nil.
func NewRouter(
	tradeSvc *service.TradeService,
	registrySvc *service.RegistryService,
	webhookSvc *service.WebhookService,
	tokens auth.TokenConfig,
	metrics http.Handler,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	tradeH := NewTradeHandler(tradeSvc)
	participantH := NewParticipantHandler(registrySvc)
	webhookH := NewWebhookHandler(webhookSvc)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(tokens))

		// Participant routes.
		for _, role := range []string{"buyers", "sellers"} {
			r.Route("/participants/"+role, func(r chi.Router) {
				r.Post("/", participantH.Register(role))
				r.Get("/", participantH.List(role))
				r.Get("/{identity}", participantH.Get(role))
				r.Get("/{identity}/active", participantH.Active(role))
				r.Post("/{identity}/deactivate", participantH.Deactivate(role))
			})
		}

		// Trade routes.
		r.Post("/trades", tradeH.Create)
		r.Get("/trades", tradeH.List)
		r.Route("/trades/{trade_id}", func(r chi.Router) {
			r.Get("/", tradeH.Get)
			r.Post("/fund", tradeH.Fund)
			r.Post("/vlei/buyer/validate", tradeH.ValidateBuyerVLEI)
			r.Post("/vlei/seller/validate", tradeH.ValidateSellerVLEI)
			r.Post("/fulfill", tradeH.Fulfill)
			r.Post("/reject", tradeH.Reject)
			r.Post("/cancel", tradeH.Cancel)
			r.Post("/accept", tradeH.Accept)
			r.Get("/purchase-order", tradeH.GetPurchaseOrder)
			r.Get("/customer-invoice", tradeH.GetCustomerInvoice)
			r.Get("/warehouse-receipt", tradeH.GetWarehouseReceipt)
			r.Get("/vlei", tradeH.GetVLEIDocuments)
			r.Get("/match", tradeH.Match)
		})
		r.Get("/buyers/{identity}/trades", tradeH.ListByBuyer)
		r.Get("/sellers/{identity}/trades", tradeH.ListBySeller)
		r.Get("/escrow/cost", tradeH.EscrowCost)

		// Webhook routes.
		r.Post("/webhooks", webhookH.Upsert)
		r.Get("/webhooks", webhookH.List)
		r.Delete("/webhooks/{webhook_id}", webhookH.Delete)
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests that carry a body. If the Content-Type header doesn't start
// with "application/json", it returns 400 Bad Request before the handler runs.
// Bodyless action routes such as /reject and /cancel pass through.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) && r.ContentLength != 0 {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// bearerAuth verifies the Authorization header and places the token subject
// in the request context as the caller identity.
func bearerAuth(cfg auth.TokenConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "Authorization: Bearer <token> is required")
				return
			}
			id, err := auth.ParseToken(cfg, token)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// caller returns the authenticated identity placed by bearerAuth.
func caller(r *http.Request) domain.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}
