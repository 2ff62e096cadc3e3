package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/service"
)

// TradeHandler handles HTTP requests for trade endpoints.
type TradeHandler struct {
	tradeSvc *service.TradeService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(tradeSvc *service.TradeService) *TradeHandler {
	return &TradeHandler{tradeSvc: tradeSvc}
}

// documentRequest is the JSON shape of a trade document in request bodies.
// Prices are decimal strings with up to 7 fractional digits.
type documentRequest struct {
	Description string `json:"description" validate:"required,max=256"`
	Quantity    uint64 `json:"quantity"`
	UnitPrice   string `json:"unit_price" validate:"required"`
	TotalPrice  string `json:"total_price" validate:"required"`
	DocumentRef string `json:"document_ref" validate:"max=256"`
}

// createTradeRequest is the JSON request body for POST /trades. The buyer is
// the authenticated caller.
type createTradeRequest struct {
	Seller        string          `json:"seller" validate:"required"`
	PurchaseOrder documentRequest `json:"purchase_order"`
	BuyerLEIRef   string          `json:"buyer_lei_ref" validate:"max=256"`
	SellerLEIRef  string          `json:"seller_lei_ref" validate:"max=256"`
}

// fundRequest is the JSON request body for POST /trades/{trade_id}/fund.
type fundRequest struct {
	Payment string `json:"payment" validate:"required"`
}

// fulfillRequest is the JSON request body for POST /trades/{trade_id}/fulfill.
type fulfillRequest struct {
	Invoice           documentRequest `json:"invoice"`
	Receipt           documentRequest `json:"receipt"`
	WarehouseLocation string          `json:"warehouse_location" validate:"required,max=256"`
}

// tradeResponse is the JSON representation of a trade. Unset timestamps are
// null.
type tradeResponse struct {
	TradeID        uint64  `json:"trade_id"`
	Buyer          string  `json:"buyer"`
	Seller         string  `json:"seller"`
	Amount         string  `json:"amount"`
	State          string  `json:"state"`
	EscrowBalance  string  `json:"escrow_balance"`
	MarketplaceFee string  `json:"marketplace_fee"`
	CreatedAt      string  `json:"created_at"`
	FulfilledAt    *string `json:"fulfilled_at"`
	SettledAt      *string `json:"settled_at"`
}

type documentResponse struct {
	Description       string `json:"description"`
	Quantity          uint64 `json:"quantity"`
	UnitPrice         string `json:"unit_price"`
	TotalPrice        string `json:"total_price"`
	DocumentRef       string `json:"document_ref"`
	WarehouseLocation string `json:"warehouse_location,omitempty"`
	CreatedBy         string `json:"created_by"`
	CreatedAt         string `json:"created_at"`
}

type vleiResponse struct {
	BuyerLEI        string  `json:"buyer_lei"`
	BuyerLEIRef     string  `json:"buyer_lei_ref"`
	BuyerValidated  bool    `json:"buyer_validated"`
	SellerLEI       string  `json:"seller_lei"`
	SellerLEIRef    string  `json:"seller_lei_ref"`
	SellerValidated bool    `json:"seller_validated"`
	ValidatedAt     *string `json:"validated_at"`
}

type settlementResponse struct {
	TradeID      uint64 `json:"trade_id"`
	Seller       string `json:"seller"`
	SellerAmount string `json:"seller_amount"`
	Treasury     string `json:"treasury"`
	TreasuryFee  string `json:"treasury_fee"`
	AuthorizedAt string `json:"authorized_at"`
}

type tradeListResponse struct {
	Trades []tradeResponse `json:"trades"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
	Total  uint64          `json:"total"`
}

type tradeIDsResponse struct {
	Identity string   `json:"identity"`
	TradeIDs []uint64 `json:"trade_ids"`
}

type escrowCostResponse struct {
	Amount     string `json:"amount"`
	Fee        string `json:"fee"`
	Total      string `json:"total"`
	FeeRateBps uint32 `json:"fee_rate_bps"`
}

// Create handles POST /trades.
func (h *TradeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTradeRequest
	if err := ParseJSON(r, &req); err != nil {
		writeParseError(w, err)
		return
	}

	po, err := req.PurchaseOrder.input("purchase_order")
	if err != nil {
		mapError(w, err)
		return
	}

	trade, err := h.tradeSvc.CreateTrade(r.Context(), service.CreateTradeRequest{
		Buyer:         caller(r),
		Seller:        domain.Identity(req.Seller),
		PurchaseOrder: po,
		BuyerLEIRef:   req.BuyerLEIRef,
		SellerLEIRef:  req.SellerLEIRef,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildTradeResponse(trade))
}

// List handles GET /trades?page=&limit=.
func (h *TradeHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		mapError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		mapError(w, err)
		return
	}

	result, err := h.tradeSvc.ListTrades(r.Context(), page, limit)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := tradeListResponse{
		Trades: make([]tradeResponse, len(result.Trades)),
		Page:   result.Page,
		Limit:  result.Limit,
		Total:  result.Total,
	}
	for i, t := range result.Trades {
		resp.Trades[i] = buildTradeResponse(t)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /trades/{trade_id}.
func (h *TradeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		mapError(w, err)
		return
	}

	trade, err := h.tradeSvc.GetTrade(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildTradeResponse(trade))
}

// Fund handles POST /trades/{trade_id}/fund.
func (h *TradeHandler) Fund(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		mapError(w, err)
		return
	}

	var req fundRequest
	if err := ParseJSON(r, &req); err != nil {
		writeParseError(w, err)
		return
	}
	payment, err := parseAmount("payment", req.Payment)
	if err != nil {
		mapError(w, err)
		return
	}

	trade, err := h.tradeSvc.FundEscrow(r.Context(), caller(r), id, payment)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildTradeResponse(trade))
}

// ValidateBuyerVLEI handles POST /trades/{trade_id}/vlei/buyer/validate.
func (h *TradeHandler) ValidateBuyerVLEI(w http.ResponseWriter, r *http.Request) {
	h.validateVLEI(w, r, h.tradeSvc.ValidateBuyerVLEI)
}

// ValidateSellerVLEI handles POST /trades/{trade_id}/vlei/seller/validate.
func (h *TradeHandler) ValidateSellerVLEI(w http.ResponseWriter, r *http.Request) {
	h.validateVLEI(w, r, h.tradeSvc.ValidateSellerVLEI)
}

func (h *TradeHandler) validateVLEI(
	w http.ResponseWriter,
	r *http.Request,
	mark func(ctx context.Context, tradeID uint64) (*domain.VLEIDocuments, error),
) {
	id, err := tradeIDParam(r)
	if err != nil {
		mapError(w, err)
		return
	}

	docs, err := mark(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildVLEIResponse(docs))
}

// Fulfill handles POST /trades/{trade_id}/fulfill.
func (h *TradeHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		mapError(w, err)
		return
	}

	var req fulfillRequest
	if err := ParseJSON(r, &req); err != nil {
		writeParseError(w, err)
		return
	}
	invoice, err := req.Invoice.input("invoice")
	if err != nil {
		mapError(w, err)
		return
	}
	receipt, err := req.Receipt.input("receipt")
	if err != nil {
		mapError(w, err)
		return
	}

	trade, err := h.tradeSvc.FulfillOrder(r.Context(), caller(r), id, service.FulfillOrderRequest{
		Invoice:           invoice,
		Receipt:           receipt,
		WarehouseLocation: req.WarehouseLocation,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildTradeResponse(trade))
}

// Reject handles POST /trades/{trade_id}/reject.
func (h *TradeHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, h.tradeSvc.RejectOrder)
}

// Cancel handles POST /trades/{trade_id}/cancel.
func (h *TradeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, h.tradeSvc.CancelTrade)
}

func (h *TradeHandler) terminate(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, caller domain.Identity, tradeID uint64) (*domain.Trade, error),
) {
	id, err := tradeIDParam(r)
	if err != nil {
		mapError(w, err)
		return
	}

	trade, err := op(r.Context(), caller(r), id)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildTradeResponse(trade))
}

// Accept handles POST /trades/{trade_id}/accept. The response is the
// settlement authorization for the payment layer.
func (h *TradeHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		mapError(w, err)
		return
	}

	settlement, err := h.tradeSvc.AcceptTrade(r.Context(), caller(r), id)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, settlementResponse{
		TradeID:      settlement.TradeID,
		Seller:       string(settlement.Seller),
		SellerAmount: domain.FormatAmount(settlement.SellerAmount),
		Treasury:     string(settlement.Treasury),
		TreasuryFee:  domain.FormatAmount(settlement.TreasuryFee),
		AuthorizedAt: formatTimestamp(settlement.AuthorizedAt),
	})
}

// GetPurchaseOrder handles GET /trades/{trade_id}/purchase-order.
func (h *TradeHandler) GetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		mapError(w, err)
		return
	}
	po, err := h.tradeSvc.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, documentResponse{
		Description: po.Description,
		Quantity:    po.Quantity,
		UnitPrice:   domain.FormatAmount(po.UnitPrice),
		TotalPrice:  domain.FormatAmount(po.TotalPrice),
		DocumentRef: po.DocumentRef,
		CreatedBy:   string(po.CreatedBy),
		CreatedAt:   formatTimestamp(po.CreatedAt),
	})
}

// GetCustomerInvoice handles GET /trades/{trade_id}/customer-invoice.
func (h *TradeHandler) GetCustomerInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		mapError(w, err)
		return
	}
	ci, err := h.tradeSvc.GetCustomerInvoice(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, documentResponse{
		Description: ci.Description,
		Quantity:    ci.Quantity,
		UnitPrice:   domain.FormatAmount(ci.UnitPrice),
		TotalPrice:  domain.FormatAmount(ci.TotalPrice),
		DocumentRef: ci.DocumentRef,
		CreatedBy:   string(ci.CreatedBy),
		CreatedAt:   formatTimestamp(ci.CreatedAt),
	})
}

// GetWarehouseReceipt handles GET /trades/{trade_id}/warehouse-receipt.
func (h *TradeHandler) GetWarehouseReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		mapError(w, err)
		return
	}
	wr, err := h.tradeSvc.GetWarehouseReceipt(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, documentResponse{
		Description:       wr.Description,
		Quantity:          wr.Quantity,
		UnitPrice:         domain.FormatAmount(wr.UnitPrice),
		TotalPrice:        domain.FormatAmount(wr.TotalPrice),
		DocumentRef:       wr.DocumentRef,
		WarehouseLocation: wr.WarehouseLocation,
		CreatedBy:         string(wr.CreatedBy),
		CreatedAt:         formatTimestamp(wr.CreatedAt),
	})
}

// GetVLEIDocuments handles GET /trades/{trade_id}/vlei.
func (h *TradeHandler) GetVLEIDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		mapError(w, err)
		return
	}
	docs, err := h.tradeSvc.GetVLEIDocuments(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildVLEIResponse(docs))
}

// Match handles GET /trades/{trade_id}/match.
func (h *TradeHandler) Match(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		mapError(w, err)
		return
	}
	report, err := h.tradeSvc.MatchPreview(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// ListByBuyer handles GET /buyers/{identity}/trades.
func (h *TradeHandler) ListByBuyer(w http.ResponseWriter, r *http.Request) {
	h.listByParty(w, r, h.tradeSvc.GetTradesByBuyer)
}

// ListBySeller handles GET /sellers/{identity}/trades.
func (h *TradeHandler) ListBySeller(w http.ResponseWriter, r *http.Request) {
	h.listByParty(w, r, h.tradeSvc.GetTradesBySeller)
}

func (h *TradeHandler) listByParty(
	w http.ResponseWriter,
	r *http.Request,
	list func(ctx context.Context, id domain.Identity) ([]uint64, error),
) {
	id := chi.URLParam(r, "identity")
	ids, err := list(r.Context(), domain.Identity(id))
	if err != nil {
		mapError(w, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	WriteJSON(w, http.StatusOK, tradeIDsResponse{Identity: id, TradeIDs: ids})
}

// EscrowCost handles GET /escrow/cost?amount=.
func (h *TradeHandler) EscrowCost(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("amount")
	if raw == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "amount query parameter is required")
		return
	}
	amount, err := parseAmount("amount", raw)
	if err != nil {
		mapError(w, err)
		return
	}

	settings, err := h.tradeSvc.Settings(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	total, fee, err := h.tradeSvc.CalculateEscrowCost(r.Context(), amount)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, escrowCostResponse{
		Amount:     domain.FormatAmount(amount),
		Fee:        domain.FormatAmount(fee),
		Total:      domain.FormatAmount(total),
		FeeRateBps: settings.FeeRateBps,
	})
}

// input converts a document request into service input, parsing prices.
func (d documentRequest) input(field string) (service.DocumentInput, error) {
	unit, err := parseAmount(field+".unit_price", d.UnitPrice)
	if err != nil {
		return service.DocumentInput{}, err
	}
	total, err := parseAmount(field+".total_price", d.TotalPrice)
	if err != nil {
		return service.DocumentInput{}, err
	}
	return service.DocumentInput{
		Description: d.Description,
		Quantity:    d.Quantity,
		UnitPrice:   unit,
		TotalPrice:  total,
		DocumentRef: d.DocumentRef,
	}, nil
}

// queryInt reads an optional positive integer query parameter. Missing
// parameters return 0 so the service default applies.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, &domain.ValidationError{Message: name + " must be a positive integer"}
	}
	return v, nil
}

func buildTradeResponse(t *domain.Trade) tradeResponse {
	return tradeResponse{
		TradeID:        t.TradeID,
		Buyer:          string(t.Buyer),
		Seller:         string(t.Seller),
		Amount:         domain.FormatAmount(t.Amount),
		State:          t.State.String(),
		EscrowBalance:  domain.FormatAmount(t.EscrowBalance),
		MarketplaceFee: domain.FormatAmount(t.MarketplaceFee),
		CreatedAt:      formatTimestamp(t.CreatedAt),
		FulfilledAt:    optionalTimestamp(t.FulfilledAt),
		SettledAt:      optionalTimestamp(t.SettledAt),
	}
}

func buildVLEIResponse(d *domain.VLEIDocuments) vleiResponse {
	return vleiResponse{
		BuyerLEI:        d.BuyerLEI,
		BuyerLEIRef:     d.BuyerLEIRef,
		BuyerValidated:  d.BuyerValidated,
		SellerLEI:       d.SellerLEI,
		SellerLEIRef:    d.SellerLEIRef,
		SellerValidated: d.SellerValidated,
		ValidatedAt:     optionalTimestamp(d.ValidatedAt),
	}
}

// formatTimestamp renders ledger seconds as RFC 3339 UTC.
func formatTimestamp(sec uint64) string {
	return time.Unix(int64(sec), 0).UTC().Format("2006-01-02T15:04:05Z")
}

// optionalTimestamp is formatTimestamp with zero mapped to null.
func optionalTimestamp(sec uint64) *string {
	if sec == 0 {
		return nil
	}
	s := formatTimestamp(sec)
	return &s
}
