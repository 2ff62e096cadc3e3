package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/service"
)

// ParticipantHandler handles HTTP requests for the buyer and seller
// registries. Each method takes the path segment ("buyers" or "sellers") and
// returns the handler for that registry.
type ParticipantHandler struct {
	registrySvc *service.RegistryService
}

// NewParticipantHandler creates a new ParticipantHandler.
func NewParticipantHandler(registrySvc *service.RegistryService) *ParticipantHandler {
	return &ParticipantHandler{registrySvc: registrySvc}
}

// registerParticipantRequest is the JSON request body for
// POST /participants/{buyers|sellers}.
type registerParticipantRequest struct {
	Identity string `json:"identity" validate:"required,max=128"`
	Name     string `json:"name" validate:"required,max=256"`
	LEIID    string `json:"lei_id" validate:"max=64"`
}

type participantResponse struct {
	Identity     string `json:"identity"`
	Role         string `json:"role"`
	Name         string `json:"name"`
	LEIID        string `json:"lei_id"`
	RegisteredAt string `json:"registered_at"`
	Active       bool   `json:"active"`
}

type activeResponse struct {
	Identity string `json:"identity"`
	Active   bool   `json:"active"`
}

type participantListResponse struct {
	Participants []participantResponse `json:"participants"`
}

// registry binds the role-specific service methods.
type registry struct {
	register   func(context.Context, service.RegisterParticipantRequest) (*domain.Participant, error)
	deactivate func(context.Context, domain.Identity) (*domain.Participant, error)
	get        func(context.Context, domain.Identity) (*domain.Participant, error)
	list       func(context.Context) ([]*domain.Participant, error)
	isActive   func(context.Context, domain.Identity) (bool, error)
}

func (h *ParticipantHandler) registry(role string) registry {
	if role == "sellers" {
		return registry{
			register:   h.registrySvc.RegisterSeller,
			deactivate: h.registrySvc.DeactivateSeller,
			get:        h.registrySvc.GetSellerInfo,
			list:       h.registrySvc.ListSellers,
			isActive:   h.registrySvc.IsSellerActive,
		}
	}
	return registry{
		register:   h.registrySvc.RegisterBuyer,
		deactivate: h.registrySvc.DeactivateBuyer,
		get:        h.registrySvc.GetBuyerInfo,
		list:       h.registrySvc.ListBuyers,
		isActive:   h.registrySvc.IsBuyerActive,
	}
}

// Register handles POST /participants/{role}. Only the marketplace owner may
// register participants.
func (h *ParticipantHandler) Register(role string) http.HandlerFunc {
	reg := h.registry(role)
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerParticipantRequest
		if err := ParseJSON(r, &req); err != nil {
			writeParseError(w, err)
			return
		}

		p, err := reg.register(r.Context(), service.RegisterParticipantRequest{
			Identity: domain.Identity(req.Identity),
			Name:     req.Name,
			LEIID:    req.LEIID,
		})
		if err != nil {
			mapError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, buildParticipantResponse(p))
	}
}

// List handles GET /participants/{role}.
func (h *ParticipantHandler) List(role string) http.HandlerFunc {
	reg := h.registry(role)
	return func(w http.ResponseWriter, r *http.Request) {
		participants, err := reg.list(r.Context())
		if err != nil {
			mapError(w, err)
			return
		}

		resp := participantListResponse{Participants: make([]participantResponse, len(participants))}
		for i, p := range participants {
			resp.Participants[i] = buildParticipantResponse(p)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// Get handles GET /participants/{role}/{identity}.
func (h *ParticipantHandler) Get(role string) http.HandlerFunc {
	reg := h.registry(role)
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := reg.get(r.Context(), domain.Identity(chi.URLParam(r, "identity")))
		if err != nil {
			mapError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, buildParticipantResponse(p))
	}
}

// Active handles GET /participants/{role}/{identity}/active.
func (h *ParticipantHandler) Active(role string) http.HandlerFunc {
	reg := h.registry(role)
	return func(w http.ResponseWriter, r *http.Request) {
		id := domain.Identity(chi.URLParam(r, "identity"))
		active, err := reg.isActive(r.Context(), id)
		if err != nil {
			mapError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, activeResponse{Identity: string(id), Active: active})
	}
}

// Deactivate handles POST /participants/{role}/{identity}/deactivate.
func (h *ParticipantHandler) Deactivate(role string) http.HandlerFunc {
	reg := h.registry(role)
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := reg.deactivate(r.Context(), domain.Identity(chi.URLParam(r, "identity")))
		if err != nil {
			mapError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, buildParticipantResponse(p))
	}
}

func buildParticipantResponse(p *domain.Participant) participantResponse {
	return participantResponse{
		Identity:     string(p.Identity),
		Role:         string(p.Role),
		Name:         p.Name,
		LEIID:        p.LEIID,
		RegisteredAt: formatTimestamp(p.RegisteredAt),
		Active:       p.Active,
	}
}
