package service

import (
	"context"
	"log/slog"

	"github.com/efreitasn/tradeescrow/internal/auth"
	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/store"
)

// RegisterParticipantRequest represents the input for participant registration.
type RegisterParticipantRequest struct {
	Identity domain.Identity
	Name     string
	LEIID    string
}

// RegistryService manages the buyer and seller registries. Mutations are
// restricted to the marketplace owner.
type RegistryService struct {
	store  *store.Store
	auth   auth.Authorizer
	clock  Clock
	logger *slog.Logger
}

// NewRegistryService creates a new RegistryService.
func NewRegistryService(st *store.Store, authorizer auth.Authorizer, clock Clock, logger *slog.Logger) *RegistryService {
	if authorizer == nil {
		authorizer = auth.ContextAuthorizer{}
	}
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistryService{store: st, auth: authorizer, clock: clock, logger: logger}
}

// RegisterBuyer adds an active buyer.
func (s *RegistryService) RegisterBuyer(ctx context.Context, req RegisterParticipantRequest) (*domain.Participant, error) {
	return s.register(ctx, domain.RoleBuyer, req)
}

// RegisterSeller adds an active seller.
func (s *RegistryService) RegisterSeller(ctx context.Context, req RegisterParticipantRequest) (*domain.Participant, error) {
	return s.register(ctx, domain.RoleSeller, req)
}

func (s *RegistryService) register(ctx context.Context, role domain.Role, req RegisterParticipantRequest) (*domain.Participant, error) {
	var p *domain.Participant
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if err := s.requireOwner(ctx, tx); err != nil {
			return err
		}
		if req.Identity == "" {
			return &domain.ValidationError{Message: "identity is required"}
		}
		if req.Name == "" {
			return &domain.ValidationError{Message: "name is required"}
		}

		exists, err := tx.HasParticipant(role, req.Identity)
		if err != nil {
			return err
		}
		if exists {
			return role.AlreadyRegisteredError()
		}
		taken, err := tx.HasParticipantName(role, req.Name)
		if err != nil {
			return err
		}
		if taken {
			return role.NameTakenError()
		}

		p = &domain.Participant{
			Identity:     req.Identity,
			Role:         role,
			Name:         req.Name,
			LEIID:        req.LEIID,
			RegisteredAt: s.clock(),
			Active:       true,
		}
		return tx.CreateParticipant(p)
	})
	if err != nil {
		s.logResult(ctx, "register_"+string(role), req.Identity, err)
		return nil, err
	}

	s.logResult(ctx, "register_"+string(role), req.Identity, nil)
	return p, nil
}

// DeactivateBuyer marks a buyer inactive. Existing trades are unaffected.
func (s *RegistryService) DeactivateBuyer(ctx context.Context, id domain.Identity) (*domain.Participant, error) {
	return s.deactivate(ctx, domain.RoleBuyer, id)
}

// DeactivateSeller marks a seller inactive. Existing trades are unaffected.
func (s *RegistryService) DeactivateSeller(ctx context.Context, id domain.Identity) (*domain.Participant, error) {
	return s.deactivate(ctx, domain.RoleSeller, id)
}

func (s *RegistryService) deactivate(ctx context.Context, role domain.Role, id domain.Identity) (*domain.Participant, error) {
	var p *domain.Participant
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if err := s.requireOwner(ctx, tx); err != nil {
			return err
		}
		var err error
		p, err = tx.Participant(role, id)
		if err != nil {
			return err
		}
		p.Active = false
		return tx.PutParticipant(p)
	})
	s.logResult(ctx, "deactivate_"+string(role), id, err)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// requireOwner rejects callers other than the marketplace owner.
func (s *RegistryService) requireOwner(ctx context.Context, tx *store.Tx) error {
	settings, err := tx.Settings()
	if err != nil {
		return err
	}
	if err := s.auth.RequireAuth(ctx, settings.Owner); err != nil {
		return domain.ErrNotOwner
	}
	return nil
}

func (s *RegistryService) logResult(ctx context.Context, op string, id domain.Identity, err error) {
	attrs := []any{slog.String("operation", op), slog.String("identity", string(id))}
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "registry updated", attrs...)
	case domain.IsDomainError(err):
		s.logger.WarnContext(ctx, "registry update rejected", append(attrs, slog.String("error", err.Error()))...)
	default:
		s.logger.ErrorContext(ctx, "registry update failed", append(attrs, slog.String("error", err.Error()))...)
	}
}

// GetBuyerInfo returns a registered buyer.
func (s *RegistryService) GetBuyerInfo(ctx context.Context, id domain.Identity) (*domain.Participant, error) {
	return s.get(ctx, domain.RoleBuyer, id)
}

// GetSellerInfo returns a registered seller.
func (s *RegistryService) GetSellerInfo(ctx context.Context, id domain.Identity) (*domain.Participant, error) {
	return s.get(ctx, domain.RoleSeller, id)
}

func (s *RegistryService) get(ctx context.Context, role domain.Role, id domain.Identity) (*domain.Participant, error) {
	var p *domain.Participant
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		p, err = info(tx, role, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// IsBuyerActive reports whether id is a registered, active buyer.
func (s *RegistryService) IsBuyerActive(ctx context.Context, id domain.Identity) (bool, error) {
	return s.active(ctx, domain.RoleBuyer, id)
}

// IsSellerActive reports whether id is a registered, active seller.
func (s *RegistryService) IsSellerActive(ctx context.Context, id domain.Identity) (bool, error) {
	return s.active(ctx, domain.RoleSeller, id)
}

func (s *RegistryService) active(ctx context.Context, role domain.Role, id domain.Identity) (bool, error) {
	var active bool
	err := s.store.View(ctx, func(tx *store.Tx) error {
		p, err := info(tx, role, id)
		if err != nil {
			return err
		}
		active = p.Active
		return nil
	})
	return active, err
}

// ListBuyers returns every registered buyer, active or not, in registration order.
func (s *RegistryService) ListBuyers(ctx context.Context) ([]*domain.Participant, error) {
	return s.list(ctx, domain.RoleBuyer)
}

// ListSellers returns every registered seller, active or not, in registration order.
func (s *RegistryService) ListSellers(ctx context.Context) ([]*domain.Participant, error) {
	return s.list(ctx, domain.RoleSeller)
}

func (s *RegistryService) list(ctx context.Context, role domain.Role) ([]*domain.Participant, error) {
	result := []*domain.Participant{}
	err := s.store.View(ctx, func(tx *store.Tx) error {
		ids, err := tx.Roster(role)
		if err != nil {
			return err
		}
		for _, id := range ids {
			p, err := tx.Participant(role, id)
			if err != nil {
				return err
			}
			result = append(result, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// isActive returns the role-specific not-registered or inactive error.
func isActive(tx *store.Tx, role domain.Role, id domain.Identity) error {
	p, err := tx.Participant(role, id)
	if err != nil {
		return err
	}
	return p.CheckActive()
}

func info(tx *store.Tx, role domain.Role, id domain.Identity) (*domain.Participant, error) {
	return tx.Participant(role, id)
}
