package domain

// Identity is an opaque participant identifier (an account address, a key
// fingerprint, a token subject).
type Identity string

// Role distinguishes the two registries.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Participant is a registered buyer or seller.
type Participant struct {
	Identity     Identity `json:"identity"`
	Role         Role     `json:"role"`
	Name         string   `json:"name"`
	LEIID        string   `json:"lei_id"`
	RegisteredAt uint64   `json:"registered_at"`
	Active       bool     `json:"active"`
}

// NotRegisteredError returns the role-specific not-registered sentinel.
func (r Role) NotRegisteredError() error {
	if r == RoleSeller {
		return ErrSellerNotRegistered
	}
	return ErrBuyerNotRegistered
}

// InactiveError returns the role-specific inactive sentinel.
func (r Role) InactiveError() error {
	if r == RoleSeller {
		return ErrSellerInactive
	}
	return ErrBuyerInactive
}

// AlreadyRegisteredError returns the role-specific duplicate-identity sentinel.
func (r Role) AlreadyRegisteredError() error {
	if r == RoleSeller {
		return ErrSellerAlreadyRegistered
	}
	return ErrBuyerAlreadyRegistered
}

// NameTakenError returns the role-specific duplicate-name sentinel.
func (r Role) NameTakenError() error {
	if r == RoleSeller {
		return ErrSellerNameTaken
	}
	return ErrBuyerNameTaken
}

// CheckActive returns the role-specific inactive error for a deactivated
// participant, or nil.
func (p *Participant) CheckActive() error {
	if !p.Active {
		return p.Role.InactiveError()
	}
	return nil
}
