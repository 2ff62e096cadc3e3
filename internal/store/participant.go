package store

import (
	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/kv"
)

func participantNamespaces(role domain.Role) (records, names kv.Namespace, roster string) {
	if role == domain.RoleSeller {
		return nsSellers, nsSellerNames, "sellers"
	}
	return nsBuyers, nsBuyerNames, "buyers"
}

// Participant returns the registry record for identity in role's registry,
// or the role-specific not-registered error.
func (t *Tx) Participant(role domain.Role, id domain.Identity) (*domain.Participant, error) {
	records, _, _ := participantNamespaces(role)
	return get[domain.Participant](t.tx, records, string(id), role.NotRegisteredError())
}

// HasParticipant reports whether identity is registered in role's registry.
func (t *Tx) HasParticipant(role domain.Role, id domain.Identity) (bool, error) {
	records, _, _ := participantNamespaces(role)
	return has(t.tx, records, string(id))
}

// HasParticipantName reports whether name is already taken in role's registry.
func (t *Tx) HasParticipantName(role domain.Role, name string) (bool, error) {
	_, names, _ := participantNamespaces(role)
	return has(t.tx, names, name)
}

// CreateParticipant writes a new record, claims its name and appends it to
// the roster. Callers check uniqueness first.
func (t *Tx) CreateParticipant(p *domain.Participant) error {
	records, names, roster := participantNamespaces(p.Role)
	if err := put(t.tx, records, string(p.Identity), p); err != nil {
		return err
	}
	if err := put(t.tx, names, p.Name, p.Identity); err != nil {
		return err
	}
	return appendList(t.tx, nsRoster, roster, p.Identity)
}

// PutParticipant overwrites an existing record.
func (t *Tx) PutParticipant(p *domain.Participant) error {
	records, _, _ := participantNamespaces(p.Role)
	return put(t.tx, records, string(p.Identity), p)
}

// Roster returns the identities registered in role's registry, in
// registration order.
func (t *Tx) Roster(role domain.Role) ([]domain.Identity, error) {
	_, _, roster := participantNamespaces(role)
	return list[domain.Identity](t.tx, nsRoster, roster)
}
