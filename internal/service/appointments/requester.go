package appointments

import (
	"github.com/google/uuid"

	"leadcal/backend/internal/store"
)

// Requester is the already-authenticated caller. A restricted requester may
// only see and change appointments it owns.
type Requester struct {
	ID         uuid.UUID
	restricted bool
}

func Unrestricted(id uuid.UUID) Requester {
	return Requester{ID: id}
}

func RestrictedTo(id uuid.UUID) Requester {
	return Requester{ID: id, restricted: true}
}

func (r Requester) Restricted() bool {
	return r.restricted
}

func (r Requester) Scope() store.Scope {
	if r.restricted {
		return store.OwnerScope(r.ID)
	}
	return store.Scope{}
}

func (r Requester) CanMutate(ownerID uuid.UUID) bool {
	return !r.restricted || r.ID == ownerID
}
