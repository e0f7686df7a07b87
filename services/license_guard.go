package services

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// LicenseGuard enforces the seat cap. The advisory CheckCapacity is only
// used to clamp bulk batches up front; the authoritative check is the
// conditional counter update in Reserve, which runs in the same
// transaction as the user insert so concurrent adds cannot overshoot
// license.maxUsers.
type LicenseGuard struct {
	Orgs OrganizationStore
}

func NewLicenseGuard(orgs OrganizationStore) *LicenseGuard {
	return &LicenseGuard{Orgs: orgs}
}

// CheckCapacity returns the free slots and rejects if requested exceeds
// them, naming the configured cap in the error.
func (g *LicenseGuard) CheckCapacity(ctx context.Context, orgID bson.ObjectID, requested int) (int, error) {
	org, err := g.Orgs.FindByID(ctx, orgID)
	if err != nil {
		return 0, err
	}
	available := org.AvailableSlots()
	if requested > available {
		return available, conflictf(ErrLicenseLimit,
			"organization has reached its license limit of %d users", org.License.MaxUsers)
	}
	return available, nil
}

// Reserve consumes seats via the store's conditional increment,
// enriching a limit rejection with the configured cap.
func (g *LicenseGuard) Reserve(ctx context.Context, orgID bson.ObjectID, seats, active int) error {
	err := g.Orgs.ReserveSeats(ctx, orgID, seats, active)
	if errors.Is(err, ErrLicenseLimit) {
		if org, ferr := g.Orgs.FindByID(ctx, orgID); ferr == nil {
			return conflictf(ErrLicenseLimit,
				"organization has reached its license limit of %d users", org.License.MaxUsers)
		}
		return err
	}
	return err
}

func (g *LicenseGuard) Release(ctx context.Context, orgID bson.ObjectID, seats, active int) error {
	return g.Orgs.ReleaseSeats(ctx, orgID, seats, active)
}
