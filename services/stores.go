package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/princinho/lmsbackend/models"
)

// TxnRunner runs fn inside one unit of work: every store call made with
// the ctx passed to fn commits or rolls back together. Implemented over
// MongoDB sessions in the database package; test fakes just call fn.
type TxnRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserStore persists users. Implementations return ErrNotFound and
// ErrDuplicate from this package, never driver errors.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error)
	Insert(ctx context.Context, u *models.User) error
	Replace(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id bson.ObjectID) error
	DeleteByOrganization(ctx context.Context, orgID bson.ObjectID) (int64, error)

	// Targeted lockout/login updates so concurrent attempts never clobber
	// unrelated fields.
	RecordLoginFailure(ctx context.Context, id bson.ObjectID, attempts int, lockUntil *time.Time) error
	RecordLoginSuccess(ctx context.Context, id bson.ObjectID, at time.Time) error
	// SetPassword also marks the email verified and clears lockout state:
	// completing a token flow proves mailbox ownership.
	SetPassword(ctx context.Context, id bson.ObjectID, hash string, verifyEmail bool) error
	UpdateRole(ctx context.Context, id bson.ObjectID, role models.Role) error

	CountByRole(ctx context.Context, role models.Role) (int64, error)
	CountByOrganizationAndRole(ctx context.Context, orgID bson.ObjectID, role models.Role) (int64, error)

	// EnsureOperator idempotently upserts the privileged operator account
	// keyed on its unique email, restoring role/flags if the record was
	// altered. Safe under concurrent calls.
	EnsureOperator(ctx context.Context, email, passwordHash string) (*models.User, error)
}

// OrganizationStore persists organizations and owns the seat counters.
type OrganizationStore interface {
	FindByID(ctx context.Context, id bson.ObjectID) (*models.Organization, error)
	FindByCode(ctx context.Context, code string) (*models.Organization, error)
	Insert(ctx context.Context, o *models.Organization) error
	Update(ctx context.Context, id bson.ObjectID, set bson.M) error
	Delete(ctx context.Context, id bson.ObjectID) error

	// ReserveSeats atomically increments stats.totalUsers by seats (and
	// stats.activeUsers by active) only if the result stays within
	// license.maxUsers, returning ErrLicenseLimit otherwise. This is the
	// conditional update that closes the check-then-insert race; callers
	// run it in the same transaction as the user insert.
	ReserveSeats(ctx context.Context, id bson.ObjectID, seats, active int) error
	// ReleaseSeats decrements the counters, clamped at zero.
	ReleaseSeats(ctx context.Context, id bson.ObjectID, seats, active int) error
	// SetMaxUsers updates license.maxUsers only if current usage still
	// fits, returning ErrLicenseLimit otherwise. Conditional for the same
	// reason ReserveSeats is: a concurrent seat add must not leave usage
	// above the shrunk cap.
	SetMaxUsers(ctx context.Context, id bson.ObjectID, maxUsers int) error
}

// TokenStore persists password reset / activation tokens.
type TokenStore interface {
	Insert(ctx context.Context, t *models.PasswordResetToken) error
	// FindUsable returns the token only if it is unused and unexpired at
	// now. Not-found, expired and already-used are indistinguishable.
	FindUsable(ctx context.Context, token string, now time.Time) (*models.PasswordResetToken, error)
	// InvalidateAllForUser marks every unused token of the user as used.
	InvalidateAllForUser(ctx context.Context, userID bson.ObjectID) error
	// MarkUsed flips used=false to true; ErrInvalidToken if already used.
	MarkUsed(ctx context.Context, id bson.ObjectID) error
}

// RefreshTokenStore backs the rotating refresh-token session layer.
type RefreshTokenStore interface {
	Insert(ctx context.Context, t *models.RefreshToken) error
	FindActive(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id bson.ObjectID, replacedBy *string) error
	RevokeAllForUser(ctx context.Context, userID bson.ObjectID) error
}
