package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// PasswordResetToken covers both activation mail for freshly provisioned
// accounts (IsNewUser, 24h TTL) and self-service password reset (1h TTL).
// At most one unused, unexpired token exists per user: issuing a new one
// marks all prior unused tokens used in the same transaction.
type PasswordResetToken struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	UserID    bson.ObjectID `bson:"userId"`
	Token     string        `bson:"token"`
	IsNewUser bool          `bson:"isNewUser"`
	Used      bool          `bson:"used"`
	ExpiresAt time.Time     `bson:"expiresAt"`
	CreatedAt time.Time     `bson:"createdAt"`
}

func (t *PasswordResetToken) Usable(now time.Time) bool {
	return !t.Used && t.ExpiresAt.After(now)
}
