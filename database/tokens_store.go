package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/princinho/lmsbackend/models"
	"github.com/princinho/lmsbackend/services"
)

// TokensStore is the MongoDB implementation of services.TokenStore.
type TokensStore struct {
	col *mongo.Collection
}

func NewTokensStore() *TokensStore {
	return &TokensStore{col: OpenCollection("password_reset_tokens")}
}

func (s *TokensStore) Insert(ctx context.Context, t *models.PasswordResetToken) error {
	if t.ID.IsZero() {
		t.ID = bson.NewObjectID()
	}
	if _, err := s.col.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

func (s *TokensStore) FindUsable(ctx context.Context, token string, now time.Time) (*models.PasswordResetToken, error) {
	var t models.PasswordResetToken
	err := s.col.FindOne(ctx, bson.M{
		"token":     token,
		"used":      false,
		"expiresAt": bson.M{"$gt": now},
	}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Not-found, expired and already-used all collapse here so callers
		// cannot probe token state.
		return nil, services.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("find reset token: %w", err)
	}
	return &t, nil
}

func (s *TokensStore) InvalidateAllForUser(ctx context.Context, userID bson.ObjectID) error {
	_, err := s.col.UpdateMany(ctx,
		bson.M{"userId": userID, "used": false},
		bson.M{"$set": bson.M{"used": true}})
	if err != nil {
		return fmt.Errorf("invalidate reset tokens: %w", err)
	}
	return nil
}

// MarkUsed flips the single-use latch. The used=false filter makes the
// flip conditional, so a concurrent second consume loses the race.
func (s *TokensStore) MarkUsed(ctx context.Context, id bson.ObjectID) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id, "used": false},
		bson.M{"$set": bson.M{"used": true}})
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	if res.ModifiedCount == 0 {
		return services.ErrInvalidToken
	}
	return nil
}

// RefreshTokensStore is the MongoDB implementation of
// services.RefreshTokenStore, carried over from the session layer.
type RefreshTokensStore struct {
	col *mongo.Collection
}

func NewRefreshTokensStore() *RefreshTokensStore {
	return &RefreshTokensStore{col: OpenCollection("refresh_tokens")}
}

func (s *RefreshTokensStore) Insert(ctx context.Context, t *models.RefreshToken) error {
	if t.ID.IsZero() {
		t.ID = bson.NewObjectID()
	}
	if _, err := s.col.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokensStore) FindActive(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error) {
	var t models.RefreshToken
	err := s.col.FindOne(ctx, bson.M{
		"tokenHash": tokenHash,
		"revokedAt": bson.M{"$exists": false},
		"expiresAt": bson.M{"$gt": now},
	}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, services.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &t, nil
}

func (s *RefreshTokensStore) Revoke(ctx context.Context, id bson.ObjectID, replacedBy *string) error {
	set := bson.M{"revokedAt": time.Now().UTC()}
	if replacedBy != nil {
		set["replacedBy"] = *replacedBy
	}
	_, err := s.col.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokensStore) RevokeAllForUser(ctx context.Context, userID bson.ObjectID) error {
	_, err := s.col.UpdateMany(ctx,
		bson.M{"userId": userID, "revokedAt": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"revokedAt": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}
