package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/princinho/lmsbackend/models"
	"github.com/princinho/lmsbackend/services"
	"github.com/princinho/lmsbackend/utils"
)

// UsersStore is the MongoDB implementation of services.UserStore.
type UsersStore struct {
	col *mongo.Collection
}

func NewUsersStore() *UsersStore {
	return &UsersStore{col: OpenCollection("users")}
}

func (s *UsersStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.col.FindOne(ctx, bson.M{"email": utils.NormalizeEmail(email)}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &u, nil
}

func (s *UsersStore) FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error) {
	var u models.User
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *UsersStore) Insert(ctx context.Context, u *models.User) error {
	if u.ID.IsZero() {
		u.ID = bson.NewObjectID()
	}
	_, err := s.col.InsertOne(ctx, u)
	if err != nil {
		if utils.IsDuplicateKey(err) {
			return services.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UsersStore) Replace(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		if utils.IsDuplicateKey(err) {
			return services.ErrDuplicate
		}
		return fmt.Errorf("replace user: %w", err)
	}
	if res.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *UsersStore) Delete(ctx context.Context, id bson.ObjectID) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *UsersStore) DeleteByOrganization(ctx context.Context, orgID bson.ObjectID) (int64, error) {
	res, err := s.col.DeleteMany(ctx, bson.M{"organizationId": orgID})
	if err != nil {
		return 0, fmt.Errorf("delete org users: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *UsersStore) RecordLoginFailure(ctx context.Context, id bson.ObjectID, attempts int, lockUntil *time.Time) error {
	set := bson.M{
		"failedLoginAttempts": attempts,
		"updatedAt":           time.Now().UTC(),
	}
	update := bson.M{"$set": set}
	if lockUntil != nil {
		set["lockUntil"] = *lockUntil
	} else {
		update["$unset"] = bson.M{"lockUntil": ""}
	}
	_, err := s.col.UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

func (s *UsersStore) RecordLoginSuccess(ctx context.Context, id bson.ObjectID, at time.Time) error {
	_, err := s.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"failedLoginAttempts": 0,
			"lastLoginAt":         at,
			"updatedAt":           at,
		},
		"$unset": bson.M{"lockUntil": ""},
	})
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	return nil
}

func (s *UsersStore) SetPassword(ctx context.Context, id bson.ObjectID, hash string, verifyEmail bool) error {
	now := time.Now().UTC()
	set := bson.M{
		"passwordHash":        hash,
		"failedLoginAttempts": 0,
		"updatedAt":           now,
	}
	if verifyEmail {
		set["isEmailVerified"] = true
	}
	res, err := s.col.UpdateByID(ctx, id, bson.M{
		"$set":   set,
		"$unset": bson.M{"lockUntil": ""},
	})
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if res.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *UsersStore) UpdateRole(ctx context.Context, id bson.ObjectID, role models.Role) error {
	res, err := s.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"role":      role,
			"level":     role.Level(),
			"updatedAt": time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if res.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *UsersStore) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	n, err := s.col.CountDocuments(ctx, bson.M{"role": role})
	if err != nil {
		return 0, fmt.Errorf("count by role: %w", err)
	}
	return n, nil
}

func (s *UsersStore) CountByOrganizationAndRole(ctx context.Context, orgID bson.ObjectID, role models.Role) (int64, error) {
	n, err := s.col.CountDocuments(ctx, bson.M{"organizationId": orgID, "role": role})
	if err != nil {
		return 0, fmt.Errorf("count by org and role: %w", err)
	}
	return n, nil
}

// EnsureOperator upserts the privileged operator keyed on email. The
// unique email index plus $setOnInsert make this safe under concurrent
// startup; a $set on role/flags restores the record if it was altered.
func (s *UsersStore) EnsureOperator(ctx context.Context, email, passwordHash string) (*models.User, error) {
	email = utils.NormalizeEmail(email)
	now := time.Now().UTC()

	update := bson.M{
		"$setOnInsert": bson.M{
			"email":               email,
			"name":                "Platform Operator",
			"passwordHash":        passwordHash,
			"failedLoginAttempts": 0,
			"onboardingCompleted": true,
			"createdAt":           now,
		},
		"$set": bson.M{
			"role":            models.RoleSuperAdmin,
			"level":           models.LevelExecutive,
			"isActive":        true,
			"isEmailVerified": true,
			"updatedAt":       now,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var u models.User
	if err := s.col.FindOneAndUpdate(ctx, bson.M{"email": email}, update, opts).Decode(&u); err != nil {
		return nil, fmt.Errorf("ensure operator upsert: %w", err)
	}
	return &u, nil
}
