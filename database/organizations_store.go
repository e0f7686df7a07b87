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
	"github.com/princinho/lmsbackend/utils"
)

// OrganizationsStore is the MongoDB implementation of
// services.OrganizationStore.
type OrganizationsStore struct {
	col *mongo.Collection
}

func NewOrganizationsStore() *OrganizationsStore {
	return &OrganizationsStore{col: OpenCollection("organizations")}
}

func (s *OrganizationsStore) FindByID(ctx context.Context, id bson.ObjectID) (*models.Organization, error) {
	var o models.Organization
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find organization: %w", err)
	}
	return &o, nil
}

func (s *OrganizationsStore) FindByCode(ctx context.Context, code string) (*models.Organization, error) {
	var o models.Organization
	err := s.col.FindOne(ctx, bson.M{"code": utils.NormalizeOrgCode(code)}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find organization by code: %w", err)
	}
	return &o, nil
}

func (s *OrganizationsStore) Insert(ctx context.Context, o *models.Organization) error {
	if o.ID.IsZero() {
		o.ID = bson.NewObjectID()
	}
	_, err := s.col.InsertOne(ctx, o)
	if err != nil {
		if utils.IsDuplicateKey(err) {
			return services.ErrDuplicate
		}
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *OrganizationsStore) Update(ctx context.Context, id bson.ObjectID, set bson.M) error {
	set["updatedAt"] = time.Now().UTC()
	res, err := s.col.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		if utils.IsDuplicateKey(err) {
			return services.ErrDuplicate
		}
		return fmt.Errorf("update organization: %w", err)
	}
	if res.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *OrganizationsStore) Delete(ctx context.Context, id bson.ObjectID) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if res.DeletedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

// ReserveSeats increments the usage counters only when the new total
// still fits the license. The $expr filter makes the capacity check and
// the increment one atomic document update, so two concurrent inserts
// cannot both squeeze past the cap.
func (s *OrganizationsStore) ReserveSeats(ctx context.Context, id bson.ObjectID, seats, active int) error {
	filter := bson.M{
		"_id": id,
		"$expr": bson.M{
			"$lte": bson.A{
				bson.M{"$add": bson.A{"$stats.totalUsers", seats}},
				"$license.maxUsers",
			},
		},
	}
	update := bson.M{
		"$inc": bson.M{
			"stats.totalUsers":  seats,
			"stats.activeUsers": active,
		},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("reserve seats: %w", err)
	}
	if res.MatchedCount == 0 {
		// Either the org is gone or the license is full; disambiguate.
		if _, ferr := s.FindByID(ctx, id); errors.Is(ferr, services.ErrNotFound) {
			return services.ErrNotFound
		}
		return services.ErrLicenseLimit
	}
	return nil
}

// SetMaxUsers shrinks or grows the license cap, matching only when the
// current usage still fits the new cap. Same single-document pattern as
// ReserveSeats, so a concurrent seat add cannot slip under a shrink.
func (s *OrganizationsStore) SetMaxUsers(ctx context.Context, id bson.ObjectID, maxUsers int) error {
	filter := bson.M{
		"_id":              id,
		"stats.totalUsers": bson.M{"$lte": maxUsers},
	}
	update := bson.M{"$set": bson.M{
		"license.maxUsers": maxUsers,
		"updatedAt":        time.Now().UTC(),
	}}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("set max users: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, ferr := s.FindByID(ctx, id); errors.Is(ferr, services.ErrNotFound) {
			return services.ErrNotFound
		}
		return services.ErrLicenseLimit
	}
	return nil
}

func (s *OrganizationsStore) ReleaseSeats(ctx context.Context, id bson.ObjectID, seats, active int) error {
	update := bson.M{
		"$inc": bson.M{
			"stats.totalUsers":  -seats,
			"stats.activeUsers": -active,
		},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := s.col.UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("release seats: %w", err)
	}
	if res.MatchedCount == 0 {
		return services.ErrNotFound
	}
	// Clamp in case counters drifted below zero on older data.
	_, err = s.col.UpdateOne(ctx,
		bson.M{"_id": id, "stats.totalUsers": bson.M{"$lt": 0}},
		bson.M{"$set": bson.M{"stats.totalUsers": 0}})
	if err != nil {
		return fmt.Errorf("clamp total users: %w", err)
	}
	_, err = s.col.UpdateOne(ctx,
		bson.M{"_id": id, "stats.activeUsers": bson.M{"$lt": 0}},
		bson.M{"$set": bson.M{"stats.activeUsers": 0}})
	if err != nil {
		return fmt.Errorf("clamp active users: %w", err)
	}
	return nil
}
