package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/princinho/lmsbackend/models"
)

func TestCheckCapacity(t *testing.T) {
	orgs := newFakeOrgStore()
	org := &models.Organization{
		Code:    "ACME",
		License: models.License{MaxUsers: 5},
		Stats:   models.OrgStats{TotalUsers: 3},
	}
	require.NoError(t, orgs.Insert(context.Background(), org))
	guard := NewLicenseGuard(orgs)

	available, err := guard.CheckCapacity(context.Background(), org.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, available)

	available, err = guard.CheckCapacity(context.Background(), org.ID, 3)
	require.ErrorIs(t, err, ErrLicenseLimit)
	assert.Equal(t, 2, available)
	assert.Contains(t, err.Error(), "5 users")
}

func TestCheckCapacityUnknownOrg(t *testing.T) {
	guard := NewLicenseGuard(newFakeOrgStore())
	_, err := guard.CheckCapacity(context.Background(), bson.NewObjectID(), 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReserveReportsConfiguredCap(t *testing.T) {
	orgs := newFakeOrgStore()
	org := &models.Organization{
		Code:    "ACME",
		License: models.License{MaxUsers: 2},
		Stats:   models.OrgStats{TotalUsers: 2},
	}
	require.NoError(t, orgs.Insert(context.Background(), org))
	guard := NewLicenseGuard(orgs)

	err := guard.Reserve(context.Background(), org.ID, 1, 1)
	require.ErrorIs(t, err, ErrLicenseLimit)
	assert.Contains(t, err.Error(), "2 users")
	assert.Equal(t, 2, orgs.orgs[org.ID].Stats.TotalUsers)
}

func TestReserveAndRelease(t *testing.T) {
	orgs := newFakeOrgStore()
	org := &models.Organization{
		Code:    "ACME",
		License: models.License{MaxUsers: 3},
	}
	require.NoError(t, orgs.Insert(context.Background(), org))
	guard := NewLicenseGuard(orgs)
	ctx := context.Background()

	require.NoError(t, guard.Reserve(ctx, org.ID, 2, 2))
	assert.Equal(t, 2, orgs.orgs[org.ID].Stats.TotalUsers)
	assert.Equal(t, 2, orgs.orgs[org.ID].Stats.ActiveUsers)

	require.NoError(t, guard.Release(ctx, org.ID, 1, 1))
	assert.Equal(t, 1, orgs.orgs[org.ID].Stats.TotalUsers)
}
