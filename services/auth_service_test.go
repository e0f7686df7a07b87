package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/princinho/lmsbackend/models"
	"github.com/princinho/lmsbackend/utils"
)

func newTestAuth(users *fakeUserStore) *AuthService {
	return &AuthService{
		Users:          users,
		OperatorEmail:  "root@platform.test",
		OperatorSecret: "operator-secret",
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

func seedUser(t *testing.T, users *fakeUserStore, email, password string, mutate func(*models.User)) *models.User {
	t.Helper()
	hash, err := utils.HashPassword(password)
	require.NoError(t, err)
	u := &models.User{
		ID:              bson.NewObjectID(),
		Email:           email,
		Name:            "Test User",
		PasswordHash:    hash,
		Role:            models.RoleEmployee,
		Level:           models.LevelEntry,
		IsActive:        true,
		IsEmailVerified: true,
	}
	if mutate != nil {
		mutate(u)
	}
	users.users[u.ID] = u
	return u
}

func TestAuthenticateSuccess(t *testing.T) {
	users := newFakeUserStore()
	seedUser(t, users, "jane@acme.test", "correct horse", nil)
	svc := newTestAuth(users)

	got, err := svc.Authenticate(context.Background(), "  Jane@ACME.test ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "jane@acme.test", got.Email)
	assert.Zero(t, got.FailedLoginAttempts)
	assert.NotNil(t, got.LastLoginAt)
}

func TestAuthenticateWrongPasswordCountsDown(t *testing.T) {
	users := newFakeUserStore()
	u := seedUser(t, users, "jane@acme.test", "secret123", nil)
	svc := newTestAuth(users)

	_, err := svc.Authenticate(context.Background(), u.Email, "nope")
	var credErr *CredentialsError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, 4, credErr.AttemptsRemaining)
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	assert.Equal(t, 1, users.users[u.ID].FailedLoginAttempts)
}

func TestAuthenticateLockout(t *testing.T) {
	users := newFakeUserStore()
	u := seedUser(t, users, "jane@acme.test", "secret123", nil)
	svc := newTestAuth(users)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Authenticate(ctx, u.Email, "nope")
		var credErr *CredentialsError
		require.ErrorAs(t, err, &credErr)
		assert.Equal(t, 4-i, credErr.AttemptsRemaining)
	}

	// Fifth failure locks.
	_, err := svc.Authenticate(ctx, u.Email, "nope")
	require.ErrorIs(t, err, ErrAccountLocked)
	require.NotNil(t, users.users[u.ID].LockUntil)

	// Even the correct password is rejected while locked.
	_, err = svc.Authenticate(ctx, u.Email, "secret123")
	require.ErrorIs(t, err, ErrAccountLocked)
}

func TestAuthenticateAfterLockExpiryResetsCounter(t *testing.T) {
	users := newFakeUserStore()
	past := time.Now().UTC().Add(-time.Minute)
	u := seedUser(t, users, "jane@acme.test", "secret123", func(u *models.User) {
		u.FailedLoginAttempts = 5
		u.LockUntil = &past
	})
	svc := newTestAuth(users)

	got, err := svc.Authenticate(context.Background(), u.Email, "secret123")
	require.NoError(t, err)
	assert.Zero(t, got.FailedLoginAttempts)
	assert.Nil(t, users.users[u.ID].LockUntil)
}

func TestAuthenticateFailureAfterLockExpiryStartsFreshCount(t *testing.T) {
	users := newFakeUserStore()
	past := time.Now().UTC().Add(-time.Minute)
	u := seedUser(t, users, "jane@acme.test", "secret123", func(u *models.User) {
		u.FailedLoginAttempts = 5
		u.LockUntil = &past
	})
	svc := newTestAuth(users)

	// One mistype after the lock expires counts as failure 1, not 6.
	_, err := svc.Authenticate(context.Background(), u.Email, "nope")
	var credErr *CredentialsError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, 4, credErr.AttemptsRemaining)
	assert.Equal(t, 1, users.users[u.ID].FailedLoginAttempts)
	assert.Nil(t, users.users[u.ID].LockUntil)

	// The streak accumulates normally from there.
	_, err = svc.Authenticate(context.Background(), u.Email, "nope")
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, 3, credErr.AttemptsRemaining)
	assert.Equal(t, 2, users.users[u.ID].FailedLoginAttempts)
}

func TestAuthenticateInactiveAndUnverified(t *testing.T) {
	users := newFakeUserStore()
	svc := newTestAuth(users)
	ctx := context.Background()

	inactive := seedUser(t, users, "off@acme.test", "secret123", func(u *models.User) {
		u.IsActive = false
	})
	_, err := svc.Authenticate(ctx, inactive.Email, "secret123")
	require.ErrorIs(t, err, ErrAccountInactive)

	unverified := seedUser(t, users, "new@acme.test", "secret123", func(u *models.User) {
		u.IsEmailVerified = false
	})
	_, err = svc.Authenticate(ctx, unverified.Email, "secret123")
	require.ErrorIs(t, err, ErrEmailNotVerified)

	// Admin roles skip the verification gate.
	admin := seedUser(t, users, "admin@acme.test", "secret123", func(u *models.User) {
		u.IsEmailVerified = false
		u.Role = models.RoleOrgAdmin
	})
	_, err = svc.Authenticate(ctx, admin.Email, "secret123")
	require.NoError(t, err)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc := newTestAuth(newFakeUserStore())
	_, err := svc.Authenticate(context.Background(), "ghost@acme.test", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestOperatorBootstrap(t *testing.T) {
	users := newFakeUserStore()
	svc := newTestAuth(users)
	ctx := context.Background()

	// First login provisions the operator record.
	got, err := svc.Authenticate(ctx, "ROOT@platform.test", "operator-secret")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, got.Role)
	assert.True(t, got.IsEmailVerified)
	require.Len(t, users.users, 1)

	// A tampered role is restored on the next bootstrap login.
	for _, u := range users.users {
		u.Role = models.RoleEmployee
	}
	got, err = svc.Authenticate(ctx, "root@platform.test", "operator-secret")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, got.Role)
	require.Len(t, users.users, 1)

	// Wrong operator secret never touches the stored hash path.
	_, err = svc.Authenticate(ctx, "root@platform.test", "guess")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnsureOperatorIdentityRequiresConfig(t *testing.T) {
	svc := newTestAuth(newFakeUserStore())
	svc.OperatorEmail = ""
	_, err := svc.EnsureOperatorIdentity(context.Background())
	require.Error(t, err)
}
