package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/princinho/lmsbackend/logger"
	"github.com/princinho/lmsbackend/models"
	"github.com/princinho/lmsbackend/utils"
)

// MaxLoginAttempts is the consecutive-failure threshold after which the
// account locks for utils.LockoutDuration.
const MaxLoginAttempts = 5

// AuthService is the authentication gate: credential checks, the lockout
// state machine, and the privileged-operator bootstrap path.
type AuthService struct {
	Users UserStore

	// Operator credentials come from the environment, not user data.
	OperatorEmail  string
	OperatorSecret string

	Now func() time.Time
}

func NewAuthService(users UserStore) *AuthService {
	return &AuthService{
		Users:          users,
		OperatorEmail:  utils.NormalizeEmail(os.Getenv("ADMIN_EMAIL")),
		OperatorSecret: os.Getenv("ADMIN_PASSWORD"),
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

// EnsureOperatorIdentity idempotently provisions the platform operator
// account. Called once at startup and again from the bootstrap login
// path; concurrent calls are safe because the store upserts on the
// unique email index.
func (s *AuthService) EnsureOperatorIdentity(ctx context.Context) (*models.User, error) {
	if s.OperatorEmail == "" || s.OperatorSecret == "" {
		return nil, fmt.Errorf("missing ADMIN_EMAIL or ADMIN_PASSWORD env vars")
	}
	hash, err := utils.HashPassword(s.OperatorSecret)
	if err != nil {
		return nil, fmt.Errorf("hash operator password: %w", err)
	}
	return s.Users.EnsureOperator(ctx, s.OperatorEmail, hash)
}

// Authenticate verifies credentials and walks the lockout state machine.
// On success the returned user carries the claims the session layer
// needs (role, level, organization).
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = utils.NormalizeEmail(email)
	now := s.Now()

	// Bootstrap path: the operator identity is checked against the
	// out-of-band secret only, bypassing lockout and verification.
	if s.OperatorEmail != "" && email == s.OperatorEmail {
		if subtle.ConstantTimeCompare([]byte(password), []byte(s.OperatorSecret)) != 1 {
			return nil, ErrInvalidCredentials
		}
		user, err := s.EnsureOperatorIdentity(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
			return nil, err
		}
		return user, nil
	}

	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.Locked(now) {
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	if !user.IsEmailVerified && user.Role != models.RoleOrgAdmin && user.Role != models.RoleSuperAdmin {
		return nil, ErrEmailNotVerified
	}

	if err := utils.CheckPassword(user.PasswordHash, password); err != nil {
		attempts := user.FailedLoginAttempts + 1
		// An expired lock means the previous failure streak is spent;
		// this miss starts a fresh count.
		if user.LockUntil != nil && !user.Locked(now) {
			attempts = 1
		}
		var lockUntil *time.Time
		if attempts >= MaxLoginAttempts {
			t := now.Add(utils.LockoutDuration())
			lockUntil = &t
		}
		if uerr := s.Users.RecordLoginFailure(ctx, user.ID, attempts, lockUntil); uerr != nil {
			return nil, uerr
		}
		if lockUntil != nil {
			logger.L().Warn("account locked after repeated failures",
				zap.String("user_id", user.ID.Hex()))
			return nil, ErrAccountLocked
		}
		return nil, &CredentialsError{AttemptsRemaining: MaxLoginAttempts - attempts}
	}

	if err := s.Users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.FailedLoginAttempts = 0
	user.LockUntil = nil
	user.LastLoginAt = &now
	return user, nil
}
