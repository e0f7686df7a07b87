package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/princinho/lmsbackend/logger"
	"github.com/princinho/lmsbackend/models"
	"github.com/princinho/lmsbackend/utils"
)

const (
	// NewUserTokenTTL is the activation window for freshly provisioned
	// accounts; ResetTokenTTL covers self-service resets.
	NewUserTokenTTL = 24 * time.Hour
	ResetTokenTTL   = time.Hour
)

// TokenMailer is the email collaborator. Delivery failure never rolls
// back token creation.
type TokenMailer interface {
	SendPasswordToken(to, name, token string, isNewUser bool) error
}

// TokenService issues, validates and consumes the single-use password
// reset / activation tokens.
type TokenService struct {
	Users         UserStore
	Tokens        TokenStore
	RefreshTokens RefreshTokenStore
	Txn           TxnRunner
	Mailer        TokenMailer

	Now func() time.Time
}

func NewTokenService(users UserStore, tokens TokenStore, refresh RefreshTokenStore, txn TxnRunner, mailer TokenMailer) *TokenService {
	return &TokenService{
		Users:         users,
		Tokens:        tokens,
		RefreshTokens: refresh,
		Txn:           txn,
		Mailer:        mailer,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// Issue invalidates the user's outstanding tokens and creates a fresh
// one in a single transaction, then mails it. The returned bool reports
// whether the email went out; the token stays valid either way.
func (s *TokenService) Issue(ctx context.Context, user *models.User, isNewUser bool) (string, bool, error) {
	token, err := utils.GenerateSecureToken()
	if err != nil {
		return "", false, err
	}

	ttl := ResetTokenTTL
	if isNewUser {
		ttl = NewUserTokenTTL
	}
	now := s.Now()

	err = s.Txn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.Tokens.InvalidateAllForUser(ctx, user.ID); err != nil {
			return err
		}
		return s.Tokens.Insert(ctx, &models.PasswordResetToken{
			UserID:    user.ID,
			Token:     token,
			IsNewUser: isNewUser,
			Used:      false,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		})
	})
	if err != nil {
		return "", false, err
	}

	if err := s.Mailer.SendPasswordToken(user.Email, user.Name, token, isNewUser); err != nil {
		logger.L().Warn("password token email failed",
			zap.String("user_id", user.ID.Hex()), zap.Error(err))
		return token, false, nil
	}
	return token, true, nil
}

// RequestPasswordReset always reports success so callers cannot probe
// which emails exist.
func (s *TokenService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.Users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.L().Debug("password reset for unknown email")
			return nil
		}
		return err
	}
	_, _, err = s.Issue(ctx, user, false)
	return err
}

// AdminResetUserPassword issues a reset token on behalf of an admin and
// kills the user's sessions.
func (s *TokenService) AdminResetUserPassword(ctx context.Context, userID bson.ObjectID) (bool, error) {
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	_, emailed, err := s.Issue(ctx, user, false)
	if err != nil {
		return false, err
	}
	if err := s.RefreshTokens.RevokeAllForUser(ctx, userID); err != nil {
		return emailed, err
	}
	return emailed, nil
}

// Validate reports whether the token is usable. Not-found, expired and
// already-used are indistinguishable to the caller.
func (s *TokenService) Validate(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	return s.Tokens.FindUsable(ctx, token, s.Now())
}

// Consume re-validates the token and, in one transaction, sets the new
// password (marking the email verified and clearing lockout) and flips
// the single-use latch. A second call with the same token fails.
func (s *TokenService) Consume(ctx context.Context, token, newPassword string) error {
	// Hash outside the transaction; bcrypt is the slow part.
	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}

	var userID bson.ObjectID
	err = s.Txn.WithTransaction(ctx, func(ctx context.Context) error {
		t, err := s.Tokens.FindUsable(ctx, token, s.Now())
		if err != nil {
			return err
		}
		if err := s.Users.SetPassword(ctx, t.UserID, hash, true); err != nil {
			return err
		}
		if err := s.Tokens.MarkUsed(ctx, t.ID); err != nil {
			return err
		}
		userID = t.UserID
		return nil
	})
	if err != nil {
		return err
	}

	// Best effort: a changed password invalidates open sessions.
	if err := s.RefreshTokens.RevokeAllForUser(ctx, userID); err != nil {
		logger.L().Warn("failed to revoke sessions after password reset",
			zap.String("user_id", userID.Hex()), zap.Error(err))
	}
	return nil
}
