package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/princinho/lmsbackend/dto"
	"github.com/princinho/lmsbackend/models"
	"github.com/princinho/lmsbackend/services"
	"github.com/princinho/lmsbackend/utils"
)

func orgIDHex(u *models.User) string {
	if u.OrganizationID == nil {
		return ""
	}
	return u.OrganizationID.Hex()
}

func setRefreshCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     "refreshToken",
		Value:    token,
		Path:     "/auth/refresh",
		MaxAge:   int(utils.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode, // for cross-site
	})
}

func Login(auth *services.AuthService, refresh services.RefreshTokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.LoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), body.Email, body.Password)
		if err != nil {
			respondError(c, err)
			return
		}

		accessToken, err := utils.GenerateAccessToken(
			user.ID.Hex(), user.Email, string(user.Role), string(user.Level), orgIDHex(user), utils.AccessTTL())
		if err != nil {
			respondError(c, err)
			return
		}

		refreshToken, err := utils.GenerateRefreshToken(user.ID.Hex())
		if err != nil {
			respondError(c, err)
			return
		}

		now := time.Now().UTC()
		err = refresh.Insert(c.Request.Context(), &models.RefreshToken{
			UserID:    user.ID,
			TokenHash: refreshToken,
			ExpiresAt: now.Add(utils.RefreshTTL()),
			CreatedAt: now,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		setRefreshCookie(c, refreshToken)
		c.JSON(http.StatusOK, gin.H{
			"access_token": accessToken,
			"user":         user,
		})
	}
}

func Refresh(users services.UserStore, refresh services.RefreshTokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		hash, err := c.Cookie("refreshToken")
		if err != nil || hash == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing refresh token"})
			return
		}

		now := time.Now().UTC()
		rt, err := refresh.FindActive(ctx, hash, now)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}

		user, err := users.FindByID(ctx, rt.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user"})
			return
		}
		if !user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "account disabled"})
			return
		}

		// Rotate refresh token
		newHash, err := utils.GenerateRefreshToken(user.ID.Hex())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
			return
		}

		if err := refresh.Revoke(ctx, rt.ID, &newHash); err != nil {
			respondError(c, err)
			return
		}
		err = refresh.Insert(ctx, &models.RefreshToken{
			UserID:    user.ID,
			TokenHash: newHash,
			ExpiresAt: now.Add(utils.RefreshTTL()),
			CreatedAt: now,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		accessToken, err := utils.GenerateAccessToken(
			user.ID.Hex(), user.Email, string(user.Role), string(user.Level), orgIDHex(user), utils.AccessTTL())
		if err != nil {
			respondError(c, err)
			return
		}

		setRefreshCookie(c, newHash)
		c.JSON(http.StatusOK, gin.H{"accessToken": accessToken})
	}
}

func Logout(refresh services.RefreshTokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		hash, _ := c.Cookie("refreshToken")
		utils.ClearRefreshCookie(c)

		// best effort revoke
		if hash != "" {
			if rt, err := refresh.FindActive(ctx, hash, time.Now().UTC()); err == nil {
				_ = refresh.Revoke(ctx, rt.ID, nil)
			}
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// ForgotPassword always answers ok so account existence stays hidden.
func ForgotPassword(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ForgotPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := tokens.RequestPasswordReset(c.Request.Context(), body.Email); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":      true,
			"message": "if the email exists, a reset link has been sent",
		})
	}
}

func ValidateResetToken(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := tokens.Validate(c.Request.Context(), c.Param("token"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": true, "isNewUser": t.IsNewUser})
	}
}

func ResetPassword(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ResetPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := tokens.Consume(c.Request.Context(), body.Token, body.NewPassword); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
