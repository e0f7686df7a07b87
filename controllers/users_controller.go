package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/princinho/lmsbackend/dto"
	"github.com/princinho/lmsbackend/models"
	"github.com/princinho/lmsbackend/services"
	"github.com/princinho/lmsbackend/utils"
)

func callerRole(c *gin.Context) models.Role {
	roleVal, ok := c.Get("role")
	if !ok {
		return ""
	}
	return models.Role(roleVal.(string))
}

func requireSuperAdmin(c *gin.Context) bool {
	if callerRole(c) != models.RoleSuperAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "super admin privileges required"})
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (bson.ObjectID, bool) {
	id, err := bson.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return bson.ObjectID{}, false
	}
	return id, true
}

// POST /admin/users
func CreateUser(tenants *services.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSuperAdmin(c) {
			return
		}

		var body dto.CreateUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var orgID *bson.ObjectID
		if body.OrganizationID != "" {
			id, err := bson.ObjectIDFromHex(body.OrganizationID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization id"})
				return
			}
			orgID = &id
		}

		user, err := tenants.CreateUser(c.Request.Context(), orgID, services.SeatInput{
			Name:        body.Name,
			Email:       body.Email,
			Password:    body.Password,
			Role:        models.Role(body.Role),
			Designation: body.Designation,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

// PATCH /admin/users/:id
func UpdateUser(tenants *services.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSuperAdmin(c) {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		var body dto.UpdateUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := tenants.UpdateUser(c.Request.Context(), id, services.UpdateUserInput{
			Name:        body.Name,
			Designation: body.Designation,
			IsActive:    body.IsActive,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// PATCH /admin/users/:id/role
func UpdateUserRole(tenants *services.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSuperAdmin(c) {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		var body dto.UpdateUserRoleDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := tenants.UpdateUserRole(c.Request.Context(), id, models.Role(body.Role))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// DELETE /admin/users/:id
func DeleteUser(tenants *services.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSuperAdmin(c) {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if err := tenants.DeleteUser(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// POST /admin/users/:id/reset-password
func AdminResetUserPassword(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSuperAdmin(c) {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		emailed, err := tokens.AdminResetUserPassword(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "emailSent": emailed})
	}
}

// POST /admin/import/users
func BulkImportUsers(imports *services.ImportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSuperAdmin(c) {
			return
		}

		var body dto.BulkImportDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var orgID *bson.ObjectID
		if body.OrganizationID != "" {
			id, err := bson.ObjectIDFromHex(body.OrganizationID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization id"})
				return
			}
			orgID = &id
		}

		runImport(c, imports, orgID, body.Users)
	}
}

func runImport(c *gin.Context, imports *services.ImportService, orgID *bson.ObjectID, rows []dto.ImportRowDTO) {
	in := make([]services.ImportRow, 0, len(rows))
	for _, r := range rows {
		in = append(in, services.ImportRow{
			Name:        r.Name,
			Email:       r.Email,
			Role:        r.Role,
			Designation: r.Designation,
		})
	}

	res, err := imports.BulkImport(c.Request.Context(), orgID, in)
	if err != nil {
		if res != nil {
			// Nothing imported; hand the per-row detail back anyway.
			c.JSON(http.StatusConflict, res)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /admin/me/password
func ChangeMyPassword(users services.UserStore, refresh services.RefreshTokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ChangeMyPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userIDStr, ok := c.Get("userID")
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		userID, err := bson.ObjectIDFromHex(userIDStr.(string))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid auth context"})
			return
		}

		user, err := users.FindByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user"})
			return
		}

		if err := utils.CheckPassword(user.PasswordHash, body.CurrentPassword); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
			return
		}

		newHash, err := utils.HashPassword(body.NewPassword)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
			return
		}

		if err := users.SetPassword(c.Request.Context(), userID, newHash, false); err != nil {
			respondError(c, err)
			return
		}

		_ = refresh.RevokeAllForUser(c.Request.Context(), userID)
		utils.ClearRefreshCookie(c)

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
