package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/princinho/lmsbackend/dto"
	"github.com/princinho/lmsbackend/models"
	"github.com/princinho/lmsbackend/services"
)

// requireOrgAccess allows super admins anywhere and org admins on their
// own organization only.
func requireOrgAccess(c *gin.Context, orgID bson.ObjectID) bool {
	switch callerRole(c) {
	case models.RoleSuperAdmin:
		return true
	case models.RoleOrgAdmin:
		if claimOrg, ok := c.Get("organizationID"); ok && claimOrg.(string) == orgID.Hex() {
			return true
		}
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient privileges for this organization"})
	return false
}

func seatInput(d dto.SeatDTO) services.SeatInput {
	return services.SeatInput{
		Name:        d.Name,
		Email:       d.Email,
		Password:    d.Password,
		Designation: d.Designation,
	}
}

// POST /admin/organizations
func CreateOrganization(tenants *services.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSuperAdmin(c) {
			return
		}

		var body dto.CreateOrganizationDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		in := services.CreateOrganizationInput{
			Code:     body.Code,
			Name:     body.Name,
			PlanType: body.PlanType,
			MaxUsers: body.MaxUsers,
			Features: body.Features,
			EndDate:  body.EndDate,
			Owner:    seatInput(body.Owner),
		}
		if body.Manager != nil {
			m := seatInput(*body.Manager)
			m.Role = models.RoleManager
			in.Manager = &m
		}

		org, err := tenants.CreateOrganization(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, org)
	}
}

// PATCH /admin/organizations/:id
func EditOrganization(tenants *services.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if !requireOrgAccess(c, id) {
			return
		}

		var body dto.EditOrganizationDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		in := services.EditOrganizationInput{
			Name:     body.Name,
			PlanType: body.PlanType,
			MaxUsers: body.MaxUsers,
			Features: body.Features,
			EndDate:  body.EndDate,
		}
		if body.Status != nil {
			st := models.OrgStatus(*body.Status)
			in.Status = &st
		}

		org, err := tenants.EditOrganization(c.Request.Context(), id, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, org)
	}
}

// DELETE /admin/organizations/:id
func DeleteOrganization(tenants *services.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSuperAdmin(c) {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if err := tenants.DeleteOrganization(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// POST /admin/organizations/:id/users
func CreateUserInOrganization(tenants *services.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if !requireOrgAccess(c, id) {
			return
		}

		var body dto.CreateUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := tenants.CreateUser(c.Request.Context(), &id, services.SeatInput{
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

// PATCH /admin/organizations/:id/users/:userId
func UpdateUserInOrganization(tenants *services.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := pathID(c, "id")
		if !ok {
			return
		}
		if !requireOrgAccess(c, orgID) {
			return
		}
		userID, ok := pathID(c, "userId")
		if !ok {
			return
		}

		var body dto.UpdateUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := tenants.UpdateUserInOrganization(c.Request.Context(), orgID, userID, services.UpdateUserInput{
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

// DELETE /admin/organizations/:id/users/:userId
func DeleteUserFromOrganization(tenants *services.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := pathID(c, "id")
		if !ok {
			return
		}
		if !requireOrgAccess(c, orgID) {
			return
		}
		userID, ok := pathID(c, "userId")
		if !ok {
			return
		}
		if err := tenants.DeleteUserFromOrganization(c.Request.Context(), orgID, userID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// POST /admin/organizations/:id/import
func BulkImportUsersToOrg(imports *services.ImportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := pathID(c, "id")
		if !ok {
			return
		}
		if !requireOrgAccess(c, orgID) {
			return
		}

		var body struct {
			Users []dto.ImportRowDTO `json:"users" binding:"required,min=1,dive"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		runImport(c, imports, &orgID, body.Users)
	}
}
