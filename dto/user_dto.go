package dto

type CreateUserDTO struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password,omitempty" binding:"omitempty,min=8"`
	Role           string `json:"role,omitempty"`
	Designation    string `json:"designation,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
}

type UpdateUserDTO struct {
	Name        *string `json:"name,omitempty"`
	Designation *string `json:"designation,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

type UpdateUserRoleDTO struct {
	Role string `json:"role" binding:"required"`
}

type ImportRowDTO struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required"`
	Role        string `json:"role,omitempty"`
	Designation string `json:"designation,omitempty"`
}

type BulkImportDTO struct {
	OrganizationID string         `json:"organizationId,omitempty"`
	Users          []ImportRowDTO `json:"users" binding:"required,min=1,dive"`
}
