package dto

import "time"

type SeatDTO struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password,omitempty" binding:"omitempty,min=8"`
	Designation string `json:"designation,omitempty"`
}

type CreateOrganizationDTO struct {
	Code     string     `json:"code" binding:"required"`
	Name     string     `json:"name" binding:"required"`
	PlanType string     `json:"planType,omitempty"`
	MaxUsers int        `json:"maxUsers" binding:"required,min=1"`
	Features []string   `json:"features,omitempty"`
	EndDate  *time.Time `json:"endDate,omitempty"`
	Owner    SeatDTO    `json:"owner" binding:"required"`
	Manager  *SeatDTO   `json:"manager,omitempty"`
}

type EditOrganizationDTO struct {
	Name     *string    `json:"name,omitempty"`
	PlanType *string    `json:"planType,omitempty"`
	MaxUsers *int       `json:"maxUsers,omitempty" binding:"omitempty,min=1"`
	Features []string   `json:"features,omitempty"`
	EndDate  *time.Time `json:"endDate,omitempty"`
	Status   *string    `json:"status,omitempty"`
}
