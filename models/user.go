package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Role string

const (
	RoleEmployee   Role = "employee"
	RoleTeamLead   Role = "team_lead"
	RoleManager    Role = "manager"
	RoleOrgAdmin   Role = "org_admin"
	RoleSuperAdmin Role = "super_admin"
)

// Level is derived from Role and stored alongside it so dashboards can
// filter on it without a mapping table.
type Level string

const (
	LevelEntry     Level = "entry"
	LevelLead      Level = "lead"
	LevelExecutive Level = "executive"
)

func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleTeamLead, RoleManager, RoleOrgAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

func (r Role) Level() Level {
	switch r {
	case RoleTeamLead:
		return LevelLead
	case RoleManager, RoleOrgAdmin, RoleSuperAdmin:
		return LevelExecutive
	default:
		return LevelEntry
	}
}

type User struct {
	ID             bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	Email          string         `bson:"email" json:"email"`
	Name           string         `bson:"name" json:"name"`
	PasswordHash   string         `bson:"passwordHash" json:"-"` // never expose
	Role           Role           `bson:"role" json:"role"`
	Level          Level          `bson:"level" json:"level"`
	Designation    string         `bson:"designation,omitempty" json:"designation,omitempty"`
	OrganizationID *bson.ObjectID `bson:"organizationId,omitempty" json:"organizationId,omitempty"`
	// ManagerID links a provisioned manager back to the org owner.
	ManagerID *bson.ObjectID `bson:"managerId,omitempty" json:"managerId,omitempty"`

	IsActive            bool `bson:"isActive" json:"isActive"`
	IsEmailVerified     bool `bson:"isEmailVerified" json:"isEmailVerified"`
	OnboardingCompleted bool `bson:"onboardingCompleted" json:"onboardingCompleted"`

	FailedLoginAttempts int        `bson:"failedLoginAttempts" json:"-"`
	LockUntil           *time.Time `bson:"lockUntil,omitempty" json:"-"`
	LastLoginAt         *time.Time `bson:"lastLoginAt,omitempty" json:"lastLoginAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Locked reports whether the lockout window is still open at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

type RefreshToken struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	UserID     bson.ObjectID `bson:"userId"`
	TokenHash  string        `bson:"tokenHash"`
	ExpiresAt  time.Time     `bson:"expiresAt"`
	CreatedAt  time.Time     `bson:"createdAt"`
	RevokedAt  *time.Time    `bson:"revokedAt,omitempty"`
	ReplacedBy *string       `bson:"replacedBy,omitempty"`
}
