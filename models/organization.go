package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
	OrgStatusExpired   OrgStatus = "expired"
)

type License struct {
	MaxUsers int      `bson:"maxUsers" json:"maxUsers"`
	Features []string `bson:"features,omitempty" json:"features,omitempty"`
}

// OrgStats are running counters, maintained in the same transaction as
// the user insert/delete that changes them. They are never recomputed on
// read; the seat reservation in the organizations store keeps TotalUsers
// within License.MaxUsers.
type OrgStats struct {
	TotalUsers  int `bson:"totalUsers" json:"totalUsers"`
	ActiveUsers int `bson:"activeUsers" json:"activeUsers"`
}

type Organization struct {
	ID       bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Code     string        `bson:"code" json:"code"`
	Name     string        `bson:"name" json:"name"`
	PlanType string        `bson:"planType" json:"planType"`
	License  License       `bson:"license" json:"license"`
	Stats    OrgStats      `bson:"stats" json:"stats"`

	StartDate time.Time  `bson:"startDate" json:"startDate"`
	EndDate   *time.Time `bson:"endDate,omitempty" json:"endDate,omitempty"`
	Status    OrgStatus  `bson:"status" json:"status"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (o *Organization) AvailableSlots() int {
	n := o.License.MaxUsers - o.Stats.TotalUsers
	if n < 0 {
		return 0
	}
	return n
}
