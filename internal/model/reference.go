package model

import "time"

type District struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	City string `json:"city,omitempty"`
}

type University struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Acronym    string `json:"acronym,omitempty"`
	DistrictID int    `json:"district_id,omitempty"`
	Logo       string `json:"logo,omitempty"`
}

type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"
	IncidentRejected IncidentStatus = "rejected"
)

type Incident struct {
	ID          int            `json:"id"`
	ReporterID  int            `json:"reporter_id"`
	ReportedID  int            `json:"reported_id,omitempty"`
	TripID      int            `json:"trip_id,omitempty"`
	Description string         `json:"description"`
	Status      IncidentStatus `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
}

const (
	RechargePending  = "pending"
	RechargeApproved = "approved"
	RechargeRejected = "rejected"
)

type RechargeRequest struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Amount    float64   `json:"amount"`
	Receipt   string    `json:"receipt,omitempty"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type UserList struct {
	Users []User `json:"users"`
	Page
}

type UserFilter struct {
	Role   Role
	Status AccountStatus
	Search string
	Page   int
	Limit  int
}
