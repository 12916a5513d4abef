package model

import "time"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

type AccountStatus string

const (
	StatusActive              AccountStatus = "active"
	StatusPendingVerification AccountStatus = "pending_verification"
	StatusPendingPayment      AccountStatus = "pending_payment"
	StatusSuspended           AccountStatus = "suspended"
	StatusBanned              AccountStatus = "banned"
)

// Per-document decisions as stored in User.DocumentVerification.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionPending  = "pending"
)

type User struct {
	ID             int           `json:"id"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	Email          string        `json:"email"`
	Phone          string        `json:"phone,omitempty"`
	Role           Role          `json:"role"`
	Status         AccountStatus `json:"status"`
	ProfilePicture string        `json:"profile_picture,omitempty"`

	// Documents maps a document key to the uploaded file name. An empty
	// or missing entry means nothing was uploaded for that key.
	Documents              map[string]string `json:"documents,omitempty"`
	DocumentVerification   map[string]string `json:"document_verification,omitempty"`
	DocumentsVerified      bool              `json:"documents_verified"`
	DocumentRejectionNotes string            `json:"document_rejection_notes,omitempty"`
	PaymentVerified        bool              `json:"payment_verified"`

	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
	RenewalPending      bool       `json:"renewal_pending"`

	UniversityID int       `json:"university_id,omitempty"`
	DistrictID   int       `json:"district_id,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserRef is the compact user shape embedded in messages and conversations.
type UserRef struct {
	ID             int    `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Password  string `json:"password"`
	Role      Role   `json:"role"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}
