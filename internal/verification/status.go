// Package verification derives document, payment and account readiness
// status from a user record. Every function here is pure.
package verification

import "unigo-console/internal/model"

type Status string

const (
	StatusMissing  Status = "missing"
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

var decisionStatus = map[string]Status{
	model.DecisionApproved: StatusVerified,
	model.DecisionRejected: StatusRejected,
	model.DecisionPending:  StatusPending,
}

// DocumentStatus resolves the status of one document key for u.
func DocumentStatus(u *model.User, key string) Status {
	if key == KeyPaymentReceipt {
		if u.PaymentVerified {
			return StatusVerified
		}
		return StatusPending
	}

	if u.Documents[key] == "" {
		return StatusMissing
	}

	if decision, ok := u.DocumentVerification[key]; ok {
		if s, known := decisionStatus[decision]; known {
			return s
		}
		return StatusPending
	}

	switch {
	case u.DocumentsVerified:
		return StatusVerified
	case u.DocumentRejectionNotes != "":
		return StatusRejected
	default:
		return StatusPending
	}
}

// Aggregate folds the statuses of the required documents into one.
// A rejection dominates; verified needs every document verified.
func Aggregate(statuses []Status) Status {
	allVerified := true
	for _, s := range statuses {
		if s == StatusRejected {
			return StatusRejected
		}
		if s != StatusVerified {
			allVerified = false
		}
	}
	if allVerified {
		return StatusVerified
	}
	return StatusPending
}

// Readiness derives the account status an administrator should see.
func Readiness(aggregate Status, paymentVerified bool, stored model.AccountStatus) model.AccountStatus {
	switch {
	case aggregate == StatusRejected || aggregate == StatusPending:
		return model.StatusPendingVerification
	case aggregate == StatusVerified && !paymentVerified:
		return model.StatusPendingPayment
	case aggregate == StatusVerified && paymentVerified:
		return model.StatusActive
	default:
		return stored
	}
}

type DocumentReport struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	File     string `json:"file,omitempty"`
	Status   Status `json:"status"`
	Required bool   `json:"required"`
}

type Report struct {
	UserID    int                 `json:"user_id"`
	Documents []DocumentReport    `json:"documents"`
	Payment   Status              `json:"payment"`
	Aggregate Status              `json:"aggregate"`
	Readiness model.AccountStatus `json:"readiness"`
}

// Evaluate computes the full verification report for u.
func Evaluate(u *model.User) Report {
	required := make(map[string]bool)
	for _, k := range RequiredKeys(u.Role) {
		required[k] = true
	}

	r := Report{UserID: u.ID}
	var statuses []Status
	for _, d := range Documents {
		s := DocumentStatus(u, d.Key)
		r.Documents = append(r.Documents, DocumentReport{
			Key:      d.Key,
			Label:    d.Label,
			File:     u.Documents[d.Key],
			Status:   s,
			Required: required[d.Key],
		})
		if required[d.Key] {
			statuses = append(statuses, s)
		}
	}
	r.Payment = DocumentStatus(u, KeyPaymentReceipt)
	r.Aggregate = Aggregate(statuses)
	r.Readiness = Readiness(r.Aggregate, u.PaymentVerified, u.Status)
	return r
}
