package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"unigo-console/internal/model"
)

func withFiles(keys ...string) map[string]string {
	docs := make(map[string]string)
	for _, k := range keys {
		docs[k] = k + ".jpg"
	}
	return docs
}

func passenger() *model.User {
	return &model.User{
		ID:        12,
		Role:      model.RolePassenger,
		Status:    model.StatusPendingVerification,
		Documents: withFiles(RequiredKeys(model.RolePassenger)...),
	}
}

func TestDocumentStatus(t *testing.T) {
	tests := []struct {
		name string
		user model.User
		key  string
		want Status
	}{
		{"missing file", model.User{}, KeyCNIRecto, StatusMissing},
		{"approved", model.User{Documents: withFiles(KeyCNIRecto), DocumentVerification: map[string]string{KeyCNIRecto: "approved"}}, KeyCNIRecto, StatusVerified},
		{"rejected", model.User{Documents: withFiles(KeyCNIRecto), DocumentVerification: map[string]string{KeyCNIRecto: "rejected"}}, KeyCNIRecto, StatusRejected},
		{"explicit pending", model.User{Documents: withFiles(KeyCNIRecto), DocumentVerification: map[string]string{KeyCNIRecto: "pending"}}, KeyCNIRecto, StatusPending},
		{"unknown decision", model.User{Documents: withFiles(KeyCNIRecto), DocumentVerification: map[string]string{KeyCNIRecto: "en_cours"}}, KeyCNIRecto, StatusPending},
		{"fallback verified flag", model.User{Documents: withFiles(KeyCNIRecto), DocumentsVerified: true}, KeyCNIRecto, StatusVerified},
		{"fallback rejection notes", model.User{Documents: withFiles(KeyCNIRecto), DocumentRejectionNotes: "photo floue"}, KeyCNIRecto, StatusRejected},
		{"fallback pending", model.User{Documents: withFiles(KeyCNIRecto)}, KeyCNIRecto, StatusPending},
		{"map entry beats global flag", model.User{Documents: withFiles(KeyCNIRecto), DocumentsVerified: true, DocumentVerification: map[string]string{KeyCNIRecto: "rejected"}}, KeyCNIRecto, StatusRejected},
		{"payment verified", model.User{PaymentVerified: true}, KeyPaymentReceipt, StatusVerified},
		{"payment ignores map and file", model.User{Documents: withFiles(KeyPaymentReceipt), DocumentVerification: map[string]string{KeyPaymentReceipt: "approved"}}, KeyPaymentReceipt, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentStatus(&tt.user, tt.key))
		})
	}
}

func TestRejectionDominatesAggregate(t *testing.T) {
	u := passenger()
	u.DocumentVerification = map[string]string{
		KeyCNIRecto:    "approved",
		KeyCNIVerso:    "rejected",
		KeyStudentCard: "approved",
	}
	r := Evaluate(u)
	assert.Equal(t, StatusRejected, r.Aggregate)
	assert.Equal(t, model.StatusPendingVerification, r.Readiness)
}

func TestAllApprovedAndPaidIsActive(t *testing.T) {
	u := passenger()
	u.PaymentVerified = true
	u.DocumentVerification = map[string]string{}
	for _, k := range RequiredKeys(u.Role) {
		u.DocumentVerification[k] = "approved"
	}
	r := Evaluate(u)
	assert.Equal(t, StatusVerified, r.Aggregate)
	assert.Equal(t, StatusVerified, r.Payment)
	assert.Equal(t, model.StatusActive, r.Readiness)
}

func TestVerifiedUnpaidIsPendingPayment(t *testing.T) {
	u := passenger()
	u.DocumentsVerified = true
	assert.Equal(t, model.StatusPendingPayment, Evaluate(u).Readiness)
}

func TestDriverNeedsVehicleDocuments(t *testing.T) {
	u := passenger()
	u.Role = model.RoleDriver
	u.DocumentsVerified = true
	u.PaymentVerified = true

	r := Evaluate(u)
	assert.Equal(t, StatusPending, r.Aggregate, "licence and registration files are missing")

	u.Documents = withFiles(RequiredKeys(model.RoleDriver)...)
	assert.Equal(t, model.StatusActive, Evaluate(u).Readiness)
}

func TestPaymentReceiptExcludedFromAggregate(t *testing.T) {
	assert.NotContains(t, RequiredKeys(model.RolePassenger), KeyPaymentReceipt)
	assert.NotContains(t, RequiredKeys(model.RoleDriver), KeyPaymentReceipt)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	u := passenger()
	u.DocumentVerification = map[string]string{KeyCNIRecto: "approved"}
	first := Evaluate(u)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Evaluate(u))
	}
}

func TestReadinessFallsBackToStoredStatus(t *testing.T) {
	assert.Equal(t, model.StatusBanned, Readiness(StatusMissing, true, model.StatusBanned))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Carte grise", Label(KeyRegistration))
	assert.Equal(t, "inconnu", Label("inconnu"))
}
