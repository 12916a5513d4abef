package verification

import "unigo-console/internal/model"

// Document keys as stored on the user record.
const (
	KeyCNIRecto       = "cni_recto"
	KeyCNIVerso       = "cni_verso"
	KeyStudentCard    = "student_card"
	KeyLicenseRecto   = "permis_recto"
	KeyLicenseVerso   = "permis_verso"
	KeyRegistration   = "carte_grise"
	KeyInsurance      = "assurance"
	KeyPaymentReceipt = "payment_receipt"
)

// DocumentSpec describes one document kind.
type DocumentSpec struct {
	Key   string
	Label string
	// Roles the document is required for. Empty means every non-admin role.
	Roles []model.Role
}

var Documents = []DocumentSpec{
	{Key: KeyCNIRecto, Label: "CNI (recto)"},
	{Key: KeyCNIVerso, Label: "CNI (verso)"},
	{Key: KeyStudentCard, Label: "Carte d'étudiant"},
	{Key: KeyLicenseRecto, Label: "Permis de conduire (recto)", Roles: []model.Role{model.RoleDriver}},
	{Key: KeyLicenseVerso, Label: "Permis de conduire (verso)", Roles: []model.Role{model.RoleDriver}},
	{Key: KeyRegistration, Label: "Carte grise", Roles: []model.Role{model.RoleDriver}},
	{Key: KeyInsurance, Label: "Assurance", Roles: []model.Role{model.RoleDriver}},
	{Key: KeyPaymentReceipt, Label: "Reçu de paiement"},
}

var documentIndex = func() map[string]DocumentSpec {
	idx := make(map[string]DocumentSpec, len(Documents))
	for _, d := range Documents {
		idx[d.Key] = d
	}
	return idx
}()

// Label returns the display label for key, or key itself when unknown.
func Label(key string) string {
	if d, ok := documentIndex[key]; ok {
		return d.Label
	}
	return key
}

func Known(key string) bool {
	_, ok := documentIndex[key]
	return ok
}

func (d DocumentSpec) requiredFor(role model.Role) bool {
	if len(d.Roles) == 0 {
		return true
	}
	for _, r := range d.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RequiredKeys lists the documents a user with role must provide,
// excluding the payment receipt which is tracked separately.
func RequiredKeys(role model.Role) []string {
	var keys []string
	for _, d := range Documents {
		if d.Key == KeyPaymentReceipt || !d.requiredFor(role) {
			continue
		}
		keys = append(keys, d.Key)
	}
	return keys
}
