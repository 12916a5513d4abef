package notification

import (
	"fmt"

	"unigo-console/internal/model"
	"unigo-console/internal/verification"
)

type Tone string

const (
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

// Style is how a notification type is rendered in the bell and toasts.
type Style struct {
	Icon  string `json:"icon"`
	Label string `json:"label"`
	Tone  Tone   `json:"tone"`
}

var styles = map[model.NotificationType]Style{
	model.NotificationMessage:              {"message-circle", "Message", ToneInfo},
	model.NotificationBooking:              {"calendar-check", "Réservation", ToneInfo},
	model.NotificationPayment:              {"credit-card", "Paiement", ToneSuccess},
	model.NotificationRecharge:             {"wallet", "Recharge", ToneSuccess},
	model.NotificationDocumentVerification: {"file-check", "Vérification de document", ToneWarning},
	model.NotificationTripUpdate:           {"map", "Mise à jour du trajet", ToneInfo},
	model.NotificationCancellation:         {"x-circle", "Annulation", ToneDanger},
	model.NotificationTripStarted:          {"navigation", "Trajet démarré", ToneInfo},
	model.NotificationTripAutoStarted:      {"navigation", "Trajet démarré automatiquement", ToneInfo},
	model.NotificationTripCompleted:        {"flag", "Trajet terminé", ToneSuccess},
	model.NotificationWelcome:              {"smile", "Bienvenue", ToneSuccess},
	model.NotificationSystem:               {"settings", "Système", ToneWarning},
	model.NotificationOther:                {"bell", "Notification", ToneInfo},
}

func StyleFor(t model.NotificationType) Style {
	if s, ok := styles[t]; ok {
		return s
	}
	return styles[model.NotificationOther]
}

var verdicts = map[string]string{
	model.DecisionApproved: "validé",
	model.DecisionRejected: "refusé",
	model.DecisionPending:  "en attente",
}

// Summary is the one-line text shown in a toast for n.
func Summary(n model.Notification) string {
	if n.Type == model.NotificationDocumentVerification && n.Data != nil && n.Data.DocumentType != "" {
		verdict, ok := verdicts[n.Data.VerificationStatus]
		if !ok {
			verdict = verdicts[model.DecisionPending]
		}
		return fmt.Sprintf("%s : %s", verification.Label(n.Data.DocumentType), verdict)
	}
	if n.Message != "" {
		return n.Message
	}
	return StyleFor(n.Type).Label
}
