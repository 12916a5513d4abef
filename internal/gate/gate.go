// Package gate decides which full-screen state a protected view renders
// for the current session. Guards run in a fixed order; the first match wins.
package gate

import (
	"sort"
	"time"

	"unigo-console/internal/model"
)

type Screen string

const (
	ScreenSpinner                Screen = "spinner"
	ScreenLogin                  Screen = "redirect_login"
	ScreenSearch                 Screen = "redirect_search"
	ScreenRenewalPayment         Screen = "renewal_payment"
	ScreenRenewalReview          Screen = "renewal_review"
	ScreenResubmitDocuments      Screen = "resubmit_documents"
	ScreenVerificationInProgress Screen = "verification_in_progress"
	ScreenContactSupport         Screen = "contact_support"
	ScreenContent                Screen = "content"
)

// Result is the screen to render plus whatever that screen needs.
type Result struct {
	Screen Screen `json:"screen"`
	// Redirect is set for the redirect screens.
	Redirect string `json:"redirect,omitempty"`
	// RejectedDocuments is set for ScreenResubmitDocuments, sorted.
	RejectedDocuments []string `json:"rejected_documents,omitempty"`
}

type Input struct {
	Loading      bool
	User         *model.User
	RequiredRole model.Role
	Now          time.Time
}

const (
	LoginPath  = "/login"
	SearchPath = "/search"
)

// Guard returns a result and true when it claims the input.
type Guard struct {
	Name  string
	Check func(in Input) (Result, bool)
}

var guards = []Guard{
	{"loading", func(in Input) (Result, bool) {
		return Result{Screen: ScreenSpinner}, in.Loading
	}},
	{"anonymous", func(in Input) (Result, bool) {
		return Result{Screen: ScreenLogin, Redirect: LoginPath}, in.User == nil
	}},
	{"role", func(in Input) (Result, bool) {
		mismatch := in.RequiredRole != "" && in.User.Role != in.RequiredRole
		return Result{Screen: ScreenSearch, Redirect: SearchPath}, mismatch
	}},
	{"subscription_expired", func(in Input) (Result, bool) {
		u := in.User
		expired := u.SubscriptionEndDate != nil && in.Now.After(*u.SubscriptionEndDate)
		return Result{Screen: ScreenRenewalPayment}, !u.IsAdmin() && expired && !u.RenewalPending
	}},
	{"renewal_pending", func(in Input) (Result, bool) {
		return Result{Screen: ScreenRenewalReview}, !in.User.IsAdmin() && in.User.RenewalPending
	}},
	{"documents_rejected", func(in Input) (Result, bool) {
		if in.User.IsAdmin() {
			return Result{}, false
		}
		rejected := rejectedKeys(in.User)
		return Result{Screen: ScreenResubmitDocuments, RejectedDocuments: rejected}, len(rejected) > 0
	}},
	{"verification_pending", func(in Input) (Result, bool) {
		s := in.User.Status
		pending := s == model.StatusPendingPayment || s == model.StatusPendingVerification
		return Result{Screen: ScreenVerificationInProgress}, !in.User.IsAdmin() && pending
	}},
	{"blocked", func(in Input) (Result, bool) {
		s := in.User.Status
		return Result{Screen: ScreenContactSupport}, s == model.StatusSuspended || s == model.StatusBanned
	}},
}

// Guards returns the ordered guard list.
func Guards() []Guard {
	return append([]Guard(nil), guards...)
}

// Evaluate runs the guards top to bottom and falls through to content.
func Evaluate(in Input) Result {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	for _, g := range guards {
		if res, ok := g.Check(in); ok {
			return res
		}
	}
	return Result{Screen: ScreenContent}
}

func rejectedKeys(u *model.User) []string {
	var keys []string
	for k, v := range u.DocumentVerification {
		if v == model.DecisionRejected {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
