package models

import "time"

// Review statuses a lead moves through once onboarding is submitted.
const (
	StatusPending          = "pending"
	StatusApproved         = "approved"
	StatusRejected         = "rejected"
	StatusResubmitRequired = "resubmit_required"
)

// OnboardingFinalStep is the step number recorded on a completed lead.
const OnboardingFinalStep = 5

// TouchSnapshot is one attribution capture: the tracked parameters seen on a
// visit plus the capture time in unix milliseconds.
type TouchSnapshot struct {
	Params    map[string]string `firestore:"params" json:"params"`
	Timestamp string            `firestore:"timestamp" json:"timestamp"`
}

// LeadRecord is the enrollment application stored under leads/{userId}.
type LeadRecord struct {
	UserID string `firestore:"userId" json:"userId"`
	Email  string `firestore:"email,omitempty" json:"email,omitempty"`

	FirstName     string `firestore:"firstName,omitempty" json:"firstName,omitempty"`
	LastName      string `firestore:"lastName,omitempty" json:"lastName,omitempty"`
	MiddleInitial string `firestore:"middleInitial,omitempty" json:"middleInitial,omitempty"`
	PhoneNumber   string `firestore:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`

	ServiceAddress string `firestore:"serviceAddress,omitempty" json:"serviceAddress,omitempty"`
	City           string `firestore:"city,omitempty" json:"city,omitempty"`
	State          string `firestore:"state,omitempty" json:"state,omitempty"`
	ZipCode        string `firestore:"zipCode,omitempty" json:"zipCode,omitempty"`

	ElectricUtilityProvider  string `firestore:"electricUtilityProvider,omitempty" json:"electricUtilityProvider,omitempty"`
	GovernmentBenefitProgram string `firestore:"governmentBenefitProgram,omitempty" json:"governmentBenefitProgram,omitempty"`

	OnboardingCompleted bool   `firestore:"onboardingCompleted" json:"onboardingCompleted"`
	OnboardingStep      int    `firestore:"onboardingStep" json:"onboardingStep"`
	Status              string `firestore:"status" json:"status"`

	ReviewNotes string    `firestore:"reviewNotes,omitempty" json:"reviewNotes,omitempty"`
	ReviewedBy  string    `firestore:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt  time.Time `firestore:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`

	UTMFirstTouch *TouchSnapshot `firestore:"utmFirstTouch,omitempty" json:"utmFirstTouch,omitempty"`
	UTMLastTouch  *TouchSnapshot `firestore:"utmLastTouch,omitempty" json:"utmLastTouch,omitempty"`

	Bills []Bill `firestore:"bills" json:"bills"`

	CreatedAt time.Time `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Fields returns the profile fields of the record keyed by their wire names,
// omitting empty values.
func (l *LeadRecord) Fields() map[string]string {
	all := map[string]string{
		"firstName":                l.FirstName,
		"lastName":                 l.LastName,
		"middleInitial":            l.MiddleInitial,
		"email":                    l.Email,
		"phoneNumber":              l.PhoneNumber,
		"serviceAddress":           l.ServiceAddress,
		"city":                     l.City,
		"state":                    l.State,
		"zipCode":                  l.ZipCode,
		"electricUtilityProvider":  l.ElectricUtilityProvider,
		"governmentBenefitProgram": l.GovernmentBenefitProgram,
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// RecentBills returns at most n bills, newest first.
func (l *LeadRecord) RecentBills(n int) []Bill {
	out := make([]Bill, 0, n)
	for i := len(l.Bills) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.Bills[i])
	}
	return out
}
