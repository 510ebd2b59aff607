package wizard

import (
	"errors"
	"strconv"
	"strings"

	"github.com/Lllllllleong/solarleadcapture/internal/errs"
)

// StepID names a wizard step independently of its position.
type StepID string

const (
	StepIdentity     StepID = "identity"
	StepLocation     StepID = "location"
	StepUtility      StepID = "utility"
	StepDocuments    StepID = "documents"
	StepConfirmation StepID = "confirmation"
)

// Fragment is the data one step contributes, keyed by field name.
type Fragment map[string]string

// StepDefinition describes one step: its declared fields and how its
// fragment is validated. Validate returns nil when the fragment is valid.
type StepDefinition struct {
	ID       StepID
	Number   int
	Title    string
	Fields   []string
	Validate func(Fragment) errs.FieldErrors
}

// keep returns the subset of f the step declares, with surrounding
// whitespace trimmed.
func (d StepDefinition) keep(f Fragment) Fragment {
	out := make(Fragment, len(d.Fields))
	for _, name := range d.Fields {
		if v, ok := f[name]; ok {
			out[name] = strings.TrimSpace(v)
		}
	}
	return out
}

type identityInput struct {
	FirstName     string `json:"firstName" validate:"required"`
	LastName      string `json:"lastName" validate:"required"`
	MiddleInitial string `json:"middleInitial" validate:"omitempty,max=1"`
	Email         string `json:"email" validate:"required,email"`
	PhoneNumber   string `json:"phoneNumber" validate:"required,min=10"`
}

type locationInput struct {
	ServiceAddress string `json:"serviceAddress" validate:"required"`
	City           string `json:"city" validate:"required"`
	State          string `json:"state" validate:"required,len=2,alpha"`
	ZipCode        string `json:"zipCode" validate:"omitempty,len=5,numeric"`
}

type utilityInput struct {
	ElectricUtilityProvider  string `json:"electricUtilityProvider" validate:"required"`
	GovernmentBenefitProgram string `json:"governmentBenefitProgram"`
}

func fieldErrors(err error) errs.FieldErrors {
	if err == nil {
		return nil
	}
	var e *errs.Error
	if errors.As(err, &e) && e.Fields != nil {
		return e.Fields
	}
	return errs.FieldErrors{"_": err.Error()}
}

// DefaultSteps returns the five onboarding steps in order.
func DefaultSteps() []StepDefinition {
	return []StepDefinition{
		{
			ID:     StepIdentity,
			Number: 1,
			Title:  "Basic Information",
			Fields: []string{"firstName", "lastName", "middleInitial", "email", "phoneNumber"},
			Validate: func(f Fragment) errs.FieldErrors {
				return fieldErrors(errs.Check(identityInput{
					FirstName:     f["firstName"],
					LastName:      f["lastName"],
					MiddleInitial: f["middleInitial"],
					Email:         f["email"],
					PhoneNumber:   f["phoneNumber"],
				}))
			},
		},
		{
			ID:     StepLocation,
			Number: 2,
			Title:  "Service Location",
			Fields: []string{"serviceAddress", "city", "state", "zipCode"},
			Validate: func(f Fragment) errs.FieldErrors {
				return fieldErrors(errs.Check(locationInput{
					ServiceAddress: f["serviceAddress"],
					City:           f["city"],
					State:          f["state"],
					ZipCode:        f["zipCode"],
				}))
			},
		},
		{
			ID:     StepUtility,
			Number: 3,
			Title:  "Utility & Benefits",
			Fields: []string{"electricUtilityProvider", "governmentBenefitProgram"},
			Validate: func(f Fragment) errs.FieldErrors {
				return fieldErrors(errs.Check(utilityInput{
					ElectricUtilityProvider:  f["electricUtilityProvider"],
					GovernmentBenefitProgram: f["governmentBenefitProgram"],
				}))
			},
		},
		{
			ID:     StepDocuments,
			Number: 4,
			Title:  "Upload Bills",
		},
		{
			ID:     StepConfirmation,
			Number: 5,
			Title:  "Review & Submit",
		},
	}
}

// Lookup finds a step by id or by its number written as a string.
func Lookup(steps []StepDefinition, key string) (StepDefinition, bool) {
	for _, d := range steps {
		if string(d.ID) == key || strconv.Itoa(d.Number) == key {
			return d, true
		}
	}
	return StepDefinition{}, false
}
