package models

// These structs define the JSON payloads for HTTP requests and responses
// between the browser and the lead capture service, plus the argument
// handed to the review workflow.

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

// FileRejection reports a selected file that was not accepted.
type FileRejection struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

// FinalizeResponse is returned when the onboarding wizard is submitted.
type FinalizeResponse struct {
	LeadID    string `json:"leadId"`
	Created   bool   `json:"created"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Message   string `json:"message"`
	Redirect  string `json:"redirect"`
}

// UploadBillResponse describes a bill stored from the dashboard.
type UploadBillResponse struct {
	ID       string `json:"id"`
	FileURL  string `json:"fileUrl"`
	FilePath string `json:"filePath"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// LeadUpdateRequest is the dashboard edit of location and utility details.
// Empty fields are left unchanged, except GovernmentBenefitProgram which is
// cleared when sent as an empty string.
type LeadUpdateRequest struct {
	ServiceAddress           string  `json:"serviceAddress"`
	City                     string  `json:"city"`
	State                    string  `json:"state" validate:"omitempty,len=2,alpha"`
	ZipCode                  string  `json:"zipCode" validate:"omitempty,len=5,numeric"`
	ElectricUtilityProvider  string  `json:"electricUtilityProvider"`
	GovernmentBenefitProgram *string `json:"governmentBenefitProgram"`
}

// Fields returns the values to write, keyed by their stored names.
func (r LeadUpdateRequest) Fields() map[string]string {
	out := make(map[string]string)
	for k, v := range map[string]string{
		"serviceAddress":          r.ServiceAddress,
		"city":                    r.City,
		"state":                   r.State,
		"zipCode":                 r.ZipCode,
		"electricUtilityProvider": r.ElectricUtilityProvider,
	} {
		if v != "" {
			out[k] = v
		}
	}
	if r.GovernmentBenefitProgram != nil {
		out["governmentBenefitProgram"] = *r.GovernmentBenefitProgram
	}
	return out
}

// ContactRequest is the public contact form.
type ContactRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"required,min=10"`
	Company     string `json:"company"`
	Address     string `json:"address"`
	Utility     string `json:"utility" validate:"omitempty,oneof=comed ameren other"`
	MonthlyBill string `json:"monthlyBill"`
	Message     string `json:"message"`
}

// ReviewRequest is an admin decision on a submitted lead.
type ReviewRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected resubmit_required"`
	Notes  string `json:"notes" validate:"required"`
}

// WorkflowArgument is the input passed to the enrollment review workflow.
type WorkflowArgument struct {
	UserID    string `json:"userId"`
	BillCount int    `json:"billCount"`
	Created   bool   `json:"created"`
}
