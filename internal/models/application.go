// internal/models/application.go
package models

// ApplicationState tracks the lifecycle of an application record.
// Transitions are driven externally by the pipeline's final decision.
type ApplicationState string

const (
	StateDraft     ApplicationState = "draft"
	StateSubmitted ApplicationState = "submitted"
	StateInReview  ApplicationState = "in_review"
	StateApproved  ApplicationState = "approved"
	StateRejected  ApplicationState = "rejected"
)

type Applicant struct {
	EmiratesID  string `json:"emirates_id"`
	FullName    string `json:"full_name"`
	DOB         string `json:"dob,omitempty"` // ISO date
	Nationality string `json:"nationality,omitempty"`
	Address     string `json:"address,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

type Dependent struct {
	EmiratesID   string `json:"emirates_id,omitempty"`
	Name         string `json:"name"`
	Relationship string `json:"relationship"` // spouse|child|parent|sibling|other
	DOB          string `json:"dob,omitempty"`
}

// ApplicantForm is the declared form snapshot. It is immutable for the
// duration of a pipeline run.
type ApplicantForm struct {
	ApplicantEID          string      `json:"applicant_eid"`
	FullName              string      `json:"full_name,omitempty"`
	DOB                   string      `json:"dob,omitempty"`
	Address               string      `json:"address,omitempty"`
	DeclaredMonthlyIncome float64     `json:"declared_monthly_income"`
	EmploymentStatus      string      `json:"employment_status"` // employed|unemployed|self-employed|student|retired
	HousingType           string      `json:"housing_type"`      // own|rent|other
	HouseholdSize         int         `json:"household_size"`
	Dependents            []Dependent `json:"dependents,omitempty"`
	IBAN                  string      `json:"iban,omitempty"`
	EmiratesID            string      `json:"emirates_id,omitempty"`
}

type ApplicationStatus struct {
	State     ApplicationState `json:"state"`
	CreatedAt int64            `json:"created_at,omitempty"`
	UpdatedAt int64            `json:"updated_at,omitempty"`
}

type Application struct {
	ApplicationID string            `json:"application_id"`
	Applicant     Applicant         `json:"applicant"`
	Form          ApplicantForm     `json:"form"`
	Status        ApplicationStatus `json:"status"`

	// ClarificationAnswers is the durable question->answer map recorded by
	// the chat layer, consumed by later pipeline runs as evidence.
	ClarificationAnswers map[string]string `json:"clarification_answers,omitempty"`
}

// ApplicantEID resolves the applicant identity from the form or the
// normalized applicant entity.
func (a *Application) ApplicantEID() string {
	if a.Form.ApplicantEID != "" {
		return a.Form.ApplicantEID
	}
	return a.Applicant.EmiratesID
}
