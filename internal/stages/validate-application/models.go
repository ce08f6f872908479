// internal/stages/validate-application/models.go
package validateapplication

import "eligibility-workers/internal/models"

type Input struct {
	ApplicationID string                          `json:"application_id"`
	Form          models.ApplicantForm            `json:"form"`
	FactsByDoc    map[models.DocType]models.Facts `json:"facts_by_doc"`
	// AnswersExist reports whether the applicant has already answered at
	// least one clarification for this application. When set, a high or
	// medium report with no critical issues downgrades to proceed.
	AnswersExist bool `json:"answers_exist"`
}

type Output struct {
	Report models.ValidationReport `json:"report"`
}
