// internal/stages/reconcile-profile/models.go
package reconcileprofile

import "eligibility-workers/internal/models"

type Input struct {
	ApplicationID string                          `json:"application_id"`
	ApplicantEID  string                          `json:"applicant_eid"`
	Form          models.ApplicantForm            `json:"form"`
	FactsByDoc    map[models.DocType]models.Facts `json:"facts_by_doc"`
	Report        models.ValidationReport         `json:"validation_report"`
	// Answers maps question text to the applicant's recorded answer. They
	// are consumed as evidence before any new question is raised.
	Answers map[string]string `json:"clarification_answers,omitempty"`
}

type Output struct {
	Reconciliation models.Reconciliation `json:"reconciliation"`
}
