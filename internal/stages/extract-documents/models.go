// internal/stages/extract-documents/models.go
package extractdocuments

import "eligibility-workers/internal/models"

type Input struct {
	ApplicationID string                `json:"application_id"`
	ApplicantEID  string                `json:"applicant_eid"`
	Documents     []models.DocumentRef  `json:"documents"`
	Form          *models.ApplicantForm `json:"form,omitempty"`
}

type Output struct {
	Extracts []models.ExtractResult `json:"extracts"`
}

// extractBatchRequest is the extraction service wire request.
type extractBatchRequest struct {
	ApplicationID string                `json:"application_id"`
	ApplicantEID  string                `json:"applicant_eid"`
	Documents     []models.DocumentRef  `json:"documents"`
	Form          *models.ApplicantForm `json:"form,omitempty"`
}
