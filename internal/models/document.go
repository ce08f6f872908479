// internal/models/document.go
package models

// DocumentRef points at an uploaded document awaiting extraction.
type DocumentRef struct {
	DocID         string  `json:"doc_id"`
	ApplicationID string  `json:"application_id"`
	ApplicantEID  string  `json:"applicant_eid"`
	DocType       DocType `json:"doc_type"`
	Filename      string  `json:"filename"`
	ObjectKey     string  `json:"object_key"`
	Pages         int     `json:"pages,omitempty"`
	OCRConfidence float64 `json:"ocr_confidence,omitempty"`
}
