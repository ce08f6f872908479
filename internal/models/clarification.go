// internal/models/clarification.go
package models

import "time"

// ClarificationState tracks a question's lifecycle.
type ClarificationState string

const (
	ClarificationPending  ClarificationState = "PENDING"
	ClarificationAnswered ClarificationState = "ANSWERED"
)

// PendingClarification is one queued question for an applicant.
type PendingClarification struct {
	ID       string             `json:"id"`
	Field    string             `json:"field"`
	Question string             `json:"question"`
	State    ClarificationState `json:"state"`
	AskedAt  time.Time          `json:"asked_at"`
}

// AnswerAudit is one immutable question/answer event in the audit trail.
type AnswerAudit struct {
	ClarificationID string    `json:"clarification_id"`
	Field           string    `json:"field"`
	Question        string    `json:"question"`
	Answer          string    `json:"answer"`
	AnsweredAt      time.Time `json:"answered_at"`
}
