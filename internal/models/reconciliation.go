// internal/models/reconciliation.go
package models

// Outcome marks whether a stage produced its primary result or fell back to
// a conservative default after a recoverable failure.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
)

// FieldValue is one reconciled profile field with provenance.
type FieldValue struct {
	Value      interface{} `json:"value"`
	Source     string      `json:"source"`
	Confidence float64     `json:"confidence"`
}

// Profile is the canonical reconciled view of an applicant, field name to
// value with provenance.
type Profile map[string]FieldValue

// UnresolvedIssue is a conflict reconciliation could not settle.
type UnresolvedIssue struct {
	Code     string   `json:"code"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// PendingQuestion is a clarification question reconciliation wants answered
// before the profile can be trusted.
type PendingQuestion struct {
	Field    string `json:"field"`
	Question string `json:"question"`
}

// Reconciliation is the stage output. A degraded outcome carries an empty
// profile, a single parse-error issue and zero confidence.
type Reconciliation struct {
	Profile          Profile           `json:"reconciled_profile"`
	UnresolvedIssues []UnresolvedIssue `json:"unresolved_issues"`
	PendingQuestions []PendingQuestion `json:"pending_questions"`
	Confidence       float64           `json:"confidence"`
	Outcome          Outcome           `json:"outcome"`
}

// DegradedReconciliation is the fixed fallback used when the language model
// output cannot be parsed or the call fails.
func DegradedReconciliation(code string) Reconciliation {
	return Reconciliation{
		Profile: Profile{},
		UnresolvedIssues: []UnresolvedIssue{{
			Code:     code,
			Field:    "profile",
			Message:  "reconciliation output could not be parsed",
			Severity: SeverityHigh,
		}},
		PendingQuestions: []PendingQuestion{},
		Confidence:       0.0,
		Outcome:          OutcomeDegraded,
	}
}
