// internal/models/validation.go
package models

// Severity ranks how serious a validation issue is. Ordering matters for
// MaxSeverity and the next-action policy.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric ordering of a severity; unknown values rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// NextAction tells the orchestrator what to do after validation.
type NextAction string

const (
	NextActionProceed NextAction = "proceed"
	NextActionAskUser NextAction = "ask_user"
	NextActionHalt    NextAction = "halt"
	// NextActionAutoFix is reserved for rules able to repair data in place.
	// No current rule emits it.
	NextActionAutoFix NextAction = "auto_fix"
)

// ValidationIssue is one rule finding.
type ValidationIssue struct {
	Code     string   `json:"code"`
	Field    string   `json:"field"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	// Sources names which inputs contributed (form, bank, eid, credit).
	Sources []string `json:"sources,omitempty"`
	// SuggestedValue is the documentary value the rule would substitute,
	// when one exists.
	SuggestedValue interface{} `json:"suggested_value,omitempty"`
	Confidence     float64     `json:"confidence,omitempty"`
}

// ValidationReport is the full output of a validation pass.
type ValidationReport struct {
	ApplicationID string            `json:"application_id"`
	Issues        []ValidationIssue `json:"issues"`
	NextAction    NextAction        `json:"next_action"`
}

// MaxSeverity returns the highest severity among issues, "" when empty.
func MaxSeverity(issues []ValidationIssue) Severity {
	var max Severity
	for _, iss := range issues {
		if iss.Severity.Rank() > max.Rank() {
			max = iss.Severity
		}
	}
	return max
}

// NextActionFor maps issue severities to the orchestrator action:
// any critical halts, any high or medium asks the user, otherwise proceed.
func NextActionFor(issues []ValidationIssue) NextAction {
	max := MaxSeverity(issues)
	switch max {
	case SeverityCritical:
		return NextActionHalt
	case SeverityHigh, SeverityMedium:
		return NextActionAskUser
	default:
		return NextActionProceed
	}
}
