// internal/models/decision.go
package models

// DecisionLabel is the final disposition of an application run.
type DecisionLabel string

const (
	DecisionApprove     DecisionLabel = "APPROVE"
	DecisionReview      DecisionLabel = "REVIEW"
	DecisionSoftDecline DecisionLabel = "SOFT_DECLINE"
)

// MLScore is the scoring stage output: an approval probability classified
// against the active threshold pair. Boundaries are inclusive, a probability
// exactly at a threshold takes the higher band.
type MLScore struct {
	Probability      float64       `json:"probability"`
	Decision         DecisionLabel `json:"decision"`
	ApproveThreshold float64       `json:"approve_threshold"`
	ReviewThreshold  float64       `json:"review_threshold"`
	Outcome          Outcome       `json:"outcome"`
}

// Classify maps a probability onto a decision band.
func Classify(p, approveAt, reviewAt float64) DecisionLabel {
	switch {
	case p >= approveAt:
		return DecisionApprove
	case p >= reviewAt:
		return DecisionReview
	default:
		return DecisionSoftDecline
	}
}

// Decision is the fused result of a pipeline run.
type Decision struct {
	ApplicationID string        `json:"application_id"`
	Label         DecisionLabel `json:"decision"`
	Reason        string        `json:"reason"`
	Probability   float64       `json:"probability"`
	Outcome       Outcome       `json:"outcome"`
}
