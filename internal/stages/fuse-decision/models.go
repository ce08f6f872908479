// internal/stages/fuse-decision/models.go
package fusedecision

import "eligibility-workers/internal/models"

type Input struct {
	ApplicationID  string                  `json:"application_id"`
	Report         models.ValidationReport `json:"validation_report"`
	Reconciliation models.Reconciliation   `json:"reconciliation"`
	Score          models.MLScore          `json:"ml_score"`
	// PendingClarifications is how many questions are still awaiting an
	// answer in the queue.
	PendingClarifications int64 `json:"pending_clarifications"`
}

// Output always carries the raw ML view next to the fused result so an
// auditor can see what policy overrode.
type Output struct {
	FinalDecision      models.DecisionLabel `json:"final_decision"`
	MLDecision         models.DecisionLabel `json:"ml_decision"`
	MLProbability      float64              `json:"ml_probability"`
	PolicyReasons      []string             `json:"policy_reasons"`
	Rationale          string               `json:"human_readable_rationale"`
	AppealInstructions string               `json:"appeal_instructions"`
	Outcome            models.Outcome       `json:"outcome"`
}
