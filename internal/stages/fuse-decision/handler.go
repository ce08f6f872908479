// internal/stages/fuse-decision/handler.go
package fusedecision

import (
	"context"
	"fmt"

	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"
)

const (
	StageName = "fuse-decision"
)

const (
	ReasonValidationFailure    = "validation_failure"
	ReasonPendingClarification = "pending_clarification"
	ReasonMLClassification     = "ml_classification"
	ReasonDegradedScore        = "score_degraded"
	ReasonDegradedReconcile    = "reconciliation_degraded"
)

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

// Execute overlays policy on the ML classification. Hard validation failures
// decline outright no matter how strong the score; an open clarification
// holds the case in review; otherwise the ML class stands.
func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	out := &Output{
		MLDecision:         input.Score.Decision,
		MLProbability:      input.Score.Probability,
		AppealInstructions: h.config.AppealInstructions,
		Outcome:            models.OutcomeOK,
	}
	if input.Score.Outcome == models.OutcomeDegraded || input.Reconciliation.Outcome == models.OutcomeDegraded {
		out.Outcome = models.OutcomeDegraded
	}

	switch {
	case input.Report.NextAction == models.NextActionHalt || hasCritical(input):
		out.FinalDecision = models.DecisionSoftDecline
		out.PolicyReasons = []string{ReasonValidationFailure}
		out.Rationale = "The application cannot proceed because a blocking validation finding remains."

	case input.Report.NextAction == models.NextActionAskUser && input.PendingClarifications > 0:
		out.FinalDecision = models.DecisionReview
		out.PolicyReasons = []string{ReasonPendingClarification}
		out.Rationale = "A clarification question is still awaiting your answer; the application is held for review."

	default:
		out.FinalDecision = input.Score.Decision
		out.PolicyReasons = []string{ReasonMLClassification}
		out.Rationale = fmt.Sprintf(
			"Eligibility was assessed from the reconciled financial profile (probability %.2f).",
			input.Score.Probability)
	}

	if input.Score.Outcome == models.OutcomeDegraded {
		out.PolicyReasons = append(out.PolicyReasons, ReasonDegradedScore)
	}
	if input.Reconciliation.Outcome == models.OutcomeDegraded {
		out.PolicyReasons = append(out.PolicyReasons, ReasonDegradedReconcile)
	}

	h.logger.Info("decision fused", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"finalDecision": string(out.FinalDecision),
		"mlDecision":    string(out.MLDecision),
		"reasons":       out.PolicyReasons,
	})
	return out, nil
}

// hasCritical reports whether any critical finding survived validation or
// reconciliation.
func hasCritical(input *Input) bool {
	for _, iss := range input.Report.Issues {
		if iss.Severity == models.SeverityCritical {
			return true
		}
	}
	for _, iss := range input.Reconciliation.UnresolvedIssues {
		if iss.Severity == models.SeverityCritical {
			return true
		}
	}
	return false
}
