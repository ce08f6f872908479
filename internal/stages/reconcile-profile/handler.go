// internal/stages/reconcile-profile/handler.go
package reconcileprofile

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"
)

const (
	StageName = "reconcile-profile"
)

// QuestionSink receives newly raised clarification questions. The pipeline
// wires the clarification queue here.
type QuestionSink interface {
	Queue(ctx context.Context, applicantEID string, q models.PendingQuestion) error
}

type Handler struct {
	config *Config
	llm    LLMClient
	sink   QuestionSink
	logger logger.Logger
}

func NewHandler(config *Config, llm LLMClient, sink QuestionSink, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	if llm == nil && config.LLMBaseURL != "" {
		llm = NewRuntimeClient(config.LLMBaseURL, config.LLMAPIKey, config.LLMTimeout)
	}
	return &Handler{
		config: config,
		llm:    llm,
		sink:   sink,
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

// fieldConflict describes one validation finding that maps onto a profile
// field with a competing documentary value.
type fieldConflict struct {
	field     string
	issue     models.ValidationIssue
	question  string
	isNumeric bool
}

// Execute merges the declared form, the extracted facts and any recorded
// clarification answers into one canonical profile. Fields that stay below
// the confidence threshold become unresolved issues, and at most
// MaxQuestionsPerRun new questions are raised instead of guessing.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	profile := h.baseProfile(input)

	var unresolved []models.UnresolvedIssue
	var pending []models.PendingQuestion
	autoResolved := 0

	for _, conflict := range h.conflicts(input) {
		if answer, ok := input.Answers[conflict.question]; ok {
			h.applyAnswer(profile, conflict, answer)
			continue
		}

		iss := conflict.issue
		if iss.SuggestedValue != nil && iss.Confidence >= h.config.ConfidenceThreshold {
			profile[conflict.field] = models.FieldValue{
				Value:      iss.SuggestedValue,
				Source:     strings.Join(iss.Sources, "+"),
				Confidence: iss.Confidence,
			}
			autoResolved++
			continue
		}

		unresolved = append(unresolved, models.UnresolvedIssue{
			Code:     iss.Code,
			Field:    conflict.field,
			Message:  iss.Message,
			Severity: iss.Severity,
		})
		if len(pending) < h.config.MaxQuestionsPerRun {
			pending = append(pending, models.PendingQuestion{
				Field:    conflict.field,
				Question: conflict.question,
			})
		}
	}

	// Findings without a documentary substitute (expired identity, checksum
	// failures, margin anomalies) carry through so the decision fuser can see
	// them. Low severity noise is dropped here.
	for _, iss := range input.Report.Issues {
		if fieldForIssue(iss.Code) != "" {
			continue
		}
		if iss.Severity == models.SeverityHigh || iss.Severity == models.SeverityCritical {
			unresolved = append(unresolved, models.UnresolvedIssue{
				Code:     iss.Code,
				Field:    iss.Field,
				Message:  iss.Message,
				Severity: iss.Severity,
			})
		}
	}

	confidence := resolutionConfidence(len(unresolved), autoResolved)

	rec := models.Reconciliation{
		Profile:          profile,
		UnresolvedIssues: unresolved,
		PendingQuestions: pending,
		Confidence:       confidence,
		Outcome:          models.OutcomeOK,
	}

	if h.llm != nil && len(unresolved) > 0 {
		rec = h.refine(ctx, input, rec)
	}

	if rec.UnresolvedIssues == nil {
		rec.UnresolvedIssues = []models.UnresolvedIssue{}
	}
	if rec.PendingQuestions == nil {
		rec.PendingQuestions = []models.PendingQuestion{}
	}

	if h.sink != nil {
		for _, q := range rec.PendingQuestions {
			if err := h.sink.Queue(ctx, input.ApplicantEID, q); err != nil {
				h.logger.Error("failed to queue clarification", map[string]interface{}{
					"applicantEid": input.ApplicantEID,
					"field":        q.Field,
					"error":        err.Error(),
				})
				return nil, err
			}
		}
	}

	h.logger.Info("reconciliation completed", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"unresolved":    len(rec.UnresolvedIssues),
		"questions":     len(rec.PendingQuestions),
		"confidence":    rec.Confidence,
		"outcome":       string(rec.Outcome),
	})

	return &Output{Reconciliation: rec}, nil
}

// baseProfile seeds the canonical profile from the declared form and the
// extracted facts, provenance recorded per field.
func (h *Handler) baseProfile(input *Input) models.Profile {
	profile := models.Profile{
		"applicant_eid": {Value: input.ApplicantEID, Source: "form", Confidence: 1.0},
	}

	form := input.Form
	setIf := func(key string, value interface{}, source string, conf float64) {
		switch v := value.(type) {
		case string:
			if v == "" {
				return
			}
		case float64:
			if v == 0 {
				return
			}
		case int:
			if v == 0 {
				return
			}
		}
		profile[key] = models.FieldValue{Value: value, Source: source, Confidence: conf}
	}

	setIf("full_name", form.FullName, "form", 0.6)
	setIf("dob", form.DOB, "form", 0.6)
	setIf("address", form.Address, "form", 0.6)
	setIf("declared_monthly_income", form.DeclaredMonthlyIncome, "form", 0.6)
	setIf("household_size", form.HouseholdSize, "form", 0.8)
	setIf("employment_status", form.EmploymentStatus, "form", 0.7)

	if f, ok := input.FactsByDoc[models.DocTypeBank]; ok && f.Bank != nil {
		setIf("observed_monthly_income", f.Bank.SalaryInflowMean3M, "bank", 0.9)
		setIf("observed_monthly_expenses", f.Bank.MonthlyOutflowMean3M, "bank", 0.9)
	}
	if f, ok := input.FactsByDoc[models.DocTypeCreditReport]; ok && f.Credit != nil {
		setIf("credit_score_estimate", f.Credit.Score, "credit", 0.85)
		setIf("total_debt_estimate", f.Credit.TotalDebt, "credit", 0.85)
	}
	if f, ok := input.FactsByDoc[models.DocTypeAssetsLiabilities]; ok && f.AssetsLiabilities != nil {
		setIf("asset_value_estimate", f.AssetsLiabilities.TotalAssetsValue, "assets_liabilities", 0.8)
		setIf("liabilities_value_estimate", f.AssetsLiabilities.TotalLiabilitiesValue, "assets_liabilities", 0.8)
	}
	return profile
}

// conflicts maps validation findings onto the profile fields they dispute.
// Question text is deterministic so a recorded answer keys the same conflict
// on the next run.
func (h *Handler) conflicts(input *Input) []fieldConflict {
	var out []fieldConflict
	for _, iss := range input.Report.Issues {
		field := fieldForIssue(iss.Code)
		if field == "" {
			continue
		}
		out = append(out, fieldConflict{
			field:     field,
			issue:     iss,
			question:  questionFor(iss, input.Form),
			isNumeric: field == "declared_monthly_income",
		})
	}
	return out
}

func fieldForIssue(code string) string {
	switch code {
	case "INCOME_MISMATCH":
		return "declared_monthly_income"
	case "NAME_MISMATCH":
		return "full_name"
	case "DOB_MISMATCH":
		return "dob"
	case "ADDRESS_MISMATCH":
		return "address"
	default:
		return ""
	}
}

func questionFor(iss models.ValidationIssue, form models.ApplicantForm) string {
	switch iss.Code {
	case "INCOME_MISMATCH":
		return fmt.Sprintf(
			"Your declared monthly income (%s) does not match your bank statements (%v). What is your actual monthly income?",
			strconv.FormatFloat(form.DeclaredMonthlyIncome, 'f', -1, 64), iss.SuggestedValue)
	case "NAME_MISMATCH":
		return fmt.Sprintf("The name on your documents (%v) differs from your application (%s). Which is correct?",
			iss.SuggestedValue, form.FullName)
	case "DOB_MISMATCH":
		return fmt.Sprintf("Your date of birth on file (%s) differs from your documents (%v). Please confirm your date of birth.",
			form.DOB, iss.SuggestedValue)
	case "ADDRESS_MISMATCH":
		return "Your address differs across your documents. What is your current address?"
	default:
		return fmt.Sprintf("Please clarify the value of %s.", iss.Field)
	}
}

func (h *Handler) applyAnswer(profile models.Profile, conflict fieldConflict, answer string) {
	value := interface{}(strings.TrimSpace(answer))
	if conflict.isNumeric {
		if parsed := models.CoerceFloat(answer, -1); parsed >= 0 {
			value = parsed
		} else if existing, ok := profile[conflict.field]; ok {
			// Unparseable answer confirms the existing value.
			value = existing.Value
		}
	}
	profile[conflict.field] = models.FieldValue{
		Value:      value,
		Source:     "clarification",
		Confidence: 0.95,
	}
}

// refine hands the deterministic result to the model runtime for another
// pass. A response that fails the schema degrades the whole stage to the
// fixed fallback object.
func (h *Handler) refine(ctx context.Context, input *Input, rec models.Reconciliation) models.Reconciliation {
	prompt := h.buildPrompt(input, rec)
	raw, err := h.llm.Generate(ctx, reconcileSystemPrompt, prompt)
	if err != nil {
		h.logger.Warn("llm refinement failed, using fallback", map[string]interface{}{
			"applicationId": input.ApplicationID,
			"error":         err.Error(),
		})
		return models.DegradedReconciliation("LLM_PARSE_ERROR")
	}

	parsed, err := parseReconciliation(raw)
	if err != nil {
		h.logger.Warn("llm output rejected, using fallback", map[string]interface{}{
			"applicationId": input.ApplicationID,
			"error":         err.Error(),
		})
		return models.DegradedReconciliation("LLM_PARSE_ERROR")
	}

	return h.mergeRefinement(rec, parsed)
}

const reconcileSystemPrompt = "You consolidate conflicting applicant evidence into a single canonical profile. " +
	"Only resolve a field when the evidence supports it; otherwise leave it unresolved. " +
	"Respond with strict JSON matching the given schema."

func (h *Handler) buildPrompt(input *Input, rec models.Reconciliation) string {
	var b strings.Builder
	b.WriteString("Application form:\n")
	writeJSON(&b, input.Form)
	b.WriteString("\nValidation report:\n")
	writeJSON(&b, input.Report)
	b.WriteString("\nDeterministic reconciliation so far:\n")
	writeJSON(&b, rec)
	if len(input.Answers) > 0 {
		b.WriteString("\nClarification answers:\n")
		writeJSON(&b, input.Answers)
	}
	b.WriteString("\nResolve the remaining unresolved fields where the evidence allows.")
	return b.String()
}

func writeJSON(b *strings.Builder, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		b.WriteString("{}")
		return
	}
	b.Write(raw)
}

// mergeRefinement adopts model-resolved values for fields the deterministic
// pass left unresolved. Resolved fields are never overwritten.
func (h *Handler) mergeRefinement(rec models.Reconciliation, parsed map[string]interface{}) models.Reconciliation {
	llmProfile, _ := parsed["reconciled_profile"].(map[string]interface{})

	stillUnresolved := rec.UnresolvedIssues[:0:0]
	for _, iss := range rec.UnresolvedIssues {
		if v, ok := llmProfile[iss.Field]; ok && iss.Field != "" {
			rec.Profile[iss.Field] = models.FieldValue{
				Value:      v,
				Source:     "llm",
				Confidence: h.config.ConfidenceThreshold,
			}
			continue
		}
		stillUnresolved = append(stillUnresolved, iss)
	}
	rec.UnresolvedIssues = stillUnresolved

	// Questions about fields the model just resolved are withdrawn.
	stillPending := rec.PendingQuestions[:0:0]
	for _, q := range rec.PendingQuestions {
		if _, ok := llmProfile[q.Field]; ok {
			continue
		}
		stillPending = append(stillPending, q)
	}
	rec.PendingQuestions = stillPending

	if conf, ok := parsed["confidence"].(float64); ok {
		rec.Confidence = conf
	}
	return rec
}

func resolutionConfidence(unresolved, autoResolved int) float64 {
	conf := 1.0 - 0.2*float64(unresolved) - 0.05*float64(autoResolved)
	if conf < 0 {
		return 0
	}
	return conf
}
