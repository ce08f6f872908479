// internal/stages/validate-application/handler.go
package validateapplication

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"
)

const (
	StageName = "validate-application"
)

var (
	ibanRegex    = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{11,30}$`)
	nonDigit     = regexp.MustCompile(`\D`)
	nonAlpha     = regexp.MustCompile(`[^A-Za-z\s]`)
	nonWordChars = regexp.MustCompile(`\W+`)
)

type Handler struct {
	config *Config
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
		now:    time.Now,
	}
}

// Execute runs every rule over the form and extracted facts and decides the
// next action. Rules are pure, deterministic and never fail the stage.
func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	var issues []models.ValidationIssue

	form := input.Form
	var bank *models.BankFacts
	var eid *models.EIDFacts
	if f, ok := input.FactsByDoc[models.DocTypeBank]; ok {
		bank = f.Bank
	}
	if f, ok := input.FactsByDoc[models.DocTypeEID]; ok {
		eid = f.EID
	}

	issues = append(issues, h.checkIncome(form, bank)...)
	issues = append(issues, h.checkExpiry(eid)...)
	issues = append(issues, h.checkFormats(form)...)
	issues = append(issues, h.checkConsistency(form, bank, eid)...)

	nextAction := models.NextActionFor(issues)

	// Once the applicant has answered a clarification, repeating ask_user for
	// the same non-critical findings would loop forever. Critical still halts.
	if input.AnswersExist && nextAction == models.NextActionAskUser {
		nextAction = models.NextActionProceed
	}

	h.logger.Info("validation completed", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"issueCount":    len(issues),
		"nextAction":    string(nextAction),
	})

	if issues == nil {
		issues = []models.ValidationIssue{}
	}
	return &Output{
		Report: models.ValidationReport{
			ApplicationID: input.ApplicationID,
			Issues:        issues,
			NextAction:    nextAction,
		},
	}, nil
}

// ==========================
// Income rules
// ==========================

func (h *Handler) checkIncome(form models.ApplicantForm, bank *models.BankFacts) []models.ValidationIssue {
	var issues []models.ValidationIssue
	if bank == nil {
		return issues
	}

	declared := form.DeclaredMonthlyIncome
	observed := bank.SalaryInflowMean3M
	outflow := bank.MonthlyOutflowMean3M

	if declared > 0 && observed > 0 {
		diff := pctDiff(declared, observed)
		if diff > h.config.IncomeMismatchFlagAt {
			sev := models.SeverityMedium
			confidence := 0.8
			if diff > h.config.IncomeMismatchHighAt {
				sev = models.SeverityHigh
				confidence = 0.9
			}
			issues = append(issues, models.ValidationIssue{
				Code:           "INCOME_MISMATCH",
				Field:          "declared_monthly_income",
				Severity:       sev,
				Message:        fmt.Sprintf("Declared monthly income differs from observed bank inflow by %d%%.", int(diff*100)),
				Sources:        []string{"form", "bank"},
				SuggestedValue: observed,
				Confidence:     confidence,
			})
		}
	}

	if observed > 0 {
		margin := (observed - outflow) / max1(observed)
		if margin < -0.05 {
			issues = append(issues, models.ValidationIssue{
				Code:       "INCOME_NEGATIVE_MARGIN",
				Field:      "observed_margin",
				Severity:   models.SeverityHigh,
				Message:    "Observed expenses exceed observed income (negative margin).",
				Sources:    []string{"bank"},
				Confidence: 0.85,
			})
		} else if margin < 0.05 {
			issues = append(issues, models.ValidationIssue{
				Code:       "INCOME_TIGHT_MARGIN",
				Field:      "observed_margin",
				Severity:   models.SeverityLow,
				Message:    "Observed expenses nearly equal observed income (tight margin).",
				Sources:    []string{"bank"},
				Confidence: 0.7,
			})
		}
	}
	return issues
}

// ==========================
// Identity document expiry
// ==========================

func (h *Handler) checkExpiry(eid *models.EIDFacts) []models.ValidationIssue {
	var issues []models.ValidationIssue
	if eid == nil {
		return issues
	}

	daysLeft := eid.DaysRemaining
	if daysLeft == nil {
		if d, ok := h.daysUntil(eid.ExpiryDate); ok {
			daysLeft = &d
		}
	}
	if daysLeft == nil {
		return issues
	}

	switch {
	case *daysLeft < 0:
		issues = append(issues, models.ValidationIssue{
			Code:       "EID_EXPIRED",
			Field:      "eid.expiry",
			Severity:   models.SeverityCritical,
			Message:    "Residency/EID is expired.",
			Sources:    []string{"eid"},
			Confidence: 0.95,
		})
	case *daysLeft <= h.config.ExpiryMediumDays:
		sev := models.SeverityMedium
		confidence := 0.8
		if *daysLeft <= h.config.ExpiryHighDays {
			sev = models.SeverityHigh
			confidence = 0.9
		}
		issues = append(issues, models.ValidationIssue{
			Code:       "EID_EXPIRING_SOON",
			Field:      "eid.expiry",
			Severity:   sev,
			Message:    fmt.Sprintf("Residency/EID will expire in %d days.", *daysLeft),
			Sources:    []string{"eid"},
			Confidence: confidence,
		})
	}
	return issues
}

func (h *Handler) daysUntil(isoDate string) (int, bool) {
	if isoDate == "" {
		return 0, false
	}
	var expiry time.Time
	var err error
	if strings.Contains(isoDate, "T") {
		expiry, err = time.Parse(time.RFC3339, isoDate)
		if err != nil {
			expiry, err = time.Parse("2006-01-02T15:04:05", isoDate)
		}
	} else {
		expiry, err = time.Parse("2006-01-02", isoDate)
	}
	if err != nil {
		return 0, false
	}
	today := h.now().UTC().Truncate(24 * time.Hour)
	expiryDay := expiry.UTC().Truncate(24 * time.Hour)
	return int(expiryDay.Sub(today).Hours() / 24), true
}

// ==========================
// Format rules
// ==========================

func (h *Handler) checkFormats(form models.ApplicantForm) []models.ValidationIssue {
	var issues []models.ValidationIssue

	if iban := strings.TrimSpace(form.IBAN); iban != "" && !looksLikeIBAN(iban) {
		issues = append(issues, models.ValidationIssue{
			Code:       "IBAN_FORMAT_INVALID",
			Field:      "iban",
			Severity:   models.SeverityMedium,
			Message:    "IBAN does not match expected format.",
			Sources:    []string{"form"},
			Confidence: 0.85,
		})
	}

	if form.EmiratesID != "" && !eidChecksumOK(form.EmiratesID) {
		issues = append(issues, models.ValidationIssue{
			Code:       "EID_CHECKSUM_FAIL",
			Field:      "emirates_id",
			Severity:   models.SeverityHigh,
			Message:    "EID checksum validation failed.",
			Sources:    []string{"form"},
			Confidence: 0.9,
		})
	}
	return issues
}

func looksLikeIBAN(iban string) bool {
	s := strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
	return ibanRegex.MatchString(s)
}

// eidChecksumOK runs a Luhn mod-10 over the digits of the identity number.
// Anything shorter than 9 digits fails outright.
func eidChecksumOK(eid string) bool {
	digits := nonDigit.ReplaceAllString(eid, "")
	if len(digits) < 9 {
		return false
	}
	total := 0
	parity := (len(digits) - 1) % 2
	for i := 0; i < len(digits); i++ {
		d := int(digits[i] - '0')
		if i%2 == parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		total += d
	}
	return total%10 == 0
}

// ==========================
// Cross-document consistency
// ==========================

func (h *Handler) checkConsistency(form models.ApplicantForm, bank *models.BankFacts, eid *models.EIDFacts) []models.ValidationIssue {
	var issues []models.ValidationIssue

	docName := ""
	if eid != nil && eid.FullName != "" {
		docName = eid.FullName
	} else if bank != nil && bank.AccountHolderName != "" {
		docName = bank.AccountHolderName
	}
	if form.FullName != "" && docName != "" {
		sim := nameSimilarity(form.FullName, docName)
		if sim < 0.6 {
			sev := models.SeverityMedium
			if sim < 0.3 {
				sev = models.SeverityHigh
			}
			issues = append(issues, models.ValidationIssue{
				Code:           "NAME_MISMATCH",
				Field:          "full_name",
				Severity:       sev,
				Message:        fmt.Sprintf("Name mismatch across documents (similarity=%.2f).", sim),
				Sources:        []string{"form", "eid", "bank"},
				SuggestedValue: docName,
				Confidence:     0.85,
			})
		}
	}

	docDOB := ""
	if eid != nil {
		docDOB = eid.DOB
	}
	if form.DOB != "" && docDOB != "" && form.DOB != docDOB {
		issues = append(issues, models.ValidationIssue{
			Code:           "DOB_MISMATCH",
			Field:          "dob",
			Severity:       models.SeverityHigh,
			Message:        "Date of birth differs across documents.",
			Sources:        []string{"form", "eid"},
			SuggestedValue: docDOB,
			Confidence:     0.9,
		})
	}

	docAddress := ""
	if bank != nil && bank.Address != "" {
		docAddress = bank.Address
	} else if eid != nil && eid.Address != "" {
		docAddress = eid.Address
	}
	if form.Address != "" && docAddress != "" {
		fNorm := normalizeAddress(form.Address)
		dNorm := normalizeAddress(docAddress)
		if fNorm != "" && dNorm != "" && fNorm != dNorm {
			issues = append(issues, models.ValidationIssue{
				Code:           "ADDRESS_MISMATCH",
				Field:          "address",
				Severity:       models.SeverityMedium,
				Message:        "Address differs across documents.",
				Sources:        []string{"form", "eid", "bank"},
				SuggestedValue: docAddress,
				Confidence:     0.75,
			})
		}
	}
	return issues
}

// nameSimilarity is token Jaccard over lowercase alpha tokens. Handles word
// order and extra middle names.
func nameSimilarity(a, b string) float64 {
	ta := nameTokens(a)
	tb := nameTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	inter := 0
	union := len(tb)
	for tok := range ta {
		if tb[tok] {
			inter++
		} else {
			union++
		}
	}
	if union < 1 {
		union = 1
	}
	return float64(inter) / float64(union)
}

func nameTokens(s string) map[string]bool {
	cleaned := strings.ToLower(nonAlpha.ReplaceAllString(s, " "))
	tokens := map[string]bool{}
	for _, tok := range strings.Fields(cleaned) {
		tokens[tok] = true
	}
	return tokens
}

func normalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(nonWordChars.ReplaceAllString(s, " ")))
}

// pctDiff is the symmetric percentage difference, 0 when equal.
func pctDiff(a, b float64) float64 {
	denom := max1((abs(a) + abs(b)) / 2.0)
	return abs(a-b) / denom
}

func max1(x float64) float64 {
	if x < 1.0 {
		return 1.0
	}
	return x
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
