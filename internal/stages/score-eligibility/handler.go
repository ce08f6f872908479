// internal/stages/score-eligibility/handler.go
package scoreeligibility

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	commonerrors "eligibility-workers/internal/common/errors"
	"eligibility-workers/internal/common/httpclient"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"
)

const (
	StageName = "score-eligibility"
)

type Handler struct {
	config *Config
	client *httpclient.Client
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Handler{
		config: config,
		client: httpclient.NewClient(config.Timeout),
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

// Execute builds the feature vector, calls the score service once and
// classifies the probability locally against the resolved thresholds. An
// unreachable service fails the run; only a received-but-unusable response
// degrades to a 0.5 REVIEW.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	features := input.Features
	if features == nil {
		fv := h.BuildFeatures(input.Form, input.Profile)
		features = &fv
	}

	resp, err := h.callScoreService(ctx, features)
	if err != nil {
		h.logger.Error("score service call failed", map[string]interface{}{
			"applicationId": input.ApplicationID,
			"error":         err.Error(),
		})
		return nil, err
	}

	thresholds, ok := h.resolveThresholds(resp)
	if !ok || resp.Probability < 0 || resp.Probability > 1 {
		h.logger.Warn("unusable score response, degrading to review", map[string]interface{}{
			"applicationId": input.ApplicationID,
			"probability":   resp.Probability,
			"approveAt":     resp.ApproveThreshold,
			"reviewAt":      resp.ReviewThreshold,
		})
		return &Output{
			Score: models.MLScore{
				Probability:      0.5,
				Decision:         models.DecisionReview,
				ApproveThreshold: 0.5,
				ReviewThreshold:  0.5,
				Outcome:          models.OutcomeDegraded,
			},
			Features: *features,
		}, nil
	}

	// The class is re-derived here so boundary semantics (inclusive at both
	// cuts) are owned by this adapter, not the remote service.
	decision := models.Classify(resp.Probability, thresholds.Approve, thresholds.Review)

	h.logger.Info("application scored", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"probability":   resp.Probability,
		"decision":      string(decision),
	})

	return &Output{
		Score: models.MLScore{
			Probability:      resp.Probability,
			Decision:         decision,
			ApproveThreshold: thresholds.Approve,
			ReviewThreshold:  thresholds.Review,
			Outcome:          models.OutcomeOK,
		},
		Features: *features,
	}, nil
}

// resolveThresholds returns the decision bands to classify against. The
// response's own pair wins when it is sane (0 < review <= approve <= 1).
// Failing that, a published precision curve re-derives the pair via
// PickThresholds. A response with neither is unusable.
func (h *Handler) resolveThresholds(resp *scoreResponse) (Thresholds, bool) {
	if resp.ReviewThreshold > 0 && resp.ReviewThreshold <= resp.ApproveThreshold && resp.ApproveThreshold <= 1 {
		return Thresholds{Approve: resp.ApproveThreshold, Review: resp.ReviewThreshold}, true
	}
	if resp.Metrics != nil && len(resp.Metrics.Thresholds) > 0 {
		return PickThresholds(*resp.Metrics, h.config.TargetPrecision), true
	}
	return Thresholds{}, false
}

// BuildFeatures maps the reconciled profile and the form onto the model's
// feature layout. Profile values win over declared form values; missing
// numbers fall back to neutral defaults.
func (h *Handler) BuildFeatures(form models.ApplicantForm, profile models.Profile) FeatureVector {
	employment := strings.ToLower(form.EmploymentStatus)

	declaredIncome := profileFloat(profile, "declared_monthly_income", form.DeclaredMonthlyIncome)
	familySize := form.HouseholdSize
	if familySize < 1 {
		familySize = 1
	}

	fv := FeatureVector{
		EID:                   form.ApplicantEID,
		DeclaredMonthlyIncome: declaredIncome,
		FamilySize:            familySize,
		EmploymentStatus:      form.EmploymentStatus,
		AvgMonthlyIncome:      profileFloat(profile, "observed_monthly_income", 0.0),
		AvgMonthlyExpenses:    profileFloat(profile, "observed_monthly_expenses", 0.0),
		CreditScore:           profileFloat(profile, "credit_score_estimate", h.config.DefaultCreditScore),
		TotalDebt:             profileFloat(profile, "total_debt_estimate", 0.0),
		AssetValue:            profileFloat(profile, "asset_value_estimate", 0.0),
		LiabilitiesValue:      profileFloat(profile, "liabilities_value_estimate", 0.0),
	}
	if employment == "unemployed" {
		fv.EmploymentIsUnemployed = 1
	}
	if employment == "self-employed" {
		fv.EmploymentIsSelfEmployed = 1
	}

	fv.NetWorth = fv.AssetValue - fv.LiabilitiesValue
	fv.DebtToIncomeRatio = fv.TotalDebt / maxf(fv.AvgMonthlyIncome, 1.0)
	fv.FinancialStressIndex = (fv.LiabilitiesValue + fv.AvgMonthlyExpenses) / maxf(fv.AvgMonthlyIncome, 1.0)
	fv.IncomePerCapita = fv.AvgMonthlyIncome / float64(maxi(fv.FamilySize, 1))
	return fv
}

func (h *Handler) callScoreService(ctx context.Context, features *FeatureVector) (*scoreResponse, error) {
	body, err := json.Marshal(features)
	if err != nil {
		return nil, commonerrors.NewScoreServiceUnavailableError(err)
	}

	req, err := http.NewRequest(http.MethodPost, h.config.BaseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, commonerrors.NewScoreServiceUnavailableError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.DoWithContext(ctx, req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, commonerrors.NewScoreTimeoutError()
		}
		return nil, commonerrors.NewScoreServiceUnavailableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, commonerrors.NewScoreServiceUnavailableError(
			fmt.Errorf("score service returned %d: %s", resp.StatusCode, string(raw)))
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, commonerrors.NewScoreServiceUnavailableError(err)
	}
	return &out, nil
}

func profileFloat(profile models.Profile, key string, def float64) float64 {
	fv, ok := profile[key]
	if !ok || fv.Value == nil {
		return def
	}
	return models.CoerceFloat(fv.Value, def)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}
