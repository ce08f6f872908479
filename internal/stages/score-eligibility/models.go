// internal/stages/score-eligibility/models.go
package scoreeligibility

import "eligibility-workers/internal/models"

// FeatureVector is the exact payload the score service expects. Field names
// are part of the model contract and must not drift.
type FeatureVector struct {
	EID                      string  `json:"eid"`
	DeclaredMonthlyIncome    float64 `json:"declared_monthly_income"`
	FamilySize               int     `json:"family_size"`
	EmploymentStatus         string  `json:"employment_status"`
	EmploymentIsUnemployed   int     `json:"employment_is_unemployed"`
	EmploymentIsSelfEmployed int     `json:"employment_is_self_employed"`
	AvgMonthlyIncome         float64 `json:"avg_monthly_income"`
	AvgMonthlyExpenses       float64 `json:"avg_monthly_expenses"`
	CreditScore              float64 `json:"credit_score"`
	TotalDebt                float64 `json:"total_debt"`
	AssetValue               float64 `json:"asset_value"`
	LiabilitiesValue         float64 `json:"liabilities_value"`

	// Derived features, computed locally so the wire payload and the model
	// input stay in lockstep.
	NetWorth             float64 `json:"net_worth"`
	DebtToIncomeRatio    float64 `json:"debt_to_income_ratio"`
	FinancialStressIndex float64 `json:"financial_stress_index"`
	IncomePerCapita      float64 `json:"income_per_capita"`
}

type Input struct {
	ApplicationID string               `json:"application_id"`
	Form          models.ApplicantForm `json:"form"`
	Profile       models.Profile       `json:"reconciled_profile"`
	// Features, when supplied by a re-entrant caller, bypasses the builder.
	Features *FeatureVector `json:"score_features,omitempty"`
}

type Output struct {
	Score    models.MLScore `json:"ml_score"`
	Features FeatureVector  `json:"score_features"`
}

// scoreResponse is the score service wire response. Metrics is optional and
// only consulted when the threshold pair is absent or out of band.
type scoreResponse struct {
	EID              string   `json:"eid"`
	Probability      float64  `json:"probability"`
	Decision         string   `json:"decision"`
	ApproveThreshold float64  `json:"approve_threshold"`
	ReviewThreshold  float64  `json:"review_threshold"`
	Metrics          *Metrics `json:"metrics,omitempty"`
}
