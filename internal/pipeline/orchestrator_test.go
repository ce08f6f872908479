// internal/pipeline/orchestrator_test.go
package pipeline

import (
	"context"
	"sync"
	"testing"

	commonerrors "eligibility-workers/internal/common/errors"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"
	extractdocuments "eligibility-workers/internal/stages/extract-documents"
	fusedecision "eligibility-workers/internal/stages/fuse-decision"
	reconcileprofile "eligibility-workers/internal/stages/reconcile-profile"
	scoreeligibility "eligibility-workers/internal/stages/score-eligibility"
	validateapplication "eligibility-workers/internal/stages/validate-application"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Stage Fakes
// ==========================

type fakeExtractor struct {
	calls int
	out   *extractdocuments.Output
	err   error
}

func (f *fakeExtractor) Execute(_ context.Context, _ *extractdocuments.Input) (*extractdocuments.Output, error) {
	f.calls++
	return f.out, f.err
}

type fakeValidator struct {
	calls     int
	lastInput *validateapplication.Input
	out       *validateapplication.Output
}

func (f *fakeValidator) Execute(_ context.Context, input *validateapplication.Input) (*validateapplication.Output, error) {
	f.calls++
	f.lastInput = input
	return f.out, nil
}

type fakeReconciler struct {
	calls     int
	lastInput *reconcileprofile.Input
	out       *reconcileprofile.Output
}

func (f *fakeReconciler) Execute(_ context.Context, input *reconcileprofile.Input) (*reconcileprofile.Output, error) {
	f.calls++
	f.lastInput = input
	return f.out, nil
}

type fakeScorer struct {
	calls int
	out   *scoreeligibility.Output
	err   error
}

func (f *fakeScorer) Execute(_ context.Context, _ *scoreeligibility.Input) (*scoreeligibility.Output, error) {
	f.calls++
	return f.out, f.err
}

type fakeClarStore struct {
	answers map[string]string
	pending int64
}

func (f *fakeClarStore) Answers(_ context.Context, _ string) (map[string]string, error) {
	return f.answers, nil
}

func (f *fakeClarStore) PendingCount(_ context.Context, _ string) (int64, error) {
	return f.pending, nil
}

type fakeAppStore struct {
	mu       sync.Mutex
	statuses []models.ApplicationState
}

func (f *fakeAppStore) Upsert(_ context.Context, _ *models.Application) error { return nil }

func (f *fakeAppStore) UpdateStatus(_ context.Context, _ string, state models.ApplicationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, state)
	return nil
}

type fakeExtractStore struct {
	stored   []models.ExtractResult
	upserted []models.ExtractResult
}

func (f *fakeExtractStore) UpsertAll(_ context.Context, extracts []models.ExtractResult) error {
	f.upserted = append(f.upserted, extracts...)
	return nil
}

func (f *fakeExtractStore) ListByEID(_ context.Context, _ string) ([]models.ExtractResult, error) {
	return f.stored, nil
}

// ==========================
// Fixtures
// ==========================

const testEID = "784-1990-1234567-9"

func testApplication() *models.Application {
	return &models.Application{
		ApplicationID: "app-1",
		Form: models.ApplicantForm{
			ApplicantEID:          testEID,
			FullName:              "Ahmed Al Mansoori",
			DeclaredMonthlyIncome: 8000,
			EmploymentStatus:      "employed",
			HouseholdSize:         3,
		},
	}
}

type fixture struct {
	orch       *Orchestrator
	extractor  *fakeExtractor
	validator  *fakeValidator
	reconciler *fakeReconciler
	scorer     *fakeScorer
	clar       *fakeClarStore
	apps       *fakeAppStore
	extracts   *fakeExtractStore
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		extractor: &fakeExtractor{out: &extractdocuments.Output{Extracts: []models.ExtractResult{}}},
		validator: &fakeValidator{out: &validateapplication.Output{
			Report: models.ValidationReport{NextAction: models.NextActionProceed},
		}},
		reconciler: &fakeReconciler{out: &reconcileprofile.Output{
			Reconciliation: models.Reconciliation{
				Profile:    models.Profile{},
				Confidence: 1.0,
				Outcome:    models.OutcomeOK,
			},
		}},
		scorer: &fakeScorer{out: &scoreeligibility.Output{
			Score: models.MLScore{
				Probability: 0.9,
				Decision:    models.DecisionApprove,
				Outcome:     models.OutcomeOK,
			},
		}},
		clar:     &fakeClarStore{answers: map[string]string{}},
		apps:     &fakeAppStore{},
		extracts: &fakeExtractStore{},
	}
	f.orch = NewOrchestrator(
		DefaultConfig(),
		f.extractor,
		f.validator,
		f.reconciler,
		f.scorer,
		fusedecision.NewHandler(fusedecision.DefaultConfig(), logger.NewTestLogger(t)),
		f.clar,
		f.apps,
		f.extracts,
		nil,
		logger.NewTestLogger(t),
	)
	return f
}

// ==========================
// Tests
// ==========================

func TestRun_HappyPath(t *testing.T) {
	f := newFixture(t)

	result, err := f.orch.Run(context.Background(), &RunRequest{
		Application: testApplication(),
	})

	require.NoError(t, err)
	assert.Equal(t, models.DecisionApprove, result.Decision.FinalDecision)
	assert.Equal(t, 1, f.validator.calls)
	assert.Equal(t, 1, f.reconciler.calls)
	assert.Equal(t, 1, f.scorer.calls)
	// No documents uploaded: stored extracts reused, extractor never called.
	assert.Equal(t, 0, f.extractor.calls)
	assert.Equal(t, []models.ApplicationState{models.StateApproved}, f.apps.statuses)
}

func TestRun_MissingIdentity_Rejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Run(context.Background(), &RunRequest{
		Application: &models.Application{ApplicationID: "app-1"},
	})

	require.Error(t, err)
	assert.Equal(t, 0, f.validator.calls)
}

func TestRun_SuppliedExtracts_SkipExtraction(t *testing.T) {
	f := newFixture(t)

	supplied := []models.ExtractResult{{
		ApplicantEID: testEID,
		DocID:        "doc-1",
		DocType:      models.DocTypeBank,
		Facts:        map[string]interface{}{"salary_inflow_mean_3m": 7000.0},
	}}

	result, err := f.orch.Run(context.Background(), &RunRequest{
		Application: testApplication(),
		Documents:   []models.DocumentRef{{DocID: "doc-1"}},
		Extracts:    supplied,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, f.extractor.calls)
	assert.Empty(t, f.extracts.upserted)
	assert.Equal(t, supplied, result.Extracts)
}

func TestRun_SuppliedReport_SkipsValidation(t *testing.T) {
	f := newFixture(t)

	report := models.ValidationReport{
		ApplicationID: "app-1",
		NextAction:    models.NextActionProceed,
	}

	result, err := f.orch.Run(context.Background(), &RunRequest{
		Application: testApplication(),
		Report:      &report,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, f.validator.calls)
	assert.Equal(t, report, result.Report)
}

func TestRun_ExtractIdentityMismatch_Aborts(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Run(context.Background(), &RunRequest{
		Application: testApplication(),
		Extracts: []models.ExtractResult{{
			ApplicantEID: "784-other",
			DocID:        "doc-1",
		}},
	})

	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeApplicantMismatch, commonerrors.CodeOf(err))
	// Nothing downstream ran, nothing was persisted.
	assert.Equal(t, 0, f.validator.calls)
	assert.Empty(t, f.apps.statuses)
}

func TestRun_ScorerHardFailure_NoPartialPersist(t *testing.T) {
	f := newFixture(t)
	f.scorer.err = commonerrors.NewScoreServiceUnavailableError(assert.AnError)
	f.scorer.out = nil

	_, err := f.orch.Run(context.Background(), &RunRequest{
		Application: testApplication(),
	})

	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeScoreServiceUnavailable, commonerrors.CodeOf(err))
	assert.Empty(t, f.apps.statuses)
}

func TestRun_AnswersFlowIntoStages(t *testing.T) {
	f := newFixture(t)
	f.clar.answers = map[string]string{"What is your income?": "9500"}

	_, err := f.orch.Run(context.Background(), &RunRequest{
		Application: testApplication(),
	})

	require.NoError(t, err)
	require.NotNil(t, f.validator.lastInput)
	assert.True(t, f.validator.lastInput.AnswersExist)
	require.NotNil(t, f.reconciler.lastInput)
	assert.Equal(t, f.clar.answers, f.reconciler.lastInput.Answers)
}

func TestRun_PendingClarification_HeldForReview(t *testing.T) {
	f := newFixture(t)
	f.clar.pending = 1
	f.validator.out = &validateapplication.Output{
		Report: models.ValidationReport{NextAction: models.NextActionAskUser},
	}

	result, err := f.orch.Run(context.Background(), &RunRequest{
		Application: testApplication(),
	})

	require.NoError(t, err)
	assert.Equal(t, models.DecisionReview, result.Decision.FinalDecision)
	assert.Equal(t, []models.ApplicationState{models.StateInReview}, f.apps.statuses)
}

func TestRun_HaltStillProducesFullRecord(t *testing.T) {
	f := newFixture(t)
	f.validator.out = &validateapplication.Output{
		Report: models.ValidationReport{
			Issues: []models.ValidationIssue{{
				Code:     "EID_EXPIRED",
				Severity: models.SeverityCritical,
			}},
			NextAction: models.NextActionHalt,
		},
	}

	result, err := f.orch.Run(context.Background(), &RunRequest{
		Application: testApplication(),
	})

	require.NoError(t, err)
	// Downstream stages still ran so the decision record is complete.
	assert.Equal(t, 1, f.reconciler.calls)
	assert.Equal(t, 1, f.scorer.calls)
	assert.Equal(t, models.DecisionSoftDecline, result.Decision.FinalDecision)
	assert.Equal(t, models.DecisionApprove, result.Decision.MLDecision)
	assert.Equal(t, []models.ApplicationState{models.StateRejected}, f.apps.statuses)
}

func TestRun_DocumentsTriggerExtractionAndPersist(t *testing.T) {
	f := newFixture(t)
	extracted := []models.ExtractResult{{
		ApplicantEID: testEID,
		DocID:        "doc-1",
		DocType:      models.DocTypeBank,
		Facts:        map[string]interface{}{"salary_inflow_mean_3m": 7000.0},
	}}
	f.extractor.out = &extractdocuments.Output{Extracts: extracted}

	result, err := f.orch.Run(context.Background(), &RunRequest{
		Application: testApplication(),
		Documents:   []models.DocumentRef{{DocID: "doc-1", ApplicantEID: testEID}},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.extractor.calls)
	assert.Equal(t, extracted, f.extracts.upserted)
	assert.Equal(t, extracted, result.Extracts)
}

func TestRun_SameApplicantRunsSerialize(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Run(context.Background(), &RunRequest{
				Application: testApplication(),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every run completed and persisted exactly one status transition.
	assert.Len(t, f.apps.statuses, 8)
}
