// internal/pipeline/orchestrator.go

// Package pipeline sequences the eligibility stages for one applicant:
// extraction, validation, reconciliation, scoring, decision fusion. Stages
// run strictly in order; degraded stage results flow through, hard external
// failures abort the run.
package pipeline

import (
	"context"
	"sync"
	"time"

	commonerrors "eligibility-workers/internal/common/errors"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/common/metrics"
	"eligibility-workers/internal/common/observability"
	"eligibility-workers/internal/models"
	extractdocuments "eligibility-workers/internal/stages/extract-documents"
	fusedecision "eligibility-workers/internal/stages/fuse-decision"
	reconcileprofile "eligibility-workers/internal/stages/reconcile-profile"
	scoreeligibility "eligibility-workers/internal/stages/score-eligibility"
	validateapplication "eligibility-workers/internal/stages/validate-application"
)

// Stage handler interfaces, satisfied by the concrete handlers and by test
// fakes.
type Extractor interface {
	Execute(ctx context.Context, input *extractdocuments.Input) (*extractdocuments.Output, error)
}

type Validator interface {
	Execute(ctx context.Context, input *validateapplication.Input) (*validateapplication.Output, error)
}

type Reconciler interface {
	Execute(ctx context.Context, input *reconcileprofile.Input) (*reconcileprofile.Output, error)
}

type Scorer interface {
	Execute(ctx context.Context, input *scoreeligibility.Input) (*scoreeligibility.Output, error)
}

type Fuser interface {
	Execute(ctx context.Context, input *fusedecision.Input) (*fusedecision.Output, error)
}

// ClarificationStore is the slice of the clarification queue the pipeline
// needs.
type ClarificationStore interface {
	Answers(ctx context.Context, eid string) (map[string]string, error)
	PendingCount(ctx context.Context, eid string) (int64, error)
}

// ApplicationStore persists application lifecycle state.
type ApplicationStore interface {
	Upsert(ctx context.Context, app *models.Application) error
	UpdateStatus(ctx context.Context, applicantEID string, state models.ApplicationState) error
}

// ExtractStore persists extraction results.
type ExtractStore interface {
	UpsertAll(ctx context.Context, extracts []models.ExtractResult) error
	ListByEID(ctx context.Context, applicantEID string) ([]models.ExtractResult, error)
}

// Notifier tells the applicant about a final decision; implementations must
// never fail the run.
type Notifier interface {
	NotifyDecision(ctx context.Context, app *models.Application, decision models.DecisionLabel, rationale string)
}

type Config struct {
	StageTimeout time.Duration
	// Obs optionally mirrors stage timings into the OTel meter.
	Obs *observability.Observability
}

func DefaultConfig() *Config {
	return &Config{StageTimeout: 60 * time.Second}
}

// RunRequest starts one pipeline run. Extracts, Report and Features support
// idempotent re-entry: a supplied value skips recomputation of its stage.
type RunRequest struct {
	Application *models.Application
	Documents   []models.DocumentRef
	Extracts    []models.ExtractResult
	Report      *models.ValidationReport
	Features    *scoreeligibility.FeatureVector
}

// RunResult is everything a run produced, kept whole for auditability.
type RunResult struct {
	ApplicationID  string                  `json:"application_id"`
	Extracts       []models.ExtractResult  `json:"extracts"`
	Report         models.ValidationReport `json:"validation_report"`
	Reconciliation models.Reconciliation   `json:"reconciliation"`
	Score          models.MLScore          `json:"ml_score"`
	Decision       *fusedecision.Output    `json:"decision"`
}

type Orchestrator struct {
	config     *Config
	extractor  Extractor
	validator  Validator
	reconciler Reconciler
	scorer     Scorer
	fuser      Fuser
	clar       ClarificationStore
	apps       ApplicationStore
	extracts   ExtractStore
	notifier   Notifier
	obs        *observability.Observability
	logger     logger.Logger

	// One mutex per applicant; at most one in-flight run each.
	runLocks sync.Map
}

func NewOrchestrator(
	config *Config,
	extractor Extractor,
	validator Validator,
	reconciler Reconciler,
	scorer Scorer,
	fuser Fuser,
	clar ClarificationStore,
	apps ApplicationStore,
	extracts ExtractStore,
	notifier Notifier,
	log logger.Logger,
) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Orchestrator{
		config:     config,
		extractor:  extractor,
		validator:  validator,
		reconciler: reconciler,
		scorer:     scorer,
		fuser:      fuser,
		clar:       clar,
		apps:       apps,
		extracts:   extracts,
		notifier:   notifier,
		obs:        config.Obs,
		logger:     log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
}

// Run executes the stage sequence for one applicant. Concurrent calls for
// the same applicant serialize on a per-applicant lock; different applicants
// run independently.
func (o *Orchestrator) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	app := req.Application
	if app == nil || app.ApplicantEID() == "" || app.ApplicationID == "" {
		return nil, commonerrors.NewApplicationNotFoundError("")
	}
	eid := app.ApplicantEID()

	lock := o.lockFor(eid)
	lock.Lock()
	defer lock.Unlock()

	result, err := o.run(ctx, req, eid)
	if err != nil {
		metrics.PipelineRunsFailed.WithLabelValues(string(commonerrors.CodeOf(err))).Inc()
		return nil, err
	}
	metrics.PipelineRunsCompleted.WithLabelValues(string(result.Decision.FinalDecision)).Inc()
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req *RunRequest, eid string) (*RunResult, error) {
	app := req.Application

	// The stored record is the durable anchor for status transitions and
	// chat-driven re-runs.
	if err := o.apps.Upsert(ctx, app); err != nil {
		return nil, err
	}

	answers := o.loadAnswers(ctx, eid)

	// 1) Extraction, skipped when the caller supplied extracts.
	extracts := req.Extracts
	if extracts == nil {
		out, err := o.runExtraction(ctx, req, eid)
		if err != nil {
			return nil, err
		}
		extracts = out
	} else {
		for _, er := range extracts {
			if er.ApplicantEID != "" && er.ApplicantEID != eid {
				return nil, commonerrors.NewApplicantMismatchError(eid, er.ApplicantEID)
			}
		}
	}

	factsByDoc := models.FactsByDoc(extracts)

	// 2) Validation, skipped when a report was supplied.
	var report models.ValidationReport
	if req.Report != nil {
		report = *req.Report
	} else {
		out, err := o.runStage(ctx, validateapplication.StageName, func(sctx context.Context) (interface{}, error) {
			return o.validator.Execute(sctx, &validateapplication.Input{
				ApplicationID: app.ApplicationID,
				Form:          app.Form,
				FactsByDoc:    factsByDoc,
				AnswersExist:  len(answers) > 0,
			})
		})
		if err != nil {
			return nil, err
		}
		report = out.(*validateapplication.Output).Report
	}

	// 3) Reconciliation. Runs even on halt so the decision record carries a
	// full picture of the conflict.
	recOut, err := o.runStage(ctx, reconcileprofile.StageName, func(sctx context.Context) (interface{}, error) {
		return o.reconciler.Execute(sctx, &reconcileprofile.Input{
			ApplicationID: app.ApplicationID,
			ApplicantEID:  eid,
			Form:          app.Form,
			FactsByDoc:    factsByDoc,
			Report:        report,
			Answers:       answers,
		})
	})
	if err != nil {
		return nil, err
	}
	reconciliation := recOut.(*reconcileprofile.Output).Reconciliation
	if reconciliation.Outcome == models.OutcomeDegraded {
		metrics.StageDegraded.WithLabelValues(reconcileprofile.StageName, "llm_parse_error").Inc()
	}

	// 4) Scoring.
	scoreOut, err := o.runStage(ctx, scoreeligibility.StageName, func(sctx context.Context) (interface{}, error) {
		return o.scorer.Execute(sctx, &scoreeligibility.Input{
			ApplicationID: app.ApplicationID,
			Form:          app.Form,
			Profile:       reconciliation.Profile,
			Features:      req.Features,
		})
	})
	if err != nil {
		return nil, err
	}
	score := scoreOut.(*scoreeligibility.Output).Score
	if score.Outcome == models.OutcomeDegraded {
		metrics.StageDegraded.WithLabelValues(scoreeligibility.StageName, "service_unavailable").Inc()
	}

	// 5) Decision fusion.
	pending, err := o.clar.PendingCount(ctx, eid)
	if err != nil {
		return nil, err
	}
	fuseOut, err := o.runStage(ctx, fusedecision.StageName, func(sctx context.Context) (interface{}, error) {
		return o.fuser.Execute(sctx, &fusedecision.Input{
			ApplicationID:         app.ApplicationID,
			Report:                report,
			Reconciliation:        reconciliation,
			Score:                 score,
			PendingClarifications: pending,
		})
	})
	if err != nil {
		return nil, err
	}
	decision := fuseOut.(*fusedecision.Output)

	o.persistOutcome(ctx, app, decision)

	o.logger.Info("pipeline run completed", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"applicantEid":  eid,
		"finalDecision": string(decision.FinalDecision),
		"outcome":       string(decision.Outcome),
	})

	return &RunResult{
		ApplicationID:  app.ApplicationID,
		Extracts:       extracts,
		Report:         report,
		Reconciliation: reconciliation,
		Score:          score,
		Decision:       decision,
	}, nil
}

func (o *Orchestrator) runExtraction(ctx context.Context, req *RunRequest, eid string) ([]models.ExtractResult, error) {
	app := req.Application
	if len(req.Documents) == 0 {
		// Nothing uploaded this run; reuse whatever was stored before.
		stored, err := o.extracts.ListByEID(ctx, eid)
		if err != nil {
			return nil, err
		}
		return stored, nil
	}

	out, err := o.runStage(ctx, extractdocuments.StageName, func(sctx context.Context) (interface{}, error) {
		return o.extractor.Execute(sctx, &extractdocuments.Input{
			ApplicationID: app.ApplicationID,
			ApplicantEID:  eid,
			Documents:     req.Documents,
			Form:          &app.Form,
		})
	})
	if err != nil {
		return nil, err
	}
	extracts := out.(*extractdocuments.Output).Extracts

	if err := o.extracts.UpsertAll(ctx, extracts); err != nil {
		return nil, err
	}
	return extracts, nil
}

// runStage wraps a stage call with the bounded per-stage timeout and records
// its duration. No retry on failure.
func (o *Orchestrator) runStage(ctx context.Context, name string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	sctx, cancel := context.WithTimeout(ctx, o.config.StageTimeout)
	defer cancel()

	start := time.Now()
	out, err := fn(sctx)
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if o.obs != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.obs.RecordStageDuration(ctx, name, elapsed)
		o.obs.RecordStageProcessed(ctx, name, status)
	}
	if err != nil {
		o.logger.Error("stage failed", map[string]interface{}{
			"stage": name,
			"error": err.Error(),
		})
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) loadAnswers(ctx context.Context, eid string) map[string]string {
	answers, err := o.clar.Answers(ctx, eid)
	if err != nil {
		o.logger.Warn("could not load clarification answers", map[string]interface{}{
			"applicantEid": eid,
			"error":        err.Error(),
		})
		return map[string]string{}
	}
	return answers
}

// persistOutcome records the lifecycle transition and fires the decision
// notification. Neither failure aborts a completed run.
func (o *Orchestrator) persistOutcome(ctx context.Context, app *models.Application, decision *fusedecision.Output) {
	state := stateFor(decision.FinalDecision)
	if err := o.apps.UpdateStatus(ctx, app.ApplicantEID(), state); err != nil {
		o.logger.Warn("could not update application status", map[string]interface{}{
			"applicantEid": app.ApplicantEID(),
			"state":        string(state),
			"error":        err.Error(),
		})
	}
	if o.notifier != nil {
		o.notifier.NotifyDecision(ctx, app, decision.FinalDecision, decision.Rationale)
	}
}

func stateFor(decision models.DecisionLabel) models.ApplicationState {
	switch decision {
	case models.DecisionApprove:
		return models.StateApproved
	case models.DecisionReview:
		return models.StateInReview
	default:
		return models.StateRejected
	}
}

func (o *Orchestrator) lockFor(eid string) *sync.Mutex {
	lock, _ := o.runLocks.LoadOrStore(eid, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
