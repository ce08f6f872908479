// internal/server/runner.go
package server

import (
	"context"

	"eligibility-workers/internal/models"
	"eligibility-workers/internal/pipeline"
)

// ApplicationStore is the slice of the application store the HTTP layer and
// the chat flow need.
type ApplicationStore interface {
	Upsert(ctx context.Context, app *models.Application) error
	GetByEID(ctx context.Context, applicantEID string) (*models.Application, error)
}

// ExtractStore exposes stored document extracts for chat context.
type ExtractStore interface {
	ListByEID(ctx context.Context, applicantEID string) ([]models.ExtractResult, error)
}

// PipelineRunner starts a run from a fully built request.
type PipelineRunner interface {
	Run(ctx context.Context, req *pipeline.RunRequest) (*pipeline.RunResult, error)
}

// ApplicantService resolves an applicant's stored application before running
// the pipeline or building chat context. It backs both the chat flow and the
// run endpoint.
type ApplicantService struct {
	apps     ApplicationStore
	extracts ExtractStore
	runner   PipelineRunner
}

func NewApplicantService(apps ApplicationStore, extracts ExtractStore, runner PipelineRunner) *ApplicantService {
	return &ApplicantService{apps: apps, extracts: extracts, runner: runner}
}

// RunForApplicant re-runs the pipeline for a stored application, reusing
// previously stored extracts.
func (s *ApplicantService) RunForApplicant(ctx context.Context, eid string) (*pipeline.RunResult, error) {
	app, err := s.apps.GetByEID(ctx, eid)
	if err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, &pipeline.RunRequest{Application: app})
}

// RunWithDocuments runs the pipeline for a stored application with freshly
// uploaded documents.
func (s *ApplicantService) RunWithDocuments(ctx context.Context, eid string, docs []models.DocumentRef) (*pipeline.RunResult, error) {
	app, err := s.apps.GetByEID(ctx, eid)
	if err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, &pipeline.RunRequest{Application: app, Documents: docs})
}

// BuildChatContext assembles the form plus stored extract facts the
// assistant answers from.
func (s *ApplicantService) BuildChatContext(ctx context.Context, eid string) (map[string]interface{}, error) {
	app, err := s.apps.GetByEID(ctx, eid)
	if err != nil {
		return nil, err
	}
	extracts, err := s.extracts.ListByEID(ctx, eid)
	if err != nil {
		return nil, err
	}

	facts := map[string]interface{}{}
	for _, er := range extracts {
		facts[string(er.DocType)] = er.Facts
	}
	return map[string]interface{}{
		"application_id": app.ApplicationID,
		"applicant":      app.Applicant,
		"form":           app.Form,
		"status":         app.Status,
		"extracted":      facts,
	}, nil
}
