// internal/store/applications.go

// Package store persists applications and document extracts in Postgres.
// Rows are upserted by natural key and never hard-deleted here.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	commonerrors "eligibility-workers/internal/common/errors"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"
)

type ApplicationStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewApplicationStore(db *sql.DB, log logger.Logger) *ApplicationStore {
	return &ApplicationStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "store.applications"}),
	}
}

const upsertApplicationSQL = `
INSERT INTO applications (applicant_eid, application_id, applicant, form, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (applicant_eid)
DO UPDATE SET application_id = EXCLUDED.application_id,
              applicant = EXCLUDED.applicant,
              form = EXCLUDED.form,
              status = EXCLUDED.status,
              updated_at = EXCLUDED.updated_at`

// Upsert writes an application keyed by applicant identity.
func (s *ApplicationStore) Upsert(ctx context.Context, app *models.Application) error {
	applicant, err := json.Marshal(app.Applicant)
	if err != nil {
		return commonerrors.NewUpsertFailedError("application", err)
	}
	form, err := json.Marshal(app.Form)
	if err != nil {
		return commonerrors.NewUpsertFailedError("application", err)
	}

	state := app.Status.State
	if state == "" {
		state = models.StateSubmitted
	}

	_, err = s.db.ExecContext(ctx, upsertApplicationSQL,
		app.ApplicantEID(), app.ApplicationID, applicant, form, string(state), time.Now().UTC())
	if err != nil {
		return commonerrors.NewUpsertFailedError("application", err)
	}

	s.logger.Debug("application upserted", map[string]interface{}{
		"applicantEid":  app.ApplicantEID(),
		"applicationId": app.ApplicationID,
	})
	return nil
}

const getApplicationSQL = `
SELECT application_id, applicant, form, status, created_at, updated_at
FROM applications
WHERE applicant_eid = $1`

// GetByEID loads the application for an applicant, a typed not-found error
// when none exists.
func (s *ApplicationStore) GetByEID(ctx context.Context, applicantEID string) (*models.Application, error) {
	var (
		applicationID string
		applicantRaw  []byte
		formRaw       []byte
		state         string
		createdAt     time.Time
		updatedAt     time.Time
	)

	row := s.db.QueryRowContext(ctx, getApplicationSQL, applicantEID)
	if err := row.Scan(&applicationID, &applicantRaw, &formRaw, &state, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, commonerrors.NewApplicationNotFoundError(applicantEID)
		}
		return nil, commonerrors.NewStoreUnavailableError(err)
	}

	var form models.ApplicantForm
	if err := json.Unmarshal(formRaw, &form); err != nil {
		return nil, commonerrors.NewStoreUnavailableError(err)
	}

	var applicant models.Applicant
	if len(applicantRaw) > 0 {
		if err := json.Unmarshal(applicantRaw, &applicant); err != nil {
			return nil, commonerrors.NewStoreUnavailableError(err)
		}
	}
	if applicant.EmiratesID == "" {
		applicant.EmiratesID = applicantEID
	}
	if applicant.FullName == "" {
		applicant.FullName = form.FullName
	}
	if applicant.DOB == "" {
		applicant.DOB = form.DOB
	}
	if applicant.Address == "" {
		applicant.Address = form.Address
	}

	return &models.Application{
		ApplicationID: applicationID,
		Applicant:     applicant,
		Form:          form,
		Status: models.ApplicationStatus{
			State:     models.ApplicationState(state),
			CreatedAt: createdAt.Unix(),
			UpdatedAt: updatedAt.Unix(),
		},
	}, nil
}

const updateStatusSQL = `
UPDATE applications SET status = $2, updated_at = $3 WHERE applicant_eid = $1`

// UpdateStatus transitions an application's lifecycle state.
func (s *ApplicationStore) UpdateStatus(ctx context.Context, applicantEID string, state models.ApplicationState) error {
	res, err := s.db.ExecContext(ctx, updateStatusSQL, applicantEID, string(state), time.Now().UTC())
	if err != nil {
		return commonerrors.NewUpsertFailedError("application status", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return commonerrors.NewApplicationNotFoundError(applicantEID)
	}
	return nil
}
