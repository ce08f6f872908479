// internal/store/applications_test.go
package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commonerrors "eligibility-workers/internal/common/errors"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApplication() *models.Application {
	return &models.Application{
		ApplicationID: "app-1",
		Form: models.ApplicantForm{
			ApplicantEID:          "784-1990-1234567-9",
			FullName:              "Ahmed Al Mansoori",
			DeclaredMonthlyIncome: 8000,
			EmploymentStatus:      "employed",
			HouseholdSize:         3,
		},
		Status: models.ApplicationStatus{State: models.StateSubmitted},
	}
}

func TestApplicationStore_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewApplicationStore(db, logger.NewTestLogger(t))
	app := testApplication()

	mock.ExpectExec("INSERT INTO applications").
		WithArgs(app.ApplicantEID(), "app-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "submitted", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Upsert(context.Background(), app))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationStore_GetByEID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewApplicationStore(db, logger.NewTestLogger(t))
	form, _ := json.Marshal(testApplication().Form)
	applicant, _ := json.Marshal(models.Applicant{EmiratesID: "784-1990-1234567-9", Email: "ahmed@example.ae"})
	now := time.Now()

	mock.ExpectQuery("SELECT application_id, applicant, form, status").
		WithArgs("784-1990-1234567-9").
		WillReturnRows(sqlmock.NewRows([]string{"application_id", "applicant", "form", "status", "created_at", "updated_at"}).
			AddRow("app-1", applicant, form, "in_review", now, now))

	app, err := s.GetByEID(context.Background(), "784-1990-1234567-9")
	require.NoError(t, err)
	assert.Equal(t, "app-1", app.ApplicationID)
	assert.Equal(t, models.StateInReview, app.Status.State)
	assert.Equal(t, 8000.0, app.Form.DeclaredMonthlyIncome)
	assert.Equal(t, "784-1990-1234567-9", app.ApplicantEID())
	// contact survives the roundtrip, name backfills from the form
	assert.Equal(t, "ahmed@example.ae", app.Applicant.Email)
	assert.Equal(t, "Ahmed Al Mansoori", app.Applicant.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationStore_GetByEID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewApplicationStore(db, logger.NewTestLogger(t))

	mock.ExpectQuery("SELECT application_id, applicant, form, status").
		WithArgs("784-unknown").
		WillReturnRows(sqlmock.NewRows([]string{"application_id", "applicant", "form", "status", "created_at", "updated_at"}))

	_, err = s.GetByEID(context.Background(), "784-unknown")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeApplicationNotFound, commonerrors.CodeOf(err))
}

func TestApplicationStore_UpdateStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewApplicationStore(db, logger.NewTestLogger(t))

	mock.ExpectExec("UPDATE applications SET status").
		WithArgs("784-unknown", "approved", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.UpdateStatus(context.Background(), "784-unknown", models.StateApproved)
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeApplicationNotFound, commonerrors.CodeOf(err))
}

func TestExtractStore_UpsertAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewExtractStore(db, logger.NewTestLogger(t))
	er := models.ExtractResult{
		ApplicationID: "app-1",
		ApplicantEID:  "784-1990-1234567-9",
		DocID:         "doc-1",
		DocType:       models.DocTypeBank,
		Facts:         map[string]interface{}{"salary_inflow_mean_3m": 7500.0},
	}

	mock.ExpectExec("INSERT INTO extracts").
		WithArgs("784-1990-1234567-9", "doc-1", "app-1", "bank", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Upsert(context.Background(), &er))

	facts, _ := json.Marshal(er.Facts)
	mock.ExpectQuery("SELECT application_id, doc_id, doc_type, facts").
		WithArgs("784-1990-1234567-9").
		WillReturnRows(sqlmock.NewRows([]string{"application_id", "doc_id", "doc_type", "facts"}).
			AddRow("app-1", "doc-1", "bank", facts))

	got, err := s.ListByEID(context.Background(), "784-1990-1234567-9")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, er, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}
