// internal/store/extracts.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"

	commonerrors "eligibility-workers/internal/common/errors"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"
)

type ExtractStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewExtractStore(db *sql.DB, log logger.Logger) *ExtractStore {
	return &ExtractStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "store.extracts"}),
	}
}

const upsertExtractSQL = `
INSERT INTO extracts (applicant_eid, doc_id, application_id, doc_type, facts, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (applicant_eid, doc_id)
DO UPDATE SET application_id = EXCLUDED.application_id,
              doc_type = EXCLUDED.doc_type,
              facts = EXCLUDED.facts,
              updated_at = NOW()`

// Upsert writes one extract keyed by (applicant_eid, doc_id).
func (s *ExtractStore) Upsert(ctx context.Context, er *models.ExtractResult) error {
	facts, err := json.Marshal(er.Facts)
	if err != nil {
		return commonerrors.NewUpsertFailedError("extract", err)
	}

	_, err = s.db.ExecContext(ctx, upsertExtractSQL,
		er.ApplicantEID, er.DocID, er.ApplicationID, string(er.DocType), facts)
	if err != nil {
		return commonerrors.NewUpsertFailedError("extract", err)
	}
	return nil
}

// UpsertAll writes a batch of extracts; the first failure aborts.
func (s *ExtractStore) UpsertAll(ctx context.Context, extracts []models.ExtractResult) error {
	for i := range extracts {
		if err := s.Upsert(ctx, &extracts[i]); err != nil {
			return err
		}
	}
	return nil
}

const listExtractsSQL = `
SELECT application_id, doc_id, doc_type, facts
FROM extracts
WHERE applicant_eid = $1
ORDER BY doc_id`

// ListByEID returns every stored extract for an applicant.
func (s *ExtractStore) ListByEID(ctx context.Context, applicantEID string) ([]models.ExtractResult, error) {
	rows, err := s.db.QueryContext(ctx, listExtractsSQL, applicantEID)
	if err != nil {
		return nil, commonerrors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	var out []models.ExtractResult
	for rows.Next() {
		var (
			er       models.ExtractResult
			docType  string
			factsRaw []byte
		)
		if err := rows.Scan(&er.ApplicationID, &er.DocID, &docType, &factsRaw); err != nil {
			return nil, commonerrors.NewStoreUnavailableError(err)
		}
		er.ApplicantEID = applicantEID
		er.DocType = models.DocType(docType)
		if err := json.Unmarshal(factsRaw, &er.Facts); err != nil {
			return nil, commonerrors.NewStoreUnavailableError(err)
		}
		out = append(out, er)
	}
	if err := rows.Err(); err != nil {
		return nil, commonerrors.NewStoreUnavailableError(err)
	}
	return out, nil
}
