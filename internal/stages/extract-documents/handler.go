// internal/stages/extract-documents/handler.go
package extractdocuments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	commonerrors "eligibility-workers/internal/common/errors"
	"eligibility-workers/internal/common/httpclient"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"
)

const (
	StageName = "extract-documents"
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

// Execute runs the document batch through the extraction service. Every
// returned extract must carry the applicant it was requested for; a mismatch
// rejects the whole batch before anything downstream sees it.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Documents) == 0 {
		return &Output{Extracts: []models.ExtractResult{}}, nil
	}

	for _, doc := range input.Documents {
		if doc.ApplicantEID != "" && doc.ApplicantEID != input.ApplicantEID {
			return nil, commonerrors.NewApplicantMismatchError(input.ApplicantEID, doc.ApplicantEID)
		}
	}

	extracts, err := h.callExtractBatch(ctx, input)
	if err != nil {
		return nil, err
	}

	for _, er := range extracts {
		if er.ApplicantEID != "" && er.ApplicantEID != input.ApplicantEID {
			return nil, commonerrors.NewApplicantMismatchError(input.ApplicantEID, er.ApplicantEID)
		}
	}

	h.logger.Info("documents extracted", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"documents":     len(input.Documents),
		"extracts":      len(extracts),
	})
	return &Output{Extracts: extracts}, nil
}

func (h *Handler) callExtractBatch(ctx context.Context, input *Input) ([]models.ExtractResult, error) {
	body, err := json.Marshal(extractBatchRequest{
		ApplicationID: input.ApplicationID,
		ApplicantEID:  input.ApplicantEID,
		Documents:     input.Documents,
		Form:          input.Form,
	})
	if err != nil {
		return nil, commonerrors.NewExtractionFailedError(err)
	}

	req, err := http.NewRequest(http.MethodPost, h.config.BaseURL+"/extract/batch", bytes.NewReader(body))
	if err != nil {
		return nil, commonerrors.NewExtractionFailedError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, commonerrors.NewExtractionFailedError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, commonerrors.NewExtractionFailedError(
			fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, string(raw)))
	}

	var extracts []models.ExtractResult
	if err := json.NewDecoder(resp.Body).Decode(&extracts); err != nil {
		return nil, commonerrors.NewExtractionFailedError(err)
	}
	return extracts, nil
}
