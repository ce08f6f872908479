// internal/stages/validate-application/handler_test.go
package validateapplication

import (
	"context"
	"testing"
	"time"

	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestHandler(t *testing.T) *Handler {
	return NewHandler(DefaultConfig(), logger.NewTestLogger(t))
}

func bankFacts(inflow, outflow float64) map[models.DocType]models.Facts {
	return map[models.DocType]models.Facts{
		models.DocTypeBank: {
			DocType: models.DocTypeBank,
			Bank: &models.BankFacts{
				SalaryInflowMean3M:   inflow,
				MonthlyOutflowMean3M: outflow,
			},
		},
	}
}

func eidFacts(daysRemaining int) map[models.DocType]models.Facts {
	return map[models.DocType]models.Facts{
		models.DocTypeEID: {
			DocType: models.DocTypeEID,
			EID:     &models.EIDFacts{DaysRemaining: &daysRemaining},
		},
	}
}

func issueCodes(report models.ValidationReport) []string {
	codes := make([]string, 0, len(report.Issues))
	for _, iss := range report.Issues {
		codes = append(codes, iss.Code)
	}
	return codes
}

// ==========================
// Income Rules
// ==========================

func TestExecute_IncomeWithinTolerance_Proceeds(t *testing.T) {
	h := newTestHandler(t)

	// 10000 declared vs 9000 observed is under the 25% flag line.
	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-1",
		Form: models.ApplicantForm{
			ApplicantEID:          "784-1111",
			DeclaredMonthlyIncome: 10000,
		},
		FactsByDoc: bankFacts(9000, 3000),
	})

	require.NoError(t, err)
	assert.NotContains(t, issueCodes(out.Report), "INCOME_MISMATCH")
	assert.Equal(t, models.NextActionProceed, out.Report.NextAction)
}

func TestExecute_IncomeMismatchOverHalf_IsHigh(t *testing.T) {
	h := newTestHandler(t)

	// 10000 vs 4000 gives a symmetric difference well above 50%.
	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-2",
		Form: models.ApplicantForm{
			ApplicantEID:          "784-1111",
			DeclaredMonthlyIncome: 10000,
		},
		FactsByDoc: bankFacts(4000, 1000),
	})

	require.NoError(t, err)
	require.Contains(t, issueCodes(out.Report), "INCOME_MISMATCH")
	for _, iss := range out.Report.Issues {
		if iss.Code == "INCOME_MISMATCH" {
			assert.Equal(t, models.SeverityHigh, iss.Severity)
			assert.Equal(t, 4000.0, iss.SuggestedValue)
		}
	}
	assert.Equal(t, models.NextActionAskUser, out.Report.NextAction)
}

func TestExecute_IncomeMismatchModerate_IsMedium(t *testing.T) {
	h := newTestHandler(t)

	// 10000 vs 7000: diff = 3000/8500 ~ 0.35, medium band.
	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-3",
		Form: models.ApplicantForm{
			ApplicantEID:          "784-1111",
			DeclaredMonthlyIncome: 10000,
		},
		FactsByDoc: bankFacts(7000, 2000),
	})

	require.NoError(t, err)
	require.Contains(t, issueCodes(out.Report), "INCOME_MISMATCH")
	for _, iss := range out.Report.Issues {
		if iss.Code == "INCOME_MISMATCH" {
			assert.Equal(t, models.SeverityMedium, iss.Severity)
		}
	}
}

func TestExecute_NegativeMargin_IsHigh(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-4",
		Form:          models.ApplicantForm{ApplicantEID: "784-1111"},
		FactsByDoc:    bankFacts(5000, 6000),
	})

	require.NoError(t, err)
	require.Contains(t, issueCodes(out.Report), "INCOME_NEGATIVE_MARGIN")
	assert.Equal(t, models.NextActionAskUser, out.Report.NextAction)
}

func TestExecute_TightMargin_IsLowAndProceeds(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-5",
		Form:          models.ApplicantForm{ApplicantEID: "784-1111"},
		FactsByDoc:    bankFacts(5000, 4900),
	})

	require.NoError(t, err)
	require.Contains(t, issueCodes(out.Report), "INCOME_TIGHT_MARGIN")
	// Low severity alone never blocks the run.
	assert.Equal(t, models.NextActionProceed, out.Report.NextAction)
}

// ==========================
// Expiry Rules
// ==========================

func TestExecute_ExpiredEID_HaltsEvenByOneDay(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-6",
		Form:          models.ApplicantForm{ApplicantEID: "784-1111"},
		FactsByDoc:    eidFacts(-1),
	})

	require.NoError(t, err)
	require.Contains(t, issueCodes(out.Report), "EID_EXPIRED")
	for _, iss := range out.Report.Issues {
		if iss.Code == "EID_EXPIRED" {
			assert.Equal(t, models.SeverityCritical, iss.Severity)
		}
	}
	assert.Equal(t, models.NextActionHalt, out.Report.NextAction)
}

func TestExecute_ExpiryWindows(t *testing.T) {
	tests := []struct {
		name     string
		daysLeft int
		code     string
		severity models.Severity
	}{
		{"expires today is not expired", 0, "EID_EXPIRING_SOON", models.SeverityHigh},
		{"30 days is high", 30, "EID_EXPIRING_SOON", models.SeverityHigh},
		{"31 days is medium", 31, "EID_EXPIRING_SOON", models.SeverityMedium},
		{"60 days is medium", 60, "EID_EXPIRING_SOON", models.SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t)
			out, err := h.Execute(context.Background(), &Input{
				ApplicationID: "app-7",
				Form:          models.ApplicantForm{ApplicantEID: "784-1111"},
				FactsByDoc:    eidFacts(tt.daysLeft),
			})
			require.NoError(t, err)
			require.Contains(t, issueCodes(out.Report), tt.code)
			for _, iss := range out.Report.Issues {
				if iss.Code == tt.code {
					assert.Equal(t, tt.severity, iss.Severity)
				}
			}
		})
	}
}

func TestExecute_ExpiryBeyondWindow_NoIssue(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-8",
		Form:          models.ApplicantForm{ApplicantEID: "784-1111"},
		FactsByDoc:    eidFacts(61),
	})

	require.NoError(t, err)
	assert.Empty(t, out.Report.Issues)
	assert.Equal(t, models.NextActionProceed, out.Report.NextAction)
}

func TestExecute_ExpiryDateFallback(t *testing.T) {
	h := newTestHandler(t)
	h.now = func() time.Time {
		return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	}

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-9",
		Form:          models.ApplicantForm{ApplicantEID: "784-1111"},
		FactsByDoc: map[models.DocType]models.Facts{
			models.DocTypeEID: {
				DocType: models.DocTypeEID,
				EID:     &models.EIDFacts{ExpiryDate: "2025-05-20"},
			},
		},
	})

	require.NoError(t, err)
	assert.Contains(t, issueCodes(out.Report), "EID_EXPIRED")
}

// ==========================
// Format Rules
// ==========================

func TestExecute_IBANFormat(t *testing.T) {
	tests := []struct {
		name    string
		iban    string
		flagged bool
	}{
		{"valid iban passes", "AE070331234567890123456", false},
		{"spaces are tolerated", "AE07 0331 2345 6789 0123 456", false},
		{"missing check digits flagged", "AEXX0331234567890123456", true},
		{"too short flagged", "AE0703", true},
		{"empty iban skipped", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t)
			out, err := h.Execute(context.Background(), &Input{
				ApplicationID: "app-10",
				Form: models.ApplicantForm{
					ApplicantEID: "784-1111",
					IBAN:         tt.iban,
				},
			})
			require.NoError(t, err)
			if tt.flagged {
				assert.Contains(t, issueCodes(out.Report), "IBAN_FORMAT_INVALID")
			} else {
				assert.NotContains(t, issueCodes(out.Report), "IBAN_FORMAT_INVALID")
			}
		})
	}
}

func TestEIDChecksum(t *testing.T) {
	assert.True(t, eidChecksumOK("784199012345679"))
	assert.True(t, eidChecksumOK("784-1990-1234567-9"))
	assert.False(t, eidChecksumOK("784199012345678"))
	assert.False(t, eidChecksumOK("12345678"))
	assert.False(t, eidChecksumOK(""))
}

// ==========================
// Cross-Document Consistency
// ==========================

func TestExecute_NameMismatch(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-11",
		Form: models.ApplicantForm{
			ApplicantEID: "784-1111",
			FullName:     "Ahmed Al Mansoori",
		},
		FactsByDoc: map[models.DocType]models.Facts{
			models.DocTypeEID: {
				DocType: models.DocTypeEID,
				EID:     &models.EIDFacts{FullName: "Fatima Hassan"},
			},
		},
	})

	require.NoError(t, err)
	require.Contains(t, issueCodes(out.Report), "NAME_MISMATCH")
	for _, iss := range out.Report.Issues {
		if iss.Code == "NAME_MISMATCH" {
			assert.Equal(t, models.SeverityHigh, iss.Severity)
		}
	}
}

func TestExecute_NameReordered_NoMismatch(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-12",
		Form: models.ApplicantForm{
			ApplicantEID: "784-1111",
			FullName:     "Al Mansoori Ahmed",
		},
		FactsByDoc: map[models.DocType]models.Facts{
			models.DocTypeEID: {
				DocType: models.DocTypeEID,
				EID:     &models.EIDFacts{FullName: "Ahmed Al Mansoori"},
			},
		},
	})

	require.NoError(t, err)
	assert.NotContains(t, issueCodes(out.Report), "NAME_MISMATCH")
}

func TestExecute_DOBAndAddressMismatch(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-13",
		Form: models.ApplicantForm{
			ApplicantEID: "784-1111",
			DOB:          "1990-01-01",
			Address:      "12 Marina Walk, Dubai",
		},
		FactsByDoc: map[models.DocType]models.Facts{
			models.DocTypeEID: {
				DocType: models.DocTypeEID,
				EID: &models.EIDFacts{
					DOB:     "1991-02-02",
					Address: "99 Corniche Road, Abu Dhabi",
				},
			},
		},
	})

	require.NoError(t, err)
	codes := issueCodes(out.Report)
	assert.Contains(t, codes, "DOB_MISMATCH")
	assert.Contains(t, codes, "ADDRESS_MISMATCH")
}

func TestExecute_AddressPunctuationIgnored(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-14",
		Form: models.ApplicantForm{
			ApplicantEID: "784-1111",
			Address:      "12, Marina Walk - Dubai",
		},
		FactsByDoc: map[models.DocType]models.Facts{
			models.DocTypeBank: {
				DocType: models.DocTypeBank,
				Bank:    &models.BankFacts{Address: "12 Marina Walk Dubai"},
			},
		},
	})

	require.NoError(t, err)
	assert.NotContains(t, issueCodes(out.Report), "ADDRESS_MISMATCH")
}

// ==========================
// Next Action Policy
// ==========================

func TestExecute_NoIssues_EmptyReportProceeds(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-15",
		Form:          models.ApplicantForm{ApplicantEID: "784-1111"},
	})

	require.NoError(t, err)
	assert.Empty(t, out.Report.Issues)
	assert.Equal(t, models.NextActionProceed, out.Report.NextAction)
}

func TestExecute_AnswersDowngradeAskUser(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-16",
		Form: models.ApplicantForm{
			ApplicantEID:          "784-1111",
			DeclaredMonthlyIncome: 10000,
		},
		FactsByDoc:   bankFacts(4000, 1000),
		AnswersExist: true,
	})

	require.NoError(t, err)
	// Issues are still reported, only the action downgrades.
	assert.Contains(t, issueCodes(out.Report), "INCOME_MISMATCH")
	assert.Equal(t, models.NextActionProceed, out.Report.NextAction)
}

func TestExecute_AnswersNeverDowngradeCritical(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-17",
		Form:          models.ApplicantForm{ApplicantEID: "784-1111"},
		FactsByDoc:    eidFacts(-10),
		AnswersExist:  true,
	})

	require.NoError(t, err)
	assert.Equal(t, models.NextActionHalt, out.Report.NextAction)
}
