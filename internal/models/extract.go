// internal/models/extract.go
package models

import (
	"strconv"
	"strings"
)

// DocType identifies which extractor produced a facts map.
type DocType string

const (
	DocTypeBank              DocType = "bank"
	DocTypeEID               DocType = "eid"
	DocTypeResume            DocType = "resume"
	DocTypeAssetsLiabilities DocType = "assets_liabilities"
	DocTypeCreditReport      DocType = "credit_report"
)

// ExtractResult is one document's worth of extracted facts, keyed uniquely by
// (applicant_eid, doc_id). Facts is untrusted upstream output and stays
// untyped at the edge; DecodeFacts produces the typed view.
type ExtractResult struct {
	ApplicationID string                 `json:"application_id"`
	ApplicantEID  string                 `json:"applicant_eid"`
	DocID         string                 `json:"doc_id"`
	DocType       DocType                `json:"doc_type"`
	Facts         map[string]interface{} `json:"facts"`
}

// FactsByDoc folds extracts into doc_type -> facts. First extract per type
// wins, matching how repeated uploads of the same document type are ignored.
func FactsByDoc(extracts []ExtractResult) map[DocType]Facts {
	byDoc := make(map[DocType]Facts)
	for _, er := range extracts {
		if er.DocType == "" || len(er.Facts) == 0 {
			continue
		}
		if _, seen := byDoc[er.DocType]; seen {
			continue
		}
		byDoc[er.DocType] = DecodeFacts(er.DocType, er.Facts)
	}
	return byDoc
}

// ==========================
// Typed fact variants
// ==========================

// BankFacts are bank-statement aggregates over a 3 month window.
type BankFacts struct {
	SalaryInflowMean3M   float64
	MonthlyOutflowMean3M float64
	AccountHolderName    string
	Address              string
}

// EIDFacts carry identity-document fields. DaysRemaining is nil when neither
// an explicit remaining-days field nor a parseable expiry date was present.
type EIDFacts struct {
	DaysRemaining *int
	ExpiryDate    string
	FullName      string
	DOB           string
	Address       string
}

type CreditFacts struct {
	Score              float64
	TotalDebt          float64
	Inquiries6M        int
	SeriousDelinquency bool
	// DPD 30/60/90 bucket counts, when the bureau report carries them.
	DPDBuckets map[string]int
}

type AssetsLiabilitiesFacts struct {
	TotalAssetsValue      float64
	TotalLiabilitiesValue float64
}

type ResumeFacts struct {
	EmploymentCurrent *bool
	TenureMonths      int
	Skills            []string
}

// Facts is the tagged union over per-doc-type fact schemas. Exactly one
// variant pointer is set, matching DocType. Unknown upstream keys are
// preserved in Extra for forward compatibility but never feed core features.
type Facts struct {
	DocType           DocType
	Bank              *BankFacts
	EID               *EIDFacts
	Credit            *CreditFacts
	AssetsLiabilities *AssetsLiabilitiesFacts
	Resume            *ResumeFacts
	Extra             map[string]interface{}
}

// DecodeFacts maps an untyped facts dict into the typed variant for docType.
// Coercion failures degrade to zero values; decoding never fails.
func DecodeFacts(docType DocType, raw map[string]interface{}) Facts {
	f := Facts{DocType: docType, Extra: map[string]interface{}{}}
	consumed := map[string]bool{}

	take := func(key string) (interface{}, bool) {
		v, ok := raw[key]
		if ok {
			consumed[key] = true
		}
		return v, ok
	}

	switch docType {
	case DocTypeBank:
		b := &BankFacts{}
		if v, ok := take("salary_inflow_mean_3m"); ok {
			b.SalaryInflowMean3M = CoerceFloat(v, 0.0)
		}
		if v, ok := take("monthly_outflow_mean_3m"); ok {
			b.MonthlyOutflowMean3M = CoerceFloat(v, 0.0)
		}
		if v, ok := take("account_holder_name"); ok {
			b.AccountHolderName = CoerceString(v)
		}
		if v, ok := take("address"); ok {
			b.Address = CoerceString(v)
		}
		f.Bank = b

	case DocTypeEID:
		e := &EIDFacts{}
		if v, ok := take("residency_valid_days_remaining"); ok {
			if days, err := coerceInt(v); err == nil {
				e.DaysRemaining = &days
			}
		}
		if v, ok := take("eid_expiry_date"); ok {
			e.ExpiryDate = CoerceString(v)
		}
		if v, ok := take("full_name"); ok {
			e.FullName = CoerceString(v)
		}
		if v, ok := take("dob"); ok {
			e.DOB = CoerceString(v)
		}
		if v, ok := take("address"); ok {
			e.Address = CoerceString(v)
		}
		f.EID = e

	case DocTypeCreditReport:
		c := &CreditFacts{}
		if v, ok := take("credit_score"); ok {
			c.Score = CoerceFloat(v, 0.0)
		}
		if v, ok := take("total_debt"); ok {
			c.TotalDebt = CoerceFloat(v, 0.0)
		}
		if v, ok := take("inquiries_6m"); ok {
			if n, err := coerceInt(v); err == nil {
				c.Inquiries6M = n
			}
		}
		if v, ok := take("serious_delinquency"); ok {
			if b, isBool := v.(bool); isBool {
				c.SeriousDelinquency = b
			}
		}
		for _, bucket := range []string{"dpd_30", "dpd_60", "dpd_90"} {
			if v, ok := take(bucket); ok {
				if n, err := coerceInt(v); err == nil {
					if c.DPDBuckets == nil {
						c.DPDBuckets = map[string]int{}
					}
					c.DPDBuckets[bucket] = n
				}
			}
		}
		f.Credit = c

	case DocTypeAssetsLiabilities:
		al := &AssetsLiabilitiesFacts{}
		if v, ok := take("total_assets_value"); ok {
			al.TotalAssetsValue = CoerceFloat(v, 0.0)
		}
		if v, ok := take("total_liabilities_value"); ok {
			al.TotalLiabilitiesValue = CoerceFloat(v, 0.0)
		}
		f.AssetsLiabilities = al

	case DocTypeResume:
		r := &ResumeFacts{}
		if v, ok := take("employment_current"); ok {
			if b, isBool := v.(bool); isBool {
				r.EmploymentCurrent = &b
			}
		}
		if v, ok := take("employment_tenure_months"); ok {
			if n, err := coerceInt(v); err == nil {
				r.TenureMonths = n
			}
		}
		if v, ok := take("skills"); ok {
			if items, isList := v.([]interface{}); isList {
				for _, it := range items {
					if s := CoerceString(it); s != "" {
						r.Skills = append(r.Skills, s)
					}
				}
			}
		}
		f.Resume = r
	}

	for k, v := range raw {
		if !consumed[k] {
			f.Extra[k] = v
		}
	}
	return f
}

// ==========================
// Coercion helpers
// ==========================

// CoerceFloat converts an untyped fact value to float64, degrading to def on
// any failure. Rule inputs never raise.
func CoerceFloat(raw interface{}, def float64) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if s == "" {
			return def
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return def
	default:
		return def
	}
}

// CoerceString converts an untyped fact value to a string, "" on failure.
func CoerceString(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func coerceInt(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, strconv.ErrSyntax
	}
}
