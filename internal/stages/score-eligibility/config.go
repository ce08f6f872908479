// internal/stages/score-eligibility/config.go
package scoreeligibility

import "time"

type Config struct {
	// BaseURL of the score service, e.g. http://score:8000.
	BaseURL string
	Timeout time.Duration
	// DefaultCreditScore substitutes when no bureau report was supplied.
	DefaultCreditScore float64
	// TargetPrecision drives threshold re-derivation when the response
	// carries a precision curve instead of a usable threshold pair.
	TargetPrecision float64
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:            60 * time.Second,
		DefaultCreditScore: 600.0,
		TargetPrecision:    0.85,
	}
}
