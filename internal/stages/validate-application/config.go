// internal/stages/validate-application/config.go
package validateapplication

type Config struct {
	// IncomeMismatchFlagAt is the symmetric percentage difference above
	// which declared vs observed income is flagged.
	IncomeMismatchFlagAt float64
	// IncomeMismatchHighAt escalates the flag from medium to high.
	IncomeMismatchHighAt float64
	// ExpiryHighDays and ExpiryMediumDays bound the expiring-soon windows.
	ExpiryHighDays   int
	ExpiryMediumDays int
}

func DefaultConfig() *Config {
	return &Config{
		IncomeMismatchFlagAt: 0.25,
		IncomeMismatchHighAt: 0.50,
		ExpiryHighDays:       30,
		ExpiryMediumDays:     60,
	}
}
