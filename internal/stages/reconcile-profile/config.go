// internal/stages/reconcile-profile/config.go
package reconcileprofile

import "time"

type Config struct {
	// ConfidenceThreshold is the minimum rule confidence at which a
	// documentary value may silently replace a declared one.
	ConfidenceThreshold float64
	// MaxQuestionsPerRun caps how many new clarification questions a single
	// run may raise.
	MaxQuestionsPerRun int
	// LLM runtime settings; refinement is skipped when BaseURL is empty.
	LLMBaseURL string
	LLMAPIKey  string
	LLMTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		ConfidenceThreshold: 0.6,
		MaxQuestionsPerRun:  1,
		LLMTimeout:          60 * time.Second,
	}
}
