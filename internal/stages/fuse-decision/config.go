// internal/stages/fuse-decision/config.go
package fusedecision

type Config struct {
	// AppealInstructions is the fixed text attached to every decision.
	AppealInstructions string
}

func DefaultConfig() *Config {
	return &Config{
		AppealInstructions: "A caseworker will review your application on request and may ask for additional documents.",
	}
}
