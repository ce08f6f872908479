// internal/stages/extract-documents/config.go
package extractdocuments

import "time"

type Config struct {
	// BaseURL of the extraction service, e.g. http://extract:8002.
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
	}
}
