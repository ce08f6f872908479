// internal/stages/reconcile-profile/llm.go
package reconcileprofile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"eligibility-workers/internal/common/httpclient"

	"github.com/xeipuuv/gojsonschema"
)

// reconciliationSchema is the contract every refinement response must meet
// before it is allowed to influence the canonical profile.
const reconciliationSchema = `{
  "type": "object",
  "required": ["reconciled_profile", "unresolved_issues", "pending_questions", "confidence"],
  "properties": {
    "reconciled_profile": {"type": "object"},
    "unresolved_issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["code", "severity"],
        "properties": {
          "code": {"type": "string"},
          "field": {"type": "string"},
          "message": {"type": "string"},
          "severity": {"enum": ["low", "medium", "high", "critical"]}
        }
      }
    },
    "pending_questions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question"],
        "properties": {
          "field": {"type": "string"},
          "question": {"type": "string"}
        }
      }
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(reconciliationSchema)

// LLMClient generates a raw completion for a reconciliation prompt.
type LLMClient interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// RuntimeClient talks to the model runtime over HTTP.
type RuntimeClient struct {
	baseURL string
	apiKey  string
	client  *httpclient.Client
}

func NewRuntimeClient(baseURL, apiKey string, timeout time.Duration) *RuntimeClient {
	return &RuntimeClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  httpclient.NewClient(timeout),
	}
}

type generateRequest struct {
	Prompt     string `json:"prompt"`
	System     string `json:"system,omitempty"`
	JSONMode   bool   `json:"json_mode"`
	JSONSchema string `json:"json_schema,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (c *RuntimeClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:     prompt,
		System:     system,
		JSONMode:   true,
		JSONSchema: reconciliationSchema,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.DoWithContext(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm runtime returned %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// parseReconciliation parses a raw completion leniently and validates it
// against the reconciliation schema. Strict JSON is tried first, then the
// largest balanced object block inside the text.
func parseReconciliation(raw string) (map[string]interface{}, error) {
	candidates := []string{raw}
	if block := largestObjectBlock(raw); block != "" && block != raw {
		candidates = append(candidates, block)
	}

	var lastErr error
	for _, cand := range candidates {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(cand), &parsed); err != nil {
			lastErr = err
			continue
		}
		result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(parsed))
		if err != nil {
			lastErr = err
			continue
		}
		if !result.Valid() {
			lastErr = fmt.Errorf("schema violation: %v", result.Errors())
			continue
		}
		return parsed, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON object found in output")
	}
	return nil, lastErr
}

// largestObjectBlock returns the longest balanced {...} substring, "" when
// none exists. Braces inside JSON strings are honored.
func largestObjectBlock(raw string) string {
	best := ""
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(raw); j++ {
			ch := raw[j]
			if escaped {
				escaped = false
				continue
			}
			switch ch {
			case '\\':
				if inString {
					escaped = true
				}
			case '"':
				inString = !inString
			case '{':
				if !inString {
					depth++
				}
			case '}':
				if !inString {
					depth--
					if depth == 0 {
						if j-i+1 > len(best) {
							best = raw[i : j+1]
						}
						j = len(raw)
					}
				}
			}
		}
	}
	return best
}
