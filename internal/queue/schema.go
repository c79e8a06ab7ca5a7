// internal/queue/schema.go
package queue

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// jobSchema validates the wire form of an ApplicationJob before it is handed
// to the processor. Attempts is bounded loosely here; the dispatcher enforces
// the real retry budget.
const jobSchema = `{
	"type": "object",
	"required": ["applicationId", "jobId", "userId", "jobUrl", "platform"],
	"properties": {
		"applicationId": {"type": "string", "minLength": 1},
		"jobId":         {"type": "string", "minLength": 1},
		"userId":        {"type": "string", "minLength": 1},
		"jobUrl":        {"type": "string", "minLength": 1},
		"platform":      {"type": "string", "minLength": 1},
		"attempts":      {"type": "integer", "minimum": 0}
	},
	"additionalProperties": false
}`

var jobSchemaLoader = gojsonschema.NewStringLoader(jobSchema)

// validatePayload checks a raw queue message against the job schema and
// returns a single descriptive error listing every violation.
func validatePayload(payload string) error {
	result, err := gojsonschema.Validate(jobSchemaLoader, gojsonschema.NewStringLoader(payload))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("invalid job payload: %s", strings.Join(msgs, "; "))
}
