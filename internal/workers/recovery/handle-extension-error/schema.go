// internal/workers/recovery/handle-extension-error/schema.go
package handleextensionerror

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// inputSchema describes the job variables the worker reads. Other process
// variables are allowed and ignored.
const inputSchema = `{
  "type": "object",
  "required": ["operation"],
  "properties": {
    "statusCode":  {"type": "integer", "minimum": 0, "maximum": 599},
    "serviceName": {"type": ["string", "null"]},
    "endpoint":    {"type": ["string", "null"]},
    "operation":   {"type": "string", "minLength": 1},
    "message":     {"type": ["string", "null"]},
    "userId":      {"type": ["string", "null"]},
    "tenantId":    {"type": ["string", "null"]},
    "retryCount":  {"type": "integer", "minimum": 0},
    "context":     {"type": ["object", "null"]}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(inputSchema)

func validateVariables(variables string) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(variables))
	if err != nil {
		return fmt.Errorf("parse input: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("input validation failed: %v", errs)
	}

	return nil
}
