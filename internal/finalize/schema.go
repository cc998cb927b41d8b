package finalize

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/selimbzr/ravel/internal/session"
)

// ValidateSchema checks a candidate answer against a JSON Schema document.
// Callers that require a particular answer shape pass the schema alongside
// the value; an empty schema accepts everything.
func ValidateSchema(value any, schemaJSON string) error {
	if strings.TrimSpace(schemaJSON) == "" {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(value),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed to run: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("answer does not match schema: %s", strings.Join(msgs, "; "))
}

// SetWithSchema validates value against both the serialization rules and an
// optional schema before storing it.
func SetWithSchema(s *session.Session, value any, schemaJSON string) error {
	if err := ValidateSchema(value, schemaJSON); err != nil {
		return err
	}
	return Set(s, value)
}
