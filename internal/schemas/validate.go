// Package schemas validates ingested documents against JSON Schemas.
package schemas

import (
	"fmt"
	"io/fs"
	"strings"

	embedded "github.com/jonathan/persona-transformer/schemas"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// ValidateDocument validates raw JSON against one of the embedded schemas
// (see the constants in the top-level schemas package)
func ValidateDocument(schemaName string, document []byte) error {
	schemaData, err := fs.ReadFile(embedded.FS, schemaName)
	if err != nil {
		return &SchemaLoadError{Path: schemaName, Message: "embedded schema not found", Cause: err}
	}
	return validate(schemaName,
		gojsonschema.NewBytesLoader(schemaData),
		gojsonschema.NewBytesLoader(document))
}

// ValidateContent validates a SourceContent document
func ValidateContent(document []byte) error {
	return ValidateDocument(embedded.SourceContent, document)
}

// ValidatePersona validates a Persona document
func ValidatePersona(document []byte) error {
	return ValidateDocument(embedded.Persona, document)
}

// ValidateTemplate validates a Template document
func ValidateTemplate(document []byte) error {
	return ValidateDocument(embedded.Template, document)
}

func validate(schemaPath string, schemaLoader, documentLoader gojsonschema.JSONLoader) error {
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Path:    schemaPath,
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}

	if result.Valid() {
		return nil
	}

	// Build structured error
	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}

	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}

	return validationErr
}
