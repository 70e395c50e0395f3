// Package schemas holds the JSON Schemas for documents accepted at the ingestion boundary.
package schemas

import "embed"

// FS contains every *.schema.json file in this directory
//
//go:embed *.schema.json
var FS embed.FS

// Schema file names
const (
	SourceContent = "source_content.schema.json"
	Persona       = "persona.schema.json"
	Template      = "template.schema.json"
)
