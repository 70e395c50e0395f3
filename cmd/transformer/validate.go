package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/persona-transformer/internal/schemas"
	"github.com/jonathan/persona-transformer/internal/templates"
	"github.com/jonathan/persona-transformer/internal/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate <content|persona|template> <file>",
	Short: "Validate a document against its schema",
	Long: `Checks a content, persona or template document before it is submitted. Templates may
be JSON or YAML.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateDocument(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is a valid %s document\n", args[1], args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateDocument(kind, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch kind {
	case "content":
		return schemas.ValidateContent(data)
	case "persona":
		if err := schemas.ValidatePersona(data); err != nil {
			return err
		}
		var req types.PersonaRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return err
		}
		return req.Validate()
	case "template":
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			_, err := templates.ParseTemplateYAML(data)
			return err
		}
		if err := schemas.ValidateTemplate(data); err != nil {
			return err
		}
		var tmpl types.Template
		if err := json.Unmarshal(data, &tmpl); err != nil {
			return err
		}
		return templates.Validate(&tmpl)
	default:
		return fmt.Errorf("unknown document kind %q: want content, persona or template", kind)
	}
}
