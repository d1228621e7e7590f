package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/veritas/pkg/models"
)

var (
	validatePersona  string
	validateTemplate string
	validateRequest  string
)

var validateCmd = &cobra.Command{
	Use:   "validate <record.json>",
	Short: "Validate a persona record and print the result",
	Long: `Validate reads a JSON persona record, runs it through the engine, and
prints the full validation result as JSON. The record is checked against the
latest active template for --persona, or against an explicit --template.

The exit code is 1 when the final result is invalid. A recovered result
(fallback substitute) counts as valid but is marked in the output metadata.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		var record map[string]interface{}
		if err := json.Unmarshal(raw, &record); err != nil {
			return fmt.Errorf("parse record: %w", err)
		}

		vctx := &models.Context{Request: validateRequest, Attempt: 1}

		var result *models.ValidationResult
		if validateTemplate != "" {
			result = app.engine.ValidateWithTemplate(cmd.Context(), record, validateTemplate, vctx)
		} else {
			pt := models.PersonaType(validatePersona)
			if !pt.Valid() {
				return fmt.Errorf("unknown persona type %q", validatePersona)
			}
			result = app.engine.Validate(cmd.Context(), record, pt, vctx)
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		switch {
		case result.IsValid && !result.Metadata.FallbackUsed:
			color.Green("VALID (score %d)", result.Score)
		case result.IsValid:
			color.Yellow("RECOVERED via %s (score %d)", result.Metadata.FallbackStrategy, result.Score)
		default:
			color.Red("INVALID: %d error(s)", len(result.Errors))
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validatePersona, "persona", "p", "standard", "Persona type (b2b, standard, simple)")
	validateCmd.Flags().StringVarP(&validateTemplate, "template", "t", "", "Validate against a specific template ID")
	validateCmd.Flags().StringVar(&validateRequest, "request", "", "Original generation request text, used by cultural checks")
}
