package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/veritas/internal/diag"
	"github.com/ShayCichocki/veritas/pkg/models"
)

var analyzePersona string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <records-dir>",
	Short: "Validate a batch of records and report failure patterns",
	Long: `Analyze validates every *.json record in a directory with step tracing
enabled, then mines the traces for recurring failure patterns, per-template
health scores, and recommendations.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		// Batch analysis is pointless without traces.
		flagsCfg := app.cfg.Flags
		flagsCfg.DebugEnabled = true
		app.flags.Update(flagsCfg)

		pt := models.PersonaType(analyzePersona)
		if !pt.Valid() {
			return fmt.Errorf("unknown persona type %q", analyzePersona)
		}

		entries, err := os.ReadDir(args[0])
		if err != nil {
			return fmt.Errorf("read dir: %w", err)
		}

		var processed, valid int
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			path := filepath.Join(args[0], entry.Name())
			raw, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", entry.Name(), err)
				continue
			}
			var record map[string]interface{}
			if err := json.Unmarshal(raw, &record); err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", entry.Name(), err)
				continue
			}

			result := app.engine.Validate(cmd.Context(), record, pt, &models.Context{
				RequestID: entry.Name(),
				Attempt:   1,
			})
			processed++
			if result.IsValid && !result.Metadata.FallbackUsed {
				valid++
			}
		}
		if processed == 0 {
			return fmt.Errorf("no JSON records in %s", args[0])
		}
		fmt.Printf("validated %d record(s), %d clean\n\n", processed, valid)

		report := app.analyzer.Analyze(0)
		printReport(report)
		return nil
	},
}

func printReport(report *diag.Report) {
	if len(report.Patterns) == 0 {
		color.Green("no failure patterns detected across %d trace(s)", report.TracesAnalyzed)
	}
	for _, p := range report.Patterns {
		fmt.Printf("[%s] %s\n", strings.ToUpper(string(p.Severity)), p.Name)
		fmt.Printf("  %s (%d occurrence(s))\n", p.Description, p.Occurrences)
		if len(p.AffectedTemplates) > 0 {
			fmt.Printf("  templates: %s\n", strings.Join(p.AffectedTemplates, ", "))
		}
		fmt.Printf("  remediation: %s\n\n", p.Remediation)
	}

	if len(report.TemplateHealth) > 0 {
		fmt.Println("template health (worst first):")
		for _, h := range report.TemplateHealth {
			fmt.Printf("  %-24s %5.1f  (success %.0f%%, %d trace(s))\n",
				h.TemplateID, h.Score, h.SuccessRate*100, h.Traces)
		}
		fmt.Println()
	}

	printAdvice := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Printf("%s:\n", label)
		for _, item := range items {
			fmt.Printf("  - %s\n", item)
		}
	}
	printAdvice("immediate", report.Recommendations.Immediate)
	printAdvice("short term", report.Recommendations.ShortTerm)
	printAdvice("long term", report.Recommendations.LongTerm)
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzePersona, "persona", "p", "standard", "Persona type (b2b, standard, simple)")
}
