package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/veritas/internal/metrics"
)

var (
	metricsTemplate string
	metricsSince    time.Duration
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show a validation metrics summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		filter := metrics.Filter{TemplateID: metricsTemplate}
		if metricsSince > 0 {
			filter.Since = time.Now().Add(-metricsSince)
		}
		summary, err := app.collector.GetMetricsSummary(filter)
		if err != nil {
			return fmt.Errorf("metrics summary: %w", err)
		}

		scope := "all templates"
		if metricsTemplate != "" {
			scope = metricsTemplate
		}
		fmt.Printf("Validation metrics (%s)\n\n", scope)
		fmt.Printf("  total validations:  %d\n", summary.TotalValidations)
		fmt.Printf("  success rate:       %.1f%%\n", summary.SuccessRate*100)
		fmt.Printf("  average score:      %.1f\n", summary.AverageScore)
		fmt.Printf("  average duration:   %.1fms\n", summary.AverageDurationMillis)
		fmt.Printf("  fallback rate:      %.1f%%\n", summary.FallbackRate*100)

		if len(summary.ErrorBreakdown) > 0 {
			fmt.Println("\n  errors by type:")
			types := make([]string, 0, len(summary.ErrorBreakdown))
			for et := range summary.ErrorBreakdown {
				types = append(types, et)
			}
			sort.Strings(types)
			for _, et := range types {
				fmt.Printf("    %-28s %d\n", et, summary.ErrorBreakdown[et])
			}
		}
		if len(summary.TopFailingRules) > 0 {
			fmt.Println("\n  top failing rules:")
			for _, rf := range summary.TopFailingRules {
				fmt.Printf("    %-28s %d\n", rf.RuleID, rf.Count)
			}
		}
		return nil
	},
}

func init() {
	metricsCmd.Flags().StringVarP(&metricsTemplate, "template", "t", "", "Restrict to one template ID")
	metricsCmd.Flags().DurationVar(&metricsSince, "since", 0, "Restrict to records newer than this (e.g. 24h)")
}
