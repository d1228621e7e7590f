package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/veritas/pkg/models"
)

var alertsHistory int

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate alert rules and list alerts",
	Long: `Alerts runs one evaluation pass over the recorded metrics and prints
active alerts, plus recent history with --history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		fired := app.alerts.CheckAlerts(cmd.Context())
		if len(fired) > 0 {
			fmt.Printf("%d alert(s) fired this pass\n\n", len(fired))
		}

		list := app.alerts.ActiveAlerts()
		if alertsHistory > 0 {
			list = app.alerts.History(alertsHistory)
		}
		if len(list) == 0 {
			fmt.Println("no alerts")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSEVERITY\tRULE\tFIRED\tRESOLVED\tMESSAGE")
		for _, a := range list {
			resolved := ""
			if a.IsResolved && a.ResolvedAt != nil {
				resolved = a.ResolvedAt.Format("15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				a.ID, severityLabel(a.Severity), a.RuleID,
				a.Timestamp.Format("15:04:05"), resolved, a.Message)
		}
		return w.Flush()
	},
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Resolve an active alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if !app.alerts.ResolveAlert(args[0]) {
			return fmt.Errorf("no active alert with id %q", args[0])
		}
		fmt.Printf("resolved %s\n", args[0])
		return nil
	},
}

func severityLabel(s models.AlertSeverity) string {
	switch s {
	case models.AlertCritical:
		return color.RedString(string(s))
	case models.AlertHigh:
		return color.MagentaString(string(s))
	case models.AlertMedium:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func init() {
	alertsCmd.Flags().IntVar(&alertsHistory, "history", 0, "Show the most recent N alerts instead of active ones")
	alertsCmd.AddCommand(alertsResolveCmd)
}
