package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List registered validation templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		list := app.registry.List()
		if len(list) == 0 {
			fmt.Println("no templates registered")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tVERSION\tPERSONA\tRULES\tFALLBACK\tACTIVE")
		for _, t := range list {
			active := "no"
			if t.Metadata.IsActive {
				active = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				t.ID, t.Version, t.PersonaType, len(t.Rules), t.Fallback.Type, active)
		}
		return w.Flush()
	},
}
