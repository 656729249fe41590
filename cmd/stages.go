package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tikun-labs/sefirot-cli/internal/routing"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Print the stage routing table",
	Long: "Shows which provider, model, and temperature each of the ten stages uses, " +
		"plus the dual-perspective routes for the sigma variant of binah.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		table := routing.Defaults()
		if cfg.Routing.File != "" {
			var err error
			table, err = routing.Load(cfg.Routing.File)
			if err != nil {
				return err
			}
		}

		formatStagesTable(os.Stdout, table)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stagesCmd)
}

// formatStagesTable writes the resolved routing table to out.
func formatStagesTable(out io.Writer, table *routing.Table) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSTAGE\tHEBREW\tPROVIDER\tMODEL\tTEMP")
	_, _ = fmt.Fprintln(w, "-\t-----\t------\t--------\t-----\t----")

	for _, sr := range table.Stages() {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.2f\n",
			sr.Stage.Ordinal(),
			sr.Stage,
			sr.Stage.HebrewName(),
			sr.Route.Provider,
			sr.Route.Model,
			sr.Route.Temperature,
		)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out, "\nDual perspective (binah sigma):")
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	perspectives := []struct {
		name  string
		route routing.Route
	}{
		{"west", table.West()},
		{"east", table.East()},
		{"synthesis", table.Synthesis()},
	}
	for _, p := range perspectives {
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%.2f\n",
			p.name, p.route.Provider, p.route.Model, p.route.Temperature)
	}
	_ = w.Flush()
}
