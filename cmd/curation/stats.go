// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth and health per pipeline stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := stats.New(s, cfg.Stats, logger).Report(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(report)
		}
		if report.Degraded {
			fmt.Println("Pipeline stats unavailable, database busy.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tCOUNT\tTODAY\tLAST HOUR\tHEALTH")
		for _, st := range report.Stages {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", st.Stage, st.Count, st.ItemsToday, st.ItemsThisHour, st.Health)
		}
		return w.Flush()
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "output the report as JSON")
	rootCmd.AddCommand(statsCmd)
}
