// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/audit"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and amend the review audit log",
	Long: `Audit reads the append-only log of review decisions. Entries are never
edited; a mistaken decision is amended with a correction entry that
references it.`,
}

// --- query subcommand ---

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audit entries, newest first",
	RunE:  runAuditQuery,
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	decision, _ := cmd.Flags().GetString("decision")
	reviewer, _ := cmd.Flags().GetString("reviewer")
	entity, _ := cmd.Flags().GetString("entity")
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	f := types.AuditFilter{
		Decision: types.Decision(decision),
		Reviewer: reviewer,
		Entity:   entity,
		Limit:    limit,
	}
	var err error
	if f.From, err = parseTimeFlag("since", since); err != nil {
		return err
	}
	if f.To, err = parseTimeFlag("until", until); err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := audit.New(s, logger).Query(cmd.Context(), f)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REV\tTIME\tDECISION\tREVIEWER\tENTITY\tNOTES")
	for _, e := range entries {
		notes := e.Notes
		if e.Corrects != "" {
			notes = fmt.Sprintf("corrects %s: %s", e.Corrects, notes)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.RevID, e.Timestamp.Local().Format(time.DateTime), e.Decision, e.Reviewer, e.Entity, truncate(notes, 60))
	}
	return w.Flush()
}

// parseTimeFlag accepts RFC 3339 timestamps or plain dates.
func parseTimeFlag(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: use YYYY-MM-DD or RFC 3339", name, v)
	}
	return t, nil
}

// --- correct subcommand ---

var auditCorrectCmd = &cobra.Command{
	Use:   "correct <rev-id>",
	Short: "Append a correction to an earlier decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewer, _ := cmd.Flags().GetString("reviewer")
		notes, _ := cmd.Flags().GetString("notes")

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		revID, err := audit.New(s, logger).Correct(cmd.Context(), args[0], reviewer, notes)
		if err != nil {
			return err
		}
		fmt.Printf("Recorded correction %s for %s\n", revID, args[0])
		return nil
	},
}

func init() {
	auditQueryCmd.Flags().String("decision", "", "filter by decision: approve, reject, correction")
	auditQueryCmd.Flags().String("reviewer", "", "filter by reviewer id")
	auditQueryCmd.Flags().String("entity", "", "filter by item id")
	auditQueryCmd.Flags().String("since", "", "entries at or after this time")
	auditQueryCmd.Flags().String("until", "", "entries before this time")
	auditQueryCmd.Flags().Int("limit", 100, "maximum entries (0 = all)")
	auditQueryCmd.Flags().Bool("json", false, "output entries as JSON")

	auditCorrectCmd.Flags().String("reviewer", "", "reviewer id (required)")
	auditCorrectCmd.Flags().String("notes", "", "what was wrong and what it should have been (required)")
	_ = auditCorrectCmd.MarkFlagRequired("reviewer")
	_ = auditCorrectCmd.MarkFlagRequired("notes")

	auditCmd.AddCommand(auditQueryCmd)
	auditCmd.AddCommand(auditCorrectCmd)

	rootCmd.AddCommand(auditCmd)
}
