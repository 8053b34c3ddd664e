// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/claim"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/review"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// --- queue subcommand ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List reviewable items, oldest first",
	Long: `Queue lists pending staging items in creation order. Items whose claim
has lapsed are shown as pending again.`,
	RunE: runQueue,
}

func runQueue(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	items, err := review.New(s, cfg.Review, logger).Queue(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("Review queue is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKEY\tTYPE\tECOSYSTEM\tCONFIDENCE\tCREATED")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			it.ID, truncate(it.CandidateKey, 40), it.CandidateType, it.Ecosystem,
			it.ConfidenceScore, it.CreatedAt.Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d item(s)\n", len(items))
	return nil
}

// --- claim subcommand ---

var claimCmd = &cobra.Command{
	Use:   "claim <item-id>",
	Short: "Take the review lease on an item",
	Long: `Claim gives the reviewer exclusive rights to decide an item until the
lease expires. Claiming an item you already hold renews the lease.`,
	Args: cobra.ExactArgs(1),
	RunE: runClaim,
}

func runClaim(cmd *cobra.Command, args []string) error {
	reviewer, _ := cmd.Flags().GetString("reviewer")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	c, err := claim.New(s, cfg.Review, logger).Claim(cmd.Context(), args[0], reviewer, ttl)
	if errors.Is(err, types.ErrAlreadyClaimed) {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if err != nil {
		return err
	}

	verb := "Claimed"
	if c.Renewed {
		verb = "Renewed claim on"
	}
	fmt.Printf("%s %s until %s\n", verb, c.ItemID, c.ExpiresAt.Local().Format(time.Kitchen))
	return nil
}

// --- release subcommand ---

var releaseCmd = &cobra.Command{
	Use:   "release <item-id>",
	Short: "Give up a review lease without deciding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewer, _ := cmd.Flags().GetString("reviewer")

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := claim.New(s, cfg.Review, logger).Release(cmd.Context(), args[0], reviewer); err != nil {
			return err
		}
		fmt.Printf("Released %s\n", args[0])
		return nil
	},
}

// --- sweep subcommand ---

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Return items with lapsed claims to the queue",
	Long: `Sweep reverts every claimed item whose lease has expired to pending.
With --watch it keeps sweeping at review.sweep_interval until interrupted.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	m := claim.New(s, cfg.Review, logger)
	if watch {
		err := m.RunSweeper(cmd.Context(), cfg.Review.SweepInterval)
		if cmd.Context().Err() != nil {
			return nil
		}
		return err
	}

	n, err := m.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Released %d expired claim(s)\n", n)
	return nil
}

// --- decide subcommand ---

var decideCmd = &cobra.Command{
	Use:   "decide <item-id>...",
	Short: "Approve or reject claimed items",
	Long: `Decide records a reviewer verdict on items the reviewer has claimed.
Approved items become accepted and wait for promotion; rejected items are
final. Each decision is written to the audit log in the same transaction.

With more than one item id the decision is applied to each independently
and a per-item result is printed. Field edits (--set) are applied to every
item.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecide,
}

func runDecide(cmd *cobra.Command, args []string) error {
	reviewer, _ := cmd.Flags().GetString("reviewer")
	decision, _ := cmd.Flags().GetString("decision")
	notes, _ := cmd.Flags().GetString("notes")
	sets, _ := cmd.Flags().GetStringArray("set")

	changes, err := parseChanges(sets)
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	m := review.New(s, cfg.Review, logger)

	if len(args) == 1 {
		d, err := m.Decide(cmd.Context(), review.Request{
			ItemID:     args[0],
			ReviewerID: reviewer,
			Decision:   types.Decision(decision),
			Changes:    changes,
			Notes:      notes,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (rev %s)\n", d.Entity, d.Decision.TargetStatus(), d.RevID)
		return nil
	}

	results, err := m.DecideMany(cmd.Context(), review.BulkRequest{
		ItemIDs:    args,
		ReviewerID: reviewer,
		Decision:   types.Decision(decision),
		Changes:    changes,
		Notes:      notes,
	})
	if err != nil {
		return err
	}

	var failed int
	for _, r := range results {
		if r.OK() {
			fmt.Printf("%s: %s (rev %s)\n", r.ItemID, r.Decision.Decision.TargetStatus(), r.Decision.RevID)
			continue
		}
		failed++
		fmt.Printf("%s: failed: %v\n", r.ItemID, r.Err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d decision(s) failed", failed, len(results))
	}
	return nil
}

// parseChanges turns field=value pairs into field changes.
func parseChanges(sets []string) ([]types.FieldChange, error) {
	changes := make([]types.FieldChange, 0, len(sets))
	for _, kv := range sets {
		field, value, ok := strings.Cut(kv, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --set %q: want field=value", kv)
		}
		changes = append(changes, types.FieldChange{Field: field, To: value})
	}
	return changes, nil
}

func init() {
	queueCmd.Flags().Int("limit", 50, "maximum items to list")
	queueCmd.Flags().Bool("json", false, "output items as JSON")

	claimCmd.Flags().String("reviewer", "", "reviewer id (required)")
	claimCmd.Flags().Duration("ttl", 0, "lease duration (default review.claim_ttl)")
	_ = claimCmd.MarkFlagRequired("reviewer")

	releaseCmd.Flags().String("reviewer", "", "reviewer id (required)")
	_ = releaseCmd.MarkFlagRequired("reviewer")

	sweepCmd.Flags().Bool("watch", false, "keep sweeping until interrupted")

	decideCmd.Flags().String("reviewer", "", "reviewer id (required)")
	decideCmd.Flags().String("decision", "", "approve or reject (required)")
	decideCmd.Flags().String("notes", "", "reviewer notes; required to reject when review.require_rejection_reason is set")
	decideCmd.Flags().StringArray("set", nil, "field edit as field=value (repeatable)")
	_ = decideCmd.MarkFlagRequired("reviewer")
	_ = decideCmd.MarkFlagRequired("decision")

	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(decideCmd)
}
