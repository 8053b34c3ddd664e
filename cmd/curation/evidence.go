// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/evidence"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Record and summarize the evidence behind answers",
}

// answerInput is the JSON document accepted by evidence record.
type answerInput struct {
	ConversationID string                 `json:"conversation_id"`
	Content        string                 `json:"content"`
	Sources        []types.EvidenceSource `json:"sources"`
	Confidence     float64                `json:"confidence"`
	FreshnessDays  int                    `json:"freshness_days"`
	ModelInfo      map[string]any         `json:"model_info"`
}

// --- record subcommand ---

var evidenceRecordCmd = &cobra.Command{
	Use:   "record [answer.json]",
	Short: "Store an answer with its sources and metadata",
	Long: `Record reads an answer document (from a file, or stdin when no file is
given) and stores the message, its cited sources, and the answer metadata.
The message id is printed once the message itself is stored, even if some
sources could not be written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvidenceRecord,
}

func runEvidenceRecord(cmd *cobra.Command, args []string) error {
	var r io.Reader = os.Stdin
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening answer: %w", err)
		}
		defer f.Close()
		r = f
	}

	var in answerInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("decoding answer: %w", err)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	msgID, err := evidence.New(s, cfg.Evidence, logger).RecordAnswer(cmd.Context(), evidence.Answer{
		ConversationID: in.ConversationID,
		Content:        in.Content,
		Sources:        in.Sources,
		Confidence:     in.Confidence,
		FreshnessDays:  in.FreshnessDays,
		ModelInfo:      in.ModelInfo,
	})
	if err != nil {
		return err
	}
	fmt.Println(msgID)
	return nil
}

// --- show subcommand ---

var evidenceShowCmd = &cobra.Command{
	Use:   "show <message-id>",
	Short: "Summarize the evidence behind an answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ev, err := evidence.New(s, cfg.Evidence, logger).GetEvidence(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(ev)
		}

		fmt.Printf("Confidence: %s\n", ev.Confidence)
		fmt.Printf("Freshness:  %s\n", ev.FreshnessLabel)
		fmt.Printf("Sources:    %d collective, %d notebook, %d external\n",
			ev.CollectiveCount, ev.NotebookCount, ev.ExternalCount)
		for i, src := range ev.Sources {
			fmt.Printf("  %d. [%s] %s", i+1, src.Type, src.Title)
			if src.URL != "" {
				fmt.Printf(" <%s>", src.URL)
			}
			fmt.Println()
		}
		if ev.Partial {
			fmt.Println("(evidence incomplete)")
		}
		return nil
	},
}

func init() {
	evidenceShowCmd.Flags().Bool("json", false, "output evidence as JSON")

	evidenceCmd.AddCommand(evidenceRecordCmd)
	evidenceCmd.AddCommand(evidenceShowCmd)

	rootCmd.AddCommand(evidenceCmd)
}
