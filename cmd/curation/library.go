// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/library"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/review"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

// --- promote subcommand ---

var promoteCmd = &cobra.Command{
	Use:   "promote [item-id...]",
	Short: "Merge accepted items into the library",
	Long: `Promote moves accepted items into the canonical library and marks them
promoted. With no arguments every accepted item is merged.`,
	RunE: runPromote,
}

func runPromote(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) == 0 {
		summary, err := library.New(s, s.DataDir(), logger).Merge(cmd.Context())
		fmt.Printf("Promoted %d item(s), %d skipped, %d failed\n", summary.Promoted, summary.Skipped, summary.Failed)
		return err
	}

	m := review.New(s, cfg.Review, logger)
	var failed int
	for _, id := range args {
		e, err := m.Promote(cmd.Context(), id)
		if err != nil {
			failed++
			fmt.Printf("%s: failed: %v\n", id, err)
			continue
		}
		fmt.Printf("%s: promoted as %s\n", id, e.Key)
	}
	if failed > 0 {
		return fmt.Errorf("%d item(s) failed promotion", failed)
	}
	return nil
}

// --- library subcommands ---

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Search and export the canonical library",
}

var librarySearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query promoted entities with full-text search and filters",
	RunE:  runLibrarySearch,
}

func runLibrarySearch(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entities, err := library.New(s, s.DataDir(), logger).Retrieve(cmd.Context(), libraryOptsFromFlags(cmd, args))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(entities)
	}
	if len(entities) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tKEY\tTYPE\tECOSYSTEM\tCONFIDENCE\tATTRIBUTES")
	for i, e := range entities {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%s\n",
			i+1, truncate(e.Key, 40), e.Type, e.Ecosystem, e.Confidence, truncate(string(e.Payload), 50))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d results\n", len(entities))
	return nil
}

var libraryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the library to YAML or JSON",
	Long: `Export writes the library (or a filtered subset) to
<data-dir>/export/library.yaml or library.json.`,
	RunE: runLibraryExport,
}

func runLibraryExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	lib := library.New(s, s.DataDir(), logger)
	opts := libraryOptsFromFlags(cmd, args)

	var path string
	switch format {
	case "yaml", "":
		path, err = lib.ExportYAML(cmd.Context(), opts)
	case "json":
		path, err = lib.ExportJSON(cmd.Context(), opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Println("Exported to", path)
	return nil
}

func libraryOptsFromFlags(cmd *cobra.Command, args []string) library.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}
	entityType, _ := cmd.Flags().GetString("type")
	ecosystem, _ := cmd.Flags().GetString("ecosystem")
	limit, _ := cmd.Flags().GetInt("limit")

	return library.QueryOptions{
		Query:      queryText,
		Type:       types.CandidateType(entityType),
		Ecosystem:  ecosystem,
		MaxResults: limit,
	}
}

func init() {
	for _, c := range []*cobra.Command{librarySearchCmd, libraryExportCmd} {
		c.Flags().String("query", "", "full-text search query")
		c.Flags().String("type", "", "filter by type: component, parameter, telemetry, interface, subsystem")
		c.Flags().String("ecosystem", "", "filter by ecosystem")
	}
	librarySearchCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	librarySearchCmd.Flags().Bool("json", false, "output results as JSON")
	libraryExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	libraryCmd.AddCommand(librarySearchCmd)
	libraryCmd.AddCommand(libraryExportCmd)

	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(libraryCmd)
}
