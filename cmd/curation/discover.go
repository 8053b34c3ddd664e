// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/discovery"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/secrets"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/store"
	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/pkg/types"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run web discovery tasks through the crawler service",
	Long: `Discover submits crawl tasks seeded from a URL, tracks their progress,
and lists the URLs they found for conversion into staging candidates.`,
}

// coordinator opens the store and builds a Coordinator against the
// configured crawler service. The caller closes the store.
func coordinator() (*discovery.Coordinator, *store.Store, error) {
	s, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	token, _ := loadedSecrets.Lookup(secrets.CrawlerAPIToken)
	backend := discovery.NewHTTPBackend(cfg.Discovery, token, logger)
	return discovery.New(s, backend, cfg.Discovery, logger), s, nil
}

// --- submit subcommand ---

var discoverSubmitCmd = &cobra.Command{
	Use:   "submit <seed-url>",
	Short: "Start a crawl from a seed URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxPages, _ := cmd.Flags().GetInt("max-pages")
		instructions, _ := cmd.Flags().GetString("instructions")

		c, s, err := coordinator()
		if err != nil {
			return err
		}
		defer s.Close()

		task, err := c.Submit(cmd.Context(), args[0], maxPages, instructions)
		if err != nil {
			return err
		}
		fmt.Printf("Submitted %s (%d page budget)\n", task.TaskID, task.MaxPages)
		return nil
	},
}

// --- feed subcommand ---

var discoverFeedCmd = &cobra.Command{
	Use:   "feed <feed-url>",
	Short: "Start one crawl per link in an RSS or Atom feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxPages, _ := cmd.Flags().GetInt("max-pages")
		instructions, _ := cmd.Flags().GetString("instructions")

		c, s, err := coordinator()
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := c.SubmitFeed(cmd.Context(), args[0], maxPages, instructions)
		for _, t := range res.Submitted {
			fmt.Printf("Submitted %s for %s\n", t.TaskID, t.SeedURL)
		}
		for _, link := range res.Skipped {
			fmt.Printf("Skipped %s\n", link)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d task(s) submitted\n", res.Feed, len(res.Submitted))
		return nil
	},
}

// --- status subcommand ---

var discoverStatusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Poll a task, or list recent tasks",
	Long: `Status polls the crawler for a task and records any progress. With no
task id it lists recent tasks from the local record without polling.
With --watch it polls until the task completes or fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiscoverStatus,
}

func runDiscoverStatus(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	limit, _ := cmd.Flags().GetInt("limit")

	c, s, err := coordinator()
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) == 0 {
		tasks, err := c.Tasks(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No discovery tasks.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tSTATUS\tSEED\tPAGES\tUPDATED")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				t.TaskID, t.Status, truncate(t.SeedURL, 50), t.MaxPages, t.UpdatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	}

	if !watch {
		st, err := c.PollStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTaskStatus(st)
		return nil
	}

	st, err := c.Watch(cmd.Context(), args[0], cfg.Discovery.PollInterval, printTaskStatus)
	if err != nil {
		return err
	}
	if st.Status == types.TaskFailed {
		return fmt.Errorf("task %s failed: %s", st.TaskID, st.Detail)
	}
	return nil
}

func printTaskStatus(st types.TaskStatus) {
	switch st.Status {
	case types.TaskCompleted:
		fmt.Printf("%s: completed, %d url(s) discovered\n", st.TaskID, st.Discovered)
	case types.TaskFailed:
		fmt.Printf("%s: failed: %s\n", st.TaskID, st.Detail)
	default:
		fmt.Printf("%s: %s\n", st.TaskID, st.Status)
	}
}

// --- urls subcommand ---

var discoverURLsCmd = &cobra.Command{
	Use:   "urls [task-id]",
	Short: "List discovered URLs, best quality first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minQuality, _ := cmd.Flags().GetFloat64("min-quality")
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		f := types.URLFilter{MinQuality: minQuality, IncludeConsumed: all, Limit: limit}
		if len(args) > 0 {
			f.TaskID = args[0]
		}

		c, s, err := coordinator()
		if err != nil {
			return err
		}
		defer s.Close()

		urls, err := c.ListDiscoveredURLs(cmd.Context(), f)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(urls)
		}
		if len(urls) == 0 {
			fmt.Println("No discovered URLs.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "QUALITY\tURL\tTASK\tSUMMARY")
		for _, u := range urls {
			fmt.Fprintf(w, "%.2f\t%s\t%s\t%s\n", u.QualityScore, u.URL, u.TaskID, truncate(u.Summary, 50))
		}
		return w.Flush()
	},
}

// --- consume subcommand ---

var discoverConsumeCmd = &cobra.Command{
	Use:   "consume <task-id> <url>...",
	Short: "Mark discovered URLs as converted into staging candidates",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, s, err := coordinator()
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := c.MarkConsumed(cmd.Context(), args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("Marked %d url(s) consumed\n", n)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{discoverSubmitCmd, discoverFeedCmd} {
		c.Flags().Int("max-pages", 0, "page budget per task (default discovery.default_max_pages, capped at the ceiling)")
		c.Flags().String("instructions", "", "guidance passed to the crawler")
	}

	discoverStatusCmd.Flags().Bool("watch", false, "poll until the task finishes")
	discoverStatusCmd.Flags().Int("limit", 20, "maximum tasks to list")

	discoverURLsCmd.Flags().Float64("min-quality", 0, "minimum quality score")
	discoverURLsCmd.Flags().Bool("all", false, "include consumed URLs")
	discoverURLsCmd.Flags().Int("limit", 0, "maximum URLs (0 = all)")
	discoverURLsCmd.Flags().Bool("json", false, "output URLs as JSON")

	discoverCmd.AddCommand(discoverSubmitCmd)
	discoverCmd.AddCommand(discoverFeedCmd)
	discoverCmd.AddCommand(discoverStatusCmd)
	discoverCmd.AddCommand(discoverURLsCmd)
	discoverCmd.AddCommand(discoverConsumeCmd)

	rootCmd.AddCommand(discoverCmd)
}
