package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

var statusLimit int

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display recent scan and sync history",
		Long: `Display the most recent scan and the most recent sync runs recorded in
the run history, including per-run source counts and the addons each run
resolved.`,
		Example: `  wowsync status
  wowsync status --limit 20`,
		RunE: statusRun,
	}

	cmd.Flags().IntVar(&statusLimit, "limit", 10, "number of sync runs to show")

	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalStore == nil {
		return fmt.Errorf("run history unavailable")
	}

	scan, err := globalStore.LatestScanRun()
	if err != nil {
		return fmt.Errorf("reading scan history: %w", err)
	}
	if scan == nil {
		fmt.Println("No scans recorded yet")
	} else {
		fmt.Printf("Last scan: %s (%d addons, %d invalid) at %s\n\n",
			scan.Dir, scan.Found, scan.Invalid, scan.ScannedAt.Format("2006-01-02 15:04"))
	}

	runs, err := globalStore.ListSyncRuns(statusLimit)
	if err != nil {
		return fmt.Errorf("reading sync history: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No syncs recorded yet")
		return nil
	}

	log.Debug("status request", "runs", len(runs))

	fmt.Println("Sync History")
	fmt.Println("============")
	fmt.Println("")
	fmt.Printf("%-5s %-30s %8s %8s %8s %-8s %-17s\n", "Run", "Target", "Sources", "Failed", "Skipped", "Status", "Started")
	fmt.Println(strings.Repeat("-", 92))

	for _, r := range runs {
		fmt.Printf("%-5d %-30s %8d %8d %8d %-8s %-17s\n",
			r.ID,
			truncateLeft(r.Target, 30),
			r.SourcesTotal,
			r.SourcesFailed,
			r.Skipped,
			r.Status,
			r.StartTime.Format("2006-01-02 15:04"),
		)
	}
	fmt.Println("")

	// Show the assignments of the newest run.
	resolved, err := globalStore.ListResolvedSources(runs[0].ID)
	if err != nil {
		return fmt.Errorf("reading resolved sources: %w", err)
	}
	if len(resolved) > 0 {
		fmt.Printf("Run %d resolutions:\n", runs[0].ID)
		for _, rs := range resolved {
			fmt.Printf("  %-28s -> %s/%s\n", rs.Addon, rs.Provider, rs.Source)
		}
	}

	return nil
}

// truncateLeft keeps the tail of long paths, which carries the useful part.
func truncateLeft(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
