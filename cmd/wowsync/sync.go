package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wowsync/wowsync/internal/resolver"
	"github.com/wowsync/wowsync/internal/toc"
)

var syncUpdate bool

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [TARGET]",
		Short: "Reconcile an addon directory against its resolved sources",
		Long: `Reconcile TARGET against the sources resolved for the addons it
contains. The existing inventory is archived into the content cache
first (identical backups are stored once), then every source
materializes concurrently; one failing source never aborts the run.

A populated TARGET that does not look like an addon directory is
refused. When TARGET is omitted, the directory from the config file's
scan section is used.`,
		Example: `  wowsync sync ~/WoW/Interface/AddOns
  wowsync sync ~/WoW --update`,
		Args: cobra.MaximumNArgs(1),
		RunE: syncRun,
	}

	cmd.Flags().BoolVar(&syncUpdate, "update", false, "rewrite the resolution report after syncing")

	return cmd
}

func syncRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if globalEngine == nil {
		return fmt.Errorf("sync engine not initialized")
	}

	target := globalCfg.Scan.Dir
	if len(args) > 0 {
		target = args[0]
	}
	if target == "" {
		return fmt.Errorf("no target to sync: pass TARGET or set scan.dir in the config")
	}
	target = toc.NormalizeDir(target)

	ctx := context.Background()

	var ids []string
	entries, err := toc.Scan(target)
	if err == nil {
		valid := toc.Valid(entries)
		for _, e := range toc.Invalid(entries) {
			log.Warn("excluding invalid addon entry", "path", e.Path, "reason", e.Err)
		}
		ids = toc.Names(valid)
	}
	// A missing or empty target yields an empty id set; the engine still
	// validates and prepares the directory.

	res := globalResolver.Resolve(ctx, ids)

	report, err := globalEngine.Sync(ctx, target, res, globalRegistry)
	if err != nil {
		return err
	}

	fmt.Println("\n=== SYNC SUMMARY ===")
	fmt.Printf("Target:    %s\n", report.Target)
	fmt.Printf("Sources:   %d\n", report.Total)
	fmt.Printf("Succeeded: %d\n", report.Succeeded)
	fmt.Printf("Failed:    %d\n", report.Failed)
	fmt.Printf("Skipped:   %d\n", len(report.Skipped))
	if report.Backup != "" {
		fmt.Printf("Backup:    %s\n", report.Backup)
	}

	if syncUpdate && globalCfg.Sync.File != "" {
		rc := resolver.ReportConfig{ScanDir: target, CacheDir: globalCfg.Cache.Dir}
		if err := resolver.WriteReport(globalCfg.Sync.File, res, globalRegistry, rc); err != nil {
			log.Warn("unable to update resolution report", "path", globalCfg.Sync.File, "error", err)
		} else {
			log.Info("resolution report updated", "path", globalCfg.Sync.File)
		}
	}

	if report.Failed > 0 {
		return fmt.Errorf("sync completed with %d failed sources", report.Failed)
	}
	return nil
}
