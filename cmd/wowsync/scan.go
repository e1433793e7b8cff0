package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wowsync/wowsync/internal/resolver"
	"github.com/wowsync/wowsync/internal/store"
	"github.com/wowsync/wowsync/internal/toc"
)

var scanOutput string

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [DIR]",
		Short: "Inventory an addon directory and resolve each addon to a source",
		Long: `Inventory the addons installed under DIR, resolve each one to a remote
source across the configured providers, and print a summary table.

DIR may be the AddOns directory itself, the Interface directory, or the
game root; the AddOns folder is located automatically. When DIR is
omitted, the directory from the config file's scan section is used.

With -o, the resolution outcome is written as a YAML document mapping
each provider to its sources and their resolved addons, plus the list of
addons no provider could supply. That file is the input other tooling
consumes; its key order is stable.`,
		Example: `  wowsync scan ~/WoW/Interface/AddOns
  wowsync scan ~/WoW -o wowsync.lock.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: scanRun,
	}

	cmd.Flags().StringVarP(&scanOutput, "output", "o", "", "write the resolution report to this file")

	return cmd
}

func scanRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	dir := globalCfg.Scan.Dir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no directory to scan: pass DIR or set scan.dir in the config")
	}
	dir = toc.NormalizeDir(dir)

	entries, err := toc.Scan(dir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", dir, err)
	}

	valid := toc.Valid(entries)
	invalid := toc.Invalid(entries)
	for _, e := range invalid {
		log.Warn("excluding invalid addon entry", "path", e.Path, "reason", e.Err)
	}
	log.Info("scan complete", "dir", dir, "found", len(valid), "invalid", len(invalid))

	fmt.Println(toc.FormatSummary(valid))

	if globalStore != nil {
		run := &store.ScanRun{Dir: dir, Found: len(valid), Invalid: len(invalid)}
		if err := globalStore.RecordScanRun(run); err != nil {
			log.Warn("unable to record scan run", "error", err)
		}
	}

	ctx := context.Background()
	res := globalResolver.Resolve(ctx, toc.Names(valid))

	for _, id := range res.IDs {
		if src, ok := res.Assigned[id]; ok {
			fmt.Printf("  %-28s -> %s/%s\n", id, src.ProviderName(), src.Name())
		}
	}
	for _, id := range res.Skipped {
		fmt.Printf("  %-28s -> (skipped: no source found)\n", id)
	}

	if scanOutput != "" {
		rc := resolver.ReportConfig{ScanDir: dir, CacheDir: globalCfg.Cache.Dir}
		if err := resolver.WriteReport(scanOutput, res, globalRegistry, rc); err != nil {
			return err
		}
		log.Info("report written", "path", scanOutput)
	}

	return nil
}
