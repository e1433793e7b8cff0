package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect the effective wowsync configuration: the config file layered
over built-in defaults, with command-line overrides applied.`,
		Example: `  wowsync config show
  wowsync config get curseforge.match.min_score`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigGetCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration in YAML format. If a config file
is loaded, shows the loaded configuration with any command-line overrides
applied.`,
		Example: `  wowsync config show
  wowsync config show --config /etc/wowsync/wowsync.yaml`,
		RunE: configShowRun,
	}

	return cmd
}

func configShowRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	data, err := yaml.Marshal(globalCfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

func newConfigGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print one configuration value",
		Long: `Print a single configuration value addressed by a dot-delimited key
path, e.g. cache.dir or curseforge.match.min_score.`,
		Example: `  wowsync config get cache.dir
  wowsync config get curseforge.match.max_try`,
		Args: cobra.ExactArgs(1),
		RunE: configGetRun,
	}

	return cmd
}

func configGetRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	key := args[0]
	value, ok := globalCfg.Get(key)
	if !ok {
		return fmt.Errorf("no such config key: %s", key)
	}

	log.Debug("config lookup", "key", key)

	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	fmt.Print(string(data))
	return nil
}
