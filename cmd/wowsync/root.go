package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wowsync/wowsync/internal/cache"
	"github.com/wowsync/wowsync/internal/config"
	"github.com/wowsync/wowsync/internal/download"
	"github.com/wowsync/wowsync/internal/engine"
	"github.com/wowsync/wowsync/internal/provider"
	"github.com/wowsync/wowsync/internal/provider/curseforge"
	"github.com/wowsync/wowsync/internal/provider/github"
	"github.com/wowsync/wowsync/internal/provider/local"
	"github.com/wowsync/wowsync/internal/render"
	"github.com/wowsync/wowsync/internal/resolver"
	"github.com/wowsync/wowsync/internal/store"
)

var (
	// Global flags
	cfgPath   string
	cacheDir  string
	logLevel  string
	logFormat string
	quiet     bool
	globalCfg *config.Config
	logger    *slog.Logger

	// Global components
	globalStore    *store.Store
	globalCache    *cache.Cache
	globalRegistry *provider.Registry
	globalResolver *resolver.Resolver
	globalEngine   *engine.Engine
)

// initializeComponents initializes the global store, cache, registry,
// resolver, and engine
func initializeComponents() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	globalCache = cache.New(globalCfg.Cache.Dir, logger)

	dbPath := filepath.Join(globalCfg.Cache.Dir, "wowsync.db")
	st, err := store.New(dbPath, logger)
	if err != nil {
		// History is a convenience; a broken db must not block a sync.
		logger.Warn("run history unavailable", "path", dbPath, "error", err)
	} else {
		globalStore = st
	}

	client := download.NewClient(logger)

	globalRegistry = provider.NewRegistry(logger)

	// Registration order decides resolution precedence and the report's
	// top-level key order.
	var searcher curseforge.Searcher
	if rendererCmd := globalCfg.CurseForge.Search.Renderer; rendererCmd != "" {
		renderer, err := render.NewCommand(rendererCmd, logger)
		if err != nil {
			logger.Warn("page renderer unavailable, marketplace search disabled", "renderer", rendererCmd, "error", err)
		} else {
			searcher = &curseforge.RenderedSearcher{Renderer: renderer}
		}
	}
	globalRegistry.Register(curseforge.New(searcher, client, globalCache, globalCfg.CurseForge, logger))
	globalRegistry.Register(github.New(globalCfg.GitHub.Providers, client, globalCache, logger))
	globalRegistry.Register(local.New(globalCfg.Local.Dirs, logger))

	globalResolver = resolver.New(globalRegistry, logger)
	globalEngine = engine.New(globalCache, globalStore, os.Stdout, logger)

	logger.Debug("components initialized", "providers", globalRegistry.Names())
	return nil
}

// shouldSkipComponentInit checks if a command should skip component initialization
func shouldSkipComponentInit(cmdName string) bool {
	skipInitCmds := map[string]bool{
		"help":    true,
		"version": true,
		"config":  true,
		"show":    true,
		"get":     true,
	}
	return skipInitCmds[cmdName]
}

// closeStore closes the global store connection
func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wowsync",
		Short: "Scan, resolve, and sync World of Warcraft addons",
		Long: `wowsync inventories the addons installed in a WoW AddOns directory,
resolves each one to a verified remote source (CurseForge project, hosted
git repository, or local directory), and reconciles the directory against
those sources with deduplicated backups and bounded concurrency.`,
		Example: `  wowsync scan ~/WoW/Interface/AddOns -o wowsync.lock.yaml
  wowsync sync ~/WoW/Interface/AddOns
  wowsync status
  wowsync config show`,
		Version: "0.2.0",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize logging
			setupLogging()

			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			// Environment overrides (e.g. WOWSYNC_RENDERER) may live in a
			// local .env during development.
			_ = godotenv.Load()

			// Load config
			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			// Override with command-line flags if provided
			if cacheDir != "" {
				globalCfg.Cache.Dir = cacheDir
			}
			if renderer := os.Getenv("WOWSYNC_RENDERER"); renderer != "" {
				globalCfg.CurseForge.Search.Renderer = renderer
			}

			if !quiet {
				logger.Debug("config loaded", "path", cfgPath, "cache_dir", globalCfg.Cache.Dir)
			}

			if !shouldSkipComponentInit(cmd.Name()) {
				if err := initializeComponents(); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
	}

	// Add persistent flags
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "override cache directory")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	// Add subcommands
	cmd.AddCommand(
		newScanCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":    true,
		"version": true,
	}
	return skipConfigCmds[cmdName]
}
