package main

import (
	"fmt"
	"os"

	"github.com/op/go-logging"
	"github.com/pdxmph/upcache/pkg/config"
	"github.com/pdxmph/upcache/pkg/duplicate"
	"github.com/pdxmph/upcache/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	// Version information (set by ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// Global flags
	configPath string
	dbPath     string
	logLevel   string

	// Upload flags
	outputFormat string
	forceUpload  bool

	// Search flags
	searchLimit int

	// Cleanup flags
	batchSize int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:   "upcache",
		Short: "Upload files once, reuse their URLs",
		Long: `upcache - uploads a file through an external uploader and remembers the
resulting URL, so uploading the same file again (same name or same content)
returns the existing URL after checking it is still reachable.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "version for upcache")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/upcache/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Cache database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warning, error")

	// Upload command
	uploadCmd := &cobra.Command{
		Use:   "upload [file]",
		Short: "Upload a file, reusing a cached URL when possible",
		Args:  cobra.ExactArgs(1),
		Run:   uploadCommand,
	}
	uploadCmd.Flags().StringVar(&outputFormat, "format", "", "Output format: url, markdown, html, json, org")
	uploadCmd.Flags().BoolVar(&forceUpload, "force", false, "Skip the cache and always upload")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		Run:   statsCommand,
	}

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search valid uploads by filename, URL or path",
		Args:  cobra.MaximumNArgs(1),
		Run:   searchCommand,
	}
	searchCmd.Flags().IntVar(&searchLimit, "limit", duplicate.DefaultSearchLimit, "Maximum number of results")

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Re-check cached URLs and invalidate the dead ones",
		Args:  cobra.NoArgs,
		Run:   cleanupCommand,
	}
	cleanupCmd.Flags().IntVar(&batchSize, "batch", 0, "Number of records to check (default from config)")

	migrateCmd := &cobra.Command{
		Use:   "migrate [json]",
		Short: "Import a legacy filename-to-URL JSON file",
		Args:  cobra.ExactArgs(1),
		Run:   migrateCommand,
	}

	// Config command
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Show configuration",
		Run:   configShowCommand,
	}

	configSetCmd := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		Run:   configSetCommand,
	}

	configCmd.AddCommand(configShowCmd, configSetCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	}

	rootCmd.AddCommand(uploadCmd, statsCmd, searchCmd, cleanupCmd, migrateCmd, configCmd, versionCmd)
	return rootCmd
}

func printVersion() {
	fmt.Printf("upcache version %s\n", version)
	if version != "dev" {
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	}
}

// configFile returns the config file selected by --config or the default
func configFile() string {
	if configPath != "" {
		return configPath
	}
	return config.Path()
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(configFile())
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Cache.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// app bundles the components a command needs
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	cache    *duplicate.SQLiteCache
	verifier *duplicate.HTTPVerifier
	resolver *duplicate.Resolver
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log, err := logger.InitLogger(cfg.Log.File, level)
	if err != nil {
		return nil, err
	}

	cache, err := duplicate.NewSQLiteCache(cfg.Cache.DBPath, duplicate.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	verifier := duplicate.NewHTTPVerifier(cfg.Cache.ProbeTimeout.Duration)
	verifier.Log = log

	return &app{
		cfg:      cfg,
		log:      log,
		cache:    cache,
		verifier: verifier,
		resolver: duplicate.NewResolver(cache, verifier, log),
	}, nil
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		a.log.Warningf("close cache: %v", err)
	}
}

// mustOpenApp opens the app or exits
func mustOpenApp() *app {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}
