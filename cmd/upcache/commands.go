package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdxmph/upcache/pkg/config"
	"github.com/pdxmph/upcache/pkg/duplicate"
	"github.com/pdxmph/upcache/pkg/logger"
	"github.com/pdxmph/upcache/pkg/report"
	"github.com/pdxmph/upcache/pkg/upload"
	"github.com/pdxmph/upcache/pkg/uploader"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// exitf closes the app, prints to stderr and exits with status 1
func (a *app) exitf(format string, args ...any) {
	a.Close()
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

func uploadCommand(cmd *cobra.Command, args []string) {
	filePath := args[0]

	// Check if file exists
	if stat, err := os.Stat(filePath); err != nil || stat.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: File not found: %s\n", filePath)
		os.Exit(1)
	}

	a := mustOpenApp()
	defer a.Close()

	up, err := uploader.New(a.cfg.Uploader)
	if err != nil {
		a.exitf("Error: %v\n", err)
	}

	format := outputFormat
	if format == "" {
		format = a.cfg.Default.Format
	}
	if _, exists := a.cfg.Templates[format]; !exists {
		var formats []string
		for k := range a.cfg.Templates {
			formats = append(formats, k)
		}
		sort.Strings(formats)
		a.exitf("Unknown format: %s\nAvailable formats: %s\n", format, strings.Join(formats, ", "))
	}

	ctx, cancel := commandContext()
	defer cancel()

	if forceUpload {
		fmt.Fprintln(os.Stderr, "--force: skipping cache, uploading a new copy")
	}

	svc := upload.New(a.resolver, up, a.cfg.Templates, a.log)
	result, err := svc.Upload(ctx, filePath, upload.Options{Format: format, Force: forceUpload})
	if err != nil {
		var uploadErr *uploader.UploadError
		if errors.As(err, &uploadErr) && uploadErr.Diagnostics() != "" {
			fmt.Fprintf(os.Stderr, "%s\n", uploadErr.Diagnostics())
		}
		a.exitf("Upload failed: %v\n", err)
	}

	if result.Reused {
		report.WriteUpload(os.Stderr, result.Record)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	fmt.Println(result.FormattedOutput)
}

func statsCommand(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	stats, err := a.cache.Stats(ctx)
	if err != nil {
		a.exitf("Error: %v\n", err)
	}
	report.WriteStats(os.Stdout, stats)
}

func searchCommand(cmd *cobra.Command, args []string) {
	query := ""
	if len(args) > 0 {
		query = args[0]
	}

	a := mustOpenApp()
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	uploads, err := a.cache.ListValid(ctx, query, searchLimit)
	if err != nil {
		a.exitf("Error: %v\n", err)
	}
	report.WriteSearch(os.Stdout, query, uploads)
}

func cleanupCommand(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	size := batchSize
	if size <= 0 {
		size = a.cfg.Cache.SweepBatchSize
	}

	ctx, cancel := commandContext()
	defer cancel()

	sweeper := duplicate.NewSweeper(a.cache, a.verifier,
		duplicate.WithConcurrency(a.cfg.Cache.SweepConcurrency),
		duplicate.WithRate(a.cfg.Cache.SweepRate),
		duplicate.WithSweepLogger(a.log),
	)

	var bar *progressbar.ProgressBar
	count, err := sweeper.Sweep(ctx, size, func(checked, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("Checking URLs"),
				progressbar.OptionShowCount(),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionClearOnFinish(),
			)
		}
		bar.Set(checked)
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		a.exitf("Cleanup interrupted after invalidating %d records: %v\n", count, err)
	}
	fmt.Printf("Invalidated %d records with unreachable URLs\n", count)
}

func migrateCommand(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	count, err := duplicate.ImportJSON(ctx, a.resolver, args[0])
	if err != nil {
		a.exitf("Migration failed: %v\n", err)
	}
	fmt.Printf("Migrated %d records\n", count)
}

func configShowCommand(cmd *cobra.Command, args []string) {
	if err := configShow(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configSetCommand(cmd *cobra.Command, args []string) {
	if err := configSet(args[0], args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configShow() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Default format: %s\n", cfg.Default.Format)

	fmt.Printf("\n  Cache:\n")
	fmt.Printf("    Database: %s\n", cfg.Cache.DBPath)
	fmt.Printf("    Probe timeout: %s\n", cfg.Cache.ProbeTimeout.Duration)
	fmt.Printf("    Sweep batch size: %d\n", cfg.Cache.SweepBatchSize)
	fmt.Printf("    Sweep concurrency: %d\n", cfg.Cache.SweepConcurrency)
	fmt.Printf("    Sweep rate: %g/s\n", cfg.Cache.SweepRate)

	fmt.Printf("\n  Uploader:\n")
	fmt.Printf("    Command: %s\n", strings.Join(cfg.Uploader.Command, " "))
	fmt.Printf("    Endpoint: %s\n", cfg.Uploader.Endpoint)
	fmt.Printf("    Consumer Key: %s\n", maskString(cfg.Uploader.ConsumerKey))
	fmt.Printf("    Consumer Secret: %s\n", maskString(cfg.Uploader.ConsumerSecret))
	fmt.Printf("    Access Token: %s\n", maskString(cfg.Uploader.AccessToken))
	fmt.Printf("    Access Secret: %s\n", maskString(cfg.Uploader.AccessSecret))

	fmt.Printf("\n  Log:\n")
	fmt.Printf("    Level: %s\n", cfg.Log.Level)
	fmt.Printf("    File: %s\n", cfg.Log.File)

	fmt.Printf("\n  Templates:\n")
	names := make([]string, 0, len(cfg.Templates))
	for name := range cfg.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		// Truncate long templates for display
		display := cfg.Templates[name]
		if len(display) > 60 {
			display = display[:57] + "..."
		}
		fmt.Printf("    %s: %s\n", name, display)
	}

	return nil
}

// configSet edits the file as stored; --db and --log-level are not persisted
func configSet(key, value string) error {
	cfg, err := config.LoadFrom(configFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := applySetting(cfg, key, value); err != nil {
		return err
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Set %s\n", key)
	return nil
}

// applySetting updates a single dotted config key
func applySetting(cfg *config.Config, key, value string) error {
	switch {
	case key == "default.format":
		cfg.Default.Format = value
	case key == "cache.db_path":
		cfg.Cache.DBPath = value
	case key == "cache.probe_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		cfg.Cache.ProbeTimeout.Duration = d
	case key == "cache.sweep_batch_size", key == "cache.sweep_concurrency":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer", key)
		}
		if key == "cache.sweep_batch_size" {
			cfg.Cache.SweepBatchSize = n
		} else {
			cfg.Cache.SweepConcurrency = n
		}
	case key == "cache.sweep_rate":
		r, err := strconv.ParseFloat(value, 64)
		if err != nil || r < 0 {
			return fmt.Errorf("%s must be a non-negative number", key)
		}
		cfg.Cache.SweepRate = r
	case key == "uploader.command":
		cfg.Uploader.Command = strings.Fields(value)
	case key == "uploader.endpoint":
		cfg.Uploader.Endpoint = value
	case key == "uploader.form_field":
		cfg.Uploader.FormField = value
	case key == "uploader.url_field":
		cfg.Uploader.URLField = value
	case key == "uploader.consumer_key":
		cfg.Uploader.ConsumerKey = value
	case key == "uploader.consumer_secret":
		cfg.Uploader.ConsumerSecret = value
	case key == "uploader.access_token":
		cfg.Uploader.AccessToken = value
	case key == "uploader.access_secret":
		cfg.Uploader.AccessSecret = value
	case key == "log.level":
		if _, err := logger.ParseLevel(value); err != nil {
			return err
		}
		cfg.Log.Level = value
	case key == "log.file":
		cfg.Log.File = value
	case strings.HasPrefix(key, "template."):
		templateName := strings.TrimPrefix(key, "template.")
		if cfg.Templates == nil {
			cfg.Templates = make(map[string]string)
		}
		cfg.Templates[templateName] = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
