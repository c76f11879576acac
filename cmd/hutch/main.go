package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/hutch/pkg/config"
	"github.com/cuemby/hutch/pkg/kv"
	"github.com/cuemby/hutch/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hutch",
	Short: "Hutch - Embeddable transactional storage engine",
	Long: `Hutch is an embeddable storage engine exposing binary blobs,
hierarchical documents, and directed graphs over a single transactional
key-value substrate, delivered as a single library with an optional CLI.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Hutch version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().String("engine", "", "Substrate engine: memory or bolt (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	// Initialize logging before command execution
	cobra.OnInitialize(initLogging)

	// Add subcommands
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(benchCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOut,
	})
}

// loadOptions merges the config file with command-line overrides.
func loadOptions(*cobra.Command) (kv.Options, error) {
	flags := rootCmd.PersistentFlags()
	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return kv.Options{}, err
		}
		cfg = loaded
		cfg.InitLogging()
	}
	if dir, _ := flags.GetString("dir"); dir != "" {
		cfg.Store.Dir = dir
	}
	if engine, _ := flags.GetString("engine"); engine != "" {
		cfg.Store.Engine = engine
	}
	return cfg.Store, nil
}
