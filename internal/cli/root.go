// Package cli implements the scigo-workbench command line.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/scigo-workbench/internal/config"
	"github.com/YuminosukeSato/scigo-workbench/internal/store"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
)

// Version info (set from main)
var Version = "0.1.0"

// DefaultModelPath is the registry path used when --model-path is not given.
const DefaultModelPath = "Supervised/Regression/Cross Sectional/Linear/OLS"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	cfgFile  string
	logLevel string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "scigo-workbench",
		Short: "Regression workbench: fit, inspect and serve statistical models",
		Long: `scigo-workbench fits Ordinary Least Squares models on CSV data, prints
regression summaries and diagnostic plots, and serves the model wizard over HTTP.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newFitCommand(opts),
		newPredictCommand(opts),
		newSummaryCommand(opts),
		newRegistryCommand(opts),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// SetVersion sets the version for the CLI
func SetVersion(v string) {
	Version = v
}

// loadConfig reads the config file and sets up logging on stderr.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(o.cfgFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := log.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.Store.Path,
		store.WithCompression(cfg.Store.Compress),
		store.WithLogger(log.GetLoggerWithName("store")),
	)
}

// splitPath turns "A/B/C" into registry labels.
func splitPath(p string) []string {
	var out []string
	for _, label := range strings.Split(p, "/") {
		if label = strings.TrimSpace(label); label != "" {
			out = append(out, label)
		}
	}
	return out
}
