// Package cmd implements the CLI commands for TutorialPipe using Cobra.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gaurav-prasanna/tutorialpipe/config"
	"github.com/gaurav-prasanna/tutorialpipe/logger"
)

// Persistent flag variables.
var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

// cfg is loaded once per invocation by the root command's pre-run hook.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tutorialpipe",
	Short: "TutorialPipe turns a PDF or web page into a Markdown tutorial",
	Long: `TutorialPipe retrieves a PDF or web page, splits it into content blocks,
classifies them with a language model and writes a structured Markdown
tutorial (Introduction, Prerequisites, Steps, Examples, Conclusion).

Usage:
  tutorialpipe generate <url-or-path> [flags]
  tutorialpipe serve [flags]`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Optional YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: text or json (overrides LOG_FORMAT)")

	// Accept --output_dir style spellings as well as --output-dir.
	rootCmd.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagLogLevel != "" {
		c.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		c.Log.Format = flagLogFormat
	}
	logger.Setup(c.Log.Level, c.Log.Format)
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
