// Package cmd implements the reelforge command line interface.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/logging"
)

// Exit codes. Interrupted runs exit with the conventional 130.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

// errInterrupted marks a run stopped by a signal so Execute can map it
// to the right exit code.
var errInterrupted = errors.New("interrupted")

var rootCmd = &cobra.Command{
	Use:   "reelforge",
	Short: "Automated Top-5 review video pipeline",
	Long: `reelforge runs an agent pipeline that turns a pending video title
into a published Top-5 product review video: scrape products, generate
images, script and narration, render the video and publish it to
YouTube, WordPress and Instagram.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errInterrupted) {
			return exitInterrupted
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFailure
	}
	return exitOK
}

// SetVersion injects build-time version information.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./reelforge.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (auto, text, json)")
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
}
