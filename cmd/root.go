package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fraudocr/internal/config"
	"fraudocr/internal/logger"
)

var version = "0.3.0"

// appConfig is set by main once the environment has been loaded.
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "fraudocr",
	Short: "fraudocr - OCR, analyse and chart FBI fraud report PDFs",
	Long: `fraudocr pulls scanned fraud-report PDFs through an OCR service, asks a
generative AI model to turn the raw page text into structured tables, caches
the result in a database keyed by filename and renders reports from the cache.

Documents that are already cached are never sent to OCR or the AI model again
unless --force is given.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Debug().
			Str("version", version).
			Msg("fraudocr executed without subcommand")

		_ = cmd.Help()
	},
}

func Execute(cfg *config.Config) {
	log := logger.WithComponent("cmd")
	appConfig = cfg

	if err := rootCmd.Execute(); err != nil {
		log.Debug().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig returns the configuration loaded by main, or loads it again to
// surface the original error.
func loadConfig() (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	appConfig = cfg
	return cfg, nil
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}
