package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"fraudocr/internal/logger"
	"fraudocr/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [ocr-json]",
	Short: "Format existing OCR output with the AI model and cache it",
	Long: `Send OCR output to the AI formatter and save the structured result.

The OCR data comes from a JSON file written by "fraudocr ocr" or the OCR
endpoint, or with --from-cache from a record that is already cached. Cached
documents are re-analysed only with --force; --from-cache always re-analyses.`,
	Example: `  # Analyse OCR output produced earlier
  fraudocr analyze 2023_IC3Report_ocr.json

  # Re-run the AI model on cached OCR data
  fraudocr analyze --from-cache 2023_IC3Report.pdf`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("from-cache", "", "Re-analyse the cached OCR data of this filename")
	analyzeCmd.Flags().Bool("force", false, "Re-analyse even if the document is cached")
	analyzeCmd.Flags().StringP("output", "o", "", "Write the formatted JSON to this file")
	analyzeCmd.Flags().Int("timeout", 900, "Timeout in seconds")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("analyze")

	fromCache, _ := cmd.Flags().GetString("from-cache")
	force, _ := cmd.Flags().GetBool("force")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	if (len(args) == 0) == (fromCache == "") {
		return fmt.Errorf("give either an OCR JSON file or --from-cache, not both")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := pipeline.Request{Options: pipeline.Options{SkipOCR: true, Force: force}}
	if fromCache != "" {
		req.Filename = fromCache
		req.Options.Force = true
	} else if req.OCR, err = readOCRFile(args[0]); err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	store, err := openStore(ctx, cfg, false, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close cache")
		}
	}()

	f, closeFormatter, err := newFormatter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFormatter()

	res, err := pipeline.New(store, nil, f).Run(ctx, req)
	if err != nil {
		return handlePipelineError(err, log)
	}

	printRunSummary(res)
	return emitResult(res, outputPath, log)
}
