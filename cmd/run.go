package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fraudocr/internal/formatter"
	"fraudocr/internal/logger"
	"fraudocr/internal/ocr"
	"fraudocr/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [pdf-file]",
	Short: "Check the cache, OCR, format and cache one PDF",
	Long: `Run the full pipeline for one document:

  check cache -> hit:  print the cached analysis
              -> miss: OCR -> AI formatting -> save to cache

The resulting JSON is printed to stdout, or written to --output.

The cache key is the PDF's base filename. A cached document is never sent to
OCR or the AI model again unless --force is given.

If the AI model keeps failing after the configured retries, the raw OCR JSON
is cached instead and the record is marked as not formatted.`,
	Example: `  # Process a report
  fraudocr run 2023_IC3Report.pdf

  # Re-analyse a cached report without repeating OCR
  fraudocr run 2023_IC3Report.pdf --skip-ocr --force

  # Analyse existing OCR output
  fraudocr run --ocr-json 2023_IC3Report_ocr.json

  # Try the pipeline without touching the database
  fraudocr run 2023_IC3Report.pdf --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("skip-ocr", false, "Use --ocr-json or the cached OCR data instead of calling OCR")
	runCmd.Flags().Bool("skip-format", false, "Stop after OCR; nothing is cached")
	runCmd.Flags().String("ocr-json", "", "Existing OCR JSON to analyse (implies --skip-ocr)")
	runCmd.Flags().Bool("force", false, "Re-analyse even if the document is cached")
	runCmd.Flags().Bool("dry-run", false, "Use an in-memory cache and do not archive OCR output")
	runCmd.Flags().StringP("output", "o", "", "Write the resulting JSON to this file")
	runCmd.Flags().Int("timeout", 1800, "Pipeline timeout in seconds")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("run")

	skipOCR, _ := cmd.Flags().GetBool("skip-ocr")
	skipFormat, _ := cmd.Flags().GetBool("skip-format")
	ocrJSON, _ := cmd.Flags().GetString("ocr-json")
	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	if len(args) == 0 && ocrJSON == "" {
		return fmt.Errorf("a PDF file or --ocr-json is required")
	}
	if skipOCR && skipFormat {
		return fmt.Errorf("--skip-ocr and --skip-format together leave nothing to do")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := pipeline.Request{Options: pipeline.Options{
		SkipOCR:    skipOCR || ocrJSON != "",
		SkipFormat: skipFormat,
		Force:      force,
	}}

	if ocrJSON != "" {
		if req.OCR, err = readOCRFile(ocrJSON); err != nil {
			return err
		}
	}
	if len(args) == 1 {
		pdfPath := args[0]
		req.Filename = filepath.Base(pdfPath)
		if !req.Options.SkipOCR {
			if _, err := validatePDFFile(pdfPath, log); err != nil {
				return err
			}
			if req.Document, err = ocr.LoadDocument(pdfPath); err != nil {
				return handleOCRError(err, log)
			}
		}
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	store, err := openStore(ctx, cfg, dryRun, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close cache")
		}
	}()

	var opts []pipeline.Option
	var extractor ocr.Extractor
	if !req.Options.SkipOCR {
		var closeExtractor func()
		extractor, closeExtractor, err = newExtractor(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeExtractor()

		sink, closeSink, err := newArtifactSink(ctx, cfg, dryRun, log)
		if err != nil {
			return err
		}
		defer closeSink()
		opts = append(opts, pipeline.WithArtifactSink(sink))
	}

	var f formatter.Formatter
	if !skipFormat {
		var closeFormatter func()
		f, closeFormatter, err = newFormatter(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeFormatter()
	}

	orch := pipeline.New(store, extractor, f, opts...)
	res, err := orch.Run(ctx, req)
	if err != nil {
		return handlePipelineError(err, log)
	}

	printRunSummary(res)
	return emitResult(res, outputPath, log)
}

// emitResult writes the formatted JSON, or the OCR data for OCR-only runs,
// to path or stdout.
func emitResult(res *pipeline.Result, path string, log zerolog.Logger) error {
	var (
		out []byte
		err error
	)
	if res.Record != nil {
		out, err = json.MarshalIndent(res.Record.FormattedJSON, "", "  ")
	} else {
		out, err = json.MarshalIndent(res.OCR, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return writeOutput(path, out, log)
}

func printRunSummary(res *pipeline.Result) {
	var b strings.Builder
	switch res.Outcome {
	case pipeline.OutcomeCached:
		fmt.Fprintf(&b, "Using cached analysis for %s (version %d, cached %s)\n",
			res.Record.Filename, res.Record.Version, res.Record.CachedAt.Format("2006-01-02 15:04"))
	case pipeline.OutcomeOCROnly:
		fmt.Fprintf(&b, "OCR finished for %s: %d/%d pages read, nothing cached\n",
			res.OCR.Filename, res.OCR.SuccessfulPages(), len(res.OCR.Results))
	default:
		fmt.Fprintf(&b, "Cached %s (version %d)\n", res.Record.Filename, res.Record.Version)
		if !res.Formatted {
			fmt.Fprintf(&b, "Warning: AI formatting failed (%v); raw OCR data was cached instead\n", res.FormatErr)
		}
	}
	if res.ArtifactPath != "" {
		fmt.Fprintf(&b, "Raw OCR archived to %s\n", res.ArtifactPath)
	}
	if rec := res.Record; rec != nil && rec.KeyMetrics != nil {
		km := rec.KeyMetrics
		if km.Year != 0 {
			fmt.Fprintf(&b, "Year: %d\n", km.Year)
		}
		if km.TotalLoss != nil {
			fmt.Fprintf(&b, "Total loss: $%d\n", km.TotalLoss.Int64())
		}
		if len(rec.Keywords) > 0 {
			fmt.Fprintf(&b, "Top categories: %s\n", strings.Join(rec.Keywords, ", "))
		}
	}
	fmt.Fprint(stdout, b.String())
}
