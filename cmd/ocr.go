package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fraudocr/internal/logger"
	"fraudocr/internal/ocr"
	"fraudocr/pkg/models"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [pdf-file]",
	Short: "Run OCR on a PDF and write the per-page JSON",
	Long: `Send a PDF to the configured OCR backend and write the raw result as JSON:

  {"filename": "...", "total_pages": N, "results": [{"page": 1, "text": "...", "status": "success"}]}

Nothing is cached. Use "fraudocr analyze" on the output to format and cache it,
or "fraudocr run" to do everything in one go.

Backends (OCR_BACKEND):
  http        POST to OCR_ENDPOINT/ocr/pdf (default)
  vision      Google Cloud Vision, needs GOOGLE_CLOUD_PROJECT and credentials
  documentai  Google Document AI, also needs DOCUMENT_AI_PROCESSOR_ID`,
	Example: `  # Write 2023_IC3Report_ocr.json next to the input
  fraudocr ocr 2023_IC3Report.pdf -o 2023_IC3Report_ocr.json

  # Print only the page text
  fraudocr ocr 2023_IC3Report.pdf --text

  # Process with custom timeout
  fraudocr ocr large-report.pdf --timeout 1200`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().Bool("text", false, "Output plain page text instead of JSON")
	ocrCmd.Flags().Int("timeout", 600, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	textOutput, _ := cmd.Flags().GetBool("text")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	pdfPath := args[0]

	log.Info().
		Str("file", pdfPath).
		Str("output", outputPath).
		Int("timeout", timeoutSecs).
		Msg("Starting OCR processing")

	if _, err := validatePDFFile(pdfPath, log); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	doc, err := ocr.LoadDocument(pdfPath)
	if err != nil {
		return handleOCRError(err, log)
	}

	extractor, closeExtractor, err := newExtractor(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeExtractor()

	startTime := time.Now()
	result, err := extractor.Extract(ctx, doc)
	if err != nil {
		return handleOCRError(err, log)
	}

	log.Info().
		Int("pages", len(result.Results)).
		Int("successful_pages", result.SuccessfulPages()).
		Dur("duration", time.Since(startTime)).
		Msg("OCR processing completed successfully")

	var data []byte
	if textOutput {
		data = []byte(result.Text())
	} else if data, err = json.MarshalIndent(result, "", "  "); err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	return writeOutput(outputPath, data, log)
}

// validatePDFFile checks if the file exists, is readable, and appears to be a PDF
func validatePDFFile(pdfPath string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", pdfPath).
				Msg("PDF file not found")
			return nil, fmt.Errorf("PDF file not found: %s", pdfPath)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", pdfPath).
				Msg("Permission denied accessing PDF file")
			return nil, fmt.Errorf("permission denied accessing PDF file: %s", pdfPath)
		}
		return nil, fmt.Errorf("error accessing PDF file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", pdfPath)
	}

	if !strings.HasSuffix(strings.ToLower(pdfPath), ".pdf") {
		log.Warn().
			Str("file", pdfPath).
			Msg("File does not have .pdf extension")
	}

	if fileInfo.Size() == 0 {
		return nil, fmt.Errorf("PDF file is empty: %s", pdfPath)
	}

	if fileInfo.Size() > ocr.MaxFileSizeBytes {
		log.Error().
			Str("file", pdfPath).
			Int64("size", fileInfo.Size()).
			Int64("max_size", ocr.MaxFileSizeBytes).
			Msg("PDF file exceeds maximum size limit")
		return nil, fmt.Errorf("PDF file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), ocr.MaxFileSizeBytes)
	}

	return fileInfo, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrPDFTooLarge):
		return fmt.Errorf("PDF file is too large (maximum 20MB). Try compressing or splitting the file")
	case errors.Is(err, ocr.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity")
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the document. The PDF may contain only images or be corrupted")
	case errors.Is(err, ocr.ErrUnauthorized):
		return fmt.Errorf("the OCR endpoint rejected the request. Check OCR_TOKEN: %w", err)
	case errors.Is(err, ocr.ErrEndpointUnavailable):
		return fmt.Errorf("cannot reach the OCR endpoint. Check OCR_ENDPOINT and that the service is running: %w", err)
	case errors.Is(err, ocr.ErrMalformedResponse):
		return fmt.Errorf("the OCR endpoint returned an unexpected response: %w", err)
	case errors.Is(err, ocr.ErrMissingCredentials),
		strings.Contains(errStr, "Unauthenticated"),
		strings.Contains(errStr, "invalid_grant"),
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Please check your credentials:\n\n"+
			"1. Set GOOGLE_APPLICATION_CREDENTIALS to your service account JSON file path:\n"+
			"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n"+
			"2. Or set GOOGLE_SERVICE_ACCOUNT_KEY with inline JSON\n\n"+
			"3. If using Application Default Credentials, run:\n"+
			"   gcloud auth application-default login\n\n"+
			"Original error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Please ensure your service account may call the Vision or Document AI API")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") || strings.Contains(errStr, "quota"):
		return fmt.Errorf("Google Cloud API quota exceeded. Check your project quotas in the Google Cloud Console")
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues or service unavailability: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

// readOCRFile loads OCR JSON written by "fraudocr ocr" or the OCR endpoint.
func readOCRFile(path string) (*models.OCRResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read OCR JSON: %w", err)
	}
	var result models.OCRResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse OCR JSON %s: %w", path, err)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("invalid OCR JSON %s: %w", path, err)
	}
	return &result, nil
}

// writeOutput writes data to path, or stdout when path is empty.
// stdout is where command results go when no output file is given.
var stdout io.Writer = os.Stdout

func writeOutput(path string, data []byte, log zerolog.Logger) error {
	if path == "" {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Fprintln(stdout)
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", path).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().
		Str("output_file", path).
		Int("bytes", len(data)).
		Msg("Output written to file")
	return nil
}
