package cmd

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fraudocr/internal/cache"
	"fraudocr/internal/logger"
	"fraudocr/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render fraud statistics from every cached analysis",
	Long: `Aggregate all cached records into a report:

  - summary: documents, total loss, total victims, years covered
  - top 15 fraud categories by loss
  - losses and victims by age group
  - yearly trend (needs at least two years)
  - top 10 categories compared across years
  - top 20 states by loss or incidents

Records that only hold raw OCR data still contribute state figures read
from the HTML tables in the OCR text.`,
	Example: `  # Markdown to stdout
  fraudocr report

  # HTML page
  fraudocr report --format html -o report.html`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("format", "markdown", "Output format: markdown or html")
	reportCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	reportCmd.Flags().Int("timeout", 120, "Timeout in seconds")
}

func runReport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("report")
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")

	render := report.Markdown
	switch format {
	case "markdown", "md":
	case "html":
		render = report.HTML
	default:
		return fmt.Errorf("unknown report format %q, use markdown or html", format)
	}

	var out bytes.Buffer
	err := withStore(cmd, "report", func(ctx context.Context, store cache.Store) error {
		records, err := store.List(ctx)
		if err != nil {
			return err
		}
		r := report.Build(records)
		log.Info().
			Int("documents", r.Summary.Documents).
			Int("categories", len(r.Categories)).
			Int("states", len(r.States)).
			Msg("Report built")
		return render(&out, r)
	})
	if err != nil {
		return err
	}
	return writeOutput(outputPath, out.Bytes(), log)
}
