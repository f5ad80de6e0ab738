package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fraudocr/internal/cache"
	"fraudocr/internal/logger"
	"fraudocr/pkg/models"
)

const deleteAllConfirmation = "DELETE ALL"

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage cached analyses",
	Long: `Commands for the cache table (CACHE_TABLE, default ocr_results).

Records are keyed by the PDF's base filename, e.g. 2023_IC3Report.pdf.`,
}

var cacheCheckCmd = &cobra.Command{
	Use:   "check [filename]",
	Short: "Show whether a document is cached",
	Long: `Show whether a document is cached. Without a filename the most recently
cached document is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, "cache-check", func(ctx context.Context, store cache.Store) error {
			var rec *models.Record
			var err error
			name := ""
			if len(args) == 1 {
				name = args[0]
				rec, err = store.Lookup(ctx, name)
			} else {
				rec, err = cache.Latest(ctx, store)
			}
			if errors.Is(err, cache.ErrNotFound) {
				if name == "" {
					fmt.Println("Cache is empty")
				} else {
					fmt.Printf("%s is not cached\n", name)
				}
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s is cached (version %d, cached %s, formatted: %t)\n",
				rec.Filename, rec.Version, rec.CachedAt.Format("2006-01-02 15:04:05"), rec.Formatted)
			return nil
		})
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached documents, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, "cache-list", func(ctx context.Context, store cache.Store) error {
			records, err := store.List(ctx)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("Cache is empty")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILENAME\tPAGES\tFORMATTED\tVERSION\tCACHED AT\tKEYWORDS")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%d\t%t\t%d\t%s\t%s\n", r.Filename, r.TotalPages, r.Formatted,
					r.Version, r.CachedAt.Format("2006-01-02 15:04"), strings.Join(r.Keywords, ", "))
			}
			return tw.Flush()
		})
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete [filename]",
	Short: "Delete one cached document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, "cache-delete", func(ctx context.Context, store cache.Store) error {
			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s from cache\n", args[0])
			return nil
		})
	},
}

var cacheDeleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every cached document",
	Long: `Delete every record in the cache table. You are asked to type
"DELETE ALL" unless --yes is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled, nothing deleted")
				return nil
			}
		}
		return withStore(cmd, "cache-delete-all", func(ctx context.Context, store cache.Store) error {
			n, err := store.DeleteAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d cached document(s)\n", n)
			return nil
		})
	},
}

var cacheVerifyCmd = &cobra.Command{
	Use:   "verify [filename]",
	Short: "Show what is stored for a document",
	Long: `Print the stored columns of a record, a summary of the formatted
analysis and a preview of the raw OCR data it was produced from.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, "cache-verify", func(ctx context.Context, store cache.Store) error {
			rec, err := store.Lookup(ctx, args[0])
			if err != nil {
				return err
			}
			return printVerification(os.Stdout, rec)
		})
	},
}

var cacheInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the cache table if it does not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, "cache-init", func(ctx context.Context, store cache.Store) error {
			s, ok := store.(interface{ CreateSchema(context.Context) error })
			if !ok {
				fmt.Println("Backend needs no schema, nothing to do")
				return nil
			}
			if err := s.CreateSchema(ctx); err != nil {
				return err
			}
			fmt.Println("Cache table ready")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheCheckCmd, cacheListCmd, cacheDeleteCmd, cacheDeleteAllCmd, cacheVerifyCmd, cacheInitCmd)

	cacheCmd.PersistentFlags().Int("timeout", 60, "Timeout in seconds")
	cacheDeleteAllCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
}

// withStore opens the cache, runs fn and maps its error.
func withStore(cmd *cobra.Command, component string, fn func(context.Context, cache.Store) error) error {
	log := logger.WithComponent(component)
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := loadConfig()
	if err != nil {
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

	if err := fn(ctx, store); err != nil {
		return handleCacheError(err, log)
	}
	return nil
}

// confirm asks for the delete-all phrase on in.
func confirm(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprintf(out, "This deletes every cached analysis. Type '%s' to confirm: ", deleteAllConfirmation)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimSpace(line) == deleteAllConfirmation, nil
}

func printVerification(w io.Writer, rec *models.Record) error {
	var b strings.Builder
	line := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "%s\nStored data for %s\n%s\n\n", line, rec.Filename, line)

	b.WriteString("Columns:\n")
	cols := []struct {
		name string
		set  bool
	}{
		{"filename", rec.Filename != ""},
		{"formatted_json", len(rec.FormattedJSON) > 0},
		{"original_ocr_data", rec.OCR != nil},
		{"total_pages", rec.TotalPages > 0},
		{"keywords", len(rec.Keywords) > 0},
		{"key_metrics", rec.KeyMetrics != nil},
		{"formatted", true},
		{"version", rec.Version > 0},
		{"created_at", !rec.CreatedAt.IsZero()},
		{"cached_at", !rec.CachedAt.IsZero()},
	}
	for _, c := range cols {
		mark := "set"
		if !c.set {
			mark = "empty"
		}
		fmt.Fprintf(&b, "  %-18s %s\n", c.name, mark)
	}

	fmt.Fprintf(&b, "\n%s\nAI analysis (formatted_json)\n%s\n", line, line)
	if a, err := models.ParseAnalysis(rec.FormattedJSON); err == nil {
		fmt.Fprintf(&b, "  Document type:   %s\n", orNA(a.DocumentType))
		fmt.Fprintf(&b, "  Total pages:     %d\n", a.TotalPages)
		fmt.Fprintf(&b, "  Overall summary: %s\n", preview(a.OverallSummary, 200))
		if a.OverallMetrics != nil && len(a.OverallMetrics.TopFraudCategories) > 0 {
			fmt.Fprintf(&b, "  Top categories:  %s\n", strings.Join(a.OverallMetrics.TopFraudCategories, ", "))
		}
		b.WriteString("  Pages analysed:\n")
		for _, p := range a.Pages {
			fmt.Fprintf(&b, "    Page %d: %s\n", p.PageNumber, preview(p.ContentSummary, 100))
		}
	} else if rec.Formatted {
		fmt.Fprintf(&b, "  Could not parse formatted_json: %v\n", err)
	} else {
		b.WriteString("  Not formatted: the AI model failed and raw OCR data was stored instead\n")
	}

	fmt.Fprintf(&b, "\n%s\nRaw OCR data (original_ocr_data)\n%s\n", line, line)
	if rec.OCR == nil {
		b.WriteString("  (none stored)\n")
	} else {
		fmt.Fprintf(&b, "  Filename:    %s\n", rec.OCR.Filename)
		fmt.Fprintf(&b, "  Total pages: %d (%d read)\n", rec.OCR.TotalPages, rec.OCR.SuccessfulPages())
		if len(rec.OCR.Results) > 0 {
			fmt.Fprintf(&b, "  First page:  %s\n", preview(rec.OCR.Results[0].Text, 200))
		}
	}

	if rec.KeyMetrics != nil {
		km, err := json.MarshalIndent(rec.KeyMetrics, "  ", "  ")
		if err == nil {
			fmt.Fprintf(&b, "\nKey metrics:\n  %s\n", km)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "N/A"
	}
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
