package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const barWidth = 30

// Markdown writes r as a markdown document with unicode bar charts.
func Markdown(w io.Writer, r *Report) error {
	var b strings.Builder

	b.WriteString("# FBI Fraud Report Analysis\n\n")
	fmt.Fprintf(&b, "_Generated %s_\n\n", r.GeneratedAt.Format("2006-01-02 15:04 MST"))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Documents | %d |\n", r.Summary.Documents)
	fmt.Fprintf(&b, "| Formatted analyses | %d |\n", r.Summary.Formatted)
	fmt.Fprintf(&b, "| Total loss | %s |\n", money(r.Summary.TotalLoss))
	fmt.Fprintf(&b, "| Total victims | %s |\n", count(r.Summary.TotalVictims))
	fmt.Fprintf(&b, "| Years covered | %s |\n\n", joinYears(r.Summary.Years))

	if r.Summary.Documents == 0 {
		b.WriteString("No cached documents. Run `fraudocr run <pdf>` first.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	section(&b, "Top Fraud Categories by Financial Loss", len(r.Categories) > 0, func() {
		top := maxOf(len(r.Categories), func(i int) float64 { return r.Categories[i].Loss })
		b.WriteString("| Category | Loss | Victims | Chart |\n|---|---:|---:|---|\n")
		for _, c := range r.Categories {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(c.Label), money(c.Loss), count(c.Victims), bar(c.Loss, top))
		}
	})

	section(&b, "Losses and Victims by Age Group", len(r.AgeGroups) > 0, func() {
		top := maxOf(len(r.AgeGroups), func(i int) float64 { return r.AgeGroups[i].Loss })
		b.WriteString("| Age group | Loss | Victims | Chart |\n|---|---:|---:|---|\n")
		for _, a := range r.AgeGroups {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(a.Label), money(a.Loss), count(a.Victims), bar(a.Loss, top))
		}
	})

	section(&b, "Fraud Trends Over Time", len(r.Trend) > 0, func() {
		top := maxOf(len(r.Trend), func(i int) float64 { return r.Trend[i].Loss })
		b.WriteString("| Year | Loss | Victims | Chart |\n|---|---:|---:|---|\n")
		for _, t := range r.Trend {
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", t.Year, money(t.Loss), count(t.Victims), bar(t.Loss, top))
		}
	})

	section(&b, "Top Categories Across Years", len(r.Comparison) > 0, func() {
		b.WriteString("| Category |")
		for _, y := range r.Years {
			fmt.Fprintf(&b, " %d |", y)
		}
		b.WriteString(" Total |\n|---|")
		for range r.Years {
			b.WriteString("---:|")
		}
		b.WriteString("---:|\n")
		for _, c := range r.Comparison {
			fmt.Fprintf(&b, "| %s |", cell(c.Category))
			for _, y := range r.Years {
				if v, ok := c.ByYear[y]; ok {
					fmt.Fprintf(&b, " %s |", money(v))
				} else {
					b.WriteString(" - |")
				}
			}
			fmt.Fprintf(&b, " %s |\n", money(c.Total))
		}
	})

	title := "Top States by Financial Loss"
	if !r.StatesByLoss {
		title = "Top States by Incidents"
	}
	section(&b, title, len(r.States) > 0, func() {
		top := maxOf(len(r.States), func(i int) float64 {
			if r.StatesByLoss {
				return r.States[i].Loss
			}
			return r.States[i].Incidents
		})
		b.WriteString("| State | Loss | Incidents | Chart |\n|---|---:|---:|---|\n")
		for _, s := range r.States {
			v := s.Incidents
			if r.StatesByLoss {
				v = s.Loss
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(s.State), money(s.Loss), count(s.Incidents), bar(v, top))
		}
	})

	_, err := io.WriteString(w, b.String())
	return err
}

// HTML renders the markdown report to a standalone HTML page.
func HTML(w io.Writer, r *Report) error {
	var src bytes.Buffer
	if err := Markdown(&src, r); err != nil {
		return err
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	var body bytes.Buffer
	if err := md.Convert(src.Bytes(), &body); err != nil {
		return fmt.Errorf("render report html: %w", err)
	}

	if _, err := io.WriteString(w, htmlHead); err != nil {
		return err
	}
	if _, err := body.WriteTo(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</body>\n</html>\n")
	return err
}

const htmlHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>FBI Fraud Report Analysis</title>
<style>
body { font-family: sans-serif; margin: 2em auto; max-width: 1100px; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 8px; }
td:last-child { color: #dc143c; font-family: monospace; }
</style>
</head>
<body>
`

func section(b *strings.Builder, title string, ok bool, body func()) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if !ok {
		b.WriteString("_No data available._\n\n")
		return
	}
	body()
	b.WriteString("\n")
}

func bar(v, top float64) string {
	if top <= 0 || v <= 0 {
		return ""
	}
	n := int(math.Round(v / top * barWidth))
	if n == 0 {
		n = 1
	}
	return strings.Repeat("█", n)
}

func maxOf(n int, val func(int) float64) float64 {
	var m float64
	for i := 0; i < n; i++ {
		if v := val(i); v > m {
			m = v
		}
	}
	return m
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func joinYears(years []int) string {
	if len(years) == 0 {
		return "-"
	}
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ", ")
}

func money(v float64) string {
	return "$" + grouped(int64(math.Round(v)))
}

func count(v float64) string {
	return grouped(int64(math.Round(v)))
}

// grouped formats n with thousands separators.
func grouped(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(r)
	}
	if neg {
		return "-" + out.String()
	}
	return out.String()
}
