// Package report renders detection reports for people: the classic two line
// console format, Markdown, and HTML built from the Markdown.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"ctleak/domain/leakage"
	"ctleak/internal/errors"
)

// Format selects a renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts text, json, markdown or md.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", errors.ConfigInvalid(fmt.Sprintf("unknown report format %q", s))
	}
}

// Write renders reports to w.
func Write(w io.Writer, format Format, reports []*leakage.Report) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case FormatMarkdown:
		for _, r := range reports {
			if _, err := w.Write(Markdown(r)); err != nil {
				return err
			}
		}
		return nil
	default:
		for _, r := range reports {
			if _, err := io.WriteString(w, Text(r)); err != nil {
				return err
			}
		}
		return nil
	}
}

// ProgressLine is the per-round status line.
func ProgressLine(r *leakage.Report) string {
	line := fmt.Sprintf("meas: %7.2f M, ", float64(r.Traces)/1e6)
	if !r.Enough() {
		return line + fmt.Sprintf("not enough measurements (%d still to go).", r.StillToGo)
	}
	return strings.TrimSuffix(line, ", ")
}

// m2 recovers the sum of squared deviations from the sample variance.
func m2(s leakage.ClassStats) float64 {
	if s.Count < 2 {
		return 0
	}
	return s.Variance * float64(s.Count-1)
}

// Text renders the classic console report followed by the verdict.
func Text(r *leakage.Report) string {
	var b strings.Builder
	b.WriteString(ProgressLine(r))
	b.WriteByte('\n')
	fmt.Fprintf(&b,
		"max t [%d]: %+7.2f, max tau: %.2e, (5/tau)^2: %.2e, mu0: %.2e, mu1: %.2e, dmu: %-.2e, s0: %.2e, s1: %.2e, m20: %.2e, m21: %.2e.\n",
		r.Variant, r.MaxT, r.Tau, r.TracesToDetect,
		r.Class0.Mean, r.Class1.Mean, r.Class1.Mean-r.Class0.Mean,
		r.Class0.StdDev, r.Class1.StdDev, m2(r.Class0), m2(r.Class1))
	fmt.Fprintf(&b, "%s: %s\n", r.Target, verdictLine(r))
	return b.String()
}

func verdictLine(r *leakage.Report) string {
	switch r.Outcome {
	case leakage.OutcomeLeaking:
		if r.Severity == leakage.SeverityBananas {
			return "definitely not constant time"
		}
		return "probably not constant time"
	case leakage.OutcomeNoLeak:
		return "probably constant time"
	default:
		return "inconclusive, not enough measurements"
	}
}

// Markdown renders one report as a section with a statistics table.
func Markdown(r *leakage.Report) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "## %s\n\n", r.Target)
	fmt.Fprintf(&b, "**Verdict:** %s (`%s`, severity `%s`)\n\n", verdictLine(r), r.Outcome, r.Severity)
	fmt.Fprintf(&b, "Run `%s`, %d rounds, %d trials measured, %d discarded for counter wraparound.\n\n",
		r.RunID, r.Rounds, r.Measured, r.Wraparounds)

	variant := string(r.VariantKind)
	if r.VariantKind == leakage.VariantCropped {
		variant = fmt.Sprintf("cropped below %d ticks", r.CropThreshold)
	}
	b.WriteString("| Statistic | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Chosen variant | %d (%s) |\n", r.Variant, variant)
	fmt.Fprintf(&b, "| max \\|t\\| | %.2f |\n", r.MaxT)
	fmt.Fprintf(&b, "| p-value | %.3g |\n", r.PValue)
	fmt.Fprintf(&b, "| tau | %.3e |\n", r.Tau)
	fmt.Fprintf(&b, "| (5/tau)² | %.3e |\n", r.TracesToDetect)
	fmt.Fprintf(&b, "| Traces | %d |\n", r.Traces)
	if !r.Enough() {
		fmt.Fprintf(&b, "| Still to go | %d |\n", r.StillToGo)
	}
	b.WriteString("\n| Class | n | mean | std dev |\n|---|---|---|---|\n")
	fmt.Fprintf(&b, "| 0 (fixed) | %d | %.2f | %.2f |\n", r.Class0.Count, r.Class0.Mean, r.Class0.StdDev)
	fmt.Fprintf(&b, "| 1 (random) | %d | %.2f | %.2f |\n\n", r.Class1.Count, r.Class1.Mean, r.Class1.StdDev)
	return b.Bytes()
}

// HTML renders the Markdown report as a complete page.
func HTML(r *leakage.Report) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(Markdown(r))
	renderer := html.NewRenderer(html.RendererOptions{
		Title: "ctleak: " + r.Target,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, renderer)
}
