// Package tui renders run reports and file progress for the terminal.
package tui

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/geoflow/pkg/consolidate"
	"github.com/logflow/geoflow/pkg/inspect"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
	labelStyle   = mutedStyle.Width(12)
)

const rule = "  ─────────────────────────────────────"

// maxDiagnostics caps the skipped entries listed in a report.
const maxDiagnostics = 10

// PrintHeader prints the banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  GEOFLOW")+mutedStyle.Render(" v"+version))
	fmt.Fprintln(w, mutedStyle.Render("  Geospatial dataset consolidation"))
	fmt.Fprintln(w)
}

// PrintSummary prints the report of one run.
func PrintSummary(w io.Writer, sum *consolidate.Summary) {
	fmt.Fprintln(w)
	if sum.Failed {
		fmt.Fprintln(w, accentStyle.Render("  ✗ CONSOLIDATION FINISHED WITH ERRORS"))
	} else {
		fmt.Fprintln(w, successStyle.Render("  ✓ CONSOLIDATION COMPLETE"))
	}
	fmt.Fprintln(w)

	line(w, "Run:", mutedStyle.Render(sum.RunID))
	line(w, "Files:", fmt.Sprintf("%s parsed of %s seen",
		titleStyle.Render(formatNumber(int64(sum.FilesParsed))),
		formatNumber(int64(sum.FilesSeen))))
	if len(sum.Formats) > 0 {
		line(w, "Formats:", formatCounts(sum.Formats))
	}
	if len(sum.Skipped) > 0 {
		line(w, "Skipped:", warnStyle.Render(formatCounts(sum.Skipped)))
	}

	rows := titleStyle.Render(formatNumber(int64(sum.RowsEmitted)))
	if sum.RowsSkipped > 0 {
		rows += " " + warnStyle.Render(fmt.Sprintf("(%d rows skipped)", sum.RowsSkipped))
	}
	line(w, "Rows:", rows)
	line(w, "Columns:", titleStyle.Render(fmt.Sprint(len(sum.Columns))))
	line(w, "Time:", titleStyle.Render(formatDuration(sum.Duration)))

	if len(sum.Artifacts) > 0 {
		fmt.Fprintln(w, mutedStyle.Render(rule))
		for _, a := range sum.Artifacts {
			fmt.Fprintf(w, "  %s %s %s\n",
				labelStyle.Render(strings.ToUpper(a.Format)),
				codeStyle.Render(a.Path),
				mutedStyle.Render(formatBytes(a.BytesWritten)))
		}
	}
	for _, key := range sum.Uploaded {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("S3"), codeStyle.Render(key))
	}

	if len(sum.Notices) > 0 {
		fmt.Fprintln(w, mutedStyle.Render(rule))
		for _, n := range sum.Notices {
			fmt.Fprintf(w, "  %s %s\n", warnStyle.Render("!"), n)
		}
	}

	if len(sum.Diagnostics) > 0 {
		fmt.Fprintln(w, mutedStyle.Render(rule))
		for i, d := range sum.Diagnostics {
			if i == maxDiagnostics {
				fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  … %d more", len(sum.Diagnostics)-maxDiagnostics)))
				break
			}
			where := filepath.Base(d.Path)
			if d.Row > 0 {
				where = fmt.Sprintf("%s:%d", where, d.Row)
			}
			fmt.Fprintf(w, "  %s %s %s\n", accentStyle.Render(string(d.Code)), where, mutedStyle.Render(d.Message))
		}
	}
	fmt.Fprintln(w)
}

func line(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(label), value)
}

// formatCounts renders a count map as "a 1, b 2" in key order.
func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, m[k])
	}
	return strings.Join(parts, ", ")
}

// FileProgress creates a progress bar counting parsed files.
func FileProgress(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("  parsing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// PrintInspect prints a DuckDB inspection report.
func PrintInspect(w io.Writer, r *inspect.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ "+filepath.Base(r.Path)))
	fmt.Fprintln(w)
	line(w, "Rows:", titleStyle.Render(formatNumber(r.Rows)))
	line(w, "Columns:", titleStyle.Render(fmt.Sprint(len(r.Columns))))

	fmt.Fprintln(w, mutedStyle.Render(rule))
	for _, c := range r.Columns {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Width(24).Render(c.Name), mutedStyle.Render(c.Type))
	}
	fmt.Fprintln(w, mutedStyle.Render(rule))

	switch {
	case r.LatColumn != "" && r.LonColumn != "":
		line(w, "Latitude:", codeStyle.Render(r.LatColumn))
		line(w, "Longitude:", codeStyle.Render(r.LonColumn))
		if r.Extracted {
			line(w, "", warnStyle.Render("numbers extracted from text values"))
		}
	case r.GeometryColumn != "":
		line(w, "Geometry:", codeStyle.Render(r.GeometryColumn))
	default:
		fmt.Fprintln(w, warnStyle.Render("  no latitude/longitude columns found"))
		fmt.Fprintln(w)
		return
	}
	line(w, "Geolocated:", titleStyle.Render(formatNumber(r.Geolocated)))
	if r.Geolocated > 0 {
		line(w, "Center:", titleStyle.Render(fmt.Sprintf("%.6f, %.6f", r.CenterLat, r.CenterLon)))
	}
	fmt.Fprintln(w)
}
