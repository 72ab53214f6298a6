package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dhcgn/pst-viewer/archive"
	"github.com/dhcgn/pst-viewer/export"
	"github.com/dhcgn/pst-viewer/filter"
	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/stats"
)

const (
	// reportLimit caps the rows of each CSV report.
	reportLimit     = 1000
	summaryFileName = "summary.yaml"
)

// statsSummary is the machine-readable companion of the CSV reports.
type statsSummary struct {
	Archive  string                  `yaml:"archive"`
	Messages int                     `yaml:"messages"`
	Skipped  int                     `yaml:"skipped"`
	Top      map[string][]stats.Pair `yaml:"top"`
}

var trackedFields = []string{"From", "To", "Subject", "Folder"}

type statsOptions struct {
	reportDir string
	top       int
	folder    int
	filter    filter.Options
}

func newStatsCommand(a *app) *cobra.Command {
	var opts statsOptions
	cmd := &cobra.Command{
		Use:   "stats <archive.pst>",
		Short: "Analyse an archive and show statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			includeActive := len(opts.filter.IncludeHeader) > 0 || len(opts.filter.IncludeBody) > 0
			excludeActive := len(opts.filter.ExcludeHeader) > 0 || len(opts.filter.ExcludeBody) > 0
			if includeActive && excludeActive {
				return fmt.Errorf("include and exclude flags are mutually exclusive")
			}
			return a.stats(cmd.OutOrStdout(), args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.reportDir, "output", "o", ".", "Output directory for CSV reports")
	flags.IntVarP(&opts.top, "top", "t", 10, "Number of top items to display in statistics")
	flags.IntVar(&opts.folder, "folder", 0, "Only analyse this folder (and its sub-folders) by sequence number")
	flags.StringArrayVar(&opts.filter.IncludeHeader, "include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&opts.filter.IncludeBody, "include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&opts.filter.ExcludeHeader, "exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArrayVar(&opts.filter.ExcludeBody, "exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
	return cmd
}

func (a *app) stats(w io.Writer, path string, opts statsOptions) error {
	f, err := filter.New(opts.filter)
	if err != nil {
		return fmt.Errorf("create filter: %w", err)
	}

	r, err := a.open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	folders, err := archive.Folders(r, model.FolderID(opts.folder))
	if err != nil {
		return err
	}

	counter := make(map[string]map[string]int, len(trackedFields))
	for _, field := range trackedFields {
		counter[field] = make(map[string]int)
	}

	messageCount, skippedCount := 0, 0
	for _, folder := range folders {
		summaries, err := r.ListMessages(folder.ID)
		if err != nil {
			return err
		}
		for _, s := range summaries {
			msg, err := r.GetMessage(s.ID)
			if err != nil {
				a.logger.Warn("skipping unreadable message", "id", s.ID.String(), "error", err)
				continue
			}
			if f.Active() {
				raw, err := export.BuildEML(msg)
				if err != nil {
					a.logger.Warn("skipping unrenderable message", "id", s.ID.String(), "error", err)
					continue
				}
				if !f.AllowsMessage([]byte(raw)) {
					skippedCount++
					continue
				}
			}

			messageCount++
			values := map[string]string{
				"From":    msg.Sender,
				"To":      msg.To,
				"Subject": msg.Subject,
				"Folder":  strings.Join(folder.Path, "/"),
			}
			for _, field := range trackedFields {
				if v := values[field]; v != "" {
					counter[field][v]++
				}
			}
		}
	}

	printStats(w, counter, f, messageCount, skippedCount, opts.top)

	if err := saveCSVReports(counter, trackedFields, opts.reportDir, reportLimit); err != nil {
		return fmt.Errorf("error saving CSV reports: %w", err)
	}
	summary := statsSummary{
		Archive:  path,
		Messages: messageCount,
		Skipped:  skippedCount,
		Top:      make(map[string][]stats.Pair, len(trackedFields)),
	}
	for _, field := range trackedFields {
		summary.Top[normalizeFieldName(field)] = stats.Top(counter[field], opts.top)
	}
	if err := saveSummary(filepath.Join(opts.reportDir, summaryFileName), summary); err != nil {
		return fmt.Errorf("error saving summary: %w", err)
	}
	fmt.Fprintf(w, "\nReports saved to directory: %s\n", opts.reportDir)
	return nil
}

func printStats(w io.Writer, counter map[string]map[string]int, f *filter.Filter, messageCount, skippedCount, top int) {
	total := messageCount + skippedCount
	var filterPercent float64
	if total > 0 {
		filterPercent = float64(skippedCount) / float64(total) * 100
	}
	fmt.Fprintf(w, "Processed %d messages (skipped %d by filters, %.2f%%)...\n\n", messageCount, skippedCount, filterPercent)

	filterStats := f.GetStats()
	groups := []struct {
		title    string
		patterns []string
		hits     map[string]int
	}{
		{"Include Header Filters", filterStats.IncludeHeaderPatterns, filterStats.IncludeHeaderHits},
		{"Include Body Filters", filterStats.IncludeBodyPatterns, filterStats.IncludeBodyHits},
		{"Exclude Header Filters", filterStats.ExcludeHeaderPatterns, filterStats.ExcludeHeaderHits},
		{"Exclude Body Filters", filterStats.ExcludeBodyPatterns, filterStats.ExcludeBodyHits},
	}
	printed := false
	for _, g := range groups {
		if len(g.patterns) == 0 {
			continue
		}
		printed = true
		fmt.Fprintf(w, "%s:\n", g.title)
		printFilterHits(w, g.patterns, g.hits)
		fmt.Fprintln(w)
	}
	if printed {
		fmt.Fprint(w, "---\n\n")
	}

	for _, field := range trackedFields {
		fmt.Fprintf(w, "Top %d %s:\n", top, field)
		stats.PrettyPrintTop(w, counter[field], top)
		fmt.Fprintln(w)
	}
}

func printFilterHits(w io.Writer, patterns []string, hits map[string]int) {
	sorted := append([]string(nil), patterns...)
	sort.Slice(sorted, func(i, j int) bool {
		if hits[sorted[i]] != hits[sorted[j]] {
			return hits[sorted[i]] > hits[sorted[j]]
		}
		return sorted[i] < sorted[j]
	})

	for _, p := range sorted {
		if n := hits[p]; n > 0 {
			fmt.Fprintf(w, "  %s %s: %d hits\n", pterm.Green("✓"), p, n)
		} else {
			fmt.Fprintf(w, "  %s %s: 0 hits\n", pterm.Red("✗"), p)
		}
	}
}

func saveCSVReports(counter map[string]map[string]int, fields []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, field := range fields {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeFieldName(field)))
		if err := writeCSVReport(filePath, counter[field], limit); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVReport(path string, counts map[string]int, limit int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for _, p := range stats.Top(counts, limit) {
		if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func saveSummary(path string, summary statsSummary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func normalizeFieldName(field string) string {
	name := strings.ToLower(field)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
