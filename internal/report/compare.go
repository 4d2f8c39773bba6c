// Package report builds per-detector summaries and side-by-side
// comparisons of detection output, with text-table and CSV rendering for
// the CLI and export tooling.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dativo-io/quill/internal/span"
)

// Summarize counts normalized spans per canonical category.
func Summarize(spans []span.NormalizedSpan) map[span.Category]int {
	summary := make(map[span.Category]int)
	for _, s := range spans {
		summary[s.Category]++
	}
	return summary
}

// Row is one category's counts across detectors. Diff is the spread
// between the highest and lowest count, the disagreement signal the
// comparison surfaces.
type Row struct {
	Category span.Category
	Counts   []int
	Diff     int
}

// Comparison is a side-by-side count table across detectors.
type Comparison struct {
	Detectors []string
	Rows      []Row
	Totals    []int
}

// Compare builds a comparison across per-detector normalized span sets.
// Detector columns and category rows are sorted for stable rendering.
func Compare(perDetector map[string][]span.NormalizedSpan) *Comparison {
	detectors := make([]string, 0, len(perDetector))
	for id := range perDetector {
		detectors = append(detectors, id)
	}
	sort.Strings(detectors)

	summaries := make([]map[span.Category]int, len(detectors))
	categorySet := make(map[span.Category]struct{})
	for i, id := range detectors {
		summaries[i] = Summarize(perDetector[id])
		for cat := range summaries[i] {
			categorySet[cat] = struct{}{}
		}
	}
	categories := make([]span.Category, 0, len(categorySet))
	for cat := range categorySet {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	c := &Comparison{Detectors: detectors, Totals: make([]int, len(detectors))}
	for _, cat := range categories {
		row := Row{Category: cat, Counts: make([]int, len(detectors))}
		lo, hi := -1, 0
		for i := range detectors {
			n := summaries[i][cat]
			row.Counts[i] = n
			c.Totals[i] += n
			if lo < 0 || n < lo {
				lo = n
			}
			if n > hi {
				hi = n
			}
		}
		row.Diff = hi - lo
		c.Rows = append(c.Rows, row)
	}
	return c
}

// WriteTable renders the comparison as an aligned text table.
func (c *Comparison) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "CATEGORY\t%s\tDIFF\n", strings.Join(upper(c.Detectors), "\t"))
	for _, row := range c.Rows {
		cells := make([]string, len(row.Counts))
		for i, n := range row.Counts {
			cells[i] = strconv.Itoa(n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", row.Category, strings.Join(cells, "\t"), row.Diff)
	}
	totals := make([]string, len(c.Totals))
	for i, n := range c.Totals {
		totals[i] = strconv.Itoa(n)
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t\n", strings.Join(totals, "\t"))
	return tw.Flush()
}

// WriteCSV exports the comparison with one row per category.
func (c *Comparison) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{"category"}, c.Detectors...)
	header = append(header, "diff")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, row := range c.Rows {
		rec := make([]string, 0, len(row.Counts)+2)
		rec = append(rec, string(row.Category))
		for _, n := range row.Counts {
			rec = append(rec, strconv.Itoa(n))
		}
		rec = append(rec, strconv.Itoa(row.Diff))
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func upper(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToUpper(s)
	}
	return out
}
