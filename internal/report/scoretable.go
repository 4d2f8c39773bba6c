package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dativo-io/quill/internal/score"
)

// WriteScoreTable renders a score report with one row per category plus
// the aggregate row.
func WriteScoreTable(w io.Writer, r *score.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tTP\tFP\tFN\tPRECISION\tRECALL\tF1")
	for _, cat := range r.Categories() {
		cs := r.PerCategory[cat]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.3f\t%.3f\t%.3f\n",
			cat, cs.TruePositive, cs.FalsePositive, cs.FalseNegative,
			cs.Precision, cs.Recall, cs.F1)
	}
	agg := r.Aggregate
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\t%d\t%.3f\t%.3f\t%.3f\n",
		agg.TruePositive, agg.FalsePositive, agg.FalseNegative,
		agg.Precision, agg.Recall, agg.F1)
	return tw.Flush()
}
