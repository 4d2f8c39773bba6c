package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dativo-io/quill/internal/config"
	"github.com/dativo-io/quill/internal/report"
	"github.com/dativo-io/quill/internal/score"
)

var (
	scoreTruthFile      string
	scoreCandidatesFile string
	scoreJSON           bool
)

var scoreCmd = &cobra.Command{
	Use:   "score [file]",
	Short: "Score spans against a ground-truth annotation set",
	Long: `Score compares a candidate span set against ground truth and prints
per-category and aggregate precision, recall, and F1.

Candidates come from --candidates (a JSON array of {start, end, category}),
or from running the detection pipeline over the given text file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "score")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		truth, err := loadRefs(scoreTruthFile)
		if err != nil {
			return err
		}

		var candidates []score.Ref
		if scoreCandidatesFile != "" {
			candidates, err = loadRefs(scoreCandidatesFile)
			if err != nil {
				return err
			}
		} else {
			if len(args) != 1 {
				return fmt.Errorf("either --candidates or a text file argument is required")
			}
			text, err := readInput(args)
			if err != nil {
				return err
			}
			p, _, err := buildPipeline(cfg, false)
			if err != nil {
				return err
			}
			spans, err := p.Resolve(ctx, text)
			if err != nil {
				return err
			}
			candidates = score.FromCanonical(spans)
		}

		r := score.Score(candidates, truth, score.WithMinOverlap(cfg.MinOverlap))
		if scoreJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		}
		return report.WriteScoreTable(os.Stdout, r)
	},
}

// loadRefs reads a JSON array of (start, end, category) triples.
func loadRefs(path string) ([]score.Ref, error) {
	if path == "" {
		return nil, fmt.Errorf("--truth is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading span file: %w", err)
	}
	var refs []score.Ref
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("parsing span file %s: %w", path, err)
	}
	return refs, nil
}

func init() {
	scoreCmd.Flags().StringVar(&scoreTruthFile, "truth", "", "ground-truth span JSON file (required)")
	scoreCmd.Flags().StringVar(&scoreCandidatesFile, "candidates", "", "candidate span JSON file (default: run the pipeline)")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "emit the report as JSON")
	rootCmd.AddCommand(scoreCmd)
}
