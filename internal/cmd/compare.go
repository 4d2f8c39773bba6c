package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/quill/internal/config"
	"github.com/dativo-io/quill/internal/detect"
	"github.com/dativo-io/quill/internal/report"
	"github.com/dativo-io/quill/internal/span"
	"github.com/dativo-io/quill/internal/taxonomy"
)

var compareCSV string

var compareCmd = &cobra.Command{
	Use:   "compare [file]",
	Short: "Compare per-detector results side by side",
	Long: `Compare runs every configured detector over the input independently
and prints a side-by-side table of per-category detection counts, the
disagreement signal that motivates conflict resolution.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, sp := tracer.Start(cmd.Context(), "compare")
		defer sp.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		text, err := readInput(args)
		if err != nil {
			return err
		}

		detectors, err := buildDetectors(cfg)
		if err != nil {
			return err
		}
		mapper, err := loadMapper(cfg)
		if err != nil {
			return err
		}
		for _, d := range detectors {
			if err := mapper.Validate(d.ID(), d.Labels()); err != nil {
				return fmt.Errorf("taxonomy configuration: %w", err)
			}
		}

		results := detect.RunAll(ctx, detectors, text, cfg.DetectorTimeout)
		perDetector := make(map[string][]span.NormalizedSpan, len(results))
		for _, r := range results {
			if r.Err != nil {
				log.Warn().Err(r.Err).Str("detector", r.SourceID).Msg("detector skipped in comparison")
				continue
			}
			perDetector[r.SourceID] = mapper.Apply(span.Normalize(r.Spans, len(text)))
		}
		if len(perDetector) == 0 {
			return fmt.Errorf("no detector produced results")
		}

		c := report.Compare(perDetector)
		if compareCSV != "" {
			f, err := os.Create(compareCSV)
			if err != nil {
				return fmt.Errorf("creating CSV file: %w", err)
			}
			defer f.Close()
			if err := c.WriteCSV(f); err != nil {
				return err
			}
			log.Info().Str("path", compareCSV).Msg("comparison CSV written")
		}
		return c.WriteTable(os.Stdout)
	},
}

func loadMapper(cfg *config.Config) (*taxonomy.Mapper, error) {
	if cfg.TaxonomyFile != "" {
		return taxonomy.Load(cfg.TaxonomyFile)
	}
	return taxonomy.Default()
}

func init() {
	compareCmd.Flags().StringVar(&compareCSV, "csv", "", "also write the comparison to a CSV file")
	rootCmd.AddCommand(compareCmd)
}
