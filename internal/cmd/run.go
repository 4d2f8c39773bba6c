package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/quill/internal/config"
)

var runNoAudit bool

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Anonymize a text file (or stdin) and print the result",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "run")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		text, err := readInput(args)
		if err != nil {
			return err
		}

		p, store, err := buildPipeline(cfg, !runNoAudit)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}

		result, err := p.Process(ctx, text)
		if err != nil {
			return err
		}

		log.Info().Int("replacements", len(result.Replacements)).Msg("anonymization complete")
		fmt.Print(result.Text)
		return nil
	},
}

// readInput loads the positional file argument, or stdin when absent.
func readInput(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading input file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func init() {
	runCmd.Flags().BoolVar(&runNoAudit, "no-audit", false, "skip writing a run audit record")
	rootCmd.AddCommand(runCmd)
}
