package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dativo-io/quill/internal/config"
)

var spansCmd = &cobra.Command{
	Use:   "spans [file]",
	Short: "Resolve canonical spans for a text file (or stdin) as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "spans")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		text, err := readInput(args)
		if err != nil {
			return err
		}

		p, store, err := buildPipeline(cfg, false)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}

		spans, err := p.Resolve(ctx, text)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(spans)
	},
}

func init() {
	rootCmd.AddCommand(spansCmd)
}
