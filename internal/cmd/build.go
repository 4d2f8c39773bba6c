package cmd

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dativo-io/quill/internal/anonymize"
	"github.com/dativo-io/quill/internal/audit"
	"github.com/dativo-io/quill/internal/config"
	"github.com/dativo-io/quill/internal/detect"
	"github.com/dativo-io/quill/internal/pipeline"
	"github.com/dativo-io/quill/internal/resolve"
	"github.com/dativo-io/quill/internal/taxonomy"
)

// buildDetectors assembles the configured detector set. The pattern
// detector is always active; the NER and LLM adapters join when an
// endpoint or API key is configured.
func buildDetectors(cfg *config.Config) ([]detect.Detector, error) {
	var patternOpts []detect.PatternOption
	if cfg.PatternFile != "" {
		patternOpts = append(patternOpts, detect.WithPatternFile(cfg.PatternFile))
	}
	if cfg.MinScore > 0 {
		patternOpts = append(patternOpts, detect.WithMinScore(cfg.MinScore))
	}
	pattern, err := detect.NewPatternDetector(patternOpts...)
	if err != nil {
		return nil, fmt.Errorf("building pattern detector: %w", err)
	}

	detectors := []detect.Detector{pattern}
	if cfg.NEREndpoint != "" {
		detectors = append(detectors, detect.NewNERDetector(cfg.NEREndpoint))
	}
	if cfg.OpenAIAPIKey != "" {
		client := openai.NewClient(cfg.OpenAIAPIKey)
		detectors = append(detectors, detect.NewLLMDetector(client, detect.WithLLMModel(cfg.OpenAIModel)))
	}
	return detectors, nil
}

// buildPipeline wires detectors, taxonomy, transforms, and resolver from
// operator config. When withAudit is set, runs are recorded in the SQLite
// store under the data directory; the caller owns closing the store.
func buildPipeline(cfg *config.Config, withAudit bool) (*pipeline.Pipeline, *audit.Store, error) {
	detectors, err := buildDetectors(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithDetectorTimeout(cfg.DetectorTimeout),
		pipeline.WithResolver(resolve.New(resolve.WithGapThreshold(cfg.GapThreshold))),
	}

	if cfg.TaxonomyFile != "" {
		mapper, err := taxonomy.Load(cfg.TaxonomyFile)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithTaxonomy(mapper))
	}
	if cfg.TransformsFile != "" {
		transforms, err := anonymize.LoadConfig(cfg.TransformsFile)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithTransforms(transforms))
	}

	var store *audit.Store
	if withAudit {
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, nil, fmt.Errorf("creating data directory: %w", err)
		}
		store, err = audit.NewStore(cfg.AuditDBPath())
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithAuditStore(store))
	}

	p, err := pipeline.New(detectors, opts...)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, nil, err
	}
	return p, store, nil
}
