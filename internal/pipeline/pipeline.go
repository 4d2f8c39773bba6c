// Package pipeline wires detection, normalization, taxonomy mapping,
// conflict resolution, and anonymization into the two entry points
// callers use: Resolve for canonical spans and Process for anonymized
// text. Configuration is immutable after New, so concurrent invocations
// for different texts cannot interfere.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/quill/internal/anonymize"
	"github.com/dativo-io/quill/internal/audit"
	"github.com/dativo-io/quill/internal/detect"
	quillotel "github.com/dativo-io/quill/internal/otel"
	"github.com/dativo-io/quill/internal/resolve"
	"github.com/dativo-io/quill/internal/span"
	"github.com/dativo-io/quill/internal/taxonomy"
)

var tracer = quillotel.Tracer("github.com/dativo-io/quill/internal/pipeline")

// ErrAllDetectorsUnavailable is the documented degraded outcome when
// every configured detector fails. Partial-source degradation is silent
// but logged; only total failure surfaces to the caller.
var ErrAllDetectorsUnavailable = errors.New("all detectors unavailable")

// Pipeline is the assembled processing chain. Immutable after New.
type Pipeline struct {
	detectors  []detect.Detector
	mapper     *taxonomy.Mapper
	resolver   *resolve.Resolver
	engine     *anonymize.Engine
	timeout    time.Duration
	auditStore *audit.Store
}

// Option configures a Pipeline.
type Option func(*config)

type config struct {
	mapper     *taxonomy.Mapper
	transforms *anonymize.Config
	resolver   *resolve.Resolver
	timeout    time.Duration
	auditStore *audit.Store
}

// WithTaxonomy sets the taxonomy mapper (default: embedded table).
func WithTaxonomy(m *taxonomy.Mapper) Option {
	return func(c *config) { c.mapper = m }
}

// WithTransforms sets the anonymization config (default: embedded table).
func WithTransforms(t anonymize.Config) Option {
	return func(c *config) { c.transforms = &t }
}

// WithResolver sets a configured conflict resolver (default: gap
// threshold 0, standard tie-break chain).
func WithResolver(r *resolve.Resolver) Option {
	return func(c *config) { c.resolver = r }
}

// WithDetectorTimeout bounds each detector call.
func WithDetectorTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithAuditStore persists a run record per Process/Resolve call.
// Best-effort: a failed write is logged, never failing the run.
func WithAuditStore(s *audit.Store) Option {
	return func(c *config) { c.auditStore = s }
}

// New assembles a pipeline and validates configuration: the taxonomy must
// be total over every label the given detectors can emit, and the
// transform table must be well-formed. Both are startup errors, never
// per-text failures.
func New(detectors []detect.Detector, opts ...Option) (*Pipeline, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	mapper := cfg.mapper
	if mapper == nil {
		m, err := taxonomy.Default()
		if err != nil {
			return nil, err
		}
		mapper = m
	}
	for _, d := range detectors {
		if err := mapper.Validate(d.ID(), d.Labels()); err != nil {
			return nil, fmt.Errorf("taxonomy configuration: %w", err)
		}
	}

	transforms := anonymize.Config{}
	if cfg.transforms != nil {
		transforms = *cfg.transforms
	} else {
		t, err := anonymize.DefaultConfig()
		if err != nil {
			return nil, err
		}
		transforms = t
	}
	engine, err := anonymize.New(transforms)
	if err != nil {
		return nil, err
	}

	resolver := cfg.resolver
	if resolver == nil {
		resolver = resolve.New()
	}

	return &Pipeline{
		detectors:  detectors,
		mapper:     mapper,
		resolver:   resolver,
		engine:     engine,
		timeout:    cfg.timeout,
		auditStore: cfg.auditStore,
	}, nil
}

// Resolve runs the detectors and returns the canonical span set for the
// text. Failed detectors are skipped; if every detector fails the run
// returns ErrAllDetectorsUnavailable.
func (p *Pipeline) Resolve(ctx context.Context, text string) ([]span.CanonicalSpan, error) {
	spans, statuses, err := p.resolveInternal(ctx, text)
	p.record(ctx, text, spans, statuses, nil, err)
	return spans, err
}

// Process runs Resolve and rewrites the text with the configured
// per-category transforms.
func (p *Pipeline) Process(ctx context.Context, text string) (*anonymize.Result, error) {
	ctx, sp := tracer.Start(ctx, "pipeline.process")
	defer sp.End()
	start := time.Now()

	spans, statuses, err := p.resolveInternal(ctx, text)
	if err != nil {
		p.record(ctx, text, nil, statuses, nil, err)
		return nil, err
	}

	result, err := p.engine.Anonymize(ctx, text, spans)
	if err != nil {
		// Resolver output always satisfies the engine's contract; this
		// is an implementer bug, not a runtime condition.
		return nil, err
	}

	p.record(ctx, text, spans, statuses, result, nil)
	recordRunMetrics(ctx, len(spans), time.Since(start))

	sp.SetAttributes(
		attribute.Int("pipeline.spans", len(spans)),
		attribute.Int("pipeline.replacements", len(result.Replacements)),
	)
	return result, nil
}

// resolveInternal is the shared detect → normalize → map → resolve path.
func (p *Pipeline) resolveInternal(ctx context.Context, text string) ([]span.CanonicalSpan, []detect.Result, error) {
	ctx, sp := tracer.Start(ctx, "pipeline.resolve")
	defer sp.End()

	results := detect.RunAll(ctx, p.detectors, text, p.timeout)

	var raws []span.RawSpan
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		raws = append(raws, r.Spans...)
	}
	if len(p.detectors) > 0 && failed == len(p.detectors) {
		ids := make([]string, len(p.detectors))
		for i, d := range p.detectors {
			ids[i] = d.ID()
		}
		return nil, results, fmt.Errorf("%w: %s", ErrAllDetectorsUnavailable, strings.Join(ids, ", "))
	}

	normalized := span.Normalize(raws, len(text))
	mapped := p.mapper.Apply(normalized)

	canonical, err := p.resolver.Resolve(ctx, mapped)
	if err != nil {
		return nil, results, err
	}

	log.Debug().
		Int("raw_spans", len(raws)).
		Int("normalized", len(normalized)).
		Int("canonical", len(canonical)).
		Int("detectors_failed", failed).
		Func(quillotel.LogTraceFields(ctx)).
		Msg("resolved spans")

	sp.SetAttributes(
		attribute.Int("pipeline.raw_spans", len(raws)),
		attribute.Int("pipeline.canonical_spans", len(canonical)),
	)
	return canonical, results, nil
}

// record persists a best-effort audit record when a store is configured.
// The input text itself is never stored, only its hash and length.
func (p *Pipeline) record(ctx context.Context, text string, spans []span.CanonicalSpan, statuses []detect.Result, result *anonymize.Result, runErr error) {
	if p.auditStore == nil {
		return
	}

	rec := &audit.Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		TextHash:  audit.HashText(text),
		TextLen:   len(text),
	}
	for _, s := range statuses {
		ds := audit.DetectorStatus{ID: s.SourceID, Available: s.Err == nil, Spans: len(s.Spans)}
		if s.Err != nil {
			ds.Error = s.Err.Error()
		}
		rec.Detectors = append(rec.Detectors, ds)
	}
	rec.SpanCounts = make(map[span.Category]int)
	for _, s := range spans {
		rec.SpanCounts[s.Category]++
	}
	if result != nil {
		rec.Replacements = len(result.Replacements)
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	if err := p.auditStore.Save(ctx, rec); err != nil {
		log.Warn().Err(err).Str("run_id", rec.ID).Msg("failed to persist audit record")
	}
}
