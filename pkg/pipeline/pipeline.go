// Package pipeline executes one analysis run: records are pulled from a
// source, built into a feature table, scored by the three detectors in
// parallel and joined into a risk report.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/detectors/dbscan"
	"github.com/hed1ad/accessguard/pkg/detectors/iforest"
	"github.com/hed1ad/accessguard/pkg/detectors/lof"
	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/explain"
	"github.com/hed1ad/accessguard/pkg/features"
	"github.com/hed1ad/accessguard/pkg/io"
	"github.com/hed1ad/accessguard/pkg/logger"
	"github.com/hed1ad/accessguard/pkg/metrics"
	"github.com/hed1ad/accessguard/pkg/risk"
)

var tracer = otel.Tracer("accessguard-pipeline")

// Config is everything one run needs besides its input.
type Config struct {
	Detection detectors.Config
	Explain   explain.Config
	Outliers  dbscan.OutlierThresholds
	// Rules replaces the default cluster classification table when non-empty.
	Rules    []dbscan.Rule
	Fallback string
	// SourceTimeout bounds reading the source. Zero means no limit.
	SourceTimeout time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Detection: detectors.DefaultConfig(),
		Explain:   explain.DefaultConfig(),
		Outliers:  dbscan.DefaultOutlierThresholds(),
		Fallback:  dbscan.DefaultFallback,
	}
}

// Pipeline runs analyses with a fixed configuration.
type Pipeline struct {
	cfg        Config
	builder    *features.Builder
	classifier *dbscan.Classifier
	explainer  *explain.Explainer
	log        *zap.Logger
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// WithBuilder replaces the default feature builder.
func WithBuilder(b *features.Builder) Option {
	return func(p *Pipeline) {
		p.builder = b
	}
}

// WithClock sets the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New validates cfg and compiles the cluster rule table. Invalid parameters
// surface here as ConfigurationError, before any data is read.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Detection.Validate(); err != nil {
		return nil, err
	}

	rules := cfg.Rules
	if len(rules) == 0 {
		rules = dbscan.DefaultRules(cfg.Explain.Roles)
	}
	if cfg.Fallback == "" {
		cfg.Fallback = dbscan.DefaultFallback
	}
	classifier, err := dbscan.NewClassifier(rules, cfg.Fallback)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:        cfg,
		builder:    features.NewBuilder(),
		classifier: classifier,
		explainer:  explain.New(cfg.Explain),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.OrNop(p.log)
	return p, nil
}

// Run reads src and analyzes its records.
func (p *Pipeline) Run(ctx context.Context, src io.Source) (*risk.Report, error) {
	runID := uuid.NewString()
	log := p.log.With(zap.String("run_id", runID))
	start := time.Now()

	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	report, err := p.run(ctx, log, src)
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RunsTotal.WithLabelValues(metrics.StatusFailure).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("run failed", zap.Error(err))
		return nil, err
	}

	report.RunID = runID
	metrics.RunsTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	log.Info("run completed",
		zap.Int("entities", report.Summary.TotalEntities),
		zap.Strings("high_risk", report.Summary.HighRisk),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, log *zap.Logger, src io.Source) (*risk.Report, error) {
	readCtx := ctx
	if p.cfg.SourceTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, p.cfg.SourceTimeout)
		defer cancel()
	}

	records, err := src.Records(readCtx)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	log.Debug("records read", zap.Int("count", len(records)))

	table, err := p.builder.Build(records)
	if err != nil {
		return nil, err
	}

	return p.Analyze(ctx, table)
}

// Analyze runs every detector on an already built table and assembles the
// report. The report carries no run id.
func (p *Pipeline) Analyze(ctx context.Context, table *features.Table) (*risk.Report, error) {
	dets, err := p.detectors()
	if err != nil {
		return nil, err
	}

	var (
		results [detectors.NumMethods]*detectors.Result
		skipped [detectors.NumMethods]*risk.Skipped
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range dets {
		g.Go(func() error {
			m := d.Method()
			_, span := tracer.Start(gctx, "detector."+m.String())
			defer span.End()

			start := time.Now()
			res, err := d.Detect(table)
			metrics.DetectorDuration.WithLabelValues(m.String()).Observe(time.Since(start).Seconds())

			switch {
			case errorutil.IsInsufficientData(err):
				skipped[m] = &risk.Skipped{Method: m, Reason: err.Error()}
				metrics.DetectorSkipped.WithLabelValues(m.String()).Inc()
				span.SetAttributes(attribute.Bool("detector.skipped", true))
				p.log.Warn("detector skipped", zap.Stringer("method", m), zap.Error(err))
				return nil
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return fmt.Errorf("%s: %w", m, err)
			}

			span.SetAttributes(attribute.Int("detector.flagged", len(res.Flagged)))
			metrics.FlaggedEntities.WithLabelValues(m.String()).Set(float64(len(res.Flagged)))
			results[m] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byMethod := make(map[detectors.Method]*detectors.Result, detectors.NumMethods)
	var skips []risk.Skipped
	for _, m := range detectors.Methods {
		if results[m] != nil {
			byMethod[m] = results[m]
		}
		if skipped[m] != nil {
			skips = append(skips, *skipped[m])
		}
	}

	agg := risk.NewAggregator(risk.WithTopN(p.cfg.Detection.TopN))
	report := agg.Aggregate(table, byMethod, skips)
	report.GeneratedAt = p.now().UTC()
	if res, ok := byMethod[detectors.Clustering]; ok {
		if c, ok := res.Auxiliary.(*dbscan.Clustering); ok {
			report.Summary.Clusters = c.NumClusters()
		}
	}
	report.Explanations = p.explainer.Explain(table, byMethod)
	report.Recommendations = risk.Recommend(report.Summary)

	for _, l := range risk.Levels {
		metrics.EntitiesByRiskLevel.WithLabelValues(string(l)).Set(float64(report.Summary.LevelCounts[l]))
	}
	return report, nil
}

// detectors creates fresh detector instances so no fitted state outlives a run.
func (p *Pipeline) detectors() ([]detectors.Detector, error) {
	cfg := p.cfg.Detection
	clustering, err := dbscan.New(
		dbscan.WithEps(cfg.Eps),
		dbscan.WithMinPoints(cfg.MinPoints),
		dbscan.WithRoles(p.cfg.Explain.Roles),
		dbscan.WithOutlierThresholds(p.cfg.Outliers),
		dbscan.WithClassifier(p.classifier),
	)
	if err != nil {
		return nil, err
	}
	return []detectors.Detector{
		iforest.FromConfig(cfg),
		lof.FromConfig(cfg),
		clustering,
	}, nil
}
