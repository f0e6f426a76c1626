package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/accessguard/pkg/io"
	"github.com/hed1ad/accessguard/pkg/logger"
	"github.com/hed1ad/accessguard/pkg/pipeline"
	"github.com/hed1ad/accessguard/pkg/risk"
)

// SourceFactory opens a fresh source for each run.
type SourceFactory func(ctx context.Context) (io.Source, error)

// Saver persists reports.
type Saver interface {
	SaveReport(ctx context.Context, r *risk.Report) error
}

// Publisher announces reports.
type Publisher interface {
	Publish(ctx context.Context, r *risk.Report) error
}

// Service re-runs the pipeline and remembers the latest report.
type Service struct {
	pipeline  *pipeline.Pipeline
	open      SourceFactory
	saver     Saver
	publisher Publisher
	log       *zap.Logger

	runMu  sync.Mutex
	mu     sync.RWMutex
	latest *risk.Report
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSaver persists every successful report.
func WithSaver(s Saver) ServiceOption {
	return func(svc *Service) {
		svc.saver = s
	}
}

// WithPublisher publishes every successful report.
func WithPublisher(p Publisher) ServiceOption {
	return func(svc *Service) {
		svc.publisher = p
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(svc *Service) {
		svc.log = l
	}
}

// NewService creates a Service.
func NewService(p *pipeline.Pipeline, open SourceFactory, opts ...ServiceOption) *Service {
	svc := &Service{pipeline: p, open: open}
	for _, opt := range opts {
		opt(svc)
	}
	svc.log = logger.OrNop(svc.log)
	return svc
}

// RunOnce performs one run. Runs never overlap. Storage and publishing
// failures are logged; the report is still returned and becomes the latest.
func (s *Service) RunOnce(ctx context.Context) (*risk.Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	src, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	report, err := s.pipeline.Run(ctx, src)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()

	if s.saver != nil {
		if err := s.saver.SaveReport(ctx, report); err != nil {
			s.log.Error("failed to store report", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, report); err != nil {
			s.log.Error("failed to publish report", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}
	return report, nil
}

// Latest returns the most recent successful report, or nil.
func (s *Service) Latest() *risk.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Loop runs immediately and then every interval until ctx is done. Failed
// runs are logged and retried on the next tick.
func (s *Service) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduled run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
