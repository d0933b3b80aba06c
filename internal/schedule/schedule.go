// Package schedule triggers topic-driven batches on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/config"
	"github.com/TobiSchelling/autoblog/internal/pipeline"
)

// BatchRunner executes one batch.
type BatchRunner interface {
	Run(ctx context.Context, job pipeline.Job) *pipeline.Report
}

// Scheduler runs schedule.count topic-driven rounds on schedule.spec.
// A trigger that fires while the previous batch is still running is skipped.
type Scheduler struct {
	runner  BatchRunner
	spec    string
	job     pipeline.Job
	timeout time.Duration
	cron    *cron.Cron
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	last    *pipeline.Report
	lastRun time.Time
}

// New creates a scheduler; call Start to begin.
func New(runner BatchRunner, cfg config.Schedule, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	count := cfg.Count
	if count <= 0 {
		count = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		runner:  runner,
		spec:    cfg.Spec,
		job:     pipeline.Job{Count: count, FromTopics: true},
		timeout: 30 * time.Minute,
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the batch with cron and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runScheduled); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec), zap.Int("count", s.job.Count))
	return nil
}

// Stop cancels a running batch and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Next returns the next scheduled trigger time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Last returns the most recent scheduled report and when it finished.
func (s *Scheduler) Last() (*pipeline.Report, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastRun
}

// RunNow runs one scheduled batch synchronously.
func (s *Scheduler) RunNow(ctx context.Context) *pipeline.Report {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Info("starting scheduled batch")
	report := s.runner.Run(ctx, s.job)
	if report.Err != nil {
		s.logger.Error("scheduled batch failed",
			zap.String("batch", report.BatchID),
			zap.Int("published", report.Published()),
			zap.Error(report.Err))
	} else {
		s.logger.Info("scheduled batch completed",
			zap.String("batch", report.BatchID),
			zap.Int("published", report.Published()))
	}

	s.mu.Lock()
	s.last, s.lastRun = report, time.Now()
	s.mu.Unlock()
	return report
}

func (s *Scheduler) runScheduled() {
	s.RunNow(s.ctx)
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
