package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/config"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/jobs"
)

const sweepBatchSize = 200

type sweepFileRepository interface {
	ListForSweep(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error)
}

type linkRefresher interface {
	RefreshLink(ctx context.Context, file *models.File) (string, error)
}

// SweepService periodically re-resolves stored download URLs. Storage URLs
// expire on their own schedule, so rows are revisited once per interval.
type SweepService struct {
	repo      sweepFileRepository
	refresher linkRefresher
	queue     *jobs.Queue
	logger    *zap.Logger
	config    config.SweepConfig
}

// NewSweepService constructs a SweepService with its own worker queue.
func NewSweepService(repo sweepFileRepository, refresher linkRefresher, logger *zap.Logger, cfg config.SweepConfig) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SweepService{
		repo:      repo,
		refresher: refresher,
		logger:    logger,
		config:    cfg,
	}
	s.queue = jobs.NewQueue("link-sweep", s.handle, jobs.QueueConfig{
		Workers: cfg.Concurrency,
		Logger:  logger,
	})
	return s
}

// Run starts the worker queue and the sweep ticker, blocking until the
// context is cancelled.
func (s *SweepService) Run(ctx context.Context) {
	if !s.config.Enabled {
		return
	}

	s.queue.Start(ctx)
	defer s.queue.Stop()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SweepService) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.config.Interval)
	files, err := s.repo.ListForSweep(ctx, cutoff, sweepBatchSize)
	if err != nil {
		s.logger.Error("link sweep listing failed", zap.Error(err))
		return
	}

	for i := range files {
		file := files[i]
		job := jobs.Job{
			ID:      fmt.Sprintf("sweep-%s-%d", file.ID, time.Now().UnixNano()),
			Type:    "refresh-link",
			Payload: &file,
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("link sweep enqueue failed", zap.String("file_id", file.ID), zap.Error(err))
			return
		}
	}
	if len(files) > 0 {
		s.logger.Info("link sweep scheduled", zap.Int("count", len(files)))
	}
}

func (s *SweepService) handle(ctx context.Context, job jobs.Job) error {
	file, ok := job.Payload.(*models.File)
	if !ok {
		return fmt.Errorf("unexpected sweep payload %T", job.Payload)
	}
	if _, err := s.refresher.RefreshLink(ctx, file); err != nil {
		return fmt.Errorf("refresh link for %s: %w", file.ID, err)
	}
	return nil
}
