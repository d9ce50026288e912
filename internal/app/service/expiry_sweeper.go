package service

import (
	"context"
	"time"

	"github.com/linktoolkit/linktoolkit/internal/app/repository"
	"github.com/linktoolkit/linktoolkit/internal/infra/metrics"
	"go.uber.org/zap"
)

// ExpirySweeper purges expired links (and their click records, cascaded in
// the same transaction) once a day at a fixed low-traffic UTC hour. A failed
// run only logs: expired records stay semantically deleted until the next
// run removes them physically.
type ExpirySweeper struct {
	logger  *zap.Logger
	repo    repository.LinkRepository
	cache   LinkCache
	metrics *metrics.Metrics

	hourUTC  int
	stopChan chan struct{}
}

// NewExpirySweeper creates a sweeper that fires daily at hourUTC (0-23).
// cache may be nil.
func NewExpirySweeper(
	logger *zap.Logger,
	repo repository.LinkRepository,
	cache LinkCache,
	m *metrics.Metrics,
	hourUTC int,
) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hourUTC < 0 || hourUTC > 23 {
		hourUTC = 1
	}
	return &ExpirySweeper{
		logger:   logger,
		repo:     repo,
		cache:    cache,
		metrics:  m,
		hourUTC:  hourUTC,
		stopChan: make(chan struct{}),
	}
}

// Start begins the daily schedule.
func (s *ExpirySweeper) Start() {
	go s.run()
}

// Stop cancels the schedule; a sweep already in flight completes.
func (s *ExpirySweeper) Stop() {
	close(s.stopChan)
}

func (s *ExpirySweeper) run() {
	for {
		wait := time.Until(s.nextRun(time.Now().UTC()))
		select {
		case <-time.After(wait):
			s.SweepOnce(context.Background(), time.Now().UTC())
		case <-s.stopChan:
			s.logger.Info("expiry sweeper stopped")
			return
		}
	}
}

// nextRun returns the next occurrence of the configured hour after now.
func (s *ExpirySweeper) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// SweepOnce performs one purge and reports how many links were removed.
// Idempotent: with nothing newly expired it deletes zero rows.
func (s *ExpirySweeper) SweepOnce(ctx context.Context, now time.Time) int64 {
	res, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("expired link sweep failed", zap.Error(err))
		return 0
	}

	if res.LinksDeleted == 0 {
		s.logger.Info("no expired links to sweep")
		return 0
	}

	if s.metrics != nil {
		s.metrics.LinksSwept.Add(float64(res.LinksDeleted))
	}

	// Cache entries expire on their own TTL; eviction here just tightens the
	// window. Best-effort.
	if s.cache != nil {
		if err := s.cache.Delete(ctx, res.Aliases...); err != nil {
			s.logger.Warn("failed to evict swept aliases from cache", zap.Error(err))
		}
	}

	s.logger.Info("swept expired links",
		zap.Int64("links", res.LinksDeleted),
		zap.Int64("clicks", res.ClicksDeleted),
	)
	return res.LinksDeleted
}
