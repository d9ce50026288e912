package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/linktoolkit/linktoolkit/internal/app/model"
	"github.com/linktoolkit/linktoolkit/internal/app/repository"
)

const (
	analyticsWindowDays = 30
	topN                = 5
)

// AnalyticsService computes per-link aggregates on demand. It is read-only
// and safe to call concurrently with ingestion; results are a point-in-time
// snapshot that may trail clicks still in the pipeline.
type AnalyticsService interface {
	AnalyticsFor(ctx context.Context, linkID uuid.UUID) (*model.LinkAnalytics, error)
}

type analyticsService struct {
	clicks repository.ClickRepository
}

// NewAnalyticsService returns an implementation over the click store.
func NewAnalyticsService(clicks repository.ClickRepository) AnalyticsService {
	return &analyticsService{clicks: clicks}
}

func (s *analyticsService) AnalyticsFor(ctx context.Context, linkID uuid.UUID) (*model.LinkAnalytics, error) {
	total, err := s.clicks.CountByLink(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("total clicks: %w", err)
	}

	since := time.Now().UTC().AddDate(0, 0, -analyticsWindowDays)
	series, err := s.clicks.ClicksPerDay(ctx, linkID, since)
	if err != nil {
		return nil, fmt.Errorf("daily series: %w", err)
	}

	referrers, err := s.clicks.TopReferrers(ctx, linkID, topN)
	if err != nil {
		return nil, fmt.Errorf("top referrers: %w", err)
	}
	devices, err := s.clicks.TopDevices(ctx, linkID, topN)
	if err != nil {
		return nil, fmt.Errorf("top devices: %w", err)
	}
	countries, err := s.clicks.TopCountries(ctx, linkID, topN)
	if err != nil {
		return nil, fmt.Errorf("top countries: %w", err)
	}

	return &model.LinkAnalytics{
		TotalClicks:  total,
		ClicksPerDay: series,
		TopReferrers: referrers,
		TopDevices:   devices,
		TopCountries: countries,
	}, nil
}
