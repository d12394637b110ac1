package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinReplay/internal/domain/models"
	domrepo "FinReplay/internal/domain/repository"
	"FinReplay/pkg/cache"
)

// CacheReportStore keeps evaluation reports in a cache.Service (Redis, layered or memory).
type CacheReportStore struct {
	cache cache.Service
	ttl   time.Duration
}

var _ domrepo.ReportStore = (*CacheReportStore)(nil)

func NewCacheReportStore(c cache.Service, ttl time.Duration) *CacheReportStore {
	return &CacheReportStore{cache: c, ttl: ttl}
}

func reportKey(runID string) string { return cache.GenerateKey("report", runID) }

func (s *CacheReportStore) Put(ctx context.Context, report *models.EvaluationReport) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("report without run id")
	}
	if err := s.cache.Set(ctx, reportKey(report.RunID), report, s.ttl); err != nil {
		return fmt.Errorf("store report %s: %w", report.RunID, err)
	}
	return nil
}

func (s *CacheReportStore) Get(ctx context.Context, runID string) (*models.EvaluationReport, error) {
	var r models.EvaluationReport
	if err := s.cache.Get(ctx, reportKey(runID), &r); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("report %s: %w", runID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("load report %s: %w", runID, err)
	}
	return &r, nil
}
