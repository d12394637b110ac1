package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FinReplay/internal/domain/models"
	drepo "FinReplay/internal/domain/repository"
	"FinReplay/pkg/logger"
	"FinReplay/pkg/queue"

	"github.com/google/uuid"
)

// JobTypeEvaluationRun is the queue message type of a submitted evaluation.
const JobTypeEvaluationRun = "evaluation.run"

// Allower is a per-key admission check.
type Allower interface {
	Allow(key string) bool
}

// EvaluationService accepts evaluation requests and serves their reports.
type EvaluationService struct {
	queue    queue.QueueService
	reports  drepo.ReportStore
	limiter  Allower
	parallel bool
	log      *logger.Logger
	now      func() time.Time
}

func NewEvaluationService(q queue.QueueService, reports drepo.ReportStore, limiter Allower, parallel bool, log *logger.Logger) *EvaluationService {
	if log == nil {
		log = logger.NewNop()
	}
	return &EvaluationService{queue: q, reports: reports, limiter: limiter, parallel: parallel, log: log, now: time.Now}
}

// Submit stores a queued report and enqueues the run. client keys the rate limit.
func (s *EvaluationService) Submit(ctx context.Context, client string, req models.EvaluationRequest) (*models.EvaluationReport, error) {
	if s.limiter != nil && !s.limiter.Allow(client) {
		return nil, models.ErrRateLimited
	}
	req.Dataset = strings.ToUpper(req.Dataset)
	if !req.Parallel {
		req.Parallel = s.parallel
	}

	report := &models.EvaluationReport{
		RunID:     uuid.NewString(),
		Dataset:   req.Dataset,
		Action:    req.Action,
		Status:    models.StatusQueued,
		CreatedAt: s.now().UTC(),
	}
	if err := s.reports.Put(ctx, report); err != nil {
		return nil, fmt.Errorf("store queued report: %w", err)
	}
	job := models.EvaluationJob{RunID: report.RunID, Request: req}
	if err := s.queue.PublishMessage(ctx, JobTypeEvaluationRun, job); err != nil {
		err = fmt.Errorf("enqueue evaluation: %w", err)
		report.Status = models.StatusFailed
		report.Error = err.Error()
		report.FinishedAt = s.now().UTC()
		if perr := s.reports.Put(ctx, report); perr != nil {
			s.log.Error("store unqueued report", logger.String("run_id", report.RunID), logger.Error(perr))
		}
		return nil, err
	}
	s.log.Info("evaluation queued",
		logger.String("run_id", report.RunID),
		logger.String("dataset", req.Dataset),
		logger.Int("action", req.Action),
		logger.Strings("splits", req.Splits))
	return report, nil
}

// Get returns the report of runID or models.ErrNotFound.
func (s *EvaluationService) Get(ctx context.Context, runID string) (*models.EvaluationReport, error) {
	return s.reports.Get(ctx, runID)
}

// Split returns one split of a run.
func (s *EvaluationService) Split(ctx context.Context, runID, split string) (*models.SplitReport, error) {
	report, err := s.reports.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	sr, ok := report.Split(split)
	if !ok {
		return nil, fmt.Errorf("split %s of run %s: %w", split, runID, models.ErrNotFound)
	}
	return sr, nil
}
