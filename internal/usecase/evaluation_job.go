package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinReplay/internal/domain/models"
	drepo "FinReplay/internal/domain/repository"
	"FinReplay/pkg/logger"
	"FinReplay/pkg/queue"
)

// SplitResolver maps split names onto feed locations for a dataset.
type SplitResolver interface {
	Resolve(dataset string, names []string) ([]models.SplitSpec, error)
}

// EvaluationJob runs queued evaluations.
type EvaluationJob struct {
	evaluator *Evaluator
	splits    SplitResolver
	reports   drepo.ReportStore
	publisher drepo.ResultPublisher
	log       *logger.Logger
}

var _ queue.Job = (*EvaluationJob)(nil)

// NewEvaluationJob builds the job. publisher may be nil.
func NewEvaluationJob(ev *Evaluator, splits SplitResolver, reports drepo.ReportStore, publisher drepo.ResultPublisher, log *logger.Logger) *EvaluationJob {
	if log == nil {
		log = logger.NewNop()
	}
	return &EvaluationJob{evaluator: ev, splits: splits, reports: reports, publisher: publisher, log: log}
}

func (j *EvaluationJob) Name() string { return "evaluation-runner" }

func (j *EvaluationJob) Type() string { return JobTypeEvaluationRun }

// Handle marks the run running, evaluates it and stores the outcome. Configuration
// and provider errors are permanent: retrying the same request cannot succeed.
func (j *EvaluationJob) Handle(ctx context.Context, payload interface{}) error {
	job, err := queue.ParsePayload[models.EvaluationJob](payload)
	if err != nil {
		return queue.Permanent(err)
	}
	log := j.log.With(logger.String("run_id", job.RunID))

	report, err := j.reports.Get(ctx, job.RunID)
	if errors.Is(err, models.ErrNotFound) {
		report = &models.EvaluationReport{RunID: job.RunID, Dataset: job.Request.Dataset, Action: job.Request.Action, CreatedAt: time.Now().UTC()}
	} else if err != nil {
		return fmt.Errorf("load report %s: %w", job.RunID, err)
	}
	report.Status = models.StatusRunning
	report.StartedAt = time.Now().UTC()
	if err := j.reports.Put(ctx, report); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	specs, err := j.splits.Resolve(job.Request.Dataset, job.Request.Splits)
	if err != nil {
		return j.fail(ctx, report, err, log)
	}
	out, err := j.evaluator.Run(ctx, EvaluationParams{
		RunID:    job.RunID,
		Dataset:  job.Request.Dataset,
		Action:   job.Request.Action,
		Splits:   specs,
		Parallel: job.Request.Parallel,
	})
	if err != nil {
		return j.fail(ctx, report, err, log)
	}
	out.CreatedAt = report.CreatedAt

	if err := j.reports.Put(ctx, out); err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	if j.publisher != nil {
		if err := j.publisher.PublishReport(ctx, out); err != nil {
			log.Error("publish report failed", logger.Error(err))
		}
	}
	log.Info("evaluation stored", logger.String("status", string(out.Status)))
	return nil
}

func (j *EvaluationJob) fail(ctx context.Context, report *models.EvaluationReport, cause error, log *logger.Logger) error {
	report.Status = models.StatusFailed
	report.Error = cause.Error()
	report.FinishedAt = time.Now().UTC()
	if err := j.reports.Put(ctx, report); err != nil {
		log.Error("store failed report", logger.Error(err))
	}
	log.Error("evaluation failed", logger.Error(cause))
	if errors.Is(cause, models.ErrConfiguration) || errors.Is(cause, models.ErrProviderUnavailable) {
		return queue.Permanent(cause)
	}
	return cause
}
