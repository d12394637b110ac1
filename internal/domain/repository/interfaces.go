package repository

import (
	"context"

	"FinReplay/internal/domain/models"
)

// ResultSink persists the outcome of one split.
type ResultSink interface {
	Name() string
	Save(ctx context.Context, runID string, report models.SplitReport) error
}

// ResultPublisher fans a finished run out to downstream consumers.
type ResultPublisher interface {
	PublishReport(ctx context.Context, report *models.EvaluationReport) error
	Close() error
}

// ReportStore keeps evaluation reports addressable by run id.
type ReportStore interface {
	Put(ctx context.Context, report *models.EvaluationReport) error
	Get(ctx context.Context, runID string) (*models.EvaluationReport, error)
}

// ProgressPublisher receives one event per macro step.
type ProgressPublisher interface {
	PublishProgress(ev models.ProgressEvent)
}

type Metrics interface {
	RecordEpisode(split, status string)
	RecordMacroStep(split string, commission float64)
	RecordFinalBalance(split string, balance float64)
	RecordInference(provider string, seconds float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
