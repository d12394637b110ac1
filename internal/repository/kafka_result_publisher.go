package repository

import (
	"context"
	"fmt"

	"FinReplay/internal/domain/models"
	domrepo "FinReplay/internal/domain/repository"
	pkgkafka "FinReplay/pkg/kafka"
)

const (
	EventSplitCompleted      = "split.completed"
	EventEvaluationCompleted = "evaluation.completed"
)

type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaResultPublisher publishes split results and finished runs keyed by run id, so
// every event of one run lands on the same partition.
type KafkaResultPublisher struct {
	producer batchPublisher
	topic    string
}

var (
	_ domrepo.ResultSink      = (*KafkaResultPublisher)(nil)
	_ domrepo.ResultPublisher = (*KafkaResultPublisher)(nil)
)

func NewKafkaResultPublisher(producer batchPublisher, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) Name() string { return "kafka" }

// splitEvent leaves out the per-step detail; consumers read it from ClickHouse.
type splitEvent struct {
	Event   string               `json:"event"`
	RunID   string               `json:"run_id"`
	Split   string               `json:"split"`
	Action  int                  `json:"action"`
	Summary *models.Summary      `json:"summary,omitempty"`
	Series  *models.ResultSeries `json:"series,omitempty"`
	Error   string               `json:"error,omitempty"`
}

func (p *KafkaResultPublisher) Save(ctx context.Context, runID string, report models.SplitReport) error {
	ev := splitEvent{
		Event:   EventSplitCompleted,
		RunID:   runID,
		Split:   report.Split,
		Action:  report.Action,
		Summary: report.Summary,
		Series:  report.Series,
		Error:   report.Error,
	}
	return p.publish(ctx, runID, EventSplitCompleted, ev)
}

func (p *KafkaResultPublisher) PublishReport(ctx context.Context, report *models.EvaluationReport) error {
	if report == nil {
		return fmt.Errorf("nil report")
	}
	payload := struct {
		Event string `json:"event"`
		*models.EvaluationReport
	}{Event: EventEvaluationCompleted, EvaluationReport: report}
	return p.publish(ctx, report.RunID, EventEvaluationCompleted, payload)
}

func (p *KafkaResultPublisher) publish(ctx context.Context, runID, event string, v interface{}) error {
	err := p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
		Key:     []byte(runID),
		Value:   v,
		Headers: map[string]string{"event": event},
	}})
	if err != nil {
		return fmt.Errorf("publish %s for %s: %w", event, runID, err)
	}
	return nil
}

func (p *KafkaResultPublisher) Close() error {
	return p.producer.Close()
}
