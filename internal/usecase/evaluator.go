package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"FinReplay/internal/domain/models"
	drepo "FinReplay/internal/domain/repository"
	"FinReplay/internal/domain/service"
	"FinReplay/internal/env"
	"FinReplay/internal/env/envobs"
	"FinReplay/internal/services/performance"
	"FinReplay/pkg/logger"
	"FinReplay/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DeciderSource hands out the fine-level ensemble for a dataset.
type DeciderSource interface {
	Decider(ctx context.Context, dataset string) (service.Decider, error)
}

// EvaluationParams describes one single-arm run: the same coarse action on every
// macro step of every split.
type EvaluationParams struct {
	RunID    string
	Dataset  string
	Action   int
	Splits   []models.SplitSpec
	Parallel bool
}

// Evaluator runs the single-agent evaluation over dataset splits.
type Evaluator struct {
	base        env.Config
	feeds       drepo.FeedSource
	deciders    DeciderSource
	sinks       []drepo.ResultSink
	progress    drepo.ProgressPublisher
	metrics     drepo.Metrics
	log         *logger.Logger
	barsPerYear float64
}

// EvaluatorOption configures Evaluator.
type EvaluatorOption func(*Evaluator)

func WithSinks(sinks ...drepo.ResultSink) EvaluatorOption {
	return func(e *Evaluator) { e.sinks = append(e.sinks, sinks...) }
}

func WithProgress(p drepo.ProgressPublisher) EvaluatorOption {
	return func(e *Evaluator) { e.progress = p }
}

func WithEvaluatorMetrics(m drepo.Metrics) EvaluatorOption {
	return func(e *Evaluator) { e.metrics = m }
}

func WithLogger(l *logger.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.log = l }
}

// WithBarsPerYear sets the annualization factor of the summary statistics.
func WithBarsPerYear(n float64) EvaluatorOption {
	return func(e *Evaluator) { e.barsPerYear = n }
}

// NewEvaluator builds an Evaluator. base carries every env setting except Dataset,
// which each run supplies.
func NewEvaluator(base env.Config, feeds drepo.FeedSource, deciders DeciderSource, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		base:        base,
		feeds:       feeds,
		deciders:    deciders,
		metrics:     nopMetrics{},
		log:         logger.NewNop(),
		barsPerYear: performance.BarsPerYearForTF("1m"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the base env settings.
func (e *Evaluator) Config() env.Config { return e.base }

// Run evaluates every split with a fresh environment. Configuration and ensemble
// problems fail the whole run; an episode error only fails its split. The returned
// report is never nil when err is nil.
func (e *Evaluator) Run(ctx context.Context, p EvaluationParams) (*models.EvaluationReport, error) {
	ctx, span := tracing.StartSpan(ctx, "evaluate.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", p.RunID),
		attribute.String("dataset", p.Dataset),
		attribute.Int("action", p.Action),
	)

	report := &models.EvaluationReport{
		RunID:     p.RunID,
		Dataset:   strings.ToUpper(p.Dataset),
		Action:    p.Action,
		Status:    models.StatusRunning,
		CreatedAt: time.Now().UTC(),
		StartedAt: time.Now().UTC(),
	}
	log := e.log.With(logger.String("run_id", p.RunID), logger.String("dataset", report.Dataset), logger.Int("action", p.Action))

	cfg := e.base
	cfg.Dataset = report.Dataset
	if err := e.validate(cfg, p); err != nil {
		e.metrics.RecordError("configuration")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	decider, err := e.deciders.Decider(ctx, report.Dataset)
	if err != nil {
		e.metrics.RecordError("ensemble")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("ensemble unavailable", logger.Error(err))
		return nil, fmt.Errorf("ensemble for %s: %w", report.Dataset, err)
	}

	log.Info("evaluation started", logger.Int("splits", len(p.Splits)), logger.Bool("parallel", p.Parallel))
	report.Splits = make([]models.SplitReport, len(p.Splits))
	if p.Parallel && len(p.Splits) > 1 {
		var wg sync.WaitGroup
		for i, spec := range p.Splits {
			wg.Add(1)
			go func(i int, spec models.SplitSpec) {
				defer wg.Done()
				report.Splits[i] = e.runSplit(ctx, p, cfg, decider, spec, log)
			}(i, spec)
		}
		wg.Wait()
	} else {
		for i, spec := range p.Splits {
			report.Splits[i] = e.runSplit(ctx, p, cfg, decider, spec, log)
		}
	}

	report.Status = finalStatus(report.Splits)
	report.FinishedAt = time.Now().UTC()
	if report.Status != models.StatusDone {
		var msgs []string
		for _, s := range report.Splits {
			if s.Failed() {
				msgs = append(msgs, s.Split+": "+s.Error)
			}
		}
		report.Error = strings.Join(msgs, "; ")
		span.SetStatus(codes.Error, report.Error)
	}
	log.Info("evaluation finished",
		logger.String("status", string(report.Status)),
		logger.Duration("duration_ms", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (e *Evaluator) validate(cfg env.Config, p EvaluationParams) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if p.Action < 0 || p.Action >= cfg.ActionDim {
		return models.NewConfigurationError("action", "must be in [0, %d), got %d", cfg.ActionDim, p.Action)
	}
	if len(p.Splits) == 0 {
		return models.NewConfigurationError("splits", "at least one split is required")
	}
	seen := make(map[string]bool, len(p.Splits))
	for _, s := range p.Splits {
		if s.Name == "" || seen[s.Name] {
			return models.NewConfigurationError("splits", "split names must be unique and non-empty, got %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// runSplit plays one episode to the end and hands the outcome to every sink.
func (e *Evaluator) runSplit(ctx context.Context, p EvaluationParams, cfg env.Config, decider service.Decider, spec models.SplitSpec, log *logger.Logger) models.SplitReport {
	ctx, span := tracing.StartSpan(ctx, "evaluate.split")
	defer span.End()
	span.SetAttributes(attribute.String("split", spec.Name))

	start := time.Now()
	log = log.With(logger.String("split", spec.Name))
	out := models.SplitReport{Split: spec.Name, Action: p.Action}

	environment, steps, err := e.play(ctx, p, cfg, decider, spec)
	if environment != nil {
		res := environment.Result()
		ep := environment.Episode()
		sum := performance.Summarize(res, ep, e.barsPerYear)
		out.Series = res
		out.Summary = &sum
		out.Steps = ep.Steps
	}
	out.DurationMS = time.Since(start).Milliseconds()
	e.metrics.RecordLatency("evaluate.split", time.Since(start).Seconds())

	if err != nil {
		epErr := &models.EpisodeError{Split: spec.Name, Step: steps, Err: err}
		out.Error = epErr.Error()
		out.FailedStep = steps
		span.RecordError(epErr)
		span.SetStatus(codes.Error, epErr.Error())
		e.metrics.RecordEpisode(spec.Name, "failed")
		e.metrics.RecordError(errorKind(err))
		log.Error("split failed", logger.Int("step", steps), logger.Error(err))
	} else {
		e.metrics.RecordEpisode(spec.Name, "done")
		e.metrics.RecordFinalBalance(spec.Name, out.Summary.FinalBalance)
		log.Info("split finished",
			logger.Int("macro_steps", out.Summary.MacroSteps),
			logger.Float64("pnl", out.Summary.PnL),
			logger.Float64("final_balance", out.Summary.FinalBalance),
			logger.Float64("commission", out.Summary.TotalCommission),
			logger.Duration("duration_ms", time.Since(start)))
	}

	e.save(ctx, p.RunID, out, log)
	return out
}

// play returns the environment (nil if it could not be built) and the number of
// completed macro steps.
func (e *Evaluator) play(ctx context.Context, p EvaluationParams, cfg env.Config, decider service.Decider, spec models.SplitSpec) (service.Environment, int, error) {
	feed, err := e.feeds.Load(ctx, spec)
	if err != nil {
		return nil, 0, fmt.Errorf("load feed: %w", err)
	}
	raw, err := env.New(cfg, feed, decider)
	if err != nil {
		return nil, 0, err
	}
	environment := envobs.Wrap(raw, spec.Name, e.log, e.metrics)

	if _, _, err := environment.Reset(ctx); err != nil {
		return environment, 0, err
	}
	steps := 0
	for {
		_, reward, done, info, err := environment.Step(ctx, p.Action)
		if err != nil {
			return environment, steps, err
		}
		steps++
		if e.progress != nil {
			e.progress.PublishProgress(models.ProgressEvent{
				RunID:       p.RunID,
				Split:       spec.Name,
				Step:        info.StepIndex,
				Action:      p.Action,
				Reward:      reward.InexactFloat64(),
				Holding:     info.Holding.InexactFloat64(),
				PureBalance: info.PureBalance.InexactFloat64(),
				Done:        done,
			})
		}
		if done {
			return environment, steps, nil
		}
	}
}

func (e *Evaluator) save(ctx context.Context, runID string, r models.SplitReport, log *logger.Logger) {
	for _, sink := range e.sinks {
		if err := sink.Save(ctx, runID, r); err != nil {
			e.metrics.RecordError("sink")
			log.Error("sink save failed", logger.String("sink", sink.Name()), logger.Error(err))
		}
	}
}

func finalStatus(splits []models.SplitReport) models.EvaluationStatus {
	failed := 0
	for _, s := range splits {
		if s.Failed() {
			failed++
		}
	}
	switch {
	case failed == 0:
		return models.StatusDone
	case failed == len(splits):
		return models.StatusFailed
	default:
		return models.StatusPartial
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, models.ErrStateShape):
		return "state_shape"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrConfiguration):
		return "configuration"
	case errors.Is(err, models.ErrInvalidFeed):
		return "feed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "episode"
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordEpisode(string, string)       {}
func (nopMetrics) RecordMacroStep(string, float64)    {}
func (nopMetrics) RecordFinalBalance(string, float64) {}
func (nopMetrics) RecordInference(string, float64)    {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordLatency(string, float64)      {}
