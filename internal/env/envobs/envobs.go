package envobs

import (
	"context"
	"time"

	"FinReplay/internal/domain/models"
	"FinReplay/internal/domain/repository"
	"FinReplay/internal/domain/service"
	"FinReplay/pkg/logger"
	"FinReplay/pkg/tracing"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type observableEnv struct {
	env     service.Environment
	split   string
	log     *logger.Logger
	metrics repository.Metrics
}

var _ service.Environment = (*observableEnv)(nil)

// Wrap adds a span, a debug log line and metrics around every Reset and Step.
// metrics may be nil.
func Wrap(env service.Environment, split string, log *logger.Logger, metrics repository.Metrics) service.Environment {
	if log == nil {
		log = logger.NewNop()
	}
	return &observableEnv{env: env, split: split, log: log.With(logger.String("split", split)), metrics: metrics}
}

func (o *observableEnv) Reset(ctx context.Context) (models.Observation, models.StepInfo, error) {
	ctx, span := tracing.StartSpan(ctx, "env.Reset")
	defer span.End()
	span.SetAttributes(attribute.String("split", o.split))

	obs, info, err := o.env.Reset(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.log.Error("Reset failed", logger.Error(err))
		return obs, info, err
	}
	o.log.Debug("Episode reset", logger.Int("cursor", info.Cursor), logger.Int("obs_len", len(obs)))
	return obs, info, nil
}

func (o *observableEnv) Step(ctx context.Context, coarseAction int) (models.Observation, decimal.Decimal, bool, models.StepInfo, error) {
	ctx, span := tracing.StartSpan(ctx, "env.Step")
	defer span.End()
	span.SetAttributes(
		attribute.String("split", o.split),
		attribute.Int("coarse_action", coarseAction),
	)

	start := time.Now()
	obs, reward, done, info, err := o.env.Step(ctx, coarseAction)
	elapsed := time.Since(start)
	if o.metrics != nil {
		o.metrics.RecordLatency("env.step", elapsed.Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.log.Error("Macro step failed",
			logger.Int("coarse_action", coarseAction),
			logger.Error(err),
			logger.Duration("duration_ms", elapsed),
		)
		return obs, reward, done, info, err
	}

	span.SetAttributes(
		attribute.Int("step", info.StepIndex),
		attribute.Int("micro_steps", info.MicroSteps),
		attribute.Bool("done", done),
	)
	if o.metrics != nil {
		o.metrics.RecordMacroStep(o.split, info.Commission.InexactFloat64())
	}
	if len(info.Violations) > 0 {
		o.log.Warn("Fine actions out of bounds",
			logger.Int("step", info.StepIndex),
			logger.Int("violations", len(info.Violations)),
		)
	}
	o.log.Debug("Macro step",
		logger.Int("step", info.StepIndex),
		logger.Int("coarse_action", coarseAction),
		logger.String("reward", reward.String()),
		logger.String("pure_balance", info.PureBalance.String()),
		logger.Bool("done", done),
		logger.Duration("duration_ms", elapsed),
	)
	return obs, reward, done, info, nil
}

func (o *observableEnv) Result() *models.ResultSeries { return o.env.Result() }

func (o *observableEnv) Episode() models.Episode { return o.env.Episode() }
