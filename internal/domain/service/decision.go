package service

import (
	"context"

	"FinReplay/internal/domain/models"

	"github.com/shopspring/decimal"
)

// DecisionProvider is a pretrained fine-level model. Predict must be safe for concurrent use.
type DecisionProvider interface {
	ID() string
	InputSize() int
	Predict(ctx context.Context, state []float64) (int, error)
}

// ProviderLoader resolves a checkpoint identifier into a provider handle.
type ProviderLoader interface {
	Load(ctx context.Context, checkpointID string) (DecisionProvider, error)
}

// Decider picks one fine action for a coarse action and fine state.
type Decider interface {
	Decide(ctx context.Context, coarseAction int, state []float64) (int, error)
}

// ExecutionEngine turns a fine action into a MicroStep against the read-only feed.
type ExecutionEngine interface {
	Execute(state models.PositionState, index int, action int) (models.MicroStep, error)
	Liquidate(state models.PositionState, index int) models.MicroStep
}

// Environment is the hierarchical trading state machine seen by the harness.
type Environment interface {
	Reset(ctx context.Context) (models.Observation, models.StepInfo, error)
	Step(ctx context.Context, coarseAction int) (models.Observation, decimal.Decimal, bool, models.StepInfo, error)
	Result() *models.ResultSeries
	Episode() models.Episode
}
