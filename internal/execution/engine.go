package execution

import (
	"fmt"

	"FinReplay/internal/domain/models"
	"FinReplay/internal/domain/service"

	"github.com/shopspring/decimal"
)

// Config holds the trading grid and cost model.
type Config struct {
	MaxHolding      decimal.Decimal
	ActionDim       int
	TransactionCost decimal.Decimal
}

// Option configures the engine.
type Option func(*Config)

func WithMaxHolding(v float64) Option {
	return func(c *Config) { c.MaxHolding = decimal.NewFromFloat(v) }
}

func WithActionDim(n int) Option {
	return func(c *Config) { c.ActionDim = n }
}

func WithTransactionCost(v float64) Option {
	return func(c *Config) { c.TransactionCost = decimal.NewFromFloat(v) }
}

// DefaultConfig mirrors the evaluation defaults.
func DefaultConfig() Config {
	return Config{
		MaxHolding:      decimal.RequireFromString("0.01"),
		ActionDim:       5,
		TransactionCost: decimal.RequireFromString("0.00015"),
	}
}

// Engine executes fine actions against a read-only feed. It holds no episode state.
type Engine struct {
	feed *models.Feed
	cfg  Config
}

var _ service.ExecutionEngine = (*Engine)(nil)

func New(feed *models.Feed, opts ...Option) (*Engine, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if feed == nil {
		return nil, models.NewConfigurationError("feed", "nil feed")
	}
	if cfg.ActionDim < 2 {
		return nil, models.NewConfigurationError("action_dim", "must be at least 2, got %d", cfg.ActionDim)
	}
	if !cfg.MaxHolding.IsPositive() {
		return nil, models.NewConfigurationError("max_holding_number", "must be positive, got %s", cfg.MaxHolding)
	}
	if cfg.TransactionCost.IsNegative() {
		return nil, models.NewConfigurationError("transaction_cost", "must not be negative, got %s", cfg.TransactionCost)
	}
	return &Engine{feed: feed, cfg: cfg}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// TargetHolding maps fine action k to k * max / (dim - 1).
func (e *Engine) TargetHolding(k int) decimal.Decimal {
	return e.cfg.MaxHolding.Mul(decimal.NewFromInt(int64(k))).Div(decimal.NewFromInt(int64(e.cfg.ActionDim - 1)))
}

// Level returns the holding expressed on the action grid.
func (e *Engine) Level(holding decimal.Decimal) float64 {
	return holding.Mul(decimal.NewFromInt(int64(e.cfg.ActionDim - 1))).Div(e.cfg.MaxHolding).InexactFloat64()
}

// Price returns the feed price at index as a decimal.
func (e *Engine) Price(index int) decimal.Decimal {
	return decimal.NewFromFloat(e.feed.Price(index))
}

// Execute moves the holding to the level named by action at the price of row index.
// An action off the grid keeps the current holding and flags the step.
func (e *Engine) Execute(state models.PositionState, index int, action int) (models.MicroStep, error) {
	if index < 0 || index >= e.feed.Len() {
		return models.MicroStep{}, fmt.Errorf("execute at index %d: feed has %d rows", index, e.feed.Len())
	}
	target := state.Holding
	violation := action < 0 || action >= e.cfg.ActionDim
	if !violation {
		target = e.TargetHolding(action)
	}
	m := e.trade(state, index, target)
	m.Action = action
	m.Violation = violation
	return m, nil
}

// Liquidate sells the whole holding at the price of row index.
func (e *Engine) Liquidate(state models.PositionState, index int) models.MicroStep {
	m := e.trade(state, index, decimal.Zero)
	m.Liquidation = true
	return m
}

func (e *Engine) trade(state models.PositionState, index int, target decimal.Decimal) models.MicroStep {
	price := e.Price(index)
	last := state.LastPrice
	if last.IsZero() {
		last = price
	}
	delta := target.Sub(state.Holding)
	commission := decimal.Zero
	if !delta.IsZero() {
		commission = delta.Abs().Mul(price).Mul(e.cfg.TransactionCost)
	}
	reward := state.Holding.Mul(price.Sub(last)).Sub(commission)
	return models.MicroStep{
		Index:      index,
		Timestamp:  e.feed.Row(index).Timestamp,
		Price:      price,
		Reward:     reward,
		Holding:    target,
		Cash:       state.Cash.Sub(delta.Mul(price)).Sub(commission),
		Commission: commission,
	}
}
