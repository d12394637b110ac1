package env

import (
	"strings"

	"FinReplay/internal/domain/models"
)

// Reward reductions folding micro rewards into one macro reward.
const (
	ReduceSum  = "sum"
	ReduceMean = "mean"
	ReduceLast = "last"
)

// DefaultDatasets lists the instruments the pretrained ensembles exist for.
var DefaultDatasets = []string{"BTCUSDT", "ETHUSDT", "GALAUSDT", "BTCTUSD"}

// Config holds the state machine settings.
type Config struct {
	Dataset            string
	AllowedDatasets    []string
	TransactionCost    float64
	MaxHoldingNumber   float64
	ActionDim          int
	BackTimeLength     int
	InitialAction      int
	MicroStepsPerMacro int
	RewardReduction    string
	EarlyStop          bool
	EarlyStopLoss      float64
	LiquidateOnEnd     bool
}

// Option mutates Config.
type Option func(*Config)

func WithDataset(name string) Option { return func(c *Config) { c.Dataset = name } }

func WithAllowedDatasets(names ...string) Option {
	return func(c *Config) { c.AllowedDatasets = names }
}

func WithTransactionCost(v float64) Option { return func(c *Config) { c.TransactionCost = v } }

func WithMaxHolding(v float64) Option { return func(c *Config) { c.MaxHoldingNumber = v } }

func WithActionDim(n int) Option { return func(c *Config) { c.ActionDim = n } }

func WithBackTimeLength(n int) Option { return func(c *Config) { c.BackTimeLength = n } }

func WithInitialAction(a int) Option { return func(c *Config) { c.InitialAction = a } }

func WithMicroSteps(n int) Option { return func(c *Config) { c.MicroStepsPerMacro = n } }

func WithRewardReduction(r string) Option { return func(c *Config) { c.RewardReduction = r } }

func WithEarlyStop(loss float64) Option {
	return func(c *Config) {
		c.EarlyStop = true
		c.EarlyStopLoss = loss
	}
}

func WithLiquidateOnEnd(v bool) Option { return func(c *Config) { c.LiquidateOnEnd = v } }

// DefaultConfig returns the evaluation defaults.
func DefaultConfig() Config {
	return Config{
		Dataset:            "BTCUSDT",
		AllowedDatasets:    append([]string(nil), DefaultDatasets...),
		TransactionCost:    0.00015,
		MaxHoldingNumber:   0.01,
		ActionDim:          5,
		BackTimeLength:     1,
		InitialAction:      0,
		MicroStepsPerMacro: 60,
		RewardReduction:    ReduceSum,
		LiquidateOnEnd:     true,
	}
}

// NewConfig applies opts over DefaultConfig.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Validate returns a *models.ConfigurationError for the first unusable field.
func (c Config) Validate() error {
	if len(c.AllowedDatasets) > 0 && !containsFold(c.AllowedDatasets, c.Dataset) {
		return models.NewConfigurationError("dataset", "%q is not one of %s", c.Dataset, strings.Join(c.AllowedDatasets, ", "))
	}
	if c.ActionDim < 2 {
		return models.NewConfigurationError("action_dim", "must be at least 2, got %d", c.ActionDim)
	}
	if c.MaxHoldingNumber <= 0 {
		return models.NewConfigurationError("max_holding_number", "must be positive, got %v", c.MaxHoldingNumber)
	}
	if c.TransactionCost < 0 {
		return models.NewConfigurationError("transaction_cost", "must not be negative, got %v", c.TransactionCost)
	}
	if c.BackTimeLength < 1 {
		return models.NewConfigurationError("back_time_length", "must be at least 1, got %d", c.BackTimeLength)
	}
	if c.InitialAction < 0 || c.InitialAction >= c.ActionDim {
		return models.NewConfigurationError("initial_action", "must be in [0, %d), got %d", c.ActionDim, c.InitialAction)
	}
	if c.MicroStepsPerMacro < 1 {
		return models.NewConfigurationError("micro_steps_per_macro", "must be at least 1, got %d", c.MicroStepsPerMacro)
	}
	switch c.RewardReduction {
	case ReduceSum, ReduceMean, ReduceLast:
	default:
		return models.NewConfigurationError("reward_reduction", "unknown reduction %q", c.RewardReduction)
	}
	if c.EarlyStop && c.EarlyStopLoss <= 0 {
		return models.NewConfigurationError("early_stop_loss", "must be positive when early_stop is set, got %v", c.EarlyStopLoss)
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
