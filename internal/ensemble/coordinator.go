package ensemble

import (
	"context"
	"time"

	"FinReplay/internal/domain/models"
	"FinReplay/internal/domain/repository"
	"FinReplay/internal/domain/service"
)

// Coordinator queries every provider of a coarse action and majority-votes the fine action.
type Coordinator struct {
	slots   *SlotSet
	metrics repository.Metrics
}

var _ service.Decider = (*Coordinator)(nil)

type CoordinatorOption func(*Coordinator)

// WithMetrics records per-provider inference latency.
func WithMetrics(m repository.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

func NewCoordinator(slots *SlotSet, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{slots: slots}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Slots() *SlotSet { return c.slots }

// Decide checks the whole row before querying so a bad slot fails the call without
// partial inference.
func (c *Coordinator) Decide(ctx context.Context, coarseAction int, state []float64) (int, error) {
	providers, err := c.slots.Providers(coarseAction)
	if err != nil {
		return 0, err
	}
	for i, p := range providers {
		if p == nil {
			return 0, &models.ProviderUnavailableError{CoarseAction: coarseAction, Slot: i, Err: models.ErrMissingProvider}
		}
		if p.InputSize() != len(state) {
			return 0, &models.StateShapeError{Provider: p.ID(), Want: p.InputSize(), Got: len(state)}
		}
	}

	votes := make([]int, len(providers))
	for i, p := range providers {
		start := time.Now()
		a, err := p.Predict(ctx, state)
		if c.metrics != nil {
			c.metrics.RecordInference(p.ID(), time.Since(start).Seconds())
		}
		if err != nil {
			return 0, &models.ProviderUnavailableError{CoarseAction: coarseAction, Slot: i, Provider: p.ID(), Err: err}
		}
		votes[i] = a
	}
	return Majority(votes), nil
}

// Majority returns the most frequent vote. Ties go to the lowest action.
func Majority(votes []int) int {
	if len(votes) == 0 {
		return 0
	}
	best, bestCount := votes[0], 0
	for _, v := range votes {
		n := 0
		for _, w := range votes {
			if w == v {
				n++
			}
		}
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best
}
