package env

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"FinReplay/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepUp raises the holding one level per decision until the top of the grid.
type stepUp struct{ top int }

func (s stepUp) Decide(_ context.Context, _ int, state []float64) (int, error) {
	level := int(math.Round(state[len(state)-2]))
	if level+1 > s.top {
		return s.top, nil
	}
	return level + 1, nil
}

// toTarget always proposes the coarse target level.
type toTarget struct{}

func (toTarget) Decide(_ context.Context, coarseAction int, _ []float64) (int, error) {
	return coarseAction, nil
}

type fixed int

func (f fixed) Decide(context.Context, int, []float64) (int, error) { return int(f), nil }

type failing struct{ after, calls int }

func (f *failing) Decide(context.Context, int, []float64) (int, error) {
	f.calls++
	if f.calls > f.after {
		return 0, &models.ProviderUnavailableError{Provider: "model_0.onnx", Err: errors.New("session closed")}
	}
	return 1, nil
}

func feedOf(t *testing.T, prices ...float64) *models.Feed {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]models.MarketRow, len(prices))
	for i, p := range prices {
		rows[i] = models.MarketRow{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Price:     p,
			Volume:    1,
			High:      []float64{p},
			Low:       []float64{p / 100},
		}
	}
	feed, err := models.NewFeed("BTCUSDT", []string{"close"}, []string{"close_norm"}, rows)
	require.NoError(t, err)
	return feed
}

func newEnv(t *testing.T, feed *models.Feed, d interface {
	Decide(context.Context, int, []float64) (int, error)
}, opts ...Option) *Env {
	t.Helper()
	e, err := New(NewConfig(opts...), feed, d)
	require.NoError(t, err)
	return e
}

func runEpisode(t *testing.T, e *Env, action int) (rewards []decimal.Decimal, infos []models.StepInfo) {
	t.Helper()
	_, _, err := e.Reset(context.Background())
	require.NoError(t, err)
	for {
		_, r, done, info, err := e.Step(context.Background(), action)
		require.NoError(t, err)
		rewards = append(rewards, r)
		infos = append(infos, info)
		if done {
			return rewards, infos
		}
	}
}

func TestScenarioThreeWindowsTwoMicroSteps(t *testing.T) {
	cases := []struct {
		name       string
		liquidate  bool
		commission []string
	}{
		{"liquidate on end", true, []string{"0.00007575", "0", "0.0000795"}},
		{"hold on end", false, []string{"0.00007575", "0", "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			feed := feedOf(t, 100, 101, 102, 103, 104, 105, 106)
			e := newEnv(t, feed, toTarget{}, WithMicroSteps(2), WithLiquidateOnEnd(tc.liquidate))

			_, infos := runEpisode(t, e, 2)
			res := e.Result()

			assert.Equal(t, []int{2, 2, 2}, res.Actions)
			require.Len(t, res.CommissionHistory, len(tc.commission))
			for i, want := range tc.commission {
				assert.True(t, res.CommissionHistory[i].Equal(decimal.RequireFromString(want)),
					"step %d commission %s, want %s", i, res.CommissionHistory[i], want)
				assert.True(t, infos[i].Commission.Equal(res.CommissionHistory[i]))
			}
			// the target is reached on the first micro step and held afterwards
			assert.Equal(t, 2, infos[0].HoldingLevel)
			assert.Equal(t, 2, infos[1].HoldingLevel)
			assert.Equal(t, feed.Len()-1, e.Episode().MicroStepCount())
			if tc.liquidate {
				assert.True(t, e.Position().Holding.IsZero())
				assert.Equal(t, 0, infos[2].HoldingLevel)
			} else {
				assert.Equal(t, 2, infos[2].HoldingLevel)
			}
		})
	}
}

func TestAccountingConservation(t *testing.T) {
	prices := []float64{100, 101.5, 99.25, 103, 104.75, 98, 97.5, 102, 105, 101}
	for _, liquidate := range []bool{true, false} {
		e := newEnv(t, feedOf(t, prices...), stepUp{top: 4}, WithMicroSteps(3), WithLiquidateOnEnd(liquidate))
		runEpisode(t, e, 1)
		res := e.Result()
		pos := e.Position()

		sum := decimal.Sum(decimal.Zero, res.MacroRewardHistory...)
		assert.True(t, sum.Equal(res.PureBalance), "sum of rewards %s != pure balance %s", sum, res.PureBalance)
		want := res.PureBalance.Add(res.PeakRequiredMoney()).Sub(pos.Unrealized())
		assert.True(t, res.FinalBalance.Equal(want), "final %s != %s", res.FinalBalance, want)
		assert.True(t, res.FinalBalance.Equal(pos.Cash.Add(pos.RequiredMoney)))
		assert.Equal(t, liquidate, pos.Holding.IsZero())
	}
}

func TestResetIsIdempotentAndEpisodesDeterministic(t *testing.T) {
	feed := feedOf(t, 100, 101, 99, 98, 102, 103, 101)
	e := newEnv(t, feed, stepUp{top: 3}, WithMicroSteps(2), WithInitialAction(3))

	obs1, info1, err := e.Reset(context.Background())
	require.NoError(t, err)
	obs2, info2, err := e.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, obs1, obs2)
	assert.Equal(t, info1, info2)
	assert.Equal(t, models.Observation{100, 3}, obs1)

	rewardsA, _ := runEpisode(t, e, 3)
	resA := e.Result()
	rewardsB, _ := runEpisode(t, e, 3)
	resB := e.Result()
	other := newEnv(t, feed, stepUp{top: 3}, WithMicroSteps(2), WithInitialAction(3))
	rewardsC, _ := runEpisode(t, other, 3)

	assert.Equal(t, rewardsA, rewardsB)
	assert.Equal(t, rewardsA, rewardsC)
	assert.Equal(t, resA, resB)
	assert.Equal(t, resA, other.Result())
}

func TestCumulativeCommissionNonDecreasing(t *testing.T) {
	e := newEnv(t, feedOf(t, 100, 102, 101, 104, 103, 106, 105, 108, 107), stepUp{top: 4}, WithMicroSteps(2))
	runEpisode(t, e, 4)

	cum := e.Result().CumulativeCommission()
	for i := 1; i < len(cum); i++ {
		assert.False(t, cum[i].LessThan(cum[i-1]), "commission decreased at %d", i)
	}
	for _, s := range e.Episode().Steps {
		for _, m := range s.Micro {
			assert.False(t, m.Commission.IsNegative())
		}
	}
}

func TestBoundViolationHoldsPosition(t *testing.T) {
	e := newEnv(t, feedOf(t, 100, 101, 102, 103), fixed(9), WithMicroSteps(2), WithLiquidateOnEnd(false))
	_, infos := runEpisode(t, e, 0)

	require.Len(t, infos, 2)
	require.Len(t, infos[0].Violations, 2)
	assert.Equal(t, 9, infos[0].Violations[0].Action)
	assert.Equal(t, 1, infos[0].Violations[0].Index)
	for _, s := range e.Episode().Steps {
		for _, m := range s.Micro {
			assert.True(t, m.Violation)
			assert.True(t, m.Holding.IsZero())
		}
	}
	assert.True(t, e.Result().CommissionHistory[0].IsZero())
}

func TestStepAfterDoneLeavesStateUntouched(t *testing.T) {
	e := newEnv(t, feedOf(t, 100, 101, 102), stepUp{top: 4}, WithMicroSteps(5))
	runEpisode(t, e, 2)

	before := e.Result()
	pos := e.Position()
	steps := len(e.Episode().Steps)

	_, reward, done, _, err := e.Step(context.Background(), 2)
	var invalid *models.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.True(t, done)
	assert.True(t, reward.IsZero())
	assert.Equal(t, before, e.Result())
	assert.Equal(t, pos, e.Position())
	assert.Len(t, e.Episode().Steps, steps)
}

func TestStepBeforeReset(t *testing.T) {
	e := newEnv(t, feedOf(t, 100, 101), fixed(1))
	_, _, _, _, err := e.Step(context.Background(), 0)
	require.ErrorIs(t, err, models.ErrInvalidState)
}

func TestInvalidCoarseAction(t *testing.T) {
	e := newEnv(t, feedOf(t, 100, 101, 102), fixed(1), WithMicroSteps(1))
	_, _, err := e.Reset(context.Background())
	require.NoError(t, err)

	for _, a := range []int{-1, 5} {
		_, _, _, _, err = e.Step(context.Background(), a)
		require.ErrorIs(t, err, models.ErrInvalidAction)
	}
	assert.Equal(t, PhaseAwaitingAction, e.Phase())
	assert.Equal(t, 0, e.Result().Len())
}

func TestDecideFailureIsFatalAndAtomic(t *testing.T) {
	d := &failing{after: 3}
	e := newEnv(t, feedOf(t, 100, 101, 102, 103, 104, 105, 106), d, WithMicroSteps(2))
	_, _, err := e.Reset(context.Background())
	require.NoError(t, err)

	_, _, _, _, err = e.Step(context.Background(), 1)
	require.NoError(t, err)
	committed := e.Result()
	pos := e.Position()

	_, _, _, _, err = e.Step(context.Background(), 1)
	require.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.Equal(t, PhaseFailed, e.Phase())
	assert.Equal(t, committed, e.Result())
	assert.Equal(t, pos, e.Position())

	_, _, _, _, err = e.Step(context.Background(), 1)
	require.ErrorIs(t, err, models.ErrInvalidState)
}

func TestEarlyStopLiquidates(t *testing.T) {
	e := newEnv(t, feedOf(t, 100, 100, 50, 50, 50, 50, 50), fixed(4), WithMicroSteps(2), WithEarlyStop(0.1))
	_, _, err := e.Reset(context.Background())
	require.NoError(t, err)

	_, _, done, info, err := e.Step(context.Background(), 4)
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, info.EarlyStopped)
	assert.Equal(t, 3, info.Cursor)
	assert.True(t, e.Position().Holding.IsZero())
	assert.Equal(t, 2, e.Episode().MicroStepCount())
	assert.True(t, e.Position().PureBalance().LessThanOrEqual(decimal.NewFromFloat(-0.1)))
}

func TestPartialLastWindow(t *testing.T) {
	e := newEnv(t, feedOf(t, 100, 101, 102, 103, 104, 105), fixed(2), WithMicroSteps(2))
	_, infos := runEpisode(t, e, 1)

	require.Len(t, infos, 3)
	assert.Equal(t, 1, infos[2].MicroSteps)
	assert.Equal(t, 5, e.Episode().MicroStepCount())
}

func TestRewardReductions(t *testing.T) {
	prices := []float64{100, 101, 103, 106, 110}
	sum := newEnv(t, feedOf(t, prices...), fixed(4), WithMicroSteps(2), WithRewardReduction(ReduceSum))
	mean := newEnv(t, feedOf(t, prices...), fixed(4), WithMicroSteps(2), WithRewardReduction(ReduceMean))
	last := newEnv(t, feedOf(t, prices...), fixed(4), WithMicroSteps(2), WithRewardReduction(ReduceLast))
	runEpisode(t, sum, 1)
	runEpisode(t, mean, 1)
	runEpisode(t, last, 1)

	steps := sum.Episode().Steps
	for i, s := range steps {
		raw := sum.Result().MacroRewardHistory[i]
		assert.True(t, sum.Result().Rewards[i].Equal(raw))
		assert.True(t, mean.Result().Rewards[i].Equal(raw.Div(decimal.NewFromInt(int64(len(s.Micro))))))
		assert.True(t, last.Result().Rewards[i].Equal(s.Micro[len(s.Micro)-1].Reward))
		assert.True(t, mean.Result().MacroRewardHistory[i].Equal(raw))
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		field string
	}{
		{"dataset", []Option{WithDataset("DOGEUSDT")}, "dataset"},
		{"action dim", []Option{WithActionDim(1), WithInitialAction(0)}, "action_dim"},
		{"max holding", []Option{WithMaxHolding(0)}, "max_holding_number"},
		{"cost", []Option{WithTransactionCost(-1)}, "transaction_cost"},
		{"back", []Option{WithBackTimeLength(0)}, "back_time_length"},
		{"initial action", []Option{WithInitialAction(5)}, "initial_action"},
		{"micro", []Option{WithMicroSteps(0)}, "micro_steps_per_macro"},
		{"reduction", []Option{WithRewardReduction("median")}, "reward_reduction"},
		{"early stop", []Option{WithEarlyStop(0)}, "early_stop_loss"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfig(tt.opts...).Validate()
			var cfgErr *models.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	require.NoError(t, NewConfig(WithDataset("ethusdt")).Validate())
	require.NoError(t, NewConfig(WithDataset("XRPUSDT"), WithAllowedDatasets()).Validate())
}

func TestNewRejectsShortFeed(t *testing.T) {
	_, err := New(NewConfig(WithBackTimeLength(3)), feedOf(t, 100, 101, 102), fixed(0))
	require.ErrorIs(t, err, models.ErrConfiguration)
}

func TestFineStateShape(t *testing.T) {
	var seen [][]float64
	d := deciderFunc(func(_ context.Context, _ int, s []float64) (int, error) {
		seen = append(seen, append([]float64(nil), s...))
		return 4, nil
	})
	e := newEnv(t, feedOf(t, 100, 200, 300, 400), d, WithBackTimeLength(2), WithMicroSteps(2))
	runEpisode(t, e, 3)

	require.Len(t, seen, 2)
	assert.Equal(t, e.InputSize(), len(seen[0]))
	assert.Equal(t, []float64{2, 3, 0, 3}, seen[0])
	assert.Equal(t, []float64{3, 4, 4, 3}, seen[1])
}

type deciderFunc func(context.Context, int, []float64) (int, error)

func (f deciderFunc) Decide(ctx context.Context, a int, s []float64) (int, error) {
	return f(ctx, a, s)
}
