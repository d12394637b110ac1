package execution

import (
	"testing"
	"time"

	"FinReplay/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFeed(t *testing.T, prices ...float64) *models.Feed {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]models.MarketRow, len(prices))
	for i, p := range prices {
		rows[i] = models.MarketRow{Timestamp: start.Add(time.Duration(i) * time.Second), Price: p, Volume: 1}
	}
	feed, err := models.NewFeed("BTCUSDT", nil, nil, rows)
	require.NoError(t, err)
	return feed
}

func TestTargetHoldingGrid(t *testing.T) {
	eng, err := New(testFeed(t, 100), WithActionDim(5), WithMaxHolding(0.01))
	require.NoError(t, err)

	want := []string{"0", "0.0025", "0.005", "0.0075", "0.01"}
	for k, w := range want {
		assert.True(t, eng.TargetHolding(k).Equal(decimal.RequireFromString(w)), "level %d: %s", k, eng.TargetHolding(k))
		assert.InDelta(t, float64(k), eng.Level(eng.TargetHolding(k)), 1e-12)
	}
}

func TestExecuteBuyChargesCommission(t *testing.T) {
	eng, err := New(testFeed(t, 100, 200))
	require.NoError(t, err)

	m, err := eng.Execute(models.PositionState{LastPrice: decimal.NewFromInt(100)}, 1, 4)
	require.NoError(t, err)

	// 0.01 * 200 * 0.00015
	assert.True(t, m.Commission.Equal(decimal.RequireFromString("0.0003")), m.Commission.String())
	assert.True(t, m.Holding.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, m.Cash.Equal(decimal.RequireFromString("-2.0003")), m.Cash.String())
	assert.True(t, m.Reward.Equal(decimal.RequireFromString("-0.0003")), m.Reward.String())
	assert.False(t, m.Violation)
}

func TestExecuteHoldIsFree(t *testing.T) {
	eng, err := New(testFeed(t, 100, 110))
	require.NoError(t, err)

	state := models.PositionState{
		Holding:   decimal.RequireFromString("0.005"),
		Cash:      decimal.RequireFromString("-0.5"),
		LastPrice: decimal.NewFromInt(100),
	}
	m, err := eng.Execute(state, 1, 2)
	require.NoError(t, err)
	assert.True(t, m.Commission.IsZero())
	assert.True(t, m.Reward.Equal(decimal.RequireFromString("0.05")), m.Reward.String())
	assert.True(t, m.Cash.Equal(state.Cash))
}

func TestExecuteOutOfGridHoldsAndFlags(t *testing.T) {
	eng, err := New(testFeed(t, 100, 100))
	require.NoError(t, err)

	state := models.PositionState{Holding: decimal.RequireFromString("0.0025"), LastPrice: decimal.NewFromInt(100)}
	for _, action := range []int{-1, 5, 99} {
		m, err := eng.Execute(state, 1, action)
		require.NoError(t, err)
		assert.True(t, m.Violation)
		assert.True(t, m.Holding.Equal(state.Holding))
		assert.True(t, m.Commission.IsZero())
		assert.Equal(t, action, m.Action)
	}
}

func TestExecuteIndexOutOfRange(t *testing.T) {
	eng, err := New(testFeed(t, 100))
	require.NoError(t, err)
	_, err = eng.Execute(models.PositionState{}, 3, 1)
	require.Error(t, err)
}

func TestLiquidateClosesPosition(t *testing.T) {
	eng, err := New(testFeed(t, 100, 120))
	require.NoError(t, err)

	state := models.PositionState{
		Holding:   decimal.RequireFromString("0.01"),
		Cash:      decimal.RequireFromString("-1.00015"),
		LastPrice: decimal.NewFromInt(100),
	}
	m := eng.Liquidate(state, 1)
	assert.True(t, m.Liquidation)
	assert.True(t, m.Holding.IsZero())
	assert.True(t, m.Commission.Equal(decimal.RequireFromString("0.00018")), m.Commission.String())

	next := state
	next.Apply(m)
	// pure balance moves by exactly the reward
	assert.True(t, next.PureBalance().Sub(state.PureBalance()).Equal(m.Reward))
}

func TestNewRejectsBadConfig(t *testing.T) {
	feed := testFeed(t, 100)
	tests := []struct {
		name string
		opts []Option
	}{
		{"action dim", []Option{WithActionDim(1)}},
		{"max holding", []Option{WithMaxHolding(0)}},
		{"negative cost", []Option{WithTransactionCost(-0.1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(feed, tt.opts...)
			require.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}
