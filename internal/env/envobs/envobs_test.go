package envobs

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"FinReplay/internal/domain/models"
	"FinReplay/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEnv struct {
	steps   int
	fail    bool
	results int
	res     models.ResultSeries
}

func (s *stubEnv) Reset(context.Context) (models.Observation, models.StepInfo, error) {
	s.steps = 0
	return models.Observation{1, 0}, models.StepInfo{Cursor: 1}, nil
}

func (s *stubEnv) Step(_ context.Context, a int) (models.Observation, decimal.Decimal, bool, models.StepInfo, error) {
	if s.fail {
		return nil, decimal.Zero, false, models.StepInfo{}, errors.New("provider down")
	}
	s.steps++
	s.res.CommissionHistory = append(s.res.CommissionHistory, decimal.RequireFromString("0.25"))
	info := models.StepInfo{StepIndex: s.steps, MicroSteps: 2, Commission: decimal.RequireFromString("0.25")}
	if s.steps == 1 {
		info.Violations = []models.BoundViolation{{Action: 7}}
	}
	return models.Observation{2, float64(a)}, decimal.NewFromInt(1), s.steps == 2, info, nil
}

func (s *stubEnv) Result() *models.ResultSeries {
	s.results++
	return s.res.Clone()
}

func (s *stubEnv) Episode() models.Episode { return models.Episode{} }

type countingMetrics struct {
	macro      int
	commission float64
	latency    int
}

func (m *countingMetrics) RecordEpisode(string, string)       {}
func (m *countingMetrics) RecordFinalBalance(string, float64) {}
func (m *countingMetrics) RecordInference(string, float64)    {}
func (m *countingMetrics) RecordError(string)                 {}
func (m *countingMetrics) RecordLatency(string, float64)      { m.latency++ }
func (m *countingMetrics) RecordMacroStep(_ string, c float64) {
	m.macro++
	m.commission += c
}

func TestWrapRecordsSteps(t *testing.T) {
	var buf bytes.Buffer
	m := &countingMetrics{}
	inner := &stubEnv{}
	env := Wrap(inner, "valid", logger.NewWriter(&buf), m)

	_, _, err := env.Reset(context.Background())
	require.NoError(t, err)
	for {
		_, _, done, _, err := env.Step(context.Background(), 2)
		require.NoError(t, err)
		if done {
			break
		}
	}
	assert.Equal(t, 2, m.macro)
	assert.Equal(t, 2, m.latency)
	assert.InDelta(t, 0.5, m.commission, 1e-12)
	assert.Zero(t, inner.results, "step metrics come from StepInfo, not a series copy")
	assert.Contains(t, buf.String(), "Fine actions out of bounds")
	assert.True(t, strings.Contains(buf.String(), `"split":"valid"`))
}

func TestWrapPassesErrorsThrough(t *testing.T) {
	var buf bytes.Buffer
	env := Wrap(&stubEnv{fail: true}, "test", logger.NewWriter(&buf), nil)
	_, _, _, _, err := env.Step(context.Background(), 0)
	require.EqualError(t, err, "provider down")
	assert.Contains(t, buf.String(), "Macro step failed")
}
