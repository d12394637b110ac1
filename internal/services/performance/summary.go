package performance

import (
	"math"

	"FinReplay/internal/domain/models"
)

// BarsPerYearForTF returns the approximate number of bars per year for a timeframe.
func BarsPerYearForTF(tf string) float64 {
	switch tf {
	case "1s":
		return 365 * 24 * 60 * 60
	case "5m":
		return 365 * 24 * 12
	default:
		return 365 * 24 * 60
	}
}

// Summarize computes the scalar figures of one finished split. Reward statistics use
// the raw per-window sums so they do not depend on the configured reduction.
func Summarize(res *models.ResultSeries, ep models.Episode, barsPerYear float64) models.Summary {
	rewards := models.Floats(res.MacroRewardHistory)
	s := models.Summary{
		MacroSteps:      res.Len(),
		MicroSteps:      ep.MicroStepCount(),
		PnL:             res.PureBalance.InexactFloat64(),
		FinalBalance:    res.FinalBalance.InexactFloat64(),
		PeakRequired:    res.PeakRequiredMoney().InexactFloat64(),
		MaxDrawdown:     MaxDrawdown(rewards),
		Volatility:      Volatility(rewards, barsPerYear),
		Sharpe:          Sharpe(rewards, barsPerYear),
		TotalCommission: sumFloat(models.Floats(res.CommissionHistory)),
		WinRate:         WinRate(rewards),
		EarlyStopped:    ep.EarlyStopped,
	}
	if s.PeakRequired > 0 {
		s.ReturnOnCapital = s.PnL / s.PeakRequired
	}
	for _, step := range ep.Steps {
		for _, m := range step.Micro {
			if m.Commission.IsPositive() {
				s.Trades++
			}
			if m.Violation {
				s.Violations++
			}
		}
	}
	return s
}

// MaxDrawdown is the largest fall of the cumulative reward curve from a running peak.
// The curve starts at zero.
func MaxDrawdown(rewards []float64) float64 {
	peak, cum, dd := 0.0, 0.0, 0.0
	for _, r := range rewards {
		cum += r
		if cum > peak {
			peak = cum
		}
		if peak-cum > dd {
			dd = peak - cum
		}
	}
	return dd
}

// Volatility is the annualized sample standard deviation of per-window rewards.
func Volatility(rewards []float64, barsPerYear float64) float64 {
	_, sd := meanStd(rewards)
	return sd * math.Sqrt(barsPerYear)
}

// Sharpe is mean over standard deviation of per-window rewards, annualized. Zero when
// the series is flat.
func Sharpe(rewards []float64, barsPerYear float64) float64 {
	mean, sd := meanStd(rewards)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(barsPerYear)
}

// WinRate is the share of non-flat windows with a positive reward.
func WinRate(rewards []float64) float64 {
	wins, total := 0, 0
	for _, r := range rewards {
		if r == 0 {
			continue
		}
		total++
		if r > 0 {
			wins++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

func meanStd(xs []float64) (float64, float64) {
	n := float64(len(xs))
	if n < 2 {
		return sumFloat(xs), 0
	}
	sum, sum2 := 0.0, 0.0
	for _, x := range xs {
		sum += x
		sum2 += x * x
	}
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

func sumFloat(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}
