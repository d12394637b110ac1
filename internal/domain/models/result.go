package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResultSeries is the per-episode output artifact set. Every slice is aligned to the
// macro-step count of the episode.
type ResultSeries struct {
	Actions            []int             `json:"action"`
	Rewards            []decimal.Decimal `json:"reward"`
	FinalBalance       decimal.Decimal   `json:"final_balance"`
	PureBalance        decimal.Decimal   `json:"pure_balance"`
	RequiredMoney      []decimal.Decimal `json:"require_money"`
	CommissionHistory  []decimal.Decimal `json:"commission_fee_history"`
	MacroRewardHistory []decimal.Decimal `json:"macro_reward_history"`
}

// Len returns the number of macro steps recorded.
func (r *ResultSeries) Len() int { return len(r.Actions) }

// PeakRequiredMoney is the highest value of the required-money series, or zero
// when the series is empty.
func (r *ResultSeries) PeakRequiredMoney() decimal.Decimal {
	if len(r.RequiredMoney) == 0 {
		return decimal.Zero
	}
	return decimal.Max(r.RequiredMoney[0], r.RequiredMoney[1:]...)
}

// CumulativeCommission returns the running total of the commission history.
func (r *ResultSeries) CumulativeCommission() []decimal.Decimal {
	out := make([]decimal.Decimal, len(r.CommissionHistory))
	acc := decimal.Zero
	for i, c := range r.CommissionHistory {
		acc = acc.Add(c)
		out[i] = acc
	}
	return out
}

// Clone returns a deep copy.
func (r *ResultSeries) Clone() *ResultSeries {
	return &ResultSeries{
		Actions:            append([]int(nil), r.Actions...),
		Rewards:            append([]decimal.Decimal(nil), r.Rewards...),
		FinalBalance:       r.FinalBalance,
		PureBalance:        r.PureBalance,
		RequiredMoney:      append([]decimal.Decimal(nil), r.RequiredMoney...),
		CommissionHistory:  append([]decimal.Decimal(nil), r.CommissionHistory...),
		MacroRewardHistory: append([]decimal.Decimal(nil), r.MacroRewardHistory...),
	}
}

// Floats converts a decimal series to float64 for export.
func Floats(ds []decimal.Decimal) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = d.InexactFloat64()
	}
	return out
}

// Summary holds the scalar performance figures of one split.
type Summary struct {
	MacroSteps      int     `json:"macro_steps"`
	MicroSteps      int     `json:"micro_steps"`
	PnL             float64 `json:"pnl"`
	FinalBalance    float64 `json:"final_balance"`
	PeakRequired    float64 `json:"peak_required_money"`
	ReturnOnCapital float64 `json:"return_on_capital"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	Sharpe          float64 `json:"sharpe"`
	Volatility      float64 `json:"volatility"`
	TotalCommission float64 `json:"total_commission"`
	Trades          int     `json:"trades"`
	WinRate         float64 `json:"win_rate"`
	Violations      int     `json:"violations"`
	EarlyStopped    bool    `json:"early_stopped"`
}

// EvaluationStatus tracks a run through the queue.
type EvaluationStatus string

const (
	StatusQueued  EvaluationStatus = "queued"
	StatusRunning EvaluationStatus = "running"
	StatusDone    EvaluationStatus = "done"
	StatusPartial EvaluationStatus = "partial"
	StatusFailed  EvaluationStatus = "failed"
)

// SplitReport is the outcome of one split.
type SplitReport struct {
	Split      string        `json:"split"`
	Action     int           `json:"action"`
	Series     *ResultSeries `json:"series,omitempty"`
	Summary    *Summary      `json:"summary,omitempty"`
	Error      string        `json:"error,omitempty"`
	FailedStep int           `json:"failed_step,omitempty"`
	DurationMS int64         `json:"duration_ms"`
	Steps      []MacroStep   `json:"-"`
}

// Failed reports whether the split aborted.
func (s SplitReport) Failed() bool { return s.Error != "" }

// EvaluationReport is the outcome of one evaluation run over several splits.
type EvaluationReport struct {
	RunID      string           `json:"run_id"`
	Dataset    string           `json:"dataset"`
	Action     int              `json:"action"`
	Status     EvaluationStatus `json:"status"`
	Splits     []SplitReport    `json:"splits,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  time.Time        `json:"started_at,omitempty"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
}

// Split returns the named split report.
func (r *EvaluationReport) Split(name string) (*SplitReport, bool) {
	for i := range r.Splits {
		if r.Splits[i].Split == name {
			return &r.Splits[i], true
		}
	}
	return nil, false
}

// ProgressEvent is emitted after every macro step of a running evaluation.
type ProgressEvent struct {
	RunID       string  `json:"run_id"`
	Split       string  `json:"split"`
	Step        int     `json:"step"`
	Action      int     `json:"action"`
	Reward      float64 `json:"reward"`
	Holding     float64 `json:"holding"`
	PureBalance float64 `json:"pure_balance"`
	Done        bool    `json:"done"`
}
