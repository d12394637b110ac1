package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Observation is the coarse-level state handed to the high-level controller.
type Observation []float64

// PositionState is the episode's accounting state. Holding is in base units, every
// other amount is in quote currency.
type PositionState struct {
	Holding       decimal.Decimal `json:"holding"`
	Cash          decimal.Decimal `json:"cash"`
	LastPrice     decimal.Decimal `json:"last_price"`
	Commission    decimal.Decimal `json:"commission"`     // cumulative
	RequiredMoney decimal.Decimal `json:"required_money"` // high-watermark of -Cash
}

// Unrealized is the mark-to-market value of the open holding.
func (p PositionState) Unrealized() decimal.Decimal {
	return p.Holding.Mul(p.LastPrice)
}

// PureBalance is the profit or loss with the capital tied in the position stripped out.
func (p PositionState) PureBalance() decimal.Decimal {
	return p.Cash.Add(p.Unrealized())
}

// Apply folds one executed micro step into the state. Callers apply each step once.
func (p *PositionState) Apply(m MicroStep) {
	p.Holding = m.Holding
	p.Cash = m.Cash
	p.LastPrice = m.Price
	p.Commission = p.Commission.Add(m.Commission)
	if need := m.Cash.Neg(); need.GreaterThan(p.RequiredMoney) {
		p.RequiredMoney = need
	}
}

// MicroStep is one fine-grained execution.
type MicroStep struct {
	Index       int             `json:"index"`
	Timestamp   time.Time       `json:"timestamp"`
	Action      int             `json:"action"`
	Price       decimal.Decimal `json:"price"`
	Reward      decimal.Decimal `json:"reward"`
	Holding     decimal.Decimal `json:"holding"`
	Cash        decimal.Decimal `json:"cash"`
	Commission  decimal.Decimal `json:"commission"`
	Violation   bool            `json:"violation,omitempty"`
	Liquidation bool            `json:"liquidation,omitempty"`
}

// MacroStep is one coarse decision and the micro steps it produced.
type MacroStep struct {
	Index         int             `json:"index"`
	CoarseAction  int             `json:"coarse_action"`
	Start         PositionState   `json:"start"`
	End           PositionState   `json:"end"`
	Micro         []MicroStep     `json:"micro"`
	Reward        decimal.Decimal `json:"reward"`
	Commission    decimal.Decimal `json:"commission"`
	RequiredMoney decimal.Decimal `json:"required_money"`
}

// BoundViolation records a fine action that would have moved the holding outside its bounds.
type BoundViolation struct {
	MacroStep int    `json:"macro_step"`
	Index     int    `json:"index"`
	Action    int    `json:"action"`
	Reason    string `json:"reason"`
}

// StepInfo is the diagnostic payload returned by Reset and Step.
type StepInfo struct {
	StepIndex    int              `json:"step_index"`
	Cursor       int              `json:"cursor"`
	Holding      decimal.Decimal  `json:"holding"`
	HoldingLevel int              `json:"holding_level"`
	PureBalance  decimal.Decimal  `json:"pure_balance"`
	Commission   decimal.Decimal  `json:"commission"`
	MicroSteps   int              `json:"micro_steps"`
	Violations   []BoundViolation `json:"violations,omitempty"`
	EarlyStopped bool             `json:"early_stopped,omitempty"`
}

// Episode is one pass over a split with its finalized macro steps.
type Episode struct {
	Split         string      `json:"split"`
	InitialAction int         `json:"initial_action"`
	Done          bool        `json:"done"`
	EarlyStopped  bool        `json:"early_stopped,omitempty"`
	Steps         []MacroStep `json:"steps"`
}

// MicroStepCount sums micro steps over all macro steps.
func (e Episode) MicroStepCount() int {
	n := 0
	for _, s := range e.Steps {
		n += len(s.Micro)
	}
	return n
}
