package env

import (
	"context"
	"fmt"

	"FinReplay/internal/domain/models"
	"FinReplay/internal/domain/service"
	"FinReplay/internal/execution"

	"github.com/shopspring/decimal"
)

// Phase is the state machine position between calls.
type Phase int

const (
	PhaseAwaitingReset Phase = iota
	PhaseAwaitingAction
	PhaseTerminal
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingReset:
		return "awaiting_reset"
	case PhaseAwaitingAction:
		return "awaiting_coarse_action"
	case PhaseTerminal:
		return "terminal"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Env is the hierarchical trading state machine over one feed. It is not safe for
// concurrent use; run one Env per goroutine.
type Env struct {
	cfg     Config
	feed    *models.Feed
	decider service.Decider
	engine  *execution.Engine

	phase        Phase
	cursor       int
	lastAction   int
	pos          models.PositionState
	steps        []models.MacroStep
	result       models.ResultSeries
	earlyStopped bool
}

var _ service.Environment = (*Env)(nil)

// New validates cfg against the feed and builds an Env awaiting Reset.
func New(cfg Config, feed *models.Feed, decider service.Decider) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, models.NewConfigurationError("feed", "nil feed")
	}
	if decider == nil {
		return nil, models.NewConfigurationError("ensemble", "nil coordinator")
	}
	if feed.Len() < cfg.BackTimeLength+1 {
		return nil, models.NewConfigurationError("feed", "%d rows cannot cover back_time_length %d plus one step", feed.Len(), cfg.BackTimeLength)
	}
	eng, err := execution.New(feed,
		execution.WithActionDim(cfg.ActionDim),
		execution.WithMaxHolding(cfg.MaxHoldingNumber),
		execution.WithTransactionCost(cfg.TransactionCost),
	)
	if err != nil {
		return nil, err
	}
	return &Env{cfg: cfg, feed: feed, decider: decider, engine: eng, phase: PhaseAwaitingReset}, nil
}

func (e *Env) Config() Config { return e.cfg }

func (e *Env) Phase() Phase { return e.phase }

func (e *Env) Done() bool { return e.phase == PhaseTerminal }

func (e *Env) Position() models.PositionState { return e.pos }

// InputSize is the fine state length every provider must accept.
func (e *Env) InputSize() int {
	return FineStateSize(e.cfg.BackTimeLength, len(e.feed.LowFeatures()))
}

// FineStateSize is back * lowFeatures plus the holding level and the coarse action.
func FineStateSize(back, lowFeatures int) int { return back*lowFeatures + 2 }

// Reset rewinds to the first window and clears all accounting.
func (e *Env) Reset(ctx context.Context) (models.Observation, models.StepInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.StepInfo{}, err
	}
	e.cursor = e.cfg.BackTimeLength
	e.lastAction = e.cfg.InitialAction
	e.pos = models.PositionState{}
	e.steps = nil
	e.result = models.ResultSeries{}
	e.earlyStopped = false
	e.phase = PhaseAwaitingAction
	return e.observation(), e.info(0, nil), nil
}

// Step runs one coarse window with coarseAction and returns the next observation,
// the macro reward and whether the episode ended. On error nothing is committed.
func (e *Env) Step(ctx context.Context, coarseAction int) (models.Observation, decimal.Decimal, bool, models.StepInfo, error) {
	if e.phase != PhaseAwaitingAction {
		return nil, decimal.Zero, e.Done(), models.StepInfo{}, &models.InvalidStateError{Op: "step", Phase: e.phase.String()}
	}
	if coarseAction < 0 || coarseAction >= e.cfg.ActionDim {
		return nil, decimal.Zero, false, models.StepInfo{}, fmt.Errorf("%w: coarse action %d outside [0, %d)", models.ErrInvalidAction, coarseAction, e.cfg.ActionDim)
	}
	if err := ctx.Err(); err != nil {
		return nil, decimal.Zero, false, models.StepInfo{}, err
	}

	stepIndex := len(e.steps)
	pos := e.pos
	end := e.cursor + e.cfg.MicroStepsPerMacro
	if end > e.feed.Len() {
		end = e.feed.Len()
	}
	exhausted := end == e.feed.Len()

	micro := make([]models.MicroStep, 0, end-e.cursor)
	var violations []models.BoundViolation
	stopped := false
	for t := e.cursor; t < end; t++ {
		fineAction, err := e.decider.Decide(ctx, coarseAction, e.fineState(t, pos, coarseAction))
		if err != nil {
			e.phase = PhaseFailed
			return nil, decimal.Zero, false, models.StepInfo{}, fmt.Errorf("decide at row %d: %w", t, err)
		}
		m, err := e.engine.Execute(pos, t, fineAction)
		if err != nil {
			e.phase = PhaseFailed
			return nil, decimal.Zero, false, models.StepInfo{}, fmt.Errorf("execute at row %d: %w", t, err)
		}
		pos.Apply(m)
		if m.Violation {
			violations = append(violations, models.BoundViolation{
				MacroStep: stepIndex,
				Index:     t,
				Action:    fineAction,
				Reason:    fmt.Sprintf("fine action %d outside [0, %d), holding kept", fineAction, e.cfg.ActionDim),
			})
		}

		stopped = e.cfg.EarlyStop && pos.PureBalance().LessThanOrEqual(decimal.NewFromFloat(-e.cfg.EarlyStopLoss))
		if stopped || (exhausted && t == end-1 && e.cfg.LiquidateOnEnd) {
			liq := e.engine.Liquidate(pos, t)
			pos.Apply(liq)
			m = mergeLiquidation(m, liq)
		}
		micro = append(micro, m)
		if stopped {
			end = t + 1
			break
		}
	}

	rewards := make([]decimal.Decimal, len(micro))
	for i, m := range micro {
		rewards[i] = m.Reward
	}
	raw := decimal.Sum(decimal.Zero, rewards...)
	reward := e.reduce(rewards)
	commission := pos.Commission.Sub(e.pos.Commission)

	e.steps = append(e.steps, models.MacroStep{
		Index:         stepIndex,
		CoarseAction:  coarseAction,
		Start:         e.pos,
		End:           pos,
		Micro:         micro,
		Reward:        reward,
		Commission:    commission,
		RequiredMoney: pos.RequiredMoney,
	})
	e.result.Actions = append(e.result.Actions, coarseAction)
	e.result.Rewards = append(e.result.Rewards, reward)
	e.result.RequiredMoney = append(e.result.RequiredMoney, pos.RequiredMoney)
	e.result.CommissionHistory = append(e.result.CommissionHistory, commission)
	e.result.MacroRewardHistory = append(e.result.MacroRewardHistory, raw)
	e.result.PureBalance = pos.PureBalance()
	e.result.FinalBalance = pos.PureBalance().Add(pos.RequiredMoney).Sub(pos.Unrealized())

	e.pos = pos
	e.cursor = end
	e.lastAction = coarseAction
	e.earlyStopped = stopped
	done := exhausted || stopped
	if done {
		e.phase = PhaseTerminal
	}
	info := e.info(len(micro), violations)
	info.Commission = commission
	return e.observation(), reward, done, info, nil
}

// Result returns a copy of the output series accumulated so far.
func (e *Env) Result() *models.ResultSeries { return e.result.Clone() }

// Episode returns the finalized macro steps.
func (e *Env) Episode() models.Episode {
	return models.Episode{
		InitialAction: e.cfg.InitialAction,
		Done:          e.Done(),
		EarlyStopped:  e.earlyStopped,
		Steps:         append([]models.MacroStep(nil), e.steps...),
	}
}

// observation is the coarse features of the back window ending at the cursor plus the last coarse action.
func (e *Env) observation() models.Observation {
	obs := e.feed.HighWindow(e.cursor-e.cfg.BackTimeLength, e.cursor)
	return append(obs, float64(e.lastAction))
}

func (e *Env) fineState(t int, pos models.PositionState, coarseAction int) []float64 {
	state := e.feed.LowWindow(t-e.cfg.BackTimeLength+1, t+1)
	return append(state, e.engine.Level(pos.Holding), float64(coarseAction))
}

func (e *Env) info(microSteps int, violations []models.BoundViolation) models.StepInfo {
	return models.StepInfo{
		StepIndex:    len(e.steps),
		Cursor:       e.cursor,
		Holding:      e.pos.Holding,
		HoldingLevel: int(e.engine.Level(e.pos.Holding) + 0.5),
		PureBalance:  e.pos.PureBalance(),
		MicroSteps:   microSteps,
		Violations:   violations,
		EarlyStopped: e.earlyStopped,
	}
}

func (e *Env) reduce(rewards []decimal.Decimal) decimal.Decimal {
	if len(rewards) == 0 {
		return decimal.Zero
	}
	switch e.cfg.RewardReduction {
	case ReduceMean:
		return decimal.Avg(rewards[0], rewards[1:]...)
	case ReduceLast:
		return rewards[len(rewards)-1]
	default:
		return decimal.Sum(rewards[0], rewards[1:]...)
	}
}

// mergeLiquidation folds a closing trade into the micro step it followed.
func mergeLiquidation(m, liq models.MicroStep) models.MicroStep {
	m.Reward = m.Reward.Add(liq.Reward)
	m.Commission = m.Commission.Add(liq.Commission)
	m.Holding = liq.Holding
	m.Cash = liq.Cash
	m.Liquidation = true
	return m
}
