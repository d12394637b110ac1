package ensemble

import (
	"context"
	"fmt"

	"FinReplay/internal/domain/models"
	"FinReplay/internal/domain/service"
)

// DefaultWidth is the number of providers per coarse action.
const DefaultWidth = 5

// SlotSet maps each coarse action to a fixed-width row of providers. It is read-only
// after construction and may be shared across goroutines.
type SlotSet struct {
	slots [][]service.DecisionProvider
	width int
}

// NewSlotSet checks the table shape against actionDim and width. Nil entries are kept
// and surface as ProviderUnavailableError when queried.
func NewSlotSet(slots [][]service.DecisionProvider, actionDim, width int) (*SlotSet, error) {
	if width < 1 {
		return nil, models.NewConfigurationError("ensemble_width", "must be at least 1, got %d", width)
	}
	if len(slots) != actionDim {
		return nil, models.NewConfigurationError("ensemble", "table has %d coarse actions, action_dim is %d", len(slots), actionDim)
	}
	cp := make([][]service.DecisionProvider, len(slots))
	for a, row := range slots {
		if len(row) != width {
			return nil, models.NewConfigurationError("ensemble", "action %d has %d providers, want %d", a, len(row), width)
		}
		cp[a] = append([]service.DecisionProvider(nil), row...)
	}
	return &SlotSet{slots: cp, width: width}, nil
}

func (s *SlotSet) ActionDim() int { return len(s.slots) }

func (s *SlotSet) Width() int { return s.width }

// Providers returns a copy of the row for coarseAction.
func (s *SlotSet) Providers(coarseAction int) ([]service.DecisionProvider, error) {
	if coarseAction < 0 || coarseAction >= len(s.slots) {
		return nil, fmt.Errorf("%w: coarse action %d outside [0, %d)", models.ErrInvalidAction, coarseAction, len(s.slots))
	}
	return append([]service.DecisionProvider(nil), s.slots[coarseAction]...), nil
}

// Table is the checkpoint id grid a SlotSet is loaded from.
type Table [][]string

// Load resolves every id in t through loader. Ids that fail to load leave a nil slot
// when lenient is set, otherwise the first failure is returned.
func Load(ctx context.Context, t Table, loader service.ProviderLoader, actionDim, width int, lenient bool) (*SlotSet, error) {
	slots := make([][]service.DecisionProvider, len(t))
	for a, row := range t {
		slots[a] = make([]service.DecisionProvider, len(row))
		for i, id := range row {
			if id == "" {
				continue
			}
			p, err := loader.Load(ctx, id)
			if err != nil {
				if lenient {
					continue
				}
				return nil, &models.ProviderUnavailableError{CoarseAction: a, Slot: i, Provider: id, Err: err}
			}
			slots[a][i] = p
		}
	}
	return NewSlotSet(slots, actionDim, width)
}
