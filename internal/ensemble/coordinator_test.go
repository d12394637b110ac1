package ensemble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"FinReplay/internal/domain/models"
	"FinReplay/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constProvider struct {
	id     string
	size   int
	action int
	err    error
}

func (p constProvider) ID() string     { return p.id }
func (p constProvider) InputSize() int { return p.size }
func (p constProvider) Predict(context.Context, []float64) (int, error) {
	return p.action, p.err
}

func row(size int, actions ...int) []service.DecisionProvider {
	out := make([]service.DecisionProvider, len(actions))
	for i, a := range actions {
		out[i] = constProvider{id: fmt.Sprintf("p%d", i), size: size, action: a}
	}
	return out
}

func TestMajority(t *testing.T) {
	tests := []struct {
		name  string
		votes []int
		want  int
	}{
		{"clear winner", []int{3, 3, 1, 3, 2}, 3},
		{"two way tie goes low", []int{4, 2, 4, 2, 0}, 2},
		{"all distinct", []int{4, 3, 2, 1, 0}, 0},
		{"single", []int{2}, 2},
		{"tie order independent", []int{2, 4, 4, 2, 1}, 2},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Majority(tt.votes))
		})
	}
}

func TestDecideVotes(t *testing.T) {
	set, err := NewSlotSet([][]service.DecisionProvider{
		row(3, 0, 0, 0),
		row(3, 1, 4, 4),
	}, 2, 3)
	require.NoError(t, err)
	c := NewCoordinator(set)

	got, err := c.Decide(context.Background(), 1, []float64{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 4, got)

	for i := 0; i < 10; i++ {
		again, err := c.Decide(context.Background(), 1, []float64{0, 0, 0})
		require.NoError(t, err)
		assert.Equal(t, got, again)
	}
}

func TestDecideMissingProvider(t *testing.T) {
	r := row(2, 1, 1, 1)
	r[2] = nil
	set, err := NewSlotSet([][]service.DecisionProvider{r}, 1, 3)
	require.NoError(t, err)

	_, err = NewCoordinator(set).Decide(context.Background(), 0, []float64{0, 0})
	var unavailable *models.ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 2, unavailable.Slot)
	assert.ErrorIs(t, err, models.ErrMissingProvider)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestDecideFailingProvider(t *testing.T) {
	r := row(2, 1, 1, 1)
	r[1] = constProvider{id: "broken", size: 2, err: errors.New("onnx run failed")}
	set, err := NewSlotSet([][]service.DecisionProvider{r}, 1, 3)
	require.NoError(t, err)

	_, err = NewCoordinator(set).Decide(context.Background(), 0, []float64{0, 0})
	var unavailable *models.ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "broken", unavailable.Provider)
}

func TestDecideShapeMismatch(t *testing.T) {
	set, err := NewSlotSet([][]service.DecisionProvider{row(4, 0, 0)}, 1, 2)
	require.NoError(t, err)

	_, err = NewCoordinator(set).Decide(context.Background(), 0, []float64{1, 2})
	var shape *models.StateShapeError
	require.ErrorAs(t, err, &shape)
	assert.Equal(t, 4, shape.Want)
	assert.Equal(t, 2, shape.Got)
}

func TestDecideRejectsUnknownCoarseAction(t *testing.T) {
	set, err := NewSlotSet([][]service.DecisionProvider{row(1, 0)}, 1, 1)
	require.NoError(t, err)
	_, err = NewCoordinator(set).Decide(context.Background(), 3, []float64{0})
	require.ErrorIs(t, err, models.ErrInvalidAction)
}

func TestDecideConcurrent(t *testing.T) {
	set, err := NewSlotSet([][]service.DecisionProvider{row(1, 2, 2, 3, 3, 1)}, 1, 5)
	require.NoError(t, err)
	c := NewCoordinator(set)

	var wg sync.WaitGroup
	results := make([]int, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Decide(context.Background(), 0, []float64{float64(i)})
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, 2, r)
	}
}

func TestNewSlotSetShape(t *testing.T) {
	_, err := NewSlotSet([][]service.DecisionProvider{row(1, 0, 0)}, 2, 2)
	require.ErrorIs(t, err, models.ErrConfiguration)

	_, err = NewSlotSet([][]service.DecisionProvider{row(1, 0), row(1, 0, 0)}, 2, 2)
	require.ErrorIs(t, err, models.ErrConfiguration)
}

type mapLoader struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func (l *mapLoader) Load(_ context.Context, id string) (service.DecisionProvider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.fail[id] {
		return nil, errors.New("no such checkpoint")
	}
	return constProvider{id: id, size: 3, action: 1}, nil
}

func TestRegistryCachesPerDataset(t *testing.T) {
	loader := &mapLoader{}
	reg := NewRegistry(RegistryConfig{ActionDim: 2, Width: 3}, loader, nil, nil)

	c1, err := reg.Coordinator(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	_, err = reg.Coordinator(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, 6, loader.calls)

	providers, err := c1.Slots().Providers(1)
	require.NoError(t, err)
	assert.Equal(t, "result_risk/BTCUSDT/potential_model/initial_action_1/model_2.onnx", providers[2].ID())
}

func TestRegistryLoadFailure(t *testing.T) {
	bad := "result_risk/ETHUSDT/potential_model/initial_action_0/model_1.onnx"
	strict := NewRegistry(RegistryConfig{ActionDim: 1, Width: 2}, &mapLoader{fail: map[string]bool{bad: true}}, nil, nil)
	_, err := strict.Coordinator(context.Background(), "ETHUSDT")
	require.ErrorIs(t, err, models.ErrProviderUnavailable)

	lenient := NewRegistry(RegistryConfig{ActionDim: 1, Width: 2, Lenient: true}, &mapLoader{fail: map[string]bool{bad: true}}, nil, nil)
	c, err := lenient.Coordinator(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	_, err = c.Decide(context.Background(), 0, []float64{0, 0, 0})
	require.ErrorIs(t, err, models.ErrMissingProvider)
}

func TestRegistryExplicitTable(t *testing.T) {
	reg := NewRegistry(RegistryConfig{
		ActionDim: 1,
		Width:     1,
		Tables:    map[string]Table{"galausdt": {{"weights/gala.json"}}},
	}, &mapLoader{}, nil, nil)
	table, err := reg.Table("GALAUSDT")
	require.NoError(t, err)
	assert.Equal(t, Table{{"weights/gala.json"}}, table)
}

func TestExpandTemplate(t *testing.T) {
	table, err := ExpandTemplate(DefaultTemplate, "BTCTUSD", 5, 5)
	require.NoError(t, err)
	require.Len(t, table, 5)
	assert.Equal(t, "result_risk/BTCTUSD/potential_model/initial_action_3/model_4.onnx", table[3][4])

	_, err = ExpandTemplate("models/{dataset}.onnx", "BTCTUSD", 5, 5)
	require.Error(t, err)
}

func TestDiscoverCheckpointsNaturalOrder(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"model_10.onnx", "model_2.onnx", "model_1.onnx", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
	files, err := DiscoverCheckpoints(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "model_1.onnx"),
		filepath.Join(dir, "model_2.onnx"),
		filepath.Join(dir, "model_10.onnx"),
	}, files)

	table, err := TableFromDirs([]string{dir}, 2)
	require.NoError(t, err)
	assert.Equal(t, files[:2], table[0])

	_, err = TableFromDirs([]string{dir}, 4)
	require.Error(t, err)
}
