package ensemble

import (
	"context"
	"strings"
	"sync"

	"FinReplay/internal/domain/models"
	"FinReplay/internal/domain/repository"
	"FinReplay/internal/domain/service"
	"FinReplay/pkg/logger"
)

// RegistryConfig describes where each dataset's ensemble comes from.
type RegistryConfig struct {
	ActionDim int
	Width     int
	Template  string
	// Tables overrides Template per dataset.
	Tables map[string]Table
	// Lenient leaves unloadable checkpoints as empty slots instead of failing.
	Lenient bool
}

// Registry loads and caches one SlotSet per dataset.
type Registry struct {
	cfg     RegistryConfig
	loader  service.ProviderLoader
	metrics repository.Metrics
	log     *logger.Logger

	mu   sync.Mutex
	sets map[string]*SlotSet
}

func NewRegistry(cfg RegistryConfig, loader service.ProviderLoader, metrics repository.Metrics, log *logger.Logger) *Registry {
	if cfg.Width == 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{cfg: cfg, loader: loader, metrics: metrics, log: log, sets: make(map[string]*SlotSet)}
}

// Table returns the checkpoint table for dataset.
func (r *Registry) Table(dataset string) (Table, error) {
	for name, t := range r.cfg.Tables {
		if strings.EqualFold(name, dataset) {
			return t, nil
		}
	}
	t, err := ExpandTemplate(r.cfg.Template, dataset, r.cfg.ActionDim, r.cfg.Width)
	if err != nil {
		return nil, models.NewConfigurationError("checkpoint_template", "%v", err)
	}
	return t, nil
}

// Coordinator returns a coordinator over the cached slot set of dataset.
func (r *Registry) Coordinator(ctx context.Context, dataset string) (*Coordinator, error) {
	set, err := r.SlotSet(ctx, dataset)
	if err != nil {
		return nil, err
	}
	var opts []CoordinatorOption
	if r.metrics != nil {
		opts = append(opts, WithMetrics(r.metrics))
	}
	return NewCoordinator(set, opts...), nil
}

// Decider is Coordinator behind the domain interface.
func (r *Registry) Decider(ctx context.Context, dataset string) (service.Decider, error) {
	c, err := r.Coordinator(ctx, dataset)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Registry) SlotSet(ctx context.Context, dataset string) (*SlotSet, error) {
	key := strings.ToUpper(dataset)

	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.sets[key]; ok {
		return set, nil
	}

	table, err := r.Table(dataset)
	if err != nil {
		return nil, err
	}
	set, err := Load(ctx, table, r.loader, r.cfg.ActionDim, r.cfg.Width, r.cfg.Lenient)
	if err != nil {
		r.log.Error("Failed to load ensemble",
			logger.String("dataset", dataset),
			logger.Error(err),
		)
		return nil, err
	}
	r.sets[key] = set
	r.log.Info("Ensemble loaded",
		logger.String("dataset", dataset),
		logger.Int("action_dim", set.ActionDim()),
		logger.Int("width", set.Width()),
	)
	return set, nil
}
