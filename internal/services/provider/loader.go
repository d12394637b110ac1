package provider

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"FinReplay/internal/domain/service"
	"FinReplay/pkg/logger"
)

// Config controls how checkpoint ids are resolved.
type Config struct {
	// Root is prepended to relative file ids.
	Root            string
	ONNXLibraryPath string
	InputName       string
	OutputName      string
	// InputSize and ActionDim fill symbolic ONNX dimensions.
	InputSize     int
	ActionDim     int
	RemoteTimeout time.Duration
	RemoteRetries int
}

// Loader resolves checkpoint ids by scheme and caches handles, so slots naming the
// same file share one provider.
type Loader struct {
	cfg Config
	log *logger.Logger

	mu    sync.Mutex
	cache map[string]service.DecisionProvider
}

var _ service.ProviderLoader = (*Loader)(nil)

func NewLoader(cfg Config, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.NewNop()
	}
	return &Loader{cfg: cfg, log: log, cache: make(map[string]service.DecisionProvider)}
}

func (l *Loader) Load(ctx context.Context, id string) (service.DecisionProvider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.cache[id]; ok {
		return p, nil
	}

	start := time.Now()
	p, err := l.open(ctx, id)
	if err != nil {
		l.log.Warn("Failed to load checkpoint",
			logger.String("checkpoint", id),
			logger.Error(err),
		)
		return nil, err
	}
	l.cache[id] = p
	l.log.Debug("Checkpoint loaded",
		logger.String("checkpoint", id),
		logger.Int("input_size", p.InputSize()),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return p, nil
}

func (l *Loader) open(ctx context.Context, id string) (service.DecisionProvider, error) {
	switch {
	case strings.HasPrefix(id, "http://"), strings.HasPrefix(id, "https://"):
		return NewRemoteProvider(ctx, id, l.cfg)
	case strings.EqualFold(filepath.Ext(id), ".onnx"):
		return NewONNXProvider(l.path(id), l.cfg)
	case strings.EqualFold(filepath.Ext(id), ".json"):
		return LoadLinear(l.path(id))
	default:
		return nil, fmt.Errorf("unsupported checkpoint %q", id)
	}
}

func (l *Loader) path(id string) string {
	if l.cfg.Root == "" || filepath.IsAbs(id) {
		return id
	}
	return filepath.Join(l.cfg.Root, id)
}

// Close releases every cached provider that holds native resources.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for id, p := range l.cache {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = fmt.Errorf("close %s: %w", id, err)
			}
		}
	}
	l.cache = make(map[string]service.DecisionProvider)
	return first
}
