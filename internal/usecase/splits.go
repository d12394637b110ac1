package usecase

import (
	"strings"
	"time"

	"FinReplay/internal/domain/models"
)

// SplitTemplate locates a split for any dataset. {dataset} in Path and Symbol is
// replaced at resolve time; an empty Symbol means the dataset itself.
type SplitTemplate struct {
	Path   string
	Symbol string
	From   time.Time
	To     time.Time
}

// SplitCatalog turns split names into feed locations.
type SplitCatalog struct {
	templates map[string]SplitTemplate
}

func NewSplitCatalog(templates map[string]SplitTemplate) *SplitCatalog {
	cp := make(map[string]SplitTemplate, len(templates))
	for k, v := range templates {
		cp[k] = v
	}
	return &SplitCatalog{templates: cp}
}

// Resolve returns one SplitSpec per name, in order.
func (c *SplitCatalog) Resolve(dataset string, names []string) ([]models.SplitSpec, error) {
	out := make([]models.SplitSpec, 0, len(names))
	for _, name := range names {
		tpl, ok := c.templates[name]
		if !ok {
			return nil, models.NewConfigurationError("feed.splits", "no source configured for split %q", name)
		}
		symbol := tpl.Symbol
		if symbol == "" {
			symbol = dataset
		}
		out = append(out, models.SplitSpec{
			Name:   name,
			Path:   strings.ReplaceAll(tpl.Path, "{dataset}", dataset),
			Symbol: strings.ReplaceAll(symbol, "{dataset}", dataset),
			From:   tpl.From,
			To:     tpl.To,
		})
	}
	return out, nil
}
