package repository

import (
	"context"

	"FinReplay/internal/domain/models"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// FeedSource loads the market feed of one dataset split.
type FeedSource interface {
	Load(ctx context.Context, split models.SplitSpec) (*models.Feed, error)
}
