package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"FinReplay/internal/domain/models"
	domrepo "FinReplay/internal/domain/repository"
	applogger "FinReplay/pkg/logger"
	"FinReplay/pkg/util"
)

// CSVFeedSource implements FeedSource over per-split CSV files. The header must hold
// timestamp, price, volume and every configured feature column, in any order.
type CSVFeedSource struct {
	high []string
	low  []string
	l    *applogger.Logger
}

var _ domrepo.FeedSource = (*CSVFeedSource)(nil)

func NewCSVFeedSource(high, low []string, l *applogger.Logger) *CSVFeedSource {
	return &CSVFeedSource{high: high, low: low, l: l}
}

func (s *CSVFeedSource) Load(ctx context.Context, split models.SplitSpec) (*models.Feed, error) {
	start := time.Now()
	f, err := os.Open(split.Path)
	if err != nil {
		return nil, fmt.Errorf("open feed %s: %w", split.Path, err)
	}
	defer f.Close()

	rows, err := s.read(ctx, f, split)
	if err != nil {
		if s.l != nil {
			s.l.Error("csv feed load error",
				applogger.String("split", split.Name),
				applogger.String("path", split.Path),
				applogger.Error(err))
		}
		return nil, fmt.Errorf("load %s: %w", split.Path, err)
	}
	feed, err := models.NewFeed(split.Symbol, s.high, s.low, rows)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", split.Path, err)
	}
	if s.l != nil {
		s.l.Info("csv feed loaded",
			applogger.String("split", split.Name),
			applogger.String("path", split.Path),
			applogger.Int("rows", feed.Len()),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return feed, nil
}

func (s *CSVFeedSource) read(ctx context.Context, r io.Reader, split models.SplitSpec) ([]models.MarketRow, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", models.ErrInvalidFeed, err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	idx := func(names []string) ([]int, error) {
		out := make([]int, len(names))
		for i, n := range names {
			j, ok := col[n]
			if !ok {
				return nil, fmt.Errorf("%w: missing column %q", models.ErrInvalidFeed, n)
			}
			out[i] = j
		}
		return out, nil
	}
	base, err := idx([]string{"timestamp", "price", "volume"})
	if err != nil {
		return nil, err
	}
	highIdx, err := idx(s.high)
	if err != nil {
		return nil, err
	}
	lowIdx, err := idx(s.low)
	if err != nil {
		return nil, err
	}

	var rows []models.MarketRow
	for line := 2; ; line++ {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrInvalidFeed, line, err)
		}
		ts, ok := util.ParseTime(strings.TrimSpace(rec[base[0]]))
		if !ok {
			return nil, fmt.Errorf("%w: line %d: bad timestamp %q", models.ErrInvalidFeed, line, rec[base[0]])
		}
		if !split.From.IsZero() && ts.Before(split.From) {
			continue
		}
		if !split.To.IsZero() && !ts.Before(split.To) {
			continue
		}
		row := models.MarketRow{Timestamp: ts}
		if row.Price, err = parseFloat(rec[base[1]]); err != nil {
			return nil, fmt.Errorf("%w: line %d price: %v", models.ErrInvalidFeed, line, err)
		}
		if row.Volume, err = parseFloat(rec[base[2]]); err != nil {
			return nil, fmt.Errorf("%w: line %d volume: %v", models.ErrInvalidFeed, line, err)
		}
		if row.High, err = parseFloats(rec, highIdx); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrInvalidFeed, line, err)
		}
		if row.Low, err = parseFloats(rec, lowIdx); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrInvalidFeed, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseFloats(rec []string, idx []int) ([]float64, error) {
	out := make([]float64, len(idx))
	for i, j := range idx {
		v, err := parseFloat(rec[j])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
