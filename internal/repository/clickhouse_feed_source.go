package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"FinReplay/internal/domain/models"
	domrepo "FinReplay/internal/domain/repository"
	pkgch "FinReplay/pkg/clickhouse"
	applogger "FinReplay/pkg/logger"
	"FinReplay/pkg/util"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CHFeedSource implements FeedSource over a ClickHouse table of fine-resolution rows
// with columns ts, symbol, price, volume and one column per feature.
type CHFeedSource struct {
	db    *sql.DB
	table string
	high  []string
	low   []string
	l     *applogger.Logger
}

var _ domrepo.FeedSource = (*CHFeedSource)(nil)

// NewCHFeedSource validates every identifier that ends up in the query text.
func NewCHFeedSource(ch *pkgch.Client, table string, high, low []string, l *applogger.Logger) (*CHFeedSource, error) {
	if _, err := buildFeedQuery(table, high, low); err != nil {
		return nil, err
	}
	return &CHFeedSource{db: ch.DB(), table: table, high: high, low: low, l: l}, nil
}

func buildFeedQuery(table string, high, low []string) (string, error) {
	if !identRe.MatchString(table) {
		return "", models.NewConfigurationError("feed.table", "invalid identifier %q", table)
	}
	cols := []string{"ts", "price", "volume"}
	for _, c := range append(append([]string(nil), high...), low...) {
		if !identRe.MatchString(c) || strings.Contains(c, ".") {
			return "", models.NewConfigurationError("feed.features", "invalid column %q", c)
		}
		cols = append(cols, c)
	}
	return fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE symbol = ? AND ts >= ? AND ts < ?
        ORDER BY ts ASC
    `, strings.Join(cols, ", "), table), nil
}

func (s *CHFeedSource) Load(ctx context.Context, split models.SplitSpec) (*models.Feed, error) {
	start := time.Now()
	if split.Symbol == "" || split.From.IsZero() || split.To.IsZero() {
		return nil, models.NewConfigurationError("feed.splits."+split.Name, "symbol, from and to are required")
	}
	q, err := buildFeedQuery(s.table, s.high, s.low)
	if err != nil {
		return nil, err
	}
	from, to := util.AlignFromTo(split.From, split.To, "1s")
	rows, err := s.db.QueryContext(ctx, q, split.Symbol, from, to)
	if err != nil {
		s.logError("clickhouse feed query error", split, err)
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()

	nh, nl := len(s.high), len(s.low)
	out := make([]models.MarketRow, 0, 4096)
	for rows.Next() {
		r := models.MarketRow{High: make([]float64, nh), Low: make([]float64, nl)}
		dest := make([]interface{}, 0, 3+nh+nl)
		dest = append(dest, &r.Timestamp, &r.Price, &r.Volume)
		for i := range r.High {
			dest = append(dest, &r.High[i])
		}
		for i := range r.Low {
			dest = append(dest, &r.Low[i])
		}
		if err := rows.Scan(dest...); err != nil {
			s.logError("clickhouse feed scan error", split, err)
			return nil, fmt.Errorf("scan feed row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		s.logError("clickhouse feed rows error", split, err)
		return nil, fmt.Errorf("rows: %w", err)
	}

	feed, err := models.NewFeed(split.Symbol, s.high, s.low, out)
	if err != nil {
		return nil, err
	}
	if s.l != nil {
		s.l.Info("clickhouse feed loaded",
			applogger.String("table", s.table),
			applogger.String("split", split.Name),
			applogger.String("symbol", split.Symbol),
			applogger.Int("rows", feed.Len()),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return feed, nil
}

func (s *CHFeedSource) logError(msg string, split models.SplitSpec, err error) {
	if s.l == nil {
		return
	}
	s.l.Error(msg,
		applogger.String("table", s.table),
		applogger.String("split", split.Name),
		applogger.String("symbol", split.Symbol),
		applogger.Error(err))
}
