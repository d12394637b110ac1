package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinReplay/internal/domain/models"
	domrepo "FinReplay/internal/domain/repository"
	applogger "FinReplay/pkg/logger"
)

// ResultSchema returns the DDL for the result tables in database db.
func ResultSchema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.evaluation_runs (
            run_id String, split String, action UInt8, macro_steps UInt32,
            pnl Float64, final_balance Float64, peak_required Float64, total_commission Float64,
            max_drawdown Float64, sharpe Float64, error String, failed_step Int32,
            duration_ms Int64, created_at DateTime64(3)
        ) ENGINE = ReplacingMergeTree(created_at) ORDER BY (run_id, split)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.evaluation_macro_steps (
            run_id String, split String, step UInt32, coarse_action UInt8,
            reward Float64, commission Float64, required_money Float64,
            holding Float64, pure_balance Float64, micro_steps UInt32
        ) ENGINE = MergeTree ORDER BY (run_id, split, step)`, db),
	}
}

type txRunner interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// CHResultStore implements ResultSink on ClickHouse.
type CHResultStore struct {
	ch  txRunner
	db  string
	l   *applogger.Logger
	now func() time.Time
}

var _ domrepo.ResultSink = (*CHResultStore)(nil)

func NewCHResultStore(ch txRunner, database string, l *applogger.Logger) *CHResultStore {
	return &CHResultStore{ch: ch, db: database, l: l, now: time.Now}
}

func (s *CHResultStore) Name() string { return "clickhouse" }

func (s *CHResultStore) Save(ctx context.Context, runID string, report models.SplitReport) error {
	start := time.Now()
	run := runRow(runID, report, s.now())
	steps := macroStepRows(runID, report)

	err := s.ch.InTx(ctx, func(tx *sql.Tx) error {
		q := fmt.Sprintf(`INSERT INTO %s.evaluation_runs (run_id, split, action, macro_steps, pnl, final_balance,
            peak_required, total_commission, max_drawdown, sharpe, error, failed_step, duration_ms, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.db)
		if _, err := tx.ExecContext(ctx, q, run...); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if len(steps) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s.evaluation_macro_steps (run_id, split, step,
            coarse_action, reward, commission, required_money, holding, pure_balance, micro_steps)`, s.db))
		if err != nil {
			return fmt.Errorf("prepare macro steps: %w", err)
		}
		defer stmt.Close()
		for _, row := range steps {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return fmt.Errorf("append macro step: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse save split error",
				applogger.String("run_id", runID),
				applogger.String("split", report.Split),
				applogger.Error(err))
		}
		return err
	}
	if s.l != nil {
		s.l.Info("clickhouse split saved",
			applogger.String("run_id", runID),
			applogger.String("split", report.Split),
			applogger.Int("macro_steps", len(steps)),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return nil
}

func runRow(runID string, r models.SplitReport, now time.Time) []interface{} {
	var sum models.Summary
	if r.Summary != nil {
		sum = *r.Summary
	}
	return []interface{}{
		runID, r.Split, uint8(r.Action), uint32(sum.MacroSteps),
		sum.PnL, sum.FinalBalance, sum.PeakRequired, sum.TotalCommission,
		sum.MaxDrawdown, sum.Sharpe, r.Error, int32(r.FailedStep),
		r.DurationMS, now,
	}
}

func macroStepRows(runID string, r models.SplitReport) [][]interface{} {
	out := make([][]interface{}, 0, len(r.Steps))
	for _, st := range r.Steps {
		out = append(out, []interface{}{
			runID, r.Split, uint32(st.Index), uint8(st.CoarseAction),
			st.Reward.InexactFloat64(), st.Commission.InexactFloat64(), st.RequiredMoney.InexactFloat64(),
			st.End.Holding.InexactFloat64(), st.End.PureBalance().InexactFloat64(), uint32(len(st.Micro)),
		})
	}
	return out
}
