package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"FinReplay/internal/domain/models"
	domrepo "FinReplay/internal/domain/repository"
	applogger "FinReplay/pkg/logger"

	"github.com/gocarina/gocsv"
)

// FileResultSink writes one directory per split under
// root/single_agent_{action}/{split}/ holding every series as a JSON array, the
// summary, and the macro steps as CSV.
type FileResultSink struct {
	root string
	l    *applogger.Logger
}

var _ domrepo.ResultSink = (*FileResultSink)(nil)

func NewFileResultSink(root string, l *applogger.Logger) *FileResultSink {
	return &FileResultSink{root: root, l: l}
}

func (s *FileResultSink) Name() string { return "file" }

// Dir is where the artifacts of one split land.
func (s *FileResultSink) Dir(action int, split string) string {
	return filepath.Join(s.root, fmt.Sprintf("single_agent_%d", action), split)
}

// macroStepRecord is one line of macro_steps.csv.
type macroStepRecord struct {
	Step          int     `csv:"step"`
	CoarseAction  int     `csv:"coarse_action"`
	MicroSteps    int     `csv:"micro_steps"`
	Reward        float64 `csv:"reward"`
	Commission    float64 `csv:"commission"`
	RequiredMoney float64 `csv:"required_money"`
	Holding       float64 `csv:"holding"`
	PureBalance   float64 `csv:"pure_balance"`
	Violations    int     `csv:"violations"`
	Liquidated    bool    `csv:"liquidated"`
}

func (s *FileResultSink) Save(_ context.Context, runID string, report models.SplitReport) error {
	dir := s.Dir(report.Action, report.Split)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	files := map[string]interface{}{}
	if r := report.Series; r != nil {
		files["action.json"] = r.Actions
		files["reward.json"] = models.Floats(r.Rewards)
		files["final_balance.json"] = r.FinalBalance.InexactFloat64()
		files["pure_balance.json"] = r.PureBalance.InexactFloat64()
		files["require_money.json"] = models.Floats(r.RequiredMoney)
		files["commission_fee_history.json"] = models.Floats(r.CommissionHistory)
		files["macro_reward_history.json"] = models.Floats(r.MacroRewardHistory)
	}
	files["summary.json"] = struct {
		RunID string `json:"run_id"`
		models.SplitReport
	}{RunID: runID, SplitReport: report}

	for name, v := range files {
		if err := writeJSON(filepath.Join(dir, name), v); err != nil {
			return err
		}
	}
	if err := writeMacroSteps(filepath.Join(dir, "macro_steps.csv"), report.Steps); err != nil {
		return err
	}
	if s.l != nil {
		s.l.Info("split artifacts written",
			applogger.String("run_id", runID),
			applogger.String("split", report.Split),
			applogger.String("dir", dir))
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeMacroSteps(path string, steps []models.MacroStep) error {
	records := make([]*macroStepRecord, 0, len(steps))
	for _, st := range steps {
		rec := &macroStepRecord{
			Step:          st.Index,
			CoarseAction:  st.CoarseAction,
			MicroSteps:    len(st.Micro),
			Reward:        st.Reward.InexactFloat64(),
			Commission:    st.Commission.InexactFloat64(),
			RequiredMoney: st.RequiredMoney.InexactFloat64(),
			Holding:       st.End.Holding.InexactFloat64(),
			PureBalance:   st.End.PureBalance().InexactFloat64(),
		}
		for _, m := range st.Micro {
			if m.Violation {
				rec.Violations++
			}
			rec.Liquidated = rec.Liquidated || m.Liquidation
		}
		records = append(records, rec)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := gocsv.Marshal(records, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
