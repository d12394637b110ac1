package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinReplay/internal/di"
	"FinReplay/internal/domain/models"
	"FinReplay/internal/usecase"
	"FinReplay/pkg/config"
	applogger "FinReplay/pkg/logger"
	"FinReplay/pkg/tracing"

	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	action := flag.Int("action", -1, "fixed coarse action; -1 keeps evaluation.action")
	dataset := flag.String("dataset", "", "dataset name; empty keeps evaluation.dataset")
	save := flag.String("save", "", "result root; empty keeps evaluation.save_path")
	parallel := flag.Bool("parallel", false, "evaluate splits concurrently")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *action >= 0 {
		cfg.Evaluation.Action = *action
	}
	if *dataset != "" {
		cfg.Evaluation.Dataset = *dataset
	}
	if *save != "" {
		cfg.Evaluation.SavePath = *save
	}
	if *parallel {
		cfg.Evaluation.ParallelSplits = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Output:      cfg.Tracing.Output,
		PrettyPrint: cfg.Tracing.PrettyPrint,
	}); err != nil {
		log.Printf("tracing: %v", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(sctx)
	}()

	h, cleanup, err := di.InitializeHarness(cfg)
	if err != nil {
		log.Printf("harness initialization failed: %v", err)
		return 1
	}
	defer cleanup()

	specs, err := h.Splits.Resolve(cfg.Evaluation.Dataset, cfg.Evaluation.Splits)
	if err != nil {
		h.Log.Error("resolve splits", applogger.Error(err))
		return 1
	}
	report, err := h.Evaluator.Run(ctx, usecase.EvaluationParams{
		RunID:    uuid.NewString(),
		Dataset:  cfg.Evaluation.Dataset,
		Action:   cfg.Evaluation.Action,
		Splits:   specs,
		Parallel: cfg.Evaluation.ParallelSplits,
	})
	if err != nil {
		h.Log.Error("evaluation failed", applogger.Error(err))
		return 1
	}
	if h.Publisher != nil {
		if err := h.Publisher.PublishReport(ctx, report); err != nil {
			h.Log.Warn("publish report", applogger.Error(err))
		}
	}

	for _, s := range report.Splits {
		if s.Failed() {
			fmt.Printf("%-6s FAILED at step %d: %s\n", s.Split, s.FailedStep, s.Error)
			continue
		}
		sum := s.Summary
		fmt.Printf("%-6s steps=%d pnl=%.6f final_balance=%.6f required=%.6f commission=%.6f sharpe=%.4f max_dd=%.6f\n",
			s.Split, sum.MacroSteps, sum.PnL, sum.FinalBalance, sum.PeakRequired, sum.TotalCommission, sum.Sharpe, sum.MaxDrawdown)
	}
	fmt.Printf("run %s: %s\n", report.RunID, report.Status)
	if report.Status != models.StatusDone {
		return 2
	}
	return 0
}
