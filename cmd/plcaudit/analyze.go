package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plcaudit/internal/dispatch"
	"plcaudit/internal/document"
	"plcaudit/internal/fusion"
	"plcaudit/internal/llm"
	"plcaudit/internal/metrics"
	"plcaudit/internal/report"
	"plcaudit/internal/shard"
	"plcaudit/internal/store"
)

var (
	analysisType string
	outputDir    string
	writeHTML    bool
	noCache      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [export.xml]",
	Short: "Analyze a PLC export end to end",
	Long: `Parses the export, shards it, dispatches every shard to the analysis
service, fuses the findings, and writes the report.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analysisType, "type", "t", "", "analysis type: alarm, safety or logic (default from config)")
	analyzeCmd.Flags().StringVarP(&outputDir, "output", "o", "reports", "report output directory")
	analyzeCmd.Flags().BoolVar(&writeHTML, "html", true, "also write an HTML report")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the response cache")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	exportPath := args[0]
	at := analysisType
	if at == "" {
		at = cfg.Analysis.AnalysisType
	}
	if err := validAnalysisType(at); err != nil {
		return err
	}

	start := time.Now()
	logger.Info("parsing export", zap.String("path", exportPath))
	doc, err := document.ParseFile(exportPath)
	if err != nil {
		return err
	}
	logger.Info("parsed export",
		zap.Int("lines", doc.TotalLines()),
		zap.Int("blocks", len(doc.Blocks)))

	shards := shard.Build(doc, cfg.Sharding)
	if len(shards) == 0 {
		return fmt.Errorf("export %s produced no shards", exportPath)
	}
	logger.Info("built shards", zap.Int("count", len(shards)))

	var cache *store.Cache
	if cfg.Cache.Enabled && !noCache {
		cache, err = store.Open(cfg.Cache.DatabasePath)
		if err != nil {
			logger.Warn("cache unavailable, continuing without it", zap.Error(err))
		} else {
			defer cache.Close()
		}
	}

	client := llm.NewDeepSeekClient(cfg.LLM, cfg.GetLLMTimeout())
	counters := &metrics.Counters{}
	d := dispatch.New(client, cfg, cache, counters)

	logger.Info("dispatching shards",
		zap.String("analysis_type", at),
		zap.Int("max_workers", cfg.Dispatch.MaxWorkers),
		zap.Int("batch_size", cfg.Dispatch.BatchSize))
	results, err := d.Run(ctx, shards, at)
	if err != nil {
		logger.Warn("dispatch interrupted, fusing partial results", zap.Error(err))
	}

	fused, err := fusion.Fuse(results, at, cfg.Analysis)
	if err != nil {
		return fmt.Errorf("fusion failed: %w", err)
	}

	rep := report.New(fused, exportPath)
	jsonPath := filepath.Join(outputDir, fmt.Sprintf("audit_%s.json", rep.RunID))
	if err := rep.WriteJSON(jsonPath); err != nil {
		return err
	}
	if writeHTML {
		htmlPath := filepath.Join(outputDir, fmt.Sprintf("audit_%s.html", rep.RunID))
		if err := rep.WriteHTML(htmlPath); err != nil {
			return err
		}
	}

	fmt.Println(rep.Render())

	snap := counters.Snapshot()
	logger.Info("analysis complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("dispatched", snap.Dispatched),
		zap.Int64("succeeded", snap.Succeeded),
		zap.Int64("failed", snap.Failed),
		zap.Int64("retried", snap.Retried),
		zap.Int64("cache_hits", snap.CacheHits),
		zap.Int64("tokens", snap.TokensUsed),
		zap.String("report", jsonPath))

	if fused.Stats.SuccessfulShards == 0 {
		return fmt.Errorf("every shard failed; see %s", jsonPath)
	}
	return nil
}

func validAnalysisType(at string) error {
	for _, v := range []string{"alarm", "safety", "logic"} {
		if at == v {
			return nil
		}
	}
	return fmt.Errorf("unknown analysis type %q (want alarm, safety or logic)", at)
}
