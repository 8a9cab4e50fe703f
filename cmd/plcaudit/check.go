package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"plcaudit/internal/llm"
	"plcaudit/internal/store"
)

var probe bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and connectivity",
	Long: `Validates the effective configuration, verifies the response cache can
be opened, and with --probe sends one tiny request to the analysis
service to confirm credentials.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&probe, "probe", false, "send a test request to the analysis service")
}

func runCheck(cmd *cobra.Command, args []string) error {
	fmt.Printf("config:         %s\n", cfgPath)
	fmt.Printf("provider:       %s (%s)\n", cfg.LLM.Provider, cfg.LLM.BaseURL)
	fmt.Printf("model:          %s\n", cfg.LLM.Model)
	fmt.Printf("analysis type:  %s\n", cfg.Analysis.AnalysisType)
	fmt.Printf("shard band:     %d-%d lines, overlap %d\n",
		cfg.Sharding.MinShardLines, cfg.Sharding.MaxShardLines, cfg.Sharding.OverlapLines)
	fmt.Printf("dispatch:       %d workers, batches of %d, %d retries\n",
		cfg.Dispatch.MaxWorkers, cfg.Dispatch.BatchSize, cfg.Dispatch.RetryTimes)

	if cfg.LLM.APIKey == "" {
		fmt.Println("api key:        MISSING (set DEEPSEEK_API_KEY or llm.api_key)")
	} else {
		fmt.Println("api key:        configured")
	}

	if cfg.Cache.Enabled {
		cache, err := store.Open(cfg.Cache.DatabasePath)
		if err != nil {
			return fmt.Errorf("cache check failed: %w", err)
		}
		n, err := cache.Count()
		cache.Close()
		if err != nil {
			return fmt.Errorf("cache check failed: %w", err)
		}
		fmt.Printf("cache:          %s (%d entries)\n", cfg.Cache.DatabasePath, n)
	} else {
		fmt.Println("cache:          disabled")
	}

	if probe {
		client := llm.NewDeepSeekClient(cfg.LLM, cfg.GetLLMTimeout())
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		comp, err := client.Complete(ctx, "", "Reply with the single word: ok")
		if err != nil {
			return fmt.Errorf("probe failed: %w", err)
		}
		fmt.Printf("probe:          ok (%d tokens)\n", comp.Usage.TotalTokens)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("\nconfiguration INVALID: %v\n", err)
		return err
	}
	fmt.Println("\nconfiguration valid")
	return nil
}
