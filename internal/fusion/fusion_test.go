package fusion

import (
	"errors"
	"testing"

	"plcaudit/internal/config"
	"plcaudit/internal/dispatch"
	"plcaudit/internal/llm"
)

func fusionCfg() config.AnalysisConfig {
	return config.AnalysisConfig{
		AnalysisType:        "alarm",
		SimilarityThreshold: 0.75,
	}
}

func successResult(shardID string, findings ...dispatch.Finding) *dispatch.ShardResult {
	return &dispatch.ShardResult{
		ShardID:  shardID,
		Status:   dispatch.StatusSuccess,
		Findings: findings,
		Usage:    llm.TokenUsage{TotalTokens: 100},
	}
}

func failedResult(shardID string) *dispatch.ShardResult {
	return &dispatch.ShardResult{ShardID: shardID, Status: dispatch.StatusFailed, Error: "timeout"}
}

func TestFuse_CorroboratedFindingMerges(t *testing.T) {
	f := dispatch.Finding{
		Type:        dispatch.TypeMissingAlarm,
		Severity:    "high",
		Description: "sensor TT_001 read without over-temperature alarm",
		Location:    "temperature monitoring logic",
		Confidence:  0.8,
	}
	f2 := f
	f2.Confidence = 0.7

	res, err := Fuse([]*dispatch.ShardResult{
		successResult("prog_logic_001", f),
		successResult("prog_logic_002", f2),
	}, "alarm", fusionCfg())
	if err != nil {
		t.Fatalf("Fuse failed: %v", err)
	}

	if len(res.Findings) != 1 {
		t.Fatalf("got %d findings, want 1 merged", len(res.Findings))
	}
	m := res.Findings[0]
	if m.Frequency != 2 {
		t.Errorf("frequency = %d, want 2", m.Frequency)
	}
	if m.Confidence < 0.8 {
		t.Errorf("merged confidence %v dropped below best member 0.8", m.Confidence)
	}
	if m.Confidence > 1 {
		t.Errorf("confidence %v above 1", m.Confidence)
	}
	// 1 - (1-0.8)(1-0.7) = 0.94
	if m.Confidence < 0.93 || m.Confidence > 0.95 {
		t.Errorf("confidence = %v, want ~0.94", m.Confidence)
	}
	if len(m.SourceShards) != 2 {
		t.Errorf("source shards = %v, want both", m.SourceShards)
	}
}

func TestFuse_DistinctFindingsStaySeparate(t *testing.T) {
	a := dispatch.Finding{
		Type:        dispatch.TypeSafetyIssue,
		Severity:    "high",
		Description: "emergency stop input not monitored for wire break",
		Location:    "safety input handling",
		Confidence:  0.8,
	}
	b := dispatch.Finding{
		Type:        dispatch.TypeSafetyIssue,
		Severity:    "medium",
		Description: "door interlock bypass flag never cleared",
		Location:    "interlock state machine",
		Confidence:  0.7,
	}

	res, err := Fuse([]*dispatch.ShardResult{
		successResult("prog_logic_001", a),
		successResult("prog_logic_002", b),
	}, "safety", fusionCfg())
	if err != nil {
		t.Fatalf("Fuse failed: %v", err)
	}
	if len(res.Findings) != 2 {
		t.Fatalf("got %d findings, want 2 distinct", len(res.Findings))
	}
}

func TestFuse_DifferentTypesNeverMerge(t *testing.T) {
	desc := "valve V100 state not checked before pump start"
	a := dispatch.Finding{Type: dispatch.TypeLogicError, Severity: "high", Description: desc, Location: "pump start", Confidence: 0.9}
	b := dispatch.Finding{Type: dispatch.TypeSafetyIssue, Severity: "high", Description: desc, Location: "pump start", Confidence: 0.9}

	res, err := Fuse([]*dispatch.ShardResult{successResult("s1", a, b)}, "safety", fusionCfg())
	if err != nil {
		t.Fatalf("Fuse failed: %v", err)
	}
	if len(res.Findings) != 2 {
		t.Errorf("findings of different types merged: %+v", res.Findings)
	}
}

func TestFuse_AllShardsFailedIsNotAnError(t *testing.T) {
	res, err := Fuse([]*dispatch.ShardResult{
		failedResult("data_def_001"),
		failedResult("prog_logic_001"),
	}, "alarm", fusionCfg())
	if err != nil {
		t.Fatalf("Fuse must tolerate all-failed input, got %v", err)
	}
	if len(res.Findings) != 0 {
		t.Errorf("findings from failed shards: %+v", res.Findings)
	}
	if res.Stats.SuccessRate != 0 {
		t.Errorf("success rate = %v, want 0", res.Stats.SuccessRate)
	}
	if len(res.FailedShardIDs) != 2 {
		t.Errorf("failed shard ids = %v", res.FailedShardIDs)
	}
	if res.OverallConfidence != 0 {
		t.Errorf("overall confidence = %v, want 0", res.OverallConfidence)
	}
}

func TestFuse_EmptyInputIsError(t *testing.T) {
	_, err := Fuse(nil, "alarm", fusionCfg())
	if err == nil {
		t.Fatal("expected error for empty input")
	}
	var ie *InputError
	if !errors.As(err, &ie) {
		t.Errorf("error type = %T, want *InputError", err)
	}
}

func TestFuse_SortedBySeverityThenConfidence(t *testing.T) {
	low := dispatch.Finding{Type: dispatch.TypeLogicError, Severity: "low", Description: "unused variable tmp_1", Location: "aux logic", Confidence: 0.9}
	crit := dispatch.Finding{Type: dispatch.TypeSafetyIssue, Severity: "critical", Description: "no emergency stop handling at all", Location: "main program", Confidence: 0.6}
	high := dispatch.Finding{Type: dispatch.TypeMissingAlarm, Severity: "high", Description: "pressure transmitter PT_002 has no high alarm", Location: "pressure loop", Confidence: 0.8}

	res, err := Fuse([]*dispatch.ShardResult{successResult("s1", low, crit, high)}, "alarm", fusionCfg())
	if err != nil {
		t.Fatalf("Fuse failed: %v", err)
	}
	if len(res.Findings) != 3 {
		t.Fatalf("got %d findings", len(res.Findings))
	}
	order := []string{"critical", "high", "low"}
	for i, want := range order {
		if res.Findings[i].Severity != want {
			t.Errorf("finding %d severity = %s, want %s", i, res.Findings[i].Severity, want)
		}
	}
}

func TestFuse_Idempotent(t *testing.T) {
	f := dispatch.Finding{
		Type: dispatch.TypeMissingAlarm, Severity: "high",
		Description: "motor M1 fault bit ignored", Location: "motor control",
		Confidence: 0.85,
	}
	input := []*dispatch.ShardResult{
		successResult("s1", f),
		successResult("s2", f),
	}

	first, err := Fuse(input, "alarm", fusionCfg())
	if err != nil {
		t.Fatal(err)
	}
	second, err := Fuse(input, "alarm", fusionCfg())
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Findings) != len(second.Findings) {
		t.Fatalf("fusion not deterministic: %d vs %d findings", len(first.Findings), len(second.Findings))
	}
	for i := range first.Findings {
		if first.Findings[i].Confidence != second.Findings[i].Confidence ||
			first.Findings[i].Frequency != second.Findings[i].Frequency {
			t.Errorf("finding %d differs across runs", i)
		}
	}
}

func TestFuse_ConfidenceThresholdFilters(t *testing.T) {
	weak := dispatch.Finding{Type: dispatch.TypeLogicError, Severity: "low", Description: "possible dead branch in case selector", Location: "mode logic", Confidence: 0.3}
	strong := dispatch.Finding{Type: dispatch.TypeMissingAlarm, Severity: "high", Description: "flow meter FT_010 has no low flow alarm", Location: "flow loop", Confidence: 0.9}

	cfg := fusionCfg()
	cfg.ConfidenceThreshold = 0.5
	res, err := Fuse([]*dispatch.ShardResult{successResult("s1", weak, strong)}, "alarm", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Findings) != 1 || res.Findings[0].Type != dispatch.TypeMissingAlarm {
		t.Errorf("threshold filter wrong: %+v", res.Findings)
	}
}

func TestFuse_StatsCountTokensAndShards(t *testing.T) {
	res, err := Fuse([]*dispatch.ShardResult{
		successResult("s1"),
		successResult("s2"),
		failedResult("s3"),
	}, "alarm", fusionCfg())
	if err != nil {
		t.Fatal(err)
	}
	s := res.Stats
	if s.TotalShards != 3 || s.SuccessfulShards != 2 || s.FailedShards != 1 {
		t.Errorf("shard counts wrong: %+v", s)
	}
	if s.SuccessRate < 0.66 || s.SuccessRate > 0.67 {
		t.Errorf("success rate = %v", s.SuccessRate)
	}
	if s.TotalTokens != 200 {
		t.Errorf("tokens = %d, want 200", s.TotalTokens)
	}
}
