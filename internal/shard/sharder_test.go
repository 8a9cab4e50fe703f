package shard

import (
	"fmt"
	"strings"
	"testing"

	"plcaudit/internal/config"
	"plcaudit/internal/document"
)

func genRoutines(n, bodyLines int) string {
	var b strings.Builder
	b.WriteString("<Project>\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "  <FunctionBlock Name=\"FB_Block%03d\">\n", i)
		b.WriteString("    <Body>\n")
		for j := 0; j < bodyLines; j++ {
			fmt.Fprintf(&b, "      counter_%d_%d := counter_%d_%d + 1;\n", i, j, i, j)
		}
		b.WriteString("    </Body>\n")
		b.WriteString("  </FunctionBlock>\n")
	}
	b.WriteString("</Project>")
	return b.String()
}

func genMixed() string {
	var b strings.Builder
	b.WriteString("<Project>\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "  <GlobalVariable Name=\"Sensor_%02d\">\n", i)
		b.WriteString("    <Type>REAL</Type>\n")
		b.WriteString("    <Comment>process value</Comment>\n")
		b.WriteString("  </GlobalVariable>\n")
	}
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "  <Program Name=\"Prog_%02d\">\n", i)
		b.WriteString("    <Body>\n")
		fmt.Fprintf(&b, "      out := GVL.Sensor_%02d;\n", i)
		b.WriteString("    </Body>\n")
		b.WriteString("  </Program>\n")
	}
	b.WriteString("</Project>")
	return b.String()
}

func mustParse(t *testing.T, content string) *document.Document {
	t.Helper()
	doc, err := document.Parse(content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return doc
}

func shardCfg(max, min, overlap int) config.ShardingConfig {
	return config.ShardingConfig{
		MaxShardLines:       max,
		MinShardLines:       min,
		OverlapLines:        overlap,
		ContextSummaryLimit: 200,
	}
}

func TestBuild_SmallDocumentSingleShard(t *testing.T) {
	// ~1,000 lines against the default band yields exactly one shard
	// with no overlap.
	content := genRoutines(10, 96) // 10 blocks x 100 lines + wrapper
	doc := mustParse(t, content)
	if doc.TotalLines() < 900 || doc.TotalLines() > 1100 {
		t.Fatalf("unexpected fixture size: %d lines", doc.TotalLines())
	}

	shards := Build(doc, shardCfg(1500, 800, 100))
	if len(shards) != 1 {
		t.Fatalf("expected 1 shard, got %d", len(shards))
	}
	if shards[0].OverlapLines != 0 {
		t.Errorf("single shard must have no overlap, got %d", shards[0].OverlapLines)
	}
	if shards[0].Range.Start != 1 || shards[0].Range.End != doc.TotalLines() {
		t.Errorf("single shard must cover the document, got %+v", shards[0].Range)
	}
}

func TestBuild_CoverageNoGaps(t *testing.T) {
	doc := mustParse(t, genRoutines(30, 96)) // ~3,000 lines
	shards := Build(doc, shardCfg(450, 200, 20))
	if len(shards) < 2 {
		t.Fatalf("fixture should produce multiple shards, got %d", len(shards))
	}

	if shards[0].Range.Start != 1 {
		t.Errorf("first shard starts at %d, want 1", shards[0].Range.Start)
	}
	if last := shards[len(shards)-1]; last.Range.End != doc.TotalLines() {
		t.Errorf("last shard ends at %d, want %d", last.Range.End, doc.TotalLines())
	}
	for i := 1; i < len(shards); i++ {
		if shards[i].Range.Start > shards[i-1].Range.End+1 {
			t.Errorf("gap between shard %d (end %d) and %d (start %d)",
				i-1, shards[i-1].Range.End, i, shards[i].Range.Start)
		}
	}
}

func TestBuild_SizeBand(t *testing.T) {
	cfg := shardCfg(450, 200, 20)
	doc := mustParse(t, genRoutines(30, 96))
	shards := Build(doc, cfg)

	for i, s := range shards {
		span := s.Lines() - s.OverlapLines
		if span > cfg.MaxShardLines && !s.Oversized {
			t.Errorf("shard %d spans %d lines, over max %d", i, span, cfg.MaxShardLines)
		}
		if i < len(shards)-1 && span < cfg.MinShardLines && !s.Oversized {
			t.Errorf("shard %d spans %d lines, under min %d", i, span, cfg.MinShardLines)
		}
	}
}

func TestBuild_OverlapApplied(t *testing.T) {
	cfg := shardCfg(450, 200, 20)
	doc := mustParse(t, genRoutines(30, 96))
	shards := Build(doc, cfg)

	for i, s := range shards {
		if i == 0 {
			if s.OverlapLines != 0 {
				t.Errorf("first shard has overlap %d", s.OverlapLines)
			}
			continue
		}
		if s.OverlapLines != cfg.OverlapLines {
			t.Errorf("shard %d overlap = %d, want %d", i, s.OverlapLines, cfg.OverlapLines)
		}
		// Overlap region lies inside the previous shard's range.
		if s.Range.Start+s.OverlapLines != shards[i-1].Range.End+1 {
			t.Errorf("shard %d overlap does not abut predecessor", i)
		}
	}
}

func TestBuild_OversizedBlockOwnShard(t *testing.T) {
	// One 600-line routine against a 450-line max.
	doc := mustParse(t, genRoutines(1, 596))
	shards := Build(doc, shardCfg(450, 200, 20))

	var oversized *Shard
	for _, s := range shards {
		if s.Oversized {
			oversized = s
		}
	}
	if oversized == nil {
		t.Fatal("expected an oversized shard")
	}
	if len(oversized.PrimaryBlocks) != 1 {
		t.Errorf("oversized shard owns %d blocks, want 1", len(oversized.PrimaryBlocks))
	}
	if oversized.Lines() <= 450 {
		t.Errorf("oversized shard should exceed max, got %d lines", oversized.Lines())
	}
}

func TestBuild_KindBoundaryAndIDs(t *testing.T) {
	doc := mustParse(t, genMixed())
	shards := Build(doc, shardCfg(60, 10, 0))

	if len(shards) < 2 {
		t.Fatalf("expected declaration and logic shards, got %d", len(shards))
	}
	if shards[0].Kind != KindDataDef {
		t.Errorf("first shard kind = %s, want %s", shards[0].Kind, KindDataDef)
	}
	if last := shards[len(shards)-1]; last.Kind != KindProgLogic {
		t.Errorf("last shard kind = %s, want %s", last.Kind, KindProgLogic)
	}
	// IDs are derived from kind and per-kind sequence.
	if shards[0].ID != "data_def_001" {
		t.Errorf("first shard id = %s, want data_def_001", shards[0].ID)
	}
}

func TestBuild_ContextBlocksTruncatedAndExternalPreserved(t *testing.T) {
	doc := mustParse(t, genMixed())
	cfg := shardCfg(60, 10, 0)
	cfg.ContextSummaryLimit = 40
	shards := Build(doc, cfg)

	var logic *Shard
	for _, s := range shards {
		if s.Kind == KindProgLogic {
			logic = s
			break
		}
	}
	if logic == nil {
		t.Fatal("no logic shard produced")
	}

	owned := make(map[string]bool)
	for _, b := range logic.PrimaryBlocks {
		owned[b.Name] = true
	}
	for _, cb := range logic.ContextBlocks {
		if owned[cb.Name] {
			t.Errorf("context block %s is also owned by the shard", cb.Name)
		}
		if len(cb.Signature) > cfg.ContextSummaryLimit+3 {
			t.Errorf("context signature for %s not truncated: %d bytes", cb.Name, len(cb.Signature))
		}
	}
	// GVL is never declared; it must be preserved as an external name.
	foundExt := false
	for _, e := range logic.ExternalRefs {
		if e == "GVL" {
			foundExt = true
		}
	}
	if !foundExt {
		t.Errorf("external reference GVL dropped, got %v", logic.ExternalRefs)
	}
}

func TestCacheKey_DistinguishesIntent(t *testing.T) {
	doc := mustParse(t, genRoutines(2, 20))
	shards := Build(doc, shardCfg(1500, 10, 0))
	if len(shards) == 0 {
		t.Fatal("no shards")
	}
	s := shards[0]
	if s.CacheKey("alarm") == s.CacheKey("safety") {
		t.Error("cache key must include analysis intent")
	}
	if s.CacheKey("alarm") != s.CacheKey("alarm") {
		t.Error("cache key must be stable")
	}
}
