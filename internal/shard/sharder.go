// Package shard partitions a parsed document into bounded,
// dependency-consistent fragments sized for one remote analysis request.
package shard

import (
	"fmt"
	"strings"

	"plcaudit/internal/config"
	"plcaudit/internal/document"
	"plcaudit/internal/logging"
)

// Kind labels what a shard predominantly carries.
type Kind string

const (
	KindDataDef   Kind = "data_def"   // variable and type declarations
	KindProgLogic Kind = "prog_logic" // routines
)

// ContextBlock is a referenced-but-not-owned block injected into a shard
// in truncated form, for comprehension only.
type ContextBlock struct {
	Name      string             `json:"name"`
	Kind      document.BlockKind `json:"kind"`
	Signature string             `json:"signature"` // truncated declaration text
}

// Shard is one bounded contiguous fragment of the source document.
type Shard struct {
	ID            string             `json:"shard_id"`
	Kind          Kind               `json:"shard_type"`
	Range         document.LineRange `json:"line_range"` // includes overlap lines
	PrimaryBlocks []*document.Block  `json:"primary_blocks"`
	ContextBlocks []ContextBlock     `json:"context_blocks"`
	ExternalRefs  []string           `json:"external_refs"` // unresolved names, preserved
	OverlapLines  int                `json:"overlap_lines"` // leading lines shared with the previous shard
	Content       string             `json:"content"`
	TokenEstimate int                `json:"token_estimate"`
	Oversized     bool               `json:"oversized"` // single block larger than the band
}

// Lines returns the shard's size in source lines, overlap included.
func (s *Shard) Lines() int { return s.Range.Lines() }

// ContentHash input: the cache keys shards by this.
func (s *Shard) CacheKey(analysisType string) string {
	return hashContent(s.Content + "\x00" + analysisType)
}

// Build partitions the document into an ordered shard sequence.
//
// Blocks are walked in source order, accumulated until the next block
// would push the covered span past MaxShardLines, or a kind boundary is
// reached past MinShardLines. A single block wider than the band becomes
// its own oversized shard rather than being truncated. Shard ranges are
// extended over inter-block lines so the union of ranges covers every
// source line; every shard after the first carries OverlapLines leading
// lines of its predecessor's range.
func Build(doc *document.Document, cfg config.ShardingConfig) []*Shard {
	timer := logging.StartTimer(logging.CategoryShard, "Build")
	defer timer.StopWithInfo()

	if doc.TotalLines() == 0 {
		return nil
	}

	// A document inside the minimum band is exactly one shard, no overlap.
	if doc.TotalLines() <= cfg.MinShardLines {
		s := newShard(doc, cfg, doc.Blocks, 1, doc.TotalLines(), 0, false)
		s.ID = shardID(s.Kind, 1)
		logging.Shard("document fits one shard (%d lines)", doc.TotalLines())
		return []*Shard{s}
	}

	var groups []blockGroup
	var cur blockGroup
	coverStart := 1

	flush := func(oversized bool) {
		if len(cur.blocks) == 0 {
			return
		}
		cur.start = coverStart
		cur.oversized = oversized
		groups = append(groups, cur)
		coverStart = cur.end + 1
		cur = blockGroup{}
	}

	for i, b := range doc.Blocks {
		span := b.Range.Lines()

		// Oversized block: emit alone rather than truncate it.
		if span > cfg.MaxShardLines {
			flush(false)
			cur = blockGroup{blocks: []*document.Block{b}, end: b.Range.End}
			flush(true)
			continue
		}

		candidateEnd := b.Range.End
		if len(cur.blocks) > 0 && candidateEnd-coverStart+1 > cfg.MaxShardLines {
			flush(false)
		}

		cur.blocks = append(cur.blocks, b)
		if b.Range.End > cur.end {
			cur.end = b.Range.End
		}

		// Natural boundary: kind changes on the next block and the
		// candidate already satisfies the minimum.
		if i+1 < len(doc.Blocks) {
			next := doc.Blocks[i+1]
			if sameGroupKind(b.Kind, next.Kind) {
				continue
			}
			if cur.end-coverStart+1 >= cfg.MinShardLines {
				flush(false)
			}
		}
	}
	flush(false)

	if len(groups) == 0 {
		// Content but no recognizable blocks: cover the document anyway.
		s := newShard(doc, cfg, nil, 1, doc.TotalLines(), 0, false)
		s.ID = shardID(s.Kind, 1)
		return []*Shard{s}
	}

	// The last shard absorbs trailing boilerplate so coverage reaches EOF.
	groups[len(groups)-1].end = doc.TotalLines()

	shards := make([]*Shard, 0, len(groups))
	seq := map[Kind]int{}
	for i, g := range groups {
		overlap := 0
		start := g.start
		if i > 0 && cfg.OverlapLines > 0 {
			overlap = cfg.OverlapLines
			if start-overlap < 1 {
				overlap = start - 1
			}
			start -= overlap
		}
		s := newShard(doc, cfg, g.blocks, start, g.end, overlap, g.oversized)
		seq[s.Kind]++
		s.ID = shardID(s.Kind, seq[s.Kind])
		shards = append(shards, s)
	}

	logging.Shard("built %d shards from %d blocks (%d lines)",
		len(shards), len(doc.Blocks), doc.TotalLines())
	return shards
}

type blockGroup struct {
	blocks    []*document.Block
	start     int
	end       int
	oversized bool
}

// sameGroupKind reports whether two block kinds belong to the same
// declaration group for boundary purposes (variables and types shard
// together; routines shard together).
func sameGroupKind(a, b document.BlockKind) bool {
	return (a == document.KindRoutine) == (b == document.KindRoutine)
}

func kindOf(blocks []*document.Block) Kind {
	for _, b := range blocks {
		if b.Kind == document.KindRoutine {
			return KindProgLogic
		}
	}
	return KindDataDef
}

func shardID(kind Kind, seq int) string {
	return fmt.Sprintf("%s_%03d", kind, seq)
}

func newShard(doc *document.Document, cfg config.ShardingConfig, blocks []*document.Block, start, end, overlap int, oversized bool) *Shard {
	s := &Shard{
		Kind:          kindOf(blocks),
		Range:         document.LineRange{Start: start, End: end},
		PrimaryBlocks: blocks,
		OverlapLines:  overlap,
		Oversized:     oversized,
	}
	if end > len(doc.Lines) {
		end = len(doc.Lines)
		s.Range.End = end
	}
	s.Content = strings.Join(doc.Lines[start-1:end], "\n")
	for _, b := range blocks {
		s.TokenEstimate += b.TokenCount
	}
	s.resolveContext(doc, cfg)
	return s
}

// resolveContext gathers referenced blocks not owned by the shard as
// truncated context, and preserves unresolved external names.
func (s *Shard) resolveContext(doc *document.Document, cfg config.ShardingConfig) {
	owned := make(map[string]bool, len(s.PrimaryBlocks))
	for _, b := range s.PrimaryBlocks {
		owned[b.Name] = true
	}

	ctxSeen := make(map[string]bool)
	extSeen := make(map[string]bool)
	for _, b := range s.PrimaryBlocks {
		internal, external := doc.ResolvedReferences(b)
		for _, ref := range internal {
			if owned[ref.Name] || ctxSeen[ref.Name] {
				continue
			}
			ctxSeen[ref.Name] = true
			s.ContextBlocks = append(s.ContextBlocks, ContextBlock{
				Name:      ref.Name,
				Kind:      ref.Kind,
				Signature: truncate(ref.Content, cfg.ContextSummaryLimit),
			})
		}
		for _, name := range external {
			if extSeen[name] {
				continue
			}
			extSeen[name] = true
			s.ExternalRefs = append(s.ExternalRefs, name)
		}
	}
}

// truncate keeps the leading declaration text of a context block.
func truncate(content string, limit int) string {
	if limit <= 0 {
		limit = 200
	}
	if len(content) <= limit {
		return content
	}
	return content[:limit] + "..."
}
