// Package fusion folds per-shard findings into one deduplicated audit
// result: similar findings merge, corroboration raises confidence, and
// the outcome is ranked by severity.
package fusion

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"plcaudit/internal/config"
	"plcaudit/internal/dispatch"
	"plcaudit/internal/logging"
)

// Similarity weights. Findings compare only within the same type group;
// the remaining signal splits between severity and text overlap.
const (
	severityWeight    = 0.25
	locationWeight    = 0.375
	descriptionWeight = 0.375
)

// InputError reports unusable fusion input, as opposed to input that
// legitimately fused to an empty result.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "fusion input: " + e.Reason
}

// Finding is a merged, corroborated finding.
type Finding struct {
	Type           string   `json:"type"`
	Severity       string   `json:"severity"`
	Description    string   `json:"description"`
	Location       string   `json:"location"`
	Recommendation string   `json:"recommendation,omitempty"`
	Confidence     float64  `json:"confidence"`
	Frequency      int      `json:"frequency"`     // how many raw findings merged in
	SourceShards   []string `json:"source_shards"` // sorted, deduplicated
}

// Stats summarizes one fused run.
type Stats struct {
	TotalShards      int            `json:"total_shards"`
	SuccessfulShards int            `json:"successful_shards"`
	FailedShards     int            `json:"failed_shards"`
	SuccessRate      float64        `json:"success_rate"`
	RawFindings      int            `json:"raw_findings"`
	MergedFindings   int            `json:"merged_findings"`
	FindingTypes     map[string]int `json:"finding_types,omitempty"`
	SeverityCounts   map[string]int `json:"severity_counts,omitempty"`
	TotalTokens      int            `json:"total_tokens"`
	TotalDuration    time.Duration  `json:"total_duration_ns"`
}

// Result is the final audit outcome.
type Result struct {
	AnalysisType      string    `json:"analysis_type"`
	Findings          []Finding `json:"findings"`
	FailedShardIDs    []string  `json:"failed_shard_ids,omitempty"`
	Summary           string    `json:"summary"`
	OverallConfidence float64   `json:"overall_confidence"`
	Stats             Stats     `json:"stats"`
	Timestamp         time.Time `json:"timestamp"`
}

// Fuse merges per-shard results into one Result. Shard failures are
// reported, not fatal: a run where every shard failed still fuses to an
// empty result. Only an empty input slice is an error.
func Fuse(results []*dispatch.ShardResult, analysisType string, cfg config.AnalysisConfig) (*Result, error) {
	if len(results) == 0 {
		return nil, &InputError{Reason: "no shard results"}
	}

	timer := logging.StartTimer(logging.CategoryFusion, "Fuse")
	defer timer.StopWithInfo()

	raw := extract(results)
	merged := dedupe(raw, cfg.SimilarityThreshold)
	merged = filterConfidence(merged, cfg.ConfidenceThreshold)
	sortFindings(merged)

	stats := buildStats(results, raw, merged)
	res := &Result{
		AnalysisType:      analysisType,
		Findings:          merged,
		FailedShardIDs:    dispatch.FailedShardIDs(results),
		Summary:           summarize(merged, stats),
		OverallConfidence: overallConfidence(stats, merged),
		Stats:             stats,
		Timestamp:         time.Now().UTC(),
	}

	logging.Fusion("fused %d raw findings into %d (%d/%d shards succeeded)",
		stats.RawFindings, stats.MergedFindings, stats.SuccessfulShards, stats.TotalShards)
	return res, nil
}

// extract lifts raw findings out of successful shard results.
func extract(results []*dispatch.ShardResult) []Finding {
	var out []Finding
	for _, r := range results {
		if r.Status != dispatch.StatusSuccess {
			continue
		}
		for _, f := range r.Findings {
			out = append(out, Finding{
				Type:           f.Type,
				Severity:       f.Severity,
				Description:    f.Description,
				Location:       f.Location,
				Recommendation: f.Recommendation,
				Confidence:     f.Confidence,
				Frequency:      1,
				SourceShards:   []string{r.ShardID},
			})
		}
	}
	return out
}

// dedupe greedily merges similar findings within each type group.
func dedupe(findings []Finding, threshold float64) []Finding {
	if threshold <= 0 {
		threshold = 0.75
	}

	byType := make(map[string][]Finding)
	var typeOrder []string
	for _, f := range findings {
		if _, seen := byType[f.Type]; !seen {
			typeOrder = append(typeOrder, f.Type)
		}
		byType[f.Type] = append(byType[f.Type], f)
	}

	var out []Finding
	for _, t := range typeOrder {
		group := byType[t]
		used := make([]bool, len(group))
		for i := range group {
			if used[i] {
				continue
			}
			cluster := []Finding{group[i]}
			for j := i + 1; j < len(group); j++ {
				if used[j] {
					continue
				}
				if similarity(group[i], group[j]) >= threshold {
					cluster = append(cluster, group[j])
					used[j] = true
				}
			}
			out = append(out, merge(cluster))
		}
	}
	return out
}

// similarity scores two findings of the same type in [0,1].
func similarity(a, b Finding) float64 {
	score := 0.0
	if a.Severity == b.Severity {
		score += severityWeight
	}
	score += locationWeight * jaccard(tokenize(a.Location), tokenize(b.Location))
	score += descriptionWeight * jaccard(tokenize(a.Description), tokenize(b.Description))
	return score
}

func tokenize(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[strings.Trim(w, ".,;:()\"'")] = true
	}
	delete(set, "")
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for w := range a {
		if b[w] {
			common++
		}
	}
	union := len(a) + len(b) - common
	return float64(common) / float64(union)
}

// merge collapses a cluster into one finding. The highest-confidence
// member supplies the text; corroboration compounds the confidence, so
// a merged finding is never less confident than its best member.
func merge(cluster []Finding) Finding {
	if len(cluster) == 1 {
		return cluster[0]
	}

	base := cluster[0]
	for _, f := range cluster[1:] {
		if f.Confidence > base.Confidence {
			base = f
		}
	}

	doubt := 1.0
	freq := 0
	shardSet := make(map[string]bool)
	for _, f := range cluster {
		doubt *= 1 - f.Confidence
		freq += f.Frequency
		for _, s := range f.SourceShards {
			shardSet[s] = true
		}
	}
	shards := make([]string, 0, len(shardSet))
	for s := range shardSet {
		shards = append(shards, s)
	}
	sort.Strings(shards)

	base.Confidence = 1 - doubt
	base.Frequency = freq
	base.SourceShards = shards
	return base
}

func filterConfidence(findings []Finding, threshold float64) []Finding {
	if threshold <= 0 {
		return findings
	}
	out := findings[:0]
	for _, f := range findings {
		if f.Confidence >= threshold {
			out = append(out, f)
		}
	}
	return out
}

// sortFindings orders by severity, then confidence, then frequency,
// with description as a deterministic tiebreak.
func sortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if ra, rb := dispatch.SeverityRank(a.Severity), dispatch.SeverityRank(b.Severity); ra != rb {
			return ra < rb
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		return a.Description < b.Description
	})
}

func buildStats(results []*dispatch.ShardResult, raw, merged []Finding) Stats {
	s := Stats{
		TotalShards:    len(results),
		RawFindings:    len(raw),
		MergedFindings: len(merged),
	}
	for _, r := range results {
		if r.Status == dispatch.StatusSuccess {
			s.SuccessfulShards++
			s.TotalTokens += r.Usage.TotalTokens
		} else {
			s.FailedShards++
		}
		s.TotalDuration += r.Duration
	}
	if s.TotalShards > 0 {
		s.SuccessRate = float64(s.SuccessfulShards) / float64(s.TotalShards)
	}
	if len(merged) > 0 {
		s.FindingTypes = make(map[string]int)
		s.SeverityCounts = make(map[string]int)
		for _, f := range merged {
			s.FindingTypes[f.Type]++
			s.SeverityCounts[f.Severity]++
		}
	}
	return s
}

var typeLabels = map[string]string{
	dispatch.TypeMissingAlarm:  "missing alarms",
	dispatch.TypeExistingAlarm: "existing alarms",
	dispatch.TypeSafetyIssue:   "safety issues",
	dispatch.TypeLogicError:    "logic errors",
}

func summarize(findings []Finding, stats Stats) string {
	if stats.SuccessfulShards == 0 {
		return "Analysis produced no result: every shard failed."
	}
	if len(findings) == 0 {
		return "No significant issues found."
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("Analysis found %d issue(s)", len(findings)))
	if n := stats.SeverityCounts["critical"]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d critical", n))
	}
	if n := stats.SeverityCounts["high"]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d high priority", n))
	}

	domType, domCount := "", 0
	for t, n := range stats.FindingTypes {
		if n > domCount || (n == domCount && t < domType) {
			domType, domCount = t, n
		}
	}
	if domCount > 1 {
		label := typeLabels[domType]
		if label == "" {
			label = domType
		}
		parts = append(parts, fmt.Sprintf("dominant category: %s (%d)", label, domCount))
	}
	if stats.SeverityCounts["critical"]+stats.SeverityCounts["high"] > 0 {
		parts = append(parts, "address the high priority issues first")
	}
	return strings.Join(parts, "; ") + "."
}

// overallConfidence weighs shard success rate, frequency-weighted
// finding confidence, and cross-shard consistency.
func overallConfidence(stats Stats, findings []Finding) float64 {
	if len(findings) == 0 {
		return stats.SuccessRate
	}

	confSum, freqSum := 0.0, 0
	for _, f := range findings {
		confSum += f.Confidence * float64(f.Frequency)
		freqSum += f.Frequency
	}
	weightedConf := confSum / float64(freqSum)

	consistency := float64(freqSum) / float64(len(findings)) / 3.0
	if consistency > 1 {
		consistency = 1
	}

	overall := 0.4*stats.SuccessRate + 0.4*weightedConf + 0.2*consistency
	if overall > 1 {
		overall = 1
	}
	if overall < 0 {
		overall = 0
	}
	return overall
}
