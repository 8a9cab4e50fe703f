// Package dispatch sends shards to the remote analysis service in
// bounded concurrent batches, retries transient failures, and returns
// one result per shard in shard order.
package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"plcaudit/internal/llm"
)

// Status of one shard's analysis.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Severity levels, ordered from most to least severe.
var severityRank = map[string]int{
	"critical": 0,
	"high":     1,
	"medium":   2,
	"low":      3,
}

// SeverityRank returns the sort rank of a severity, lower is more
// severe. Unknown severities rank last.
func SeverityRank(severity string) int {
	if r, ok := severityRank[severity]; ok {
		return r
	}
	return len(severityRank)
}

// Finding is one issue reported by the model for a single shard.
type Finding struct {
	Type           string  `json:"type"`
	Severity       string  `json:"severity"`
	Description    string  `json:"description"`
	Location       string  `json:"location"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation,omitempty"`
}

// ShardResult is the outcome of analyzing one shard. The dispatcher
// produces exactly one per input shard, success or not.
type ShardResult struct {
	ShardID   string         `json:"shard_id"`
	Status    Status         `json:"status"`
	Findings  []Finding      `json:"findings,omitempty"`
	Usage     llm.TokenUsage `json:"usage"`
	Attempts  int            `json:"attempts"`
	Duration  time.Duration  `json:"duration_ns"`
	FromCache bool           `json:"from_cache,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// FailedShardIDs lists the shards that ended up failed, in order.
func FailedShardIDs(results []*ShardResult) []string {
	var ids []string
	for _, r := range results {
		if r.Status == StatusFailed {
			ids = append(ids, r.ShardID)
		}
	}
	return ids
}

type findingsEnvelope struct {
	Findings []Finding `json:"findings"`
}

// ParseFindings decodes a model response into findings. The model is
// instructed to reply with a JSON object, optionally inside a code
// fence. Anything that does not decode to the expected shape is a
// schema violation, which the dispatcher treats as non-retryable.
func ParseFindings(content string) ([]Finding, error) {
	body := stripFence(content)
	if body == "" {
		return nil, fmt.Errorf("empty response body")
	}

	var env findingsEnvelope
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	for i := range env.Findings {
		f := &env.Findings[i]
		if f.Type == "" || f.Description == "" {
			return nil, fmt.Errorf("finding %d missing type or description", i)
		}
		if _, ok := severityRank[f.Severity]; !ok {
			return nil, fmt.Errorf("finding %d has unknown severity %q", i, f.Severity)
		}
		if f.Confidence < 0 {
			f.Confidence = 0
		}
		if f.Confidence > 1 {
			f.Confidence = 1
		}
	}
	return env.Findings, nil
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
