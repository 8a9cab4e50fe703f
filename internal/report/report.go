// Package report renders a fused audit result for people: a JSON
// artifact, an HTML page, and a styled terminal summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"plcaudit/internal/fusion"
	"plcaudit/internal/logging"
)

// Report wraps a fused result with run identity.
type Report struct {
	RunID        string         `json:"run_id"`
	GeneratedAt  string         `json:"generated_at"` // RFC 3339
	SourceFile   string         `json:"source_file"`
	AnalysisType string         `json:"analysis_type"`
	Result       *fusion.Result `json:"result"`
}

// New stamps a fused result with a fresh run id.
func New(result *fusion.Result, sourceFile string) *Report {
	return &Report{
		RunID:        uuid.NewString(),
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
		SourceFile:   sourceFile,
		AnalysisType: result.AnalysisType,
		Result:       result,
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logging.Report("wrote JSON report %s (run %s)", path, r.RunID)
	return nil
}

// ReadJSON loads a previously written report.
func ReadJSON(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
