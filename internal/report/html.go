package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"plcaudit/internal/logging"
)

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>PLC Audit Report {{.RunID}}</title>
<style>
  body { font-family: sans-serif; margin: 2em; color: #222; }
  h1 { border-bottom: 2px solid #444; padding-bottom: 0.3em; }
  .meta { color: #666; font-size: 0.9em; }
  .summary { background: #f4f4f4; padding: 1em; border-radius: 4px; margin: 1em 0; }
  table { border-collapse: collapse; width: 100%; }
  th, td { border: 1px solid #ccc; padding: 0.5em; text-align: left; vertical-align: top; }
  th { background: #eee; }
  .sev-critical { color: #fff; background: #b00020; padding: 0.1em 0.5em; border-radius: 3px; }
  .sev-high { color: #fff; background: #e65100; padding: 0.1em 0.5em; border-radius: 3px; }
  .sev-medium { color: #222; background: #ffd54f; padding: 0.1em 0.5em; border-radius: 3px; }
  .sev-low { color: #222; background: #c8e6c9; padding: 0.1em 0.5em; border-radius: 3px; }
  .failed { color: #b00020; }
</style>
</head>
<body>
<h1>PLC Audit Report</h1>
<p class="meta">
  Run {{.RunID}} &middot; {{.GeneratedAt}} &middot; {{.AnalysisType}} analysis of {{.SourceFile}}
</p>
<div class="summary">
  <p>{{.Result.Summary}}</p>
  <p>Overall confidence: {{printf "%.2f" .Result.OverallConfidence}} &middot;
     Shards: {{.Result.Stats.SuccessfulShards}}/{{.Result.Stats.TotalShards}} succeeded &middot;
     Tokens: {{.Result.Stats.TotalTokens}}</p>
</div>
{{if .Result.Findings}}
<table>
<tr><th>Severity</th><th>Type</th><th>Location</th><th>Description</th><th>Recommendation</th><th>Confidence</th><th>Seen</th></tr>
{{range .Result.Findings}}
<tr>
  <td><span class="sev-{{.Severity}}">{{.Severity}}</span></td>
  <td>{{.Type}}</td>
  <td>{{.Location}}</td>
  <td>{{.Description}}</td>
  <td>{{.Recommendation}}</td>
  <td>{{printf "%.2f" .Confidence}}</td>
  <td>{{.Frequency}}x</td>
</tr>
{{end}}
</table>
{{else}}
<p>No findings.</p>
{{end}}
{{if .Result.FailedShardIDs}}
<p class="failed">Failed shards: {{range .Result.FailedShardIDs}}{{.}} {{end}}</p>
{{end}}
</body>
</html>
`))

// WriteHTML renders the report as a standalone HTML page.
func (r *Report) WriteHTML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := htmlTemplate.Execute(f, r); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	logging.Report("wrote HTML report %s (run %s)", path, r.RunID)
	return nil
}
