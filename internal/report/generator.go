// Package report provides report generation functionality.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sivchari/adogate/internal/gate"
)

// Artifact file names written to the output directory.
const (
	JSONFile = "gate-report.json"
	HTMLFile = "gate-report.html"
)

// Metadata describes the run an outcome was produced in.
type Metadata struct {
	RunID      string    `json:"runId"`
	Provider   string    `json:"provider"`
	Repository string    `json:"repository,omitempty"`
	Branch     string    `json:"branch,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Project    string    `json:"project"`
	Timestamp  time.Time `json:"timestamp"`
}

// Report is the JSON artifact layout.
type Report struct {
	Outcome  *gate.Outcome `json:"outcome"`
	Metadata Metadata      `json:"metadata"`
}

// Generator handles report generation.
type Generator struct {
	formats   []string
	outputDir string
	stdout    io.Writer
}

// New creates a new report generator.
func New(formats []string, outputDir string, stdout io.Writer) *Generator {
	return &Generator{
		formats:   formats,
		outputDir: outputDir,
		stdout:    stdout,
	}
}

// Generate writes every configured format for outcome.
func (g *Generator) Generate(outcome *gate.Outcome, meta Metadata) error {
	rep := &Report{Outcome: outcome, Metadata: meta}

	for _, format := range g.formats {
		var err error

		switch strings.ToLower(format) {
		case "json":
			err = g.generateJSON(rep)
		case "html":
			err = g.generateHTML(rep)
		case "console":
			g.generateConsole(rep)
		default:
			err = fmt.Errorf("unknown report format %q", format)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func (g *Generator) generateJSON(rep *Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := g.write(JSONFile, data); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	return nil
}

func (g *Generator) generateHTML(rep *Report) error {
	funcMap := template.FuncMap{
		"percentage": percentage,
		"status":     status,
	}

	tmpl, err := template.New("html_report").Funcs(funcMap).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse HTML template: %w", err)
	}

	var output strings.Builder
	if err := tmpl.Execute(&output, rep); err != nil {
		return fmt.Errorf("failed to execute HTML template: %w", err)
	}

	if err := g.write(HTMLFile, []byte(output.String())); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}

	return nil
}

func (g *Generator) generateConsole(rep *Report) {
	o := rep.Outcome

	fmt.Fprintf(g.stdout, "%s (%s)\n", o.Gate, o.Mode)

	tw := table.NewWriter()
	tw.SetOutputMirror(g.stdout)

	if o.Mode.TestBased() {
		tw.AppendHeader(table.Row{"Plan", "Suite", "Name", "Total", "Passed"})

		for _, s := range o.Suites {
			tw.AppendRow(table.Row{s.PlanID, s.SuiteID, s.Name, s.Total, s.Passed})
		}

		tw.AppendFooter(table.Row{"", "", "Total", o.TotalCases, o.PassedCases})
	} else {
		tw.AppendHeader(table.Row{"Work Item"})

		for _, id := range o.WorkItemIDs {
			tw.AppendRow(table.Row{id})
		}
	}

	tw.Render()

	if !o.Mode.TestBased() {
		fmt.Fprintf(g.stdout, "Defects found: %d\n", o.DefectCount)
	}

	fmt.Fprintf(g.stdout, "Quality Gate: %s (%s)\n", status(o.Succeeded), o.Reason)
}

func (g *Generator) write(name string, data []byte) error {
	if err := os.MkdirAll(g.outputDir, 0750); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(g.outputDir, name), data, 0600)
}

func status(succeeded bool) string {
	if succeeded {
		return "PASSED"
	}

	return "FAILED"
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}

	return float64(part) / float64(total) * 100
}

// htmlTemplate is the template for HTML reports.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Quality Gate Report</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 20px; }
        .header { background: #f5f5f5; padding: 20px; border-radius: 5px; }
        .PASSED { color: #28a745; }
        .FAILED { color: #dc3545; }
        table { border-collapse: collapse; width: 100%; margin-top: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        .timestamp { color: #7f8c8d; font-size: 12px; margin-top: 30px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Outcome.Gate}}</h1>
        <h2 class="{{status .Outcome.Succeeded}}">Quality Gate: {{status .Outcome.Succeeded}}</h2>
        <p>{{.Outcome.Reason}}</p>
        <p>Project: {{.Metadata.Project}} &middot; Mode: {{.Outcome.Mode}} &middot; Run: {{.Metadata.RunID}}</p>
    </div>
    {{if .Outcome.Mode.TestBased}}
    <h2>Test Cases</h2>
    <p>Passed {{.Outcome.PassedCases}} of {{.Outcome.TotalCases}} ({{printf "%.1f" (percentage .Outcome.PassedCases .Outcome.TotalCases)}}%)</p>
    <table>
        <tr><th>Plan</th><th>Suite</th><th>Name</th><th>Total</th><th>Passed</th></tr>
        {{range .Outcome.Suites}}
        <tr><td>{{.PlanID}}</td><td>{{.SuiteID}}</td><td>{{.Name}}</td><td>{{.Total}}</td><td>{{.Passed}}</td></tr>
        {{end}}
    </table>
    {{if .Outcome.FailedCases}}
    <h2>Not Passed</h2>
    <ul>
        {{range .Outcome.FailedCases}}<li>{{.}}</li>
        {{end}}
    </ul>
    {{end}}
    {{else}}
    <h2>Work Items</h2>
    <p>Defects found: {{.Outcome.DefectCount}}</p>
    <ul>
        {{range .Outcome.WorkItemIDs}}<li>{{.}}</li>
        {{end}}
    </ul>
    {{end}}
    <div class="timestamp">Generated on {{.Metadata.Timestamp.Format "2006-01-02 15:04:05 MST"}}</div>
</body>
</html>`
