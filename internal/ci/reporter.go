package ci

import (
	"fmt"
	"io"
	"strings"
)

// Reporter emits gate results as log lines the pipeline understands.
type Reporter interface {
	Warning(msg string)
	Error(msg string)
	// Failure reports the final error line and marks the step failed where the provider supports it.
	Failure(msg string)
}

// NewReporter returns the reporter for provider writing to w.
func NewReporter(provider Provider, w io.Writer) Reporter {
	switch provider {
	case ProviderAzurePipelines:
		return &AzurePipelinesReporter{w: w}
	case ProviderGitHubActions:
		return &GitHubActionsReporter{w: w}
	default:
		return &ConsoleReporter{w: w}
	}
}

// AzurePipelinesReporter writes ##vso logging commands.
type AzurePipelinesReporter struct {
	w io.Writer
}

// Warning implements Reporter.
func (r *AzurePipelinesReporter) Warning(msg string) {
	fmt.Fprintf(r.w, "##vso[task.logissue type=warning]%s\n", escapeAzure(msg))
}

// Error implements Reporter.
func (r *AzurePipelinesReporter) Error(msg string) {
	fmt.Fprintf(r.w, "##vso[task.logissue type=error]%s\n", escapeAzure(msg))
}

// Failure implements Reporter.
func (r *AzurePipelinesReporter) Failure(msg string) {
	r.Error(msg)
	fmt.Fprintf(r.w, "##vso[task.complete result=Failed;]%s\n", escapeAzure(msg))
}

// GitHubActionsReporter writes workflow commands.
type GitHubActionsReporter struct {
	w io.Writer
}

// Warning implements Reporter.
func (r *GitHubActionsReporter) Warning(msg string) {
	fmt.Fprintf(r.w, "::warning::%s\n", escapeGitHub(msg))
}

// Error implements Reporter.
func (r *GitHubActionsReporter) Error(msg string) {
	fmt.Fprintf(r.w, "::error::%s\n", escapeGitHub(msg))
}

// Failure implements Reporter.
func (r *GitHubActionsReporter) Failure(msg string) {
	r.Error(msg)
}

// ConsoleReporter writes plain prefixed lines.
type ConsoleReporter struct {
	w io.Writer
}

// Warning implements Reporter.
func (r *ConsoleReporter) Warning(msg string) {
	fmt.Fprintf(r.w, "WARNING: %s\n", msg)
}

// Error implements Reporter.
func (r *ConsoleReporter) Error(msg string) {
	fmt.Fprintf(r.w, "ERROR: %s\n", msg)
}

// Failure implements Reporter.
func (r *ConsoleReporter) Failure(msg string) {
	r.Error(msg)
}

var (
	azureEscaper  = strings.NewReplacer("%", "%AZP25", "\r", "%0D", "\n", "%0A")
	githubEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A")
)

func escapeAzure(msg string) string {
	return azureEscaper.Replace(msg)
}

func escapeGitHub(msg string) string {
	return githubEscaper.Replace(msg)
}
