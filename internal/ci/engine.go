package ci

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sivchari/adogate/internal/azdo"
	"github.com/sivchari/adogate/internal/config"
	"github.com/sivchari/adogate/internal/gate"
	"github.com/sivchari/adogate/internal/report"
)

// Engine evaluates one quality gate inside a pipeline and reports the result.
type Engine struct {
	config    config.Config
	ciConfig  *Config
	request   gate.Request
	evaluator *gate.Evaluator
	reporter  Reporter
	generator *report.Generator
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger *zap.Logger
	source gate.Source
	out    io.Writer
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithSource replaces the Azure DevOps client.
func WithSource(source gate.Source) EngineOption {
	return func(o *engineOptions) {
		o.source = source
	}
}

// WithOutput sets where report lines and console reports are written.
func WithOutput(w io.Writer) EngineOption {
	return func(o *engineOptions) {
		o.out = w
	}
}

// NewEngine validates the configuration and builds the evaluation pipeline.
// Input errors wrap gate.ErrInvalidInput and are detected before any request is sent.
func NewEngine(cfg *config.Config, ciConfig *Config, opts ...EngineOption) (*Engine, error) {
	options := engineOptions{
		logger: zap.NewNop(),
		out:    os.Stdout,
	}

	for _, opt := range opts {
		opt(&options)
	}

	// Work on a copy so pipeline defaults never leak into the caller's config.
	c := *cfg
	applyPipelineDefaults(&c, ciConfig)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", gate.ErrInvalidInput, err)
	}

	mode, ok := gate.ParseMode(c.Gate.Mode)
	if !ok {
		if c.Gate.StrictMode {
			return nil, fmt.Errorf("%w: unrecognized gate mode %q", gate.ErrInvalidInput, c.Gate.Mode)
		}

		options.logger.Warn("unrecognized gate mode, falling back to query",
			zap.String("mode", c.Gate.Mode))
	}

	request, err := gate.NewRequest(c.Gate.Name, mode, c.Gate.Plans, c.Gate.Suites, c.Gate.Query)
	if err != nil {
		return nil, err
	}

	source := options.source
	if source == nil {
		if c.Azure.Token == "" {
			return nil, fmt.Errorf("%w: an access token is required (--token, ADOGATE_TOKEN or SYSTEM_ACCESSTOKEN)", gate.ErrInvalidInput)
		}

		source = azdo.NewClient(c.CollectionURL(), c.Azure.Project, c.Azure.Token,
			azdo.WithAPIVersion(c.Azure.APIVersion),
			azdo.WithTimeout(time.Duration(c.Azure.Timeout)*time.Second),
			azdo.WithLogger(options.logger),
		)
	}

	evaluator := gate.NewEvaluator(source,
		gate.WithExcludedOutcomes(c.Gate.ExcludeOutcomes...),
		gate.WithLogger(options.logger),
	)

	return &Engine{
		config:    c,
		ciConfig:  ciConfig,
		request:   request,
		evaluator: evaluator,
		reporter:  NewReporter(ciConfig.ResolveProvider(c.Reporter), options.out),
		generator: report.New(c.Reports.Formats, c.Reports.OutputDir, options.out),
		logger:    options.logger,
	}, nil
}

// Run evaluates the gate, writes reports and returns the outcome.
// A failed gate is returned as an outcome; only faults are returned as errors.
func (e *Engine) Run(ctx context.Context) (*gate.Outcome, error) {
	e.logger.Info("evaluating quality gate",
		zap.String("gate", e.request.Gate),
		zap.Stringer("mode", e.request.Mode),
		zap.String("project", e.config.Azure.Project))

	outcome, err := e.evaluator.Evaluate(ctx, e.request)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate quality gate %q: %w", e.request.Gate, err)
	}

	e.logger.Info("quality gate evaluated",
		zap.Bool("succeeded", outcome.Succeeded),
		zap.Int("totalCases", outcome.TotalCases),
		zap.Int("passedCases", outcome.PassedCases),
		zap.Int("defectCount", outcome.DefectCount))

	e.report(outcome)

	// Artifacts never change the gate result.
	if err := e.generator.Generate(outcome, e.metadata()); err != nil {
		e.logger.Error("failed to generate reports",
			zap.Strings("formats", e.config.Reports.Formats),
			zap.String("outputDir", e.config.Reports.OutputDir),
			zap.Error(err))
	}

	return outcome, nil
}

// report emits one warning on success, or two warnings and a failure line otherwise.
func (e *Engine) report(outcome *gate.Outcome) {
	if outcome.Succeeded {
		e.reporter.Warning(fmt.Sprintf("Quality gate %s succeeded", outcome.Gate))

		return
	}

	e.reporter.Warning(countsLine(outcome))
	e.reporter.Warning(fmt.Sprintf("Quality gate %s failed", outcome.Gate))
	e.reporter.Failure(fmt.Sprintf("Quality gate %s failed: %s", outcome.Gate, outcome.Reason))
}

func countsLine(outcome *gate.Outcome) string {
	if outcome.Mode.TestBased() {
		return fmt.Sprintf("Total test cases: %d, passed test cases: %d", outcome.TotalCases, outcome.PassedCases)
	}

	return fmt.Sprintf("Defects found: %d", outcome.DefectCount)
}

func (e *Engine) metadata() report.Metadata {
	runID := e.ciConfig.BuildID
	if !e.ciConfig.IsCI() || runID == "" {
		runID = uuid.NewString()
	}

	return report.Metadata{
		RunID:      runID,
		Provider:   string(e.ciConfig.Provider),
		Repository: e.ciConfig.Repository,
		Branch:     e.ciConfig.Branch,
		Actor:      e.ciConfig.Actor,
		Project:    e.config.Azure.Project,
		Timestamp:  time.Now(),
	}
}

// applyPipelineDefaults fills connection settings the pipeline already knows.
func applyPipelineDefaults(cfg *config.Config, ciConfig *Config) {
	if cfg.Azure.Organization == "" && cfg.Azure.CollectionURL == "" {
		cfg.Azure.CollectionURL = ciConfig.CollectionURI
	}

	if cfg.Azure.Project == "" {
		cfg.Azure.Project = ciConfig.TeamProject
	}

	if cfg.Azure.Token == "" {
		cfg.Azure.Token = ciConfig.AccessToken
	}
}

// IsInputError reports whether err was caused by invalid input rather than a remote fault.
func IsInputError(err error) bool {
	return errors.Is(err, gate.ErrInvalidInput)
}
