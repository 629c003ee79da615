// Package gate evaluates Azure DevOps test and work item signals as a pass/fail quality gate.
package gate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sivchari/adogate/internal/azdo"
)

// Source is the remote test and work item data an Evaluator reads.
type Source interface {
	ListSuites(ctx context.Context, planID int) ([]azdo.Suite, error)
	ListPoints(ctx context.Context, planID, suiteID int) ([]azdo.TestPoint, error)
	QueryWorkItems(ctx context.Context, query string) ([]azdo.WorkItemReference, error)
}

// Request selects a mode and carries its already validated input.
type Request struct {
	Gate   string
	Mode   Mode
	Plans  []int
	Suites []SuiteRef
	Query  string
}

// NewRequest validates the raw input needed by mode.
// Input belonging to other modes is ignored.
func NewRequest(gateName string, mode Mode, plans, suites, query string) (Request, error) {
	req := Request{Gate: gateName, Mode: mode}

	var err error

	switch mode {
	case ModeTestPlans:
		req.Plans, err = ParsePlanIDs(plans)
	case ModeTestPlansAndSuites:
		req.Suites, err = ParseSuiteRefs(suites)
	default:
		req.Query = strings.TrimSpace(query)
		if req.Query == "" {
			err = fmt.Errorf("%w: query mode requires a work item query", ErrInvalidInput)
		}
	}

	if err != nil {
		return Request{}, err
	}

	return req, nil
}

// SuiteResult holds the counters of one suite.
type SuiteResult struct {
	PlanID  int    `json:"planId"`
	SuiteID int    `json:"suiteId"`
	Name    string `json:"name,omitempty"`
	Total   int    `json:"total"`
	Passed  int    `json:"passed"`
}

// Outcome is the evaluated result of one gate.
type Outcome struct {
	Gate      string `json:"gate"`
	Mode      Mode   `json:"mode"`
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason"`

	// Test-based modes
	TotalCases  int            `json:"totalCases"`
	PassedCases int            `json:"passedCases"`
	Suites      []SuiteResult  `json:"suites,omitempty"`
	Outcomes    map[string]int `json:"outcomes,omitempty"`
	FailedCases []string       `json:"failedCases,omitempty"`

	// Query mode
	DefectCount int   `json:"defectCount"`
	WorkItemIDs []int `json:"workItemIds,omitempty"`
}

// Evaluator evaluates quality gates against a Source.
type Evaluator struct {
	source   Source
	excluded map[string]struct{}
	logger   *zap.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithExcludedOutcomes drops points with these outcome values from both counters.
func WithExcludedOutcomes(outcomes ...string) Option {
	return func(e *Evaluator) {
		for _, o := range outcomes {
			e.excluded[strings.ToLower(o)] = struct{}{}
		}
	}
}

// WithLogger sets the logger used for progress messages.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEvaluator creates a new quality gate evaluator.
func NewEvaluator(source Source, opts ...Option) *Evaluator {
	e := &Evaluator{
		source:   source,
		excluded: make(map[string]struct{}),
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate dispatches req to the procedure its mode names.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Outcome, error) {
	var (
		outcome *Outcome
		err     error
	)

	switch req.Mode {
	case ModeTestPlans:
		outcome, err = e.EvaluateByTestPlans(ctx, req.Plans)
	case ModeTestPlansAndSuites:
		outcome, err = e.EvaluateByTestPlansAndSuites(ctx, req.Suites)
	default:
		outcome, err = e.EvaluateByQuery(ctx, req.Query)
	}

	if err != nil {
		return nil, err
	}

	outcome.Gate = req.Gate

	return outcome, nil
}

// EvaluateByTestPlans counts the points of every suite of every plan.
func (e *Evaluator) EvaluateByTestPlans(ctx context.Context, plans []int) (*Outcome, error) {
	acc := newTally(ModeTestPlans, e.excluded)

	for _, planID := range plans {
		suites, err := e.source.ListSuites(ctx, planID)
		if err != nil {
			return nil, err
		}

		e.logger.Debug("discovered suites", zap.Int("plan", planID), zap.Int("suites", len(suites)))

		for _, suite := range suites {
			points, err := e.source.ListPoints(ctx, planID, suite.ID)
			if err != nil {
				return nil, err
			}

			acc.add(SuiteRef{PlanID: planID, SuiteID: suite.ID}, suite.Name, points)
		}
	}

	return acc.outcome(), nil
}

// EvaluateByTestPlansAndSuites counts the points of the given suites without suite discovery.
func (e *Evaluator) EvaluateByTestPlansAndSuites(ctx context.Context, refs []SuiteRef) (*Outcome, error) {
	acc := newTally(ModeTestPlansAndSuites, e.excluded)

	for _, ref := range refs {
		points, err := e.source.ListPoints(ctx, ref.PlanID, ref.SuiteID)
		if err != nil {
			return nil, err
		}

		acc.add(ref, "", points)
	}

	return acc.outcome(), nil
}

// EvaluateByQuery succeeds when the query matches no work items.
func (e *Evaluator) EvaluateByQuery(ctx context.Context, query string) (*Outcome, error) {
	items, err := e.source.QueryWorkItems(ctx, query)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Mode:        ModeQuery,
		DefectCount: len(items),
		Succeeded:   len(items) == 0,
	}

	for _, item := range items {
		outcome.WorkItemIDs = append(outcome.WorkItemIDs, item.ID)
	}

	if outcome.Succeeded {
		outcome.Reason = "No work items match the query"
	} else {
		outcome.Reason = fmt.Sprintf("%d work item(s) match the query", outcome.DefectCount)
	}

	return outcome, nil
}

// tally accumulates point counters for one evaluation.
type tally struct {
	mode     Mode
	excluded map[string]struct{}
	total    int
	passed   int
	suites   []SuiteResult
	outcomes map[string]int
	failed   []string
}

func newTally(mode Mode, excluded map[string]struct{}) *tally {
	return &tally{
		mode:     mode,
		excluded: excluded,
		outcomes: make(map[string]int),
	}
}

func (t *tally) add(ref SuiteRef, name string, points []azdo.TestPoint) {
	result := SuiteResult{PlanID: ref.PlanID, SuiteID: ref.SuiteID, Name: name}

	for _, point := range points {
		value := point.Outcome
		if value == "" {
			value = "Unspecified"
		}

		if _, skip := t.excluded[strings.ToLower(value)]; skip {
			continue
		}

		t.outcomes[value]++
		result.Total++

		if point.Outcome == azdo.OutcomePassed {
			result.Passed++
		} else {
			t.failed = append(t.failed, point.TestCase.Name)
		}
	}

	t.total += result.Total
	t.passed += result.Passed
	t.suites = append(t.suites, result)
}

func (t *tally) outcome() *Outcome {
	sort.Strings(t.failed)

	o := &Outcome{
		Mode:        t.mode,
		TotalCases:  t.total,
		PassedCases: t.passed,
		Succeeded:   t.total == t.passed,
		Suites:      t.suites,
		FailedCases: t.failed,
	}

	if len(t.outcomes) > 0 {
		o.Outcomes = t.outcomes
	}

	if o.Succeeded {
		o.Reason = fmt.Sprintf("All %d test case(s) passed", t.total)
	} else {
		o.Reason = fmt.Sprintf("%d of %d test case(s) did not pass", t.total-t.passed, t.total)
	}

	return o
}
