package gate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sivchari/adogate/internal/azdo"
)

// fakeSource serves canned suites, points and work items and records every call.
type fakeSource struct {
	suites    map[int][]azdo.Suite
	points    map[SuiteRef][]azdo.TestPoint
	workItems []azdo.WorkItemReference
	failOn    string

	calls []string
}

func (f *fakeSource) ListSuites(_ context.Context, planID int) ([]azdo.Suite, error) {
	call := fmt.Sprintf("suites %d", planID)
	f.calls = append(f.calls, call)

	if f.failOn == call {
		return nil, errors.New("boom")
	}

	return f.suites[planID], nil
}

func (f *fakeSource) ListPoints(_ context.Context, planID, suiteID int) ([]azdo.TestPoint, error) {
	call := fmt.Sprintf("points %d:%d", planID, suiteID)
	f.calls = append(f.calls, call)

	if f.failOn == call {
		return nil, &azdo.APIError{StatusCode: 401}
	}

	return f.points[SuiteRef{PlanID: planID, SuiteID: suiteID}], nil
}

func (f *fakeSource) QueryWorkItems(_ context.Context, query string) ([]azdo.WorkItemReference, error) {
	f.calls = append(f.calls, "wiql "+query)

	if f.failOn == "wiql" {
		return nil, errors.New("boom")
	}

	return f.workItems, nil
}

func points(outcomes ...string) []azdo.TestPoint {
	pts := make([]azdo.TestPoint, 0, len(outcomes))
	for i, o := range outcomes {
		pts = append(pts, azdo.TestPoint{
			ID:       i + 1,
			Outcome:  o,
			TestCase: azdo.ShallowReference{ID: fmt.Sprint(100 + i), Name: fmt.Sprintf("case-%d-%s", i+1, o)},
		})
	}

	return pts
}

func TestEvaluator_EvaluateByTestPlans(t *testing.T) {
	tests := []struct {
		name        string
		plans       []int
		suites      map[int][]azdo.Suite
		points      map[SuiteRef][]azdo.TestPoint
		wantTotal   int
		wantPassed  int
		wantSucceed bool
	}{
		{
			name:        "empty plan list passes vacuously",
			plans:       nil,
			wantSucceed: true,
		},
		{
			name:        "all passed",
			plans:       []int{1},
			suites:      map[int][]azdo.Suite{1: {{ID: 10}}},
			points:      map[SuiteRef][]azdo.TestPoint{{PlanID: 1, SuiteID: 10}: points("Passed", "Passed")},
			wantTotal:   2,
			wantPassed:  2,
			wantSucceed: true,
		},
		{
			name:        "one failed",
			plans:       []int{1},
			suites:      map[int][]azdo.Suite{1: {{ID: 10}}},
			points:      map[SuiteRef][]azdo.TestPoint{{PlanID: 1, SuiteID: 10}: points("Passed", "Failed")},
			wantTotal:   2,
			wantPassed:  1,
			wantSucceed: false,
		},
		{
			name:  "sums across plans and suites, empty ones contribute zero",
			plans: []int{1, 2, 3},
			suites: map[int][]azdo.Suite{
				1: {{ID: 10}, {ID: 11}},
				2: {{ID: 20}},
			},
			points: map[SuiteRef][]azdo.TestPoint{
				{PlanID: 1, SuiteID: 10}: points("Passed", "Passed"),
				{PlanID: 1, SuiteID: 11}: points("Passed"),
			},
			wantTotal:   3,
			wantPassed:  3,
			wantSucceed: true,
		},
		{
			name:        "non-terminal outcomes count against the gate",
			plans:       []int{1},
			suites:      map[int][]azdo.Suite{1: {{ID: 10}}},
			points:      map[SuiteRef][]azdo.TestPoint{{PlanID: 1, SuiteID: 10}: points("Passed", "Active", "", "Blocked")},
			wantTotal:   4,
			wantPassed:  1,
			wantSucceed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{suites: tt.suites, points: tt.points}

			outcome, err := NewEvaluator(src).EvaluateByTestPlans(t.Context(), tt.plans)
			require.NoError(t, err)

			assert.Equal(t, ModeTestPlans, outcome.Mode)
			assert.Equal(t, tt.wantTotal, outcome.TotalCases)
			assert.Equal(t, tt.wantPassed, outcome.PassedCases)
			assert.Equal(t, tt.wantSucceed, outcome.Succeeded)
			assert.LessOrEqual(t, outcome.PassedCases, outcome.TotalCases)
		})
	}
}

func TestEvaluator_EvaluateByTestPlans_OrderIndependent(t *testing.T) {
	src := &fakeSource{
		suites: map[int][]azdo.Suite{1: {{ID: 10}}, 2: {{ID: 20}}},
		points: map[SuiteRef][]azdo.TestPoint{
			{PlanID: 1, SuiteID: 10}: points("Passed", "Failed"),
			{PlanID: 2, SuiteID: 20}: points("Passed", "Passed", "NotApplicable"),
		},
	}

	forward, err := NewEvaluator(src).EvaluateByTestPlans(t.Context(), []int{1, 2})
	require.NoError(t, err)

	backward, err := NewEvaluator(src).EvaluateByTestPlans(t.Context(), []int{2, 1})
	require.NoError(t, err)

	assert.Equal(t, forward.TotalCases, backward.TotalCases)
	assert.Equal(t, forward.PassedCases, backward.PassedCases)
	assert.Equal(t, forward.Succeeded, backward.Succeeded)

	if diff := cmp.Diff(forward.Outcomes, backward.Outcomes); diff != "" {
		t.Errorf("outcome breakdown mismatch (-forward +backward):\n%s", diff)
	}
}

func TestEvaluator_EvaluateByTestPlansAndSuites(t *testing.T) {
	refs, err := ParseSuiteRefs("10:20,11:21")
	require.NoError(t, err)

	src := &fakeSource{
		points: map[SuiteRef][]azdo.TestPoint{
			{PlanID: 10, SuiteID: 20}: points("Passed"),
			{PlanID: 11, SuiteID: 21}: points("Passed", "Failed"),
		},
	}

	outcome, err := NewEvaluator(src).EvaluateByTestPlansAndSuites(t.Context(), refs)
	require.NoError(t, err)

	assert.Equal(t, []string{"points 10:20", "points 11:21"}, src.calls, "one point fetch per pair and no suite discovery")
	assert.Equal(t, 3, outcome.TotalCases)
	assert.Equal(t, 2, outcome.PassedCases)
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, []string{"case-2-Failed"}, outcome.FailedCases)

	want := []SuiteResult{
		{PlanID: 10, SuiteID: 20, Total: 1, Passed: 1},
		{PlanID: 11, SuiteID: 21, Total: 2, Passed: 1},
	}
	if diff := cmp.Diff(want, outcome.Suites); diff != "" {
		t.Errorf("suite results mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluator_ExcludedOutcomes(t *testing.T) {
	src := &fakeSource{
		points: map[SuiteRef][]azdo.TestPoint{
			{PlanID: 1, SuiteID: 2}: points("Passed", "NotApplicable", "Passed"),
		},
	}

	strict, err := NewEvaluator(src).EvaluateByTestPlansAndSuites(t.Context(), []SuiteRef{{PlanID: 1, SuiteID: 2}})
	require.NoError(t, err)
	assert.False(t, strict.Succeeded)
	assert.Equal(t, 3, strict.TotalCases)

	lenient, err := NewEvaluator(src, WithExcludedOutcomes("notapplicable")).
		EvaluateByTestPlansAndSuites(t.Context(), []SuiteRef{{PlanID: 1, SuiteID: 2}})
	require.NoError(t, err)
	assert.True(t, lenient.Succeeded)
	assert.Equal(t, 2, lenient.TotalCases)
	assert.Equal(t, 2, lenient.PassedCases)
	assert.Equal(t, map[string]int{"Passed": 2}, lenient.Outcomes)
}

func TestEvaluator_EvaluateByQuery(t *testing.T) {
	tests := []struct {
		name        string
		workItems   []azdo.WorkItemReference
		wantDefects int
		wantSucceed bool
	}{
		{
			name:        "no work items",
			workItems:   []azdo.WorkItemReference{},
			wantDefects: 0,
			wantSucceed: true,
		},
		{
			name:        "three defects",
			workItems:   []azdo.WorkItemReference{{ID: 1}, {ID: 2}, {ID: 3}},
			wantDefects: 3,
			wantSucceed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{workItems: tt.workItems}

			outcome, err := NewEvaluator(src).EvaluateByQuery(t.Context(), "SELECT [System.Id] FROM WorkItems")
			require.NoError(t, err)

			assert.Equal(t, ModeQuery, outcome.Mode)
			assert.Equal(t, tt.wantDefects, outcome.DefectCount)
			assert.Equal(t, tt.wantSucceed, outcome.Succeeded)
			assert.Len(t, outcome.WorkItemIDs, tt.wantDefects)
		})
	}
}

func TestEvaluator_FaultsAbortEvaluation(t *testing.T) {
	tests := []struct {
		name   string
		failOn string
		run    func(*Evaluator) (*Outcome, error)
	}{
		{
			name:   "suite discovery fails",
			failOn: "suites 2",
			run: func(e *Evaluator) (*Outcome, error) {
				return e.EvaluateByTestPlans(t.Context(), []int{1, 2})
			},
		},
		{
			name:   "point fetch unauthorized",
			failOn: "points 11:21",
			run: func(e *Evaluator) (*Outcome, error) {
				return e.EvaluateByTestPlansAndSuites(t.Context(), []SuiteRef{{PlanID: 10, SuiteID: 20}, {PlanID: 11, SuiteID: 21}})
			},
		},
		{
			name:   "query fails",
			failOn: "wiql",
			run: func(e *Evaluator) (*Outcome, error) {
				return e.EvaluateByQuery(t.Context(), "SELECT")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{
				suites: map[int][]azdo.Suite{1: {{ID: 10}}},
				points: map[SuiteRef][]azdo.TestPoint{{PlanID: 1, SuiteID: 10}: points("Passed")},
				failOn: tt.failOn,
			}

			outcome, err := tt.run(NewEvaluator(src))
			require.Error(t, err)
			assert.Nil(t, outcome, "no partial outcome on fault")
		})
	}
}

func TestEvaluator_Evaluate_Dispatch(t *testing.T) {
	tests := []struct {
		name      string
		modeName  string
		wantMode  Mode
		wantCalls []string
	}{
		{
			name:      "plans",
			modeName:  "plans",
			wantMode:  ModeTestPlans,
			wantCalls: []string{"suites 1", "points 1:10"},
		},
		{
			name:      "suites",
			modeName:  "TestPlansAndSuites",
			wantMode:  ModeTestPlansAndSuites,
			wantCalls: []string{"points 1:10"},
		},
		{
			name:      "query",
			modeName:  "query",
			wantMode:  ModeQuery,
			wantCalls: []string{"wiql SELECT 1"},
		},
		{
			name:      "unrecognized name falls back to query",
			modeName:  "bogus",
			wantMode:  ModeQuery,
			wantCalls: []string{"wiql SELECT 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{
				suites: map[int][]azdo.Suite{1: {{ID: 10}}},
				points: map[SuiteRef][]azdo.TestPoint{{PlanID: 1, SuiteID: 10}: points("Passed")},
			}

			mode, _ := ParseMode(tt.modeName)
			req, err := NewRequest("Release", mode, "1", "1:10", "SELECT 1")
			require.NoError(t, err)

			outcome, err := NewEvaluator(src).Evaluate(t.Context(), req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMode, outcome.Mode)
			assert.Equal(t, "Release", outcome.Gate)
			assert.Equal(t, tt.wantCalls, src.calls)
			assert.True(t, outcome.Succeeded)
		})
	}
}

func TestNewRequest_Validation(t *testing.T) {
	_, err := NewRequest("g", ModeQuery, "", "", "   ")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewRequest("g", ModeTestPlansAndSuites, "", "10", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	// Input of other modes is not validated.
	req, err := NewRequest("g", ModeTestPlans, "1,2", "garbage", "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, req.Plans)
}
