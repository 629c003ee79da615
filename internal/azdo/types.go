package azdo

// OutcomePassed is the outcome value of a passing test point.
const OutcomePassed = "Passed"

// ShallowReference is the id/name/url triple Azure DevOps embeds in most resources.
type ShallowReference struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Suite is a test suite within a test plan.
type Suite struct {
	ID            int               `json:"id"`
	Name          string            `json:"name"`
	Plan          *ShallowReference `json:"plan,omitempty"`
	SuiteType     string            `json:"suiteType,omitempty"`
	TestCaseCount int               `json:"testCaseCount"`
}

// TestPoint is one test case's latest execution state within a suite.
type TestPoint struct {
	ID       int              `json:"id"`
	Outcome  string           `json:"outcome"`
	State    string           `json:"state,omitempty"`
	TestCase ShallowReference `json:"testCase"`
}

// WorkItemReference identifies a work item returned by a WIQL query.
type WorkItemReference struct {
	ID  int    `json:"id"`
	URL string `json:"url,omitempty"`
}

// WiqlRequest is the body of a work item query.
type WiqlRequest struct {
	Query string `json:"query"`
}

// WiqlResponse is the result of a flat work item query.
type WiqlResponse struct {
	QueryType       string              `json:"queryType"`
	QueryResultType string              `json:"queryResultType"`
	WorkItems       []WorkItemReference `json:"workItems"`
}

// QueryResultWorkItem is the result type of a flat query.
const QueryResultWorkItem = "workItem"

// wiqlResult decodes a WiqlResponse keeping an absent workItems key distinguishable from an empty one.
type wiqlResult struct {
	QueryType       string               `json:"queryType"`
	QueryResultType string               `json:"queryResultType"`
	WorkItems       *[]WorkItemReference `json:"workItems"`
}

// listResponse is the envelope of every collection endpoint.
type listResponse[T any] struct {
	Count int  `json:"count"`
	Value *[]T `json:"value"`
}
