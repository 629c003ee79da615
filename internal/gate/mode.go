package gate

import (
	"fmt"
	"strings"
)

// Mode selects one of the evaluation procedures.
type Mode int

const (
	// ModeQuery counts the work items matched by a WIQL query.
	ModeQuery Mode = iota
	// ModeTestPlans walks every suite of the given plans.
	ModeTestPlans
	// ModeTestPlansAndSuites reads the given suites directly.
	ModeTestPlansAndSuites
)

var modeNames = map[string]Mode{
	"query":                        ModeQuery,
	"evaluatebyquery":              ModeQuery,
	"plans":                        ModeTestPlans,
	"testplans":                    ModeTestPlans,
	"evaluatebytestplans":          ModeTestPlans,
	"suites":                       ModeTestPlansAndSuites,
	"testplansandsuites":           ModeTestPlansAndSuites,
	"evaluatebytestplansandsuites": ModeTestPlansAndSuites,
}

// ParseMode resolves a mode name case-insensitively.
// Unrecognized names resolve to ModeQuery with ok set to false.
func ParseMode(name string) (mode Mode, ok bool) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(name))

	mode, ok = modeNames[key]
	if !ok {
		return ModeQuery, false
	}

	return mode, true
}

func (m Mode) String() string {
	switch m {
	case ModeQuery:
		return "query"
	case ModeTestPlans:
		return "plans"
	case ModeTestPlansAndSuites:
		return "suites"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// TestBased reports whether the mode counts test points.
func (m Mode) TestBased() bool {
	return m == ModeTestPlans || m == ModeTestPlansAndSuites
}
