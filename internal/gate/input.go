package gate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidInput is wrapped by every boundary validation error.
var ErrInvalidInput = errors.New("invalid input")

// SuiteRef names a suite within a test plan.
type SuiteRef struct {
	PlanID  int `json:"planId"`
	SuiteID int `json:"suiteId"`
}

func (r SuiteRef) String() string {
	return fmt.Sprintf("%d:%d", r.PlanID, r.SuiteID)
}

// ParsePlanIDs parses a comma-separated list of test plan ids.
// A blank list yields no plans.
func ParsePlanIDs(list string) ([]int, error) {
	entries := splitList(list)
	ids := make([]int, 0, len(entries))

	for i, entry := range entries {
		id, err := parseID(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: plan entry %d %q: %w", ErrInvalidInput, i+1, entry, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// ParseSuiteRefs parses a comma-separated list of planId:suiteId pairs.
// A blank list yields no suites.
func ParseSuiteRefs(list string) ([]SuiteRef, error) {
	entries := splitList(list)
	refs := make([]SuiteRef, 0, len(entries))

	for i, entry := range entries {
		fields := strings.Split(entry, ":")
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: suite entry %d %q: want planId:suiteId", ErrInvalidInput, i+1, entry)
		}

		planID, err := parseID(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: suite entry %d %q: plan id: %w", ErrInvalidInput, i+1, entry, err)
		}

		suiteID, err := parseID(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w: suite entry %d %q: suite id: %w", ErrInvalidInput, i+1, entry, err)
		}

		refs = append(refs, SuiteRef{PlanID: planID, SuiteID: suiteID})
	}

	return refs, nil
}

func splitList(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}

	entries := strings.Split(list, ",")
	for i := range entries {
		entries[i] = strings.TrimSpace(entries[i])
	}

	return entries
}

func parseID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty id")
	}

	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("not a number")
	}

	if id <= 0 {
		return 0, errors.New("id must be positive")
	}

	return id, nil
}
