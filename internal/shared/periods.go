package shared

import (
	"fmt"
	"time"
)

// PeriodCode returns the two digit year used in document numbers.
func PeriodCode(t time.Time) string {
	return t.Format("06")
}

// Transitions lists the statuses reachable from each status.
type Transitions map[string][]string

// Validate checks that moving from current to target is permitted.
func (t Transitions) Validate(current, target string) error {
	for _, next := range t[current] {
		if next == target {
			return nil
		}
	}
	return fmt.Errorf("status transition %s -> %s not allowed: %w", current, target, ErrValidation)
}
