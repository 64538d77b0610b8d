package winback

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// MaxDayOffset bounds a step to roughly ten years of dormancy.
	MaxDayOffset       = 3650
	maxDiscountPercent = 100
)

// ValidationError reports every reason a step list was rejected.
type ValidationError struct {
	Problems []string
	err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("winback: invalid settings: %v", e.err)
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

// ValidateSteps checks a step list against the configuration contract and
// returns a sorted copy. The input slice is never modified, so a rejected list
// leaves nothing half-applied.
func ValidateSteps(steps []StepConfig) ([]StepConfig, error) {
	var errs []error

	if len(steps) == 0 {
		errs = append(errs, errors.New("at least one step is required"))
	}

	seen := make(map[int]int, len(steps))
	for i, step := range steps {
		if step.DayOffset < 1 || step.DayOffset > MaxDayOffset {
			errs = append(errs, fmt.Errorf("steps[%d].day_offset must be between 1 and %d", i, MaxDayOffset))
		}
		if !step.Channel.Valid() {
			errs = append(errs, fmt.Errorf("steps[%d].channel %q must be one of SMS, EMAIL, BOTH", i, step.Channel))
		}
		if strings.TrimSpace(step.Template) == "" {
			errs = append(errs, fmt.Errorf("steps[%d].template is required", i))
		}
		if step.DiscountPercent < 0 || step.DiscountPercent > maxDiscountPercent {
			errs = append(errs, fmt.Errorf("steps[%d].discount_percent must be between 0 and %d", i, maxDiscountPercent))
		}
		if prev, dup := seen[step.DayOffset]; dup {
			errs = append(errs, fmt.Errorf("steps[%d].day_offset %d duplicates steps[%d]", i, step.DayOffset, prev))
		} else {
			seen[step.DayOffset] = i
		}
	}

	if len(errs) > 0 {
		problems := make([]string, len(errs))
		for i, err := range errs {
			problems[i] = err.Error()
		}
		return nil, &ValidationError{Problems: problems, err: errors.Join(errs...)}
	}

	sorted := make([]StepConfig, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].DayOffset < sorted[j].DayOffset
	})
	return sorted, nil
}

// Validate checks s and returns a normalized copy ready to persist.
func (s *Settings) Validate() (*Settings, error) {
	if strings.TrimSpace(s.TenantID) == "" {
		return nil, &ValidationError{
			Problems: []string{"tenant_id is required"},
			err:      errors.New("tenant_id is required"),
		}
	}
	steps, err := ValidateSteps(s.Steps)
	if err != nil {
		return nil, err
	}
	out := *s
	out.TenantID = strings.TrimSpace(s.TenantID)
	out.TenantName = strings.TrimSpace(s.TenantName)
	out.BookingLink = strings.TrimSpace(s.BookingLink)
	out.SMSFrom = strings.TrimSpace(s.SMSFrom)
	out.Steps = steps
	return &out, nil
}
