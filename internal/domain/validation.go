package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports bad input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidateRule checks a rule definition before it is stored. Slots that
// would end past midnight are rejected here rather than normalized later.
func ValidateRule(r AvailabilityRule) error {
	if strings.TrimSpace(r.ListingID) == "" {
		return invalid("listing_id", "required")
	}
	if strings.TrimSpace(r.VendorID) == "" {
		return invalid("vendor_id", "required")
	}
	if r.Capacity < 1 {
		return invalid("capacity", "must be at least 1, got %d", r.Capacity)
	}
	if r.BookingDeadlineHours < 0 {
		return invalid("booking_deadline_hours", "must not be negative")
	}
	if r.GenerateDaysInAdvance < 1 && r.GenerateDaysInAdvance != HorizonIndefinite {
		return invalid("generate_days_in_advance", "must be positive or indefinite")
	}

	start, err := ParseClock(r.StartTime)
	if err != nil {
		return invalid("start_time", "%v", err)
	}
	if r.DurationMinutes < 1 {
		return invalid("duration_minutes", "must be positive")
	}
	if start+r.DurationMinutes > minutesPerDay {
		return invalid("duration_minutes", "slot starting %s would end past midnight", r.StartTime)
	}

	switch r.Type {
	case RuleRecurring:
		switch r.Frequency {
		case FrequencyDaily:
		case FrequencyWeekly, FrequencyMonthly:
			if len(r.Weekdays) == 0 {
				return invalid("weekdays", "at least one weekday required for %s rules", r.Frequency)
			}
		default:
			return invalid("frequency", "unknown frequency %q", r.Frequency)
		}
		for _, d := range r.Weekdays {
			if d < 1 || d > 7 {
				return invalid("weekdays", "weekday %d out of range 1..7", d)
			}
		}
	case RuleOneTime:
		if _, err := ParseDate(r.Date); err != nil {
			return invalid("date", "%v", err)
		}
	default:
		return invalid("rule_type", "unknown rule type %q", r.Type)
	}

	return nil
}

// EndTime returns the HH:MM end of a slot generated by r.
func (r AvailabilityRule) EndTime() (string, error) {
	start, err := ParseClock(r.StartTime)
	if err != nil {
		return "", err
	}
	end := start + r.DurationMinutes
	if end > minutesPerDay {
		return "", invalid("duration_minutes", "slot would end past midnight")
	}
	if end == minutesPerDay {
		return "24:00", nil
	}
	return FormatClock(end), nil
}
