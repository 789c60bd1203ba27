package generator

import (
	"fmt"
	"time"

	"github.com/kirinyoku/tripslot/internal/domain"
)

// Matches reports whether rule produces a slot on date.
func Matches(rule domain.AvailabilityRule, date time.Time) bool {
	if rule.Type == domain.RuleOneTime {
		return domain.FormatDate(date) == rule.Date
	}

	listed := func() bool {
		wd := domain.ISOWeekday(date)
		for _, d := range rule.Weekdays {
			if d == wd {
				return true
			}
		}
		return false
	}

	switch rule.Frequency {
	case domain.FrequencyDaily:
		return len(rule.Weekdays) == 0 || listed()
	case domain.FrequencyWeekly:
		return listed()
	case domain.FrequencyMonthly:
		// First occurrence of each listed weekday in the month.
		return date.Day() <= 7 && listed()
	}
	return false
}

// Expand returns the slots rule produces for every date in [from, to].
// Slots carry no id or timestamps yet. Deadlines are fixed here from the
// rule's current definition and never recomputed.
func Expand(rule domain.AvailabilityRule, from, to string, loc *time.Location) ([]domain.Slot, error) {
	const op = "generator.Expand"

	if err := domain.ValidateRule(rule); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	start, err := domain.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	end, err := domain.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	endTime, err := rule.EndTime()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	deadlineOffset := time.Duration(rule.BookingDeadlineHours) * time.Hour

	var out []domain.Slot
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !Matches(rule, d) {
			continue
		}

		date := domain.FormatDate(d)
		startsAt, err := domain.SlotStart(date, rule.StartTime, loc)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		out = append(out, domain.Slot{
			ListingID:       rule.ListingID,
			VendorID:        rule.VendorID,
			RuleID:          rule.ID,
			Date:            date,
			StartTime:       rule.StartTime,
			EndTime:         endTime,
			Capacity:        rule.Capacity,
			Status:          domain.SlotActive,
			BookingDeadline: startsAt.Add(-deadlineOffset),
		})
	}

	return out, nil
}
