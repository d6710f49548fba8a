package availability

import (
	"time"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

// Proposal is a candidate booking window on a single date.
type Proposal struct {
	Date      string
	StartTime string
	EndTime   string
}

// AllowedRanges returns the effective intervals for date after override precedence.
// unavailable is true only when an override blocks the whole day. Empty or inverted
// intervals, from an override or a weekly rule, yield no range.
func AllowedRanges(weekly []models.WeeklyRule, overrides []models.OverrideRule, date time.Time) (ranges []Range, unavailable bool, err error) {
	date = Day(date)
	override, err := singleOverride(overrides, FormatDate(date))
	if err != nil {
		return nil, false, err
	}

	if override != nil {
		if override.IsUnavailable {
			return nil, true, nil
		}
		if !override.HasTimes() {
			return nil, false, nil
		}
		r, err := ParseRange(*override.StartTime, *override.EndTime)
		if err != nil {
			return nil, false, err
		}
		if r.Valid() {
			ranges = append(ranges, r)
		}
		return ranges, false, nil
	}

	weekday := int(date.Weekday())
	for _, rule := range weekly {
		if rule.DayOfWeek != weekday {
			continue
		}
		r, err := ParseRange(rule.StartTime, rule.EndTime)
		if err != nil {
			return nil, false, err
		}
		if r.Valid() {
			ranges = append(ranges, r)
		}
	}
	return ranges, false, nil
}

// ValidateBooking checks that p lies fully inside one allowed range of its date.
// Ranges are not merged, so a proposal spanning two adjacent rules is rejected.
// It does not look at existing bookings; the booking store enforces conflicts.
func ValidateBooking(weekly []models.WeeklyRule, overrides []models.OverrideRule, p Proposal) error {
	date, err := ParseDate(p.Date)
	if err != nil {
		return err
	}
	proposed, err := ParseRange(p.StartTime, p.EndTime)
	if err != nil {
		return err
	}
	if !proposed.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidRange, "booking start time must be before end time")
	}

	ranges, unavailable, err := AllowedRanges(weekly, overrides, date)
	if err != nil {
		return err
	}
	if unavailable {
		return appErrors.Clone(appErrors.ErrDayUnavailable, "teacher is unavailable on "+p.Date)
	}
	if len(ranges) == 0 {
		return appErrors.Clone(appErrors.ErrNoAvailability, "teacher has no availability on "+p.Date)
	}
	for _, r := range ranges {
		if r.Contains(proposed) {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrOutsideHours, "requested time is outside the teacher's hours on "+p.Date)
}
