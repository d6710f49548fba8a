package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

// Resolve expands weekly rules and date overrides into one DateAvailability per
// calendar day in [start, end], ascending. An override for a date always wins over
// the weekly rules of that weekday.
func Resolve(weekly []models.WeeklyRule, overrides []models.OverrideRule, start, end time.Time) ([]models.DateAvailability, error) {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "end date must not be before start date")
	}

	byDate, err := indexOverrides(overrides)
	if err != nil {
		return nil, err
	}
	byWeekday := groupWeekly(weekly)

	days := make([]models.DateAvailability, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day, err := resolveDay(byWeekday[int(d.Weekday())], byDate[FormatDate(d)], d)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

// ResolveDay applies override precedence for a single date. overrides must be the
// overrides stored for that date; more than one is an integrity violation.
func ResolveDay(weekly []models.WeeklyRule, overrides []models.OverrideRule, date time.Time) (models.DateAvailability, error) {
	date = Day(date)
	override, err := singleOverride(overrides, FormatDate(date))
	if err != nil {
		return models.DateAvailability{}, err
	}
	return resolveDay(groupWeekly(weekly)[int(date.Weekday())], override, date)
}

func resolveDay(rules []models.WeeklyRule, override *models.OverrideRule, date time.Time) (models.DateAvailability, error) {
	day := models.DateAvailability{
		Date:      FormatDate(date),
		DayOfWeek: int(date.Weekday()),
		Slots:     []models.TimeSlot{},
	}

	if override != nil {
		switch {
		case override.IsUnavailable:
			day.IsUnavailable = true
		case override.HasTimes():
			if err := appendValid(&day.Slots, *override.StartTime, *override.EndTime); err != nil {
				return models.DateAvailability{}, err
			}
		}
		return day, nil
	}

	for _, rule := range rules {
		if err := appendValid(&day.Slots, rule.StartTime, rule.EndTime); err != nil {
			return models.DateAvailability{}, err
		}
	}
	if err := sortSlots(day.Slots); err != nil {
		return models.DateAvailability{}, err
	}
	return day, nil
}

// appendValid adds start-end to slots unless it is empty or inverted. Such rows are
// rejected on write, so they only appear through data loaded from elsewhere.
func appendValid(slots *[]models.TimeSlot, start, end string) error {
	r, err := ParseRange(start, end)
	if err != nil {
		return err
	}
	if r.Valid() {
		*slots = append(*slots, models.TimeSlot{Start: start, End: end})
	}
	return nil
}

func groupWeekly(weekly []models.WeeklyRule) map[int][]models.WeeklyRule {
	grouped := make(map[int][]models.WeeklyRule, 7)
	for _, rule := range weekly {
		grouped[rule.DayOfWeek] = append(grouped[rule.DayOfWeek], rule)
	}
	return grouped
}

func indexOverrides(overrides []models.OverrideRule) (map[string]*models.OverrideRule, error) {
	byDate := make(map[string]*models.OverrideRule, len(overrides))
	for i := range overrides {
		date := overrides[i].Date
		if _, exists := byDate[date]; exists {
			return nil, duplicateOverride(overrides[i].TeacherID, date)
		}
		byDate[date] = &overrides[i]
	}
	return byDate, nil
}

func singleOverride(overrides []models.OverrideRule, date string) (*models.OverrideRule, error) {
	var found *models.OverrideRule
	for i := range overrides {
		if overrides[i].Date != date {
			continue
		}
		if found != nil {
			return nil, duplicateOverride(overrides[i].TeacherID, date)
		}
		found = &overrides[i]
	}
	return found, nil
}

func duplicateOverride(teacherID, date string) error {
	return appErrors.Clone(appErrors.ErrIntegrity, fmt.Sprintf("multiple overrides for teacher %s on %s", teacherID, date))
}

// sortSlots orders slots by start then end; ties keep their input order.
func sortSlots(slots []models.TimeSlot) error {
	ranges := make([]Range, len(slots))
	for i, slot := range slots {
		r, err := ParseRange(slot.Start, slot.End)
		if err != nil {
			return err
		}
		ranges[i] = r
	}
	idx := make([]int, len(slots))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := ranges[idx[a]], ranges[idx[b]]
		if ra.Start != rb.Start {
			return ra.Start < rb.Start
		}
		return ra.End < rb.End
	})
	sorted := make([]models.TimeSlot, len(slots))
	for i, j := range idx {
		sorted[i] = slots[j]
	}
	copy(slots, sorted)
	return nil
}
