package availability

import (
	"sort"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

// GenerateSlots cuts the allowed intervals of day into back-to-back slots of
// durationMinutes, starting at each interval start. A slot is emitted only when it
// fits entirely inside its interval and does not overlap an occupying booking on the
// same date. Remainders shorter than the duration are dropped.
func GenerateSlots(day models.DateAvailability, durationMinutes int, bookings []models.Booking) ([]models.TimeSlot, error) {
	if durationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot duration must be positive")
	}

	busy, err := busyRanges(day.Date, bookings)
	if err != nil {
		return nil, err
	}

	var candidates []Range
	seen := make(map[Range]struct{})
	for _, allowed := range day.Slots {
		interval, err := ParseRange(allowed.Start, allowed.End)
		if err != nil {
			return nil, err
		}
		for t := interval.Start; t+durationMinutes <= interval.End; t += durationMinutes {
			slot := Range{Start: t, End: t + durationMinutes}
			if overlapsAny(slot, busy) {
				continue
			}
			if _, dup := seen[slot]; dup {
				continue
			}
			seen[slot] = struct{}{}
			candidates = append(candidates, slot)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Start != candidates[j].Start {
			return candidates[i].Start < candidates[j].Start
		}
		return candidates[i].End < candidates[j].End
	})

	slots := make([]models.TimeSlot, 0, len(candidates))
	for _, r := range candidates {
		slots = append(slots, r.Slot())
	}
	return slots, nil
}

// DropStartedSlots returns the slots starting after nowMinutes in a new slice. It is
// used for the current day so students are not offered a lesson that already began.
func DropStartedSlots(slots []models.TimeSlot, nowMinutes int) []models.TimeSlot {
	kept := make([]models.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		start, err := ToMinutes(slot.Start)
		if err != nil || start <= nowMinutes {
			continue
		}
		kept = append(kept, slot)
	}
	return kept
}

func busyRanges(date string, bookings []models.Booking) ([]Range, error) {
	var busy []Range
	for _, b := range bookings {
		if b.BookingDate != date || !b.Status.Occupies() {
			continue
		}
		r, err := ParseRange(b.StartTime, b.EndTime)
		if err != nil {
			return nil, err
		}
		busy = append(busy, r)
	}
	return busy, nil
}

func overlapsAny(slot Range, busy []Range) bool {
	for _, b := range busy {
		if Overlaps(slot, b) {
			return true
		}
	}
	return false
}
