// Package availability resolves teacher availability into bookable intervals.
//
// Times of day are handled as minute offsets from midnight and dates as civil
// dates in UTC, so the package never depends on the server's local zone.
package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

const minutesPerDay = 24 * 60

// Range is an interval of minutes since midnight. End is exclusive for overlap checks.
type Range struct {
	Start int
	End   int
}

// ToMinutes converts "HH:MM" or "HH:MM:SS" to minutes since midnight. Each part is
// one or two unsigned digits; seconds must be 0-59 and are otherwise ignored.
// "24:00" is accepted as the end of the day.
func ToMinutes(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, invalidTime(value)
	}
	fields := make([]int, len(parts))
	for i, part := range parts {
		n, ok := clockField(part)
		if !ok {
			return 0, invalidTime(value)
		}
		fields[i] = n
	}
	hours, minutes, seconds := fields[0], fields[1], 0
	if len(fields) == 3 {
		seconds = fields[2]
	}
	if minutes > 59 || seconds > 59 || hours > 24 || (hours == 24 && (minutes != 0 || seconds != 0)) {
		return 0, invalidTime(value)
	}
	return hours*60 + minutes, nil
}

func clockField(part string) (int, bool) {
	if len(part) == 0 || len(part) > 2 {
		return 0, false
	}
	n := 0
	for _, r := range part {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// FormatMinutes renders minutes since midnight as HH:MM.
func FormatMinutes(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseRange parses a start/end pair without checking ordering.
func ParseRange(start, end string) (Range, error) {
	s, err := ToMinutes(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ToMinutes(end)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: s, End: e}, nil
}

// Valid reports whether the range is non-empty and within one day.
func (r Range) Valid() bool {
	return r.Start >= 0 && r.End <= minutesPerDay && r.Start < r.End
}

// Contains reports whether other lies fully inside r, boundaries inclusive.
func (r Range) Contains(other Range) bool {
	return other.Start >= r.Start && other.End <= r.End
}

// Overlaps reports whether a and b share any time. Touching endpoints do not overlap.
func Overlaps(a, b Range) bool {
	return a.Start < b.End && b.Start < a.End
}

// Slot renders the range as a TimeSlot.
func (r Range) Slot() models.TimeSlot {
	return models.TimeSlot{Start: FormatMinutes(r.Start), End: FormatMinutes(r.End)}
}

// ParseDate parses a YYYY-MM-DD date at midnight UTC.
func ParseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value))
	}
	return d, nil
}

// Day truncates t to its civil date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func invalidTime(value string) error {
	return appErrors.Clone(appErrors.ErrInvalidFormat, fmt.Sprintf("invalid time %q, expected HH:MM or HH:MM:SS", value))
}
