package models

import "time"

// WeeklyRule is a recurring availability window on one weekday (0 = Sunday).
type WeeklyRule struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	DayOfWeek int       `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// OverrideRule replaces the weekly rules of a teacher for a single date.
// IsUnavailable blocks the whole day. Otherwise StartTime/EndTime, when both set,
// form the only bookable interval; when absent the day has no intervals.
type OverrideRule struct {
	ID            string    `db:"id" json:"id"`
	TeacherID     string    `db:"teacher_id" json:"teacher_id"`
	Date          string    `db:"override_date" json:"date"`
	StartTime     *string   `db:"start_time" json:"start_time,omitempty"`
	EndTime       *string   `db:"end_time" json:"end_time,omitempty"`
	IsUnavailable bool      `db:"is_unavailable" json:"is_unavailable"`
	Reason        *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// HasTimes reports whether the override carries an explicit interval.
func (o OverrideRule) HasTimes() bool {
	return o.StartTime != nil && o.EndTime != nil
}

// TimeSlot is a start/end pair in HH:MM form.
type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DateAvailability is the resolved set of allowed intervals for one calendar day.
type DateAvailability struct {
	Date          string     `json:"date"`
	DayOfWeek     int        `json:"day_of_week"`
	Slots         []TimeSlot `json:"slots"`
	IsUnavailable bool       `json:"is_unavailable"`
}

// DaySlots lists bookable slots of a fixed duration for one day.
type DaySlots struct {
	Date            string     `json:"date"`
	DayOfWeek       int        `json:"day_of_week"`
	DurationMinutes int        `json:"duration_minutes"`
	Slots           []TimeSlot `json:"slots"`
}
