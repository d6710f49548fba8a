package models

import "time"

// Course is a lesson offering published by a teacher.
type Course struct {
	ID              string    `db:"id" json:"id"`
	TeacherID       string    `db:"teacher_id" json:"teacher_id"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Price           float64   `db:"price" json:"price"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures catalog listing options.
type CourseFilter struct {
	TeacherID string `json:"teacher_id,omitempty"`
	Search    string `json:"search,omitempty"`
	Active    *bool  `json:"active,omitempty"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
}
