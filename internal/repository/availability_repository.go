package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// AvailabilityRepository persists weekly rules and date overrides for teachers.
// Times are stored as TIME and dates as DATE; reads render them as HH:MM and YYYY-MM-DD.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListWeeklyRules returns every weekly rule of a teacher ordered by weekday and start.
func (r *AvailabilityRepository) ListWeeklyRules(ctx context.Context, teacherID string) ([]models.WeeklyRule, error) {
	const query = `SELECT id, teacher_id, day_of_week, to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time, created_at, updated_at FROM availability_weekly_rules WHERE teacher_id = $1 ORDER BY day_of_week, start_time`
	var rules []models.WeeklyRule
	if err := r.db.SelectContext(ctx, &rules, query, teacherID); err != nil {
		return nil, fmt.Errorf("list weekly rules: %w", err)
	}
	return rules, nil
}

// CreateWeeklyRule inserts a weekly rule.
func (r *AvailabilityRepository) CreateWeeklyRule(ctx context.Context, rule *models.WeeklyRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	const query = `INSERT INTO availability_weekly_rules (id, teacher_id, day_of_week, start_time, end_time, created_at, updated_at) VALUES (:id, :teacher_id, :day_of_week, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create weekly rule: %w", err)
	}
	return nil
}

// DeleteWeeklyRule removes a rule owned by teacherID. It returns sql.ErrNoRows when nothing matched.
func (r *AvailabilityRepository) DeleteWeeklyRule(ctx context.Context, teacherID, id string) error {
	const query = `DELETE FROM availability_weekly_rules WHERE id = $1 AND teacher_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, teacherID)
	if err != nil {
		return fmt.Errorf("delete weekly rule: %w", err)
	}
	return requireAffected(res)
}

// ListOverrides returns overrides of a teacher with dates in [startDate, endDate].
func (r *AvailabilityRepository) ListOverrides(ctx context.Context, teacherID, startDate, endDate string) ([]models.OverrideRule, error) {
	const query = `SELECT id, teacher_id, to_char(override_date, 'YYYY-MM-DD') AS override_date, to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time, is_unavailable, reason, created_at, updated_at FROM availability_overrides WHERE teacher_id = $1 AND override_date BETWEEN $2 AND $3 ORDER BY override_date`
	var overrides []models.OverrideRule
	if err := r.db.SelectContext(ctx, &overrides, query, teacherID, startDate, endDate); err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	return overrides, nil
}

// UpsertOverride stores the override for (teacher, date), replacing any existing one.
// The stored id and creation time are written back to o.
func (r *AvailabilityRepository) UpsertOverride(ctx context.Context, o *models.OverrideRule) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.UpdatedAt = now

	const query = `INSERT INTO availability_overrides (id, teacher_id, override_date, start_time, end_time, is_unavailable, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (teacher_id, override_date) DO UPDATE
		SET start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    is_unavailable = EXCLUDED.is_unavailable,
		    reason = EXCLUDED.reason,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, o.ID, o.TeacherID, o.Date, o.StartTime, o.EndTime, o.IsUnavailable, o.Reason, now)
	if err := row.Scan(&o.ID, &o.CreatedAt); err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}

// DeleteOverride removes the override of a teacher on date. It returns sql.ErrNoRows when nothing matched.
func (r *AvailabilityRepository) DeleteOverride(ctx context.Context, teacherID, date string) error {
	const query = `DELETE FROM availability_overrides WHERE teacher_id = $1 AND override_date = $2`
	res, err := r.db.ExecContext(ctx, query, teacherID, date)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
