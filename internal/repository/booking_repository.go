package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

const bookingColumns = `id, teacher_id, student_id, course_id, to_char(booking_date, 'YYYY-MM-DD') AS booking_date, to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time, status, notes, created_at, updated_at`

// Postgres error codes raised by the bookings exclusion constraint and unique indexes.
const (
	pqExclusionViolation = "23P01"
	pqUniqueViolation    = "23505"
)

// BookingRepository persists bookings.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create stores a new pending booking. Writers for the same teacher are serialised by a
// transaction-scoped advisory lock, and any occupying booking overlapping the window makes
// the insert fail with a BOOKING_CONFLICT error. The exclusion constraint on the table
// catches writers that bypass this path.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) (err error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.Status = models.BookingStatusPending
	b.CreatedAt = now
	b.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, b.TeacherID); err != nil {
		return fmt.Errorf("lock teacher bookings: %w", err)
	}

	const overlapQuery = `SELECT COUNT(*) FROM bookings WHERE teacher_id = $1 AND booking_date = $2 AND status NOT IN ('cancelled', 'rejected') AND start_time < $4 AND end_time > $3`
	var overlapping int
	if err = tx.GetContext(ctx, &overlapping, overlapQuery, b.TeacherID, b.BookingDate, b.StartTime, b.EndTime); err != nil {
		return fmt.Errorf("check booking overlap: %w", err)
	}
	if overlapping > 0 {
		return appErrors.Clone(appErrors.ErrBookingConflict, "")
	}

	const insertQuery = `INSERT INTO bookings (id, teacher_id, student_id, course_id, booking_date, start_time, end_time, status, notes, created_at, updated_at) VALUES (:id, :teacher_id, :student_id, :course_id, :booking_date, :start_time, :end_time, :status, :notes, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, b); err != nil {
		if IsConflict(err) {
			return conflictError(err)
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	if err = tx.Commit(); err != nil {
		if IsConflict(err) {
			return conflictError(err)
		}
		return fmt.Errorf("commit booking: %w", err)
	}
	return nil
}

// FindByID returns a booking by id.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find booking: %w", err)
	}
	return &booking, nil
}

// List returns bookings matching the filter with the total count.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.FromDate != "" {
		args = append(args, filter.FromDate)
		conditions = append(conditions, fmt.Sprintf("booking_date >= $%d", len(args)))
	}
	if filter.ToDate != "" {
		args = append(args, filter.ToDate)
		conditions = append(conditions, fmt.Sprintf("booking_date <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalisePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s FROM bookings%s ORDER BY booking_date DESC, start_time DESC LIMIT %d OFFSET %d", bookingColumns, where, pageSize, (page-1)*pageSize)

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM bookings"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}
	return bookings, total, nil
}

// ListOccupying returns bookings of a teacher in [fromDate, toDate] that still hold their window.
func (r *BookingRepository) ListOccupying(ctx context.Context, teacherID, fromDate, toDate string) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE teacher_id = $1 AND booking_date BETWEEN $2 AND $3 AND status NOT IN ('cancelled', 'rejected') ORDER BY booking_date, start_time`
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, teacherID, fromDate, toDate); err != nil {
		return nil, fmt.Errorf("list occupying bookings: %w", err)
	}
	return bookings, nil
}

// UpdateStatus moves a booking from one status to another. The update only applies while
// the stored status still equals from; otherwise sql.ErrNoRows is returned.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus) (time.Time, error) {
	now := time.Now().UTC()
	const query = `UPDATE bookings SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("update booking status: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// IsConflict reports whether err is a Postgres exclusion or unique violation.
func IsConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqExclusionViolation || pqErr.Code == pqUniqueViolation
}

func conflictError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrBookingConflict.Code, appErrors.ErrBookingConflict.Status, appErrors.ErrBookingConflict.Message)
}

func normalisePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
