package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/availability"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

// BookingSink persists new bookings. Create assigns the id, forces status pending and
// reports overlapping writes as BOOKING_CONFLICT.
type BookingSink interface {
	Create(ctx context.Context, booking *models.Booking) error
}

type bookingRepository interface {
	BookingSink
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
	UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus) (time.Time, error)
}

// Notifier delivers in-app notifications. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind models.NotificationKind, payload interface{}) error
}

type proposalValidator interface {
	Validate(ctx context.Context, teacherID string, p availability.Proposal) error
}

// BookingServiceParams groups the dependencies of BookingService.
type BookingServiceParams struct {
	Repo         bookingRepository
	Courses      courseLookup
	Availability proposalValidator
	Notifier     Notifier
	Metrics      *MetricsService
	Validator    *validator.Validate
	Logger       *zap.Logger
}

// CreateBookingRequest is the payload a student sends to reserve a lesson.
type CreateBookingRequest struct {
	TeacherID string  `json:"teacher_id" validate:"required"`
	CourseID  string  `json:"course_id" validate:"required"`
	Date      string  `json:"date" validate:"required"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	Notes     *string `json:"notes" validate:"omitempty,max=1000"`
}

// BookingQuery filters booking listings. TeacherID and StudentID are honoured for admins only.
type BookingQuery struct {
	Status    string `form:"status" validate:"omitempty,oneof=pending confirmed cancelled rejected completed"`
	From      string `form:"from"`
	To        string `form:"to"`
	TeacherID string `form:"teacher_id"`
	StudentID string `form:"student_id"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

// UpdateBookingStatusRequest moves a booking to a new status.
type UpdateBookingStatusRequest struct {
	Status models.BookingStatus `json:"status" validate:"required,oneof=confirmed rejected cancelled completed"`
}

// BookingService creates bookings and manages their lifecycle.
type BookingService struct {
	repo         bookingRepository
	courses      courseLookup
	availability proposalValidator
	notifier     Notifier
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewBookingService builds the service.
func NewBookingService(params BookingServiceParams) *BookingService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &BookingService{
		repo:         params.Repo,
		courses:      params.Courses,
		availability: params.Availability,
		notifier:     params.Notifier,
		metrics:      params.Metrics,
		validator:    params.Validator,
		logger:       params.Logger,
		now:          time.Now,
	}
}

// Create validates a proposed lesson against the course and the teacher's availability,
// stores it as pending and notifies the teacher.
func (s *BookingService) Create(ctx context.Context, studentID string, req CreateBookingRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	if studentID == req.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot book a lesson with yourself")
	}

	date, err := availability.ParseDate(req.Date)
	if err != nil {
		return nil, s.rejected(err)
	}
	window, err := availability.ParseRange(req.StartTime, req.EndTime)
	if err != nil {
		return nil, s.rejected(err)
	}
	if !window.Valid() {
		return nil, s.rejected(appErrors.Clone(appErrors.ErrInvalidRange, "start_time must be before end_time"))
	}
	if startsAt := date.Add(time.Duration(window.Start) * time.Minute); !startsAt.After(s.now().UTC()) {
		return nil, s.rejected(appErrors.Clone(appErrors.ErrValidation, "booking must start in the future"))
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, s.rejected(appErrors.Clone(appErrors.ErrValidation, "course is not active"))
	}
	if course.TeacherID != req.TeacherID {
		return nil, s.rejected(appErrors.Clone(appErrors.ErrValidation, "course does not belong to this teacher"))
	}

	proposal := availability.Proposal{
		Date:      availability.FormatDate(date),
		StartTime: availability.FormatMinutes(window.Start),
		EndTime:   availability.FormatMinutes(window.End),
	}
	if err := s.availability.Validate(ctx, req.TeacherID, proposal); err != nil {
		return nil, s.rejected(err)
	}

	booking := &models.Booking{
		TeacherID:   req.TeacherID,
		StudentID:   studentID,
		CourseID:    course.ID,
		BookingDate: proposal.Date,
		StartTime:   proposal.StartTime,
		EndTime:     proposal.EndTime,
		Notes:       req.Notes,
	}
	if err := s.repo.Create(ctx, booking); err != nil {
		if errors.Is(err, appErrors.ErrBookingConflict) {
			return nil, s.rejected(err)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
	}
	s.metrics.RecordBooking("created")
	s.logger.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("teacher_id", booking.TeacherID),
		zap.String("student_id", booking.StudentID),
		zap.String("date", booking.BookingDate),
		zap.String("start", booking.StartTime),
	)

	s.notify(ctx, booking.TeacherID, models.NotificationKindBooking, models.BookingNotificationPayload{
		BookingID: booking.ID,
		StudentID: booking.StudentID,
		Date:      booking.BookingDate,
		StartTime: booking.StartTime,
		EndTime:   booking.EndTime,
	})
	return booking, nil
}

// List returns the bookings visible to the actor.
func (s *BookingService) List(ctx context.Context, actor Actor, q BookingQuery) ([]models.Booking, *models.Pagination, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking filter")
	}
	filter := models.BookingFilter{
		Status:   models.BookingStatus(q.Status),
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	for _, raw := range []struct {
		value string
		dest  *string
	}{{q.From, &filter.FromDate}, {q.To, &filter.ToDate}} {
		if raw.value == "" {
			continue
		}
		d, err := availability.ParseDate(raw.value)
		if err != nil {
			return nil, nil, err
		}
		*raw.dest = availability.FormatDate(d)
	}

	switch actor.Role {
	case models.RoleAdmin:
		filter.TeacherID = q.TeacherID
		filter.StudentID = q.StudentID
	case models.RoleTeacher:
		filter.TeacherID = actor.ID
	case models.RoleStudent:
		filter.StudentID = actor.ID
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	bookings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a booking visible to the actor.
func (s *BookingService) Get(ctx context.Context, actor Actor, id string) (*models.Booking, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != booking.TeacherID && actor.ID != booking.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this booking")
	}
	return booking, nil
}

// UpdateStatus applies a status transition. Teachers confirm, reject and complete;
// students cancel; admins may apply any allowed transition. The other participant is notified.
func (s *BookingService) UpdateStatus(ctx context.Context, actor Actor, id string, req UpdateBookingStatusRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking status")
	}
	booking, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !mayApply(actor, booking, req.Status) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to set status "+string(req.Status))
	}
	if !booking.Status.CanTransitionTo(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "cannot change booking from "+string(booking.Status)+" to "+string(req.Status))
	}

	updatedAt, err := s.repo.UpdateStatus(ctx, booking.ID, booking.Status, req.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "booking status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update booking status")
	}
	previous := booking.Status
	booking.Status = req.Status
	booking.UpdatedAt = updatedAt
	s.metrics.RecordBookingStatus(string(req.Status))
	s.logger.Info("booking status updated",
		zap.String("booking_id", booking.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(req.Status)),
		zap.String("actor_id", actor.ID),
	)

	payload := models.BookingStatusNotificationPayload{
		BookingID: booking.ID,
		Status:    booking.Status,
		ChangedBy: actor.ID,
		Date:      booking.BookingDate,
		StartTime: booking.StartTime,
		EndTime:   booking.EndTime,
	}
	for _, recipient := range []string{booking.TeacherID, booking.StudentID} {
		if recipient != actor.ID {
			s.notify(ctx, recipient, models.NotificationKindBookingStatus, payload)
		}
	}
	return booking, nil
}

func (s *BookingService) load(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	return booking, nil
}

func mayApply(actor Actor, booking *models.Booking, status models.BookingStatus) bool {
	switch {
	case actor.IsAdmin():
		return true
	case actor.ID == booking.TeacherID:
		return status == models.BookingStatusConfirmed || status == models.BookingStatusRejected || status == models.BookingStatusCompleted
	case actor.ID == booking.StudentID:
		return status == models.BookingStatusCancelled
	default:
		return false
	}
}

// rejected counts a refused booking request under its error code.
func (s *BookingService) rejected(err error) error {
	if appErr := appErrors.FromError(err); appErr != nil {
		s.metrics.RecordBooking(strings.ToLower(appErr.Code))
	}
	return err
}

// notify never fails the caller; delivery problems are logged.
func (s *BookingService) notify(ctx context.Context, userID string, kind models.NotificationKind, payload interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, payload); err != nil {
		s.logger.Warn("notification not queued", zap.String("user_id", userID), zap.String("kind", string(kind)), zap.Error(err))
	}
}
