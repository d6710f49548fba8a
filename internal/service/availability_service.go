package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/tutorhub-api/internal/availability"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

// AvailabilitySource provides the stored availability of teachers.
type AvailabilitySource interface {
	ListWeeklyRules(ctx context.Context, teacherID string) ([]models.WeeklyRule, error)
	ListOverrides(ctx context.Context, teacherID, startDate, endDate string) ([]models.OverrideRule, error)
}

type availabilityRepository interface {
	AvailabilitySource
	CreateWeeklyRule(ctx context.Context, rule *models.WeeklyRule) error
	DeleteWeeklyRule(ctx context.Context, teacherID, id string) error
	UpsertOverride(ctx context.Context, o *models.OverrideRule) error
	DeleteOverride(ctx context.Context, teacherID, date string) error
}

type occupancySource interface {
	ListOccupying(ctx context.Context, teacherID, fromDate, toDate string) ([]models.Booking, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// AvailabilityConfig tunes availability queries.
type AvailabilityConfig struct {
	DefaultSlotMinutes int
	MaxRangeDays       int
}

// AvailabilityServiceParams groups the dependencies of AvailabilityService.
type AvailabilityServiceParams struct {
	Repo      availabilityRepository
	Bookings  occupancySource
	Users     userLookup
	Courses   courseLookup
	Config    AvailabilityConfig
	Validator *validator.Validate
	Logger    *zap.Logger
}

// DateRangeQuery selects an inclusive range of calendar dates.
type DateRangeQuery struct {
	Start string `form:"start" validate:"required"`
	End   string `form:"end" validate:"required"`
}

// SlotQuery selects bookable slots. CourseID takes precedence over Duration.
type SlotQuery struct {
	Start    string `form:"start" validate:"required"`
	End      string `form:"end" validate:"required"`
	Duration int    `form:"duration" validate:"omitempty,min=5,max=720"`
	CourseID string `form:"course_id"`
}

// WeeklyRuleRequest is the payload to add a weekly availability window.
type WeeklyRuleRequest struct {
	DayOfWeek *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// OverrideRequest is the payload to set a teacher's availability for one date.
type OverrideRequest struct {
	Date          string  `json:"date" validate:"required"`
	StartTime     *string `json:"start_time"`
	EndTime       *string `json:"end_time"`
	IsUnavailable bool    `json:"is_unavailable"`
	Reason        *string `json:"reason" validate:"omitempty,max=255"`
}

// AvailabilityService resolves teacher availability and manages availability rules.
// Every query re-reads rules and overrides; nothing is cached across requests.
type AvailabilityService struct {
	repo      availabilityRepository
	bookings  occupancySource
	users     userLookup
	courses   courseLookup
	cfg       AvailabilityConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAvailabilityService builds the service.
func NewAvailabilityService(params AvailabilityServiceParams) *AvailabilityService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Config.DefaultSlotMinutes <= 0 {
		params.Config.DefaultSlotMinutes = 60
	}
	if params.Config.MaxRangeDays <= 0 {
		params.Config.MaxRangeDays = 62
	}
	return &AvailabilityService{
		repo:      params.Repo,
		bookings:  params.Bookings,
		users:     params.Users,
		courses:   params.Courses,
		cfg:       params.Config,
		validator: params.Validator,
		logger:    params.Logger,
		now:       time.Now,
	}
}

type availabilitySnapshot struct {
	weekly    []models.WeeklyRule
	overrides []models.OverrideRule
	bookings  []models.Booking
}

// Resolve returns the effective availability of a teacher for each date in the range.
func (s *AvailabilityService) Resolve(ctx context.Context, teacherID string, q DateRangeQuery) ([]models.DateAvailability, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "start and end dates are required")
	}
	start, end, err := s.parseDateRange(q.Start, q.End)
	if err != nil {
		return nil, err
	}
	if err := s.ensureTeacher(ctx, teacherID); err != nil {
		return nil, err
	}

	snap, err := s.load(ctx, teacherID, start, end, false)
	if err != nil {
		return nil, err
	}
	days, err := availability.Resolve(snap.weekly, snap.overrides, start, end)
	if err != nil {
		return nil, s.resolveError(teacherID, err)
	}
	return days, nil
}

// Slots lists bookable slots per day. Dates before today are skipped and slots of the
// current day that already started are dropped.
func (s *AvailabilityService) Slots(ctx context.Context, teacherID string, q SlotQuery) ([]models.DaySlots, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot query")
	}
	start, end, err := s.parseDateRange(q.Start, q.End)
	if err != nil {
		return nil, err
	}
	if err := s.ensureTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	duration, err := s.slotDuration(ctx, teacherID, q)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	today := availability.Day(now)
	if start.Before(today) {
		start = today
	}
	result := make([]models.DaySlots, 0)
	if end.Before(start) {
		return result, nil
	}

	snap, err := s.load(ctx, teacherID, start, end, true)
	if err != nil {
		return nil, err
	}
	days, err := availability.Resolve(snap.weekly, snap.overrides, start, end)
	if err != nil {
		return nil, s.resolveError(teacherID, err)
	}

	todayKey := availability.FormatDate(today)
	for _, day := range days {
		slots, err := availability.GenerateSlots(day, duration, snap.bookings)
		if err != nil {
			return nil, s.resolveError(teacherID, err)
		}
		if day.Date == todayKey {
			slots = availability.DropStartedSlots(slots, now.Hour()*60+now.Minute())
		}
		result = append(result, models.DaySlots{
			Date:            day.Date,
			DayOfWeek:       day.DayOfWeek,
			DurationMinutes: duration,
			Slots:           slots,
		})
	}
	return result, nil
}

// Validate checks a proposed booking against the teacher's availability on its date.
// Conflicts with existing bookings are left to the booking store.
func (s *AvailabilityService) Validate(ctx context.Context, teacherID string, p availability.Proposal) error {
	date, err := availability.ParseDate(p.Date)
	if err != nil {
		return err
	}
	snap, err := s.load(ctx, teacherID, date, date, false)
	if err != nil {
		return err
	}
	if err := availability.ValidateBooking(snap.weekly, snap.overrides, p); err != nil {
		return s.resolveError(teacherID, err)
	}
	return nil
}

// ListWeeklyRules returns the weekly rules of a teacher.
func (s *AvailabilityService) ListWeeklyRules(ctx context.Context, teacherID string) ([]models.WeeklyRule, error) {
	rules, err := s.repo.ListWeeklyRules(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly rules")
	}
	if rules == nil {
		rules = []models.WeeklyRule{}
	}
	return rules, nil
}

// CreateWeeklyRule adds a weekly window for a teacher. Times are stored as HH:MM.
func (s *AvailabilityService) CreateWeeklyRule(ctx context.Context, teacherID string, req WeeklyRuleRequest) (*models.WeeklyRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid weekly rule payload")
	}
	start, end, err := normaliseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	rule := &models.WeeklyRule{TeacherID: teacherID, DayOfWeek: *req.DayOfWeek, StartTime: start, EndTime: end}
	if err := s.repo.CreateWeeklyRule(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create weekly rule")
	}
	s.logger.Info("weekly rule created", zap.String("teacher_id", teacherID), zap.Int("day_of_week", rule.DayOfWeek), zap.String("start", start), zap.String("end", end))
	return rule, nil
}

// DeleteWeeklyRule removes one of the teacher's weekly rules.
func (s *AvailabilityService) DeleteWeeklyRule(ctx context.Context, teacherID, ruleID string) error {
	if err := s.repo.DeleteWeeklyRule(ctx, teacherID, ruleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "weekly rule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete weekly rule")
	}
	return nil
}

// ListOverrides returns the overrides of a teacher within the date range.
func (s *AvailabilityService) ListOverrides(ctx context.Context, teacherID string, q DateRangeQuery) ([]models.OverrideRule, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "start and end dates are required")
	}
	start, end, err := s.parseDateRange(q.Start, q.End)
	if err != nil {
		return nil, err
	}
	overrides, err := s.repo.ListOverrides(ctx, teacherID, availability.FormatDate(start), availability.FormatDate(end))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overrides")
	}
	if overrides == nil {
		overrides = []models.OverrideRule{}
	}
	return overrides, nil
}

// UpsertOverride sets the teacher's availability for a single date, replacing any
// override already stored for it.
func (s *AvailabilityService) UpsertOverride(ctx context.Context, teacherID string, req OverrideRequest) (*models.OverrideRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	date, err := availability.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if (req.StartTime == nil) != (req.EndTime == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time and end_time must be provided together")
	}

	override := &models.OverrideRule{
		TeacherID:     teacherID,
		Date:          availability.FormatDate(date),
		IsUnavailable: req.IsUnavailable,
		Reason:        req.Reason,
	}
	if req.StartTime != nil {
		if req.IsUnavailable {
			return nil, appErrors.Clone(appErrors.ErrValidation, "an unavailable day cannot carry times")
		}
		start, end, err := normaliseWindow(*req.StartTime, *req.EndTime)
		if err != nil {
			return nil, err
		}
		override.StartTime = &start
		override.EndTime = &end
	}

	if err := s.repo.UpsertOverride(ctx, override); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save override")
	}
	s.logger.Info("availability override saved", zap.String("teacher_id", teacherID), zap.String("date", override.Date), zap.Bool("unavailable", override.IsUnavailable))
	return override, nil
}

// DeleteOverride removes the override for a date so the weekly rules apply again.
func (s *AvailabilityService) DeleteOverride(ctx context.Context, teacherID, date string) error {
	d, err := availability.ParseDate(date)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteOverride(ctx, teacherID, availability.FormatDate(d)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "override not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete override")
	}
	return nil
}

// load fetches rules, overrides and optionally occupying bookings concurrently.
func (s *AvailabilityService) load(ctx context.Context, teacherID string, start, end time.Time, withBookings bool) (*availabilitySnapshot, error) {
	from, to := availability.FormatDate(start), availability.FormatDate(end)
	snap := &availabilitySnapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rules, err := s.repo.ListWeeklyRules(gctx, teacherID)
		snap.weekly = rules
		return err
	})
	g.Go(func() error {
		overrides, err := s.repo.ListOverrides(gctx, teacherID, from, to)
		snap.overrides = overrides
		return err
	})
	if withBookings {
		g.Go(func() error {
			bookings, err := s.bookings.ListOccupying(gctx, teacherID, from, to)
			snap.bookings = bookings
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	return snap, nil
}

func (s *AvailabilityService) ensureTeacher(ctx context.Context, teacherID string) error {
	user, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if user.Role != models.RoleTeacher || !user.Active {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return nil
}

func (s *AvailabilityService) slotDuration(ctx context.Context, teacherID string, q SlotQuery) (int, error) {
	if q.CourseID != "" {
		course, err := s.courses.FindByID(ctx, q.CourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		if !course.Active {
			return 0, appErrors.Clone(appErrors.ErrValidation, "course is not active")
		}
		if course.TeacherID != teacherID {
			return 0, appErrors.Clone(appErrors.ErrValidation, "course does not belong to this teacher")
		}
		return course.DurationMinutes, nil
	}
	if q.Duration > 0 {
		return q.Duration, nil
	}
	return s.cfg.DefaultSlotMinutes, nil
}

func (s *AvailabilityService) parseDateRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := availability.ParseDate(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := availability.ParseDate(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrInvalidRange, "end date must not be before start date")
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > s.cfg.MaxRangeDays {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("date range must not exceed %d days", s.cfg.MaxRangeDays))
	}
	return start, end, nil
}

// resolveError logs integrity violations, which point at bad stored data rather than bad input.
func (s *AvailabilityService) resolveError(teacherID string, err error) error {
	if errors.Is(err, appErrors.ErrIntegrity) {
		s.logger.Error("availability data integrity violation", zap.String("teacher_id", teacherID), zap.Error(err))
	}
	return err
}

// normaliseWindow parses a start/end pair, rejects empty or inverted windows and
// returns both times as HH:MM.
func normaliseWindow(startRaw, endRaw string) (string, string, error) {
	r, err := availability.ParseRange(startRaw, endRaw)
	if err != nil {
		return "", "", err
	}
	if !r.Valid() {
		return "", "", appErrors.Clone(appErrors.ErrInvalidRange, "start_time must be before end_time")
	}
	return availability.FormatMinutes(r.Start), availability.FormatMinutes(r.End), nil
}
