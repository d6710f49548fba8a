package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/availability"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type bookingRepoStub struct {
	items      map[string]*models.Booking
	createErr  error
	updateErr  error
	lastFilter models.BookingFilter
}

func newBookingRepoStub() *bookingRepoStub {
	return &bookingRepoStub{items: map[string]*models.Booking{}}
}

func (s *bookingRepoStub) Create(ctx context.Context, b *models.Booking) error {
	if s.createErr != nil {
		return s.createErr
	}
	b.ID = "b-new"
	b.Status = models.BookingStatusPending
	cp := *b
	s.items[b.ID] = &cp
	return nil
}

func (s *bookingRepoStub) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	b, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (s *bookingRepoStub) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	s.lastFilter = filter
	var out []models.Booking
	for _, b := range s.items {
		out = append(out, *b)
	}
	return out, len(out), nil
}

func (s *bookingRepoStub) UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus) (time.Time, error) {
	if s.updateErr != nil {
		return time.Time{}, s.updateErr
	}
	b := s.items[id]
	if b == nil || b.Status != from {
		return time.Time{}, sql.ErrNoRows
	}
	b.Status = to
	return time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC), nil
}

type proposalValidatorStub struct {
	err      error
	received []availability.Proposal
}

func (s *proposalValidatorStub) Validate(ctx context.Context, teacherID string, p availability.Proposal) error {
	s.received = append(s.received, p)
	return s.err
}

type sentNotification struct {
	userID  string
	kind    models.NotificationKind
	payload interface{}
}

type notifierStub struct {
	sent []sentNotification
	err  error
}

func (s *notifierStub) Notify(ctx context.Context, userID string, kind models.NotificationKind, payload interface{}) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentNotification{userID: userID, kind: kind, payload: payload})
	return nil
}

type bookingFixture struct {
	svc       *BookingService
	repo      *bookingRepoStub
	validator *proposalValidatorStub
	notifier  *notifierStub
}

func newBookingFixture() bookingFixture {
	f := bookingFixture{
		repo:      newBookingRepoStub(),
		validator: &proposalValidatorStub{},
		notifier:  &notifierStub{},
	}
	f.svc = NewBookingService(BookingServiceParams{
		Repo:         f.repo,
		Courses:      testCourses(),
		Availability: f.validator,
		Notifier:     f.notifier,
		Metrics:      NewMetricsService(),
	})
	f.svc.now = func() time.Time { return time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC) }
	return f
}

func validBookingRequest() CreateBookingRequest {
	return CreateBookingRequest{TeacherID: "t1", CourseID: "c1", Date: "2024-06-10", StartTime: "10:00", EndTime: "10:30:00"}
}

func TestBookingServiceCreate(t *testing.T) {
	f := newBookingFixture()

	booking, err := f.svc.Create(context.Background(), "s1", validBookingRequest())
	require.NoError(t, err)
	assert.Equal(t, "b-new", booking.ID)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, "10:30", booking.EndTime)

	require.Len(t, f.validator.received, 1)
	assert.Equal(t, availability.Proposal{Date: "2024-06-10", StartTime: "10:00", EndTime: "10:30"}, f.validator.received[0])

	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, "t1", sent.userID)
	assert.Equal(t, models.NotificationKindBooking, sent.kind)
	assert.Equal(t, models.BookingNotificationPayload{BookingID: "b-new", StudentID: "s1", Date: "2024-06-10", StartTime: "10:00", EndTime: "10:30"}, sent.payload)
}

func TestBookingServiceCreatePropagatesAvailabilityErrors(t *testing.T) {
	for _, sentinel := range []*appErrors.Error{appErrors.ErrOutsideHours, appErrors.ErrDayUnavailable, appErrors.ErrNoAvailability} {
		f := newBookingFixture()
		f.validator.err = appErrors.Clone(sentinel, "")

		_, err := f.svc.Create(context.Background(), "s1", validBookingRequest())
		assert.True(t, errors.Is(err, sentinel), sentinel.Code)
		assert.Empty(t, f.repo.items)
		assert.Empty(t, f.notifier.sent)
	}
}

func TestBookingServiceCreateConflict(t *testing.T) {
	f := newBookingFixture()
	f.repo.createErr = appErrors.Clone(appErrors.ErrBookingConflict, "")

	_, err := f.svc.Create(context.Background(), "s1", validBookingRequest())
	assert.True(t, errors.Is(err, appErrors.ErrBookingConflict))
	assert.Empty(t, f.notifier.sent)
}

func TestBookingServiceCreateSurvivesNotifierFailure(t *testing.T) {
	f := newBookingFixture()
	f.notifier.err = errors.New("queue stopped")

	booking, err := f.svc.Create(context.Background(), "s1", validBookingRequest())
	require.NoError(t, err)
	assert.Contains(t, f.repo.items, booking.ID)
}

func TestBookingServiceCreateRejectsInvalidRequests(t *testing.T) {
	cases := map[string]struct {
		mutate func(*CreateBookingRequest)
		want   *appErrors.Error
	}{
		"missing course":   {func(r *CreateBookingRequest) { r.CourseID = "" }, appErrors.ErrValidation},
		"bad time":         {func(r *CreateBookingRequest) { r.StartTime = "ten" }, appErrors.ErrInvalidFormat},
		"bad date":         {func(r *CreateBookingRequest) { r.Date = "10-06-2024" }, appErrors.ErrInvalidFormat},
		"inverted":         {func(r *CreateBookingRequest) { r.StartTime, r.EndTime = "11:00", "10:00" }, appErrors.ErrInvalidRange},
		"in the past":      {func(r *CreateBookingRequest) { r.StartTime, r.EndTime = "07:00", "07:30" }, appErrors.ErrValidation},
		"unknown course":   {func(r *CreateBookingRequest) { r.CourseID = "nope" }, appErrors.ErrNotFound},
		"inactive course":  {func(r *CreateBookingRequest) { r.CourseID = "c3" }, appErrors.ErrValidation},
		"foreign course":   {func(r *CreateBookingRequest) { r.CourseID = "c2" }, appErrors.ErrValidation},
		"booking yourself": {func(r *CreateBookingRequest) { r.TeacherID = "s1" }, appErrors.ErrValidation},
	}
	for name, tc := range cases {
		f := newBookingFixture()
		req := validBookingRequest()
		tc.mutate(&req)

		_, err := f.svc.Create(context.Background(), "s1", req)
		assert.True(t, errors.Is(err, tc.want), "%s: got %v", name, err)
		assert.Empty(t, f.validator.received, name)
	}
}

func seedBooking(f bookingFixture, status models.BookingStatus) *models.Booking {
	b := &models.Booking{ID: "b1", TeacherID: "t1", StudentID: "s1", CourseID: "c1", BookingDate: "2024-06-11", StartTime: "10:00", EndTime: "10:30", Status: status}
	f.repo.items[b.ID] = b
	return b
}

func TestBookingServiceTeacherConfirmsAndStudentIsNotified(t *testing.T) {
	f := newBookingFixture()
	seedBooking(f, models.BookingStatusPending)

	booking, err := f.svc.UpdateStatus(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, "b1", UpdateBookingStatusRequest{Status: models.BookingStatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "s1", f.notifier.sent[0].userID)
	assert.Equal(t, models.NotificationKindBookingStatus, f.notifier.sent[0].kind)
}

func TestBookingServiceStatusPermissions(t *testing.T) {
	teacher := Actor{ID: "t1", Role: models.RoleTeacher}
	student := Actor{ID: "s1", Role: models.RoleStudent}
	outsider := Actor{ID: "s2", Role: models.RoleStudent}
	admin := Actor{ID: "a1", Role: models.RoleAdmin}

	cases := []struct {
		name   string
		actor  Actor
		from   models.BookingStatus
		to     models.BookingStatus
		want   *appErrors.Error
		notify []string
	}{
		{"student cancels pending", student, models.BookingStatusPending, models.BookingStatusCancelled, nil, []string{"t1"}},
		{"student cannot confirm", student, models.BookingStatusPending, models.BookingStatusConfirmed, appErrors.ErrForbidden, nil},
		{"teacher cannot cancel", teacher, models.BookingStatusConfirmed, models.BookingStatusCancelled, appErrors.ErrForbidden, nil},
		{"teacher completes confirmed", teacher, models.BookingStatusConfirmed, models.BookingStatusCompleted, nil, []string{"s1"}},
		{"teacher cannot complete pending", teacher, models.BookingStatusPending, models.BookingStatusCompleted, appErrors.ErrInvalidTransition, nil},
		{"cancelled is final", student, models.BookingStatusCancelled, models.BookingStatusCancelled, appErrors.ErrInvalidTransition, nil},
		{"outsider", outsider, models.BookingStatusPending, models.BookingStatusCancelled, appErrors.ErrForbidden, nil},
		{"admin rejects", admin, models.BookingStatusPending, models.BookingStatusRejected, nil, []string{"t1", "s1"}},
	}
	for _, tc := range cases {
		f := newBookingFixture()
		seedBooking(f, tc.from)

		_, err := f.svc.UpdateStatus(context.Background(), tc.actor, "b1", UpdateBookingStatusRequest{Status: tc.to})
		if tc.want == nil {
			require.NoError(t, err, tc.name)
		} else {
			assert.True(t, errors.Is(err, tc.want), "%s: got %v", tc.name, err)
		}
		var recipients []string
		for _, n := range f.notifier.sent {
			recipients = append(recipients, n.userID)
		}
		assert.Equal(t, tc.notify, recipients, tc.name)
	}
}

func TestBookingServiceStatusRaceReportsInvalidTransition(t *testing.T) {
	f := newBookingFixture()
	seedBooking(f, models.BookingStatusPending)
	f.repo.updateErr = sql.ErrNoRows

	_, err := f.svc.UpdateStatus(context.Background(), Actor{ID: "t1", Role: models.RoleTeacher}, "b1", UpdateBookingStatusRequest{Status: models.BookingStatusConfirmed})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestBookingServiceListScopesByRole(t *testing.T) {
	f := newBookingFixture()
	seedBooking(f, models.BookingStatusPending)
	ctx := context.Background()

	_, page, err := f.svc.List(ctx, Actor{ID: "s1", Role: models.RoleStudent}, BookingQuery{TeacherID: "t9", From: "2024-06-01"})
	require.NoError(t, err)
	assert.Equal(t, "s1", f.repo.lastFilter.StudentID)
	assert.Empty(t, f.repo.lastFilter.TeacherID, "non-admins cannot pick another participant")
	assert.Equal(t, "2024-06-01", f.repo.lastFilter.FromDate)
	assert.Equal(t, 1, page.TotalCount)

	_, _, err = f.svc.List(ctx, Actor{ID: "t1", Role: models.RoleTeacher}, BookingQuery{Status: "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, "t1", f.repo.lastFilter.TeacherID)
	assert.Equal(t, models.BookingStatusConfirmed, f.repo.lastFilter.Status)

	_, _, err = f.svc.List(ctx, Actor{ID: "a1", Role: models.RoleAdmin}, BookingQuery{TeacherID: "t9"})
	require.NoError(t, err)
	assert.Equal(t, "t9", f.repo.lastFilter.TeacherID)

	_, _, err = f.svc.List(ctx, Actor{ID: "t1", Role: models.RoleTeacher}, BookingQuery{Status: "lost"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestBookingServiceGet(t *testing.T) {
	f := newBookingFixture()
	seedBooking(f, models.BookingStatusPending)

	_, err := f.svc.Get(context.Background(), Actor{ID: "s2", Role: models.RoleStudent}, "b1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.Get(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	b, err := f.svc.Get(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)
}
