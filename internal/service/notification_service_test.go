package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
)

type notificationRepoStub struct {
	mu        sync.Mutex
	stored    []models.Notification
	failFirst int
	calls     int
	markErr   error
	filter    models.NotificationFilter

	entered chan struct{}
	release chan struct{}
}

func (s *notificationRepoStub) Create(ctx context.Context, n *models.Notification) error {
	if s.release != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return errors.New("db down")
	}
	s.stored = append(s.stored, *n)
	return nil
}

func (s *notificationRepoStub) ListByUser(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error) {
	s.filter = filter
	var out []models.Notification
	for _, n := range s.stored {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (s *notificationRepoStub) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	return s.markErr
}

func (s *notificationRepoStub) snapshot() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.stored...)
}

func newNotificationFixture(repo *notificationRepoStub) *NotificationService {
	return NewNotificationService(repo, NewMetricsService(), jobs.QueueConfig{Workers: 2, MaxRetries: 2, RetryDelay: time.Millisecond})
}

func TestNotificationServiceDeliversOnStop(t *testing.T) {
	repo := &notificationRepoStub{}
	svc := newNotificationFixture(repo)
	svc.Start(context.Background())

	payload := models.BookingNotificationPayload{BookingID: "b1", StudentID: "s1", Date: "2024-06-10", StartTime: "10:00", EndTime: "10:30"}
	require.NoError(t, svc.Notify(context.Background(), "t1", models.NotificationKindBooking, payload))
	require.NoError(t, svc.Notify(context.Background(), "s1", models.NotificationKindBookingStatus, map[string]string{"status": "confirmed"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))

	stored := repo.snapshot()
	require.Len(t, stored, 2)
	byUser := map[string]models.Notification{}
	for _, n := range stored {
		byUser[n.UserID] = n
	}
	assert.Equal(t, models.NotificationKindBooking, byUser["t1"].Kind)
	assert.JSONEq(t, `{"booking_id":"b1","student_id":"s1","date":"2024-06-10","start_time":"10:00","end_time":"10:30"}`, string(byUser["t1"].Payload))
	assert.NotEmpty(t, byUser["t1"].ID)
	assert.Nil(t, byUser["t1"].ReadAt)
}

func TestNotificationServiceRetriesFailedWrites(t *testing.T) {
	repo := &notificationRepoStub{failFirst: 2}
	svc := newNotificationFixture(repo)
	svc.Start(context.Background())

	require.NoError(t, svc.Notify(context.Background(), "t1", models.NotificationKindBooking, struct{}{}))
	require.NoError(t, svc.Stop(context.Background()))

	assert.Len(t, repo.snapshot(), 1)
	assert.Equal(t, 3, repo.calls)
}

func TestNotificationServiceRejectsWhenNotRunning(t *testing.T) {
	svc := newNotificationFixture(&notificationRepoStub{})
	assert.Error(t, svc.Notify(context.Background(), "t1", models.NotificationKindBooking, struct{}{}))

	svc.Start(context.Background())
	require.NoError(t, svc.Stop(context.Background()))
	assert.Error(t, svc.Notify(context.Background(), "t1", models.NotificationKindBooking, struct{}{}))
}

func TestNotificationServiceRejectsUnencodablePayload(t *testing.T) {
	svc := newNotificationFixture(&notificationRepoStub{})
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	assert.Error(t, svc.Notify(context.Background(), "t1", models.NotificationKindBooking, make(chan int)))
}

func TestNotificationServiceList(t *testing.T) {
	repo := &notificationRepoStub{stored: []models.Notification{{ID: "n1", UserID: "t1"}, {ID: "n2", UserID: "s1"}}}
	svc := newNotificationFixture(repo)

	items, page, err := svc.List(context.Background(), "t1", NotificationQuery{UnreadOnly: true, Page: 2, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "n1", items[0].ID)
	assert.Equal(t, models.NotificationFilter{UnreadOnly: true, Page: 2, PageSize: 5}, repo.filter)
	assert.Equal(t, &models.Pagination{Page: 2, PageSize: 5, TotalCount: 1}, page)

	items, _, err = svc.List(context.Background(), "nobody", NotificationQuery{})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestNotificationServiceMarkRead(t *testing.T) {
	repo := &notificationRepoStub{}
	svc := newNotificationFixture(repo)
	require.NoError(t, svc.MarkRead(context.Background(), "t1", "n1"))

	repo.markErr = sql.ErrNoRows
	err := svc.MarkRead(context.Background(), "t1", "n1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	repo.markErr = errors.New("boom")
	err = svc.MarkRead(context.Background(), "t1", "n1")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestNotificationServiceDoesNotWaitOnFullQueue(t *testing.T) {
	repo := &notificationRepoStub{entered: make(chan struct{}, 2), release: make(chan struct{})}
	svc := NewNotificationService(repo, NewMetricsService(), jobs.QueueConfig{Workers: 1, BufferSize: 1})
	svc.Start(context.Background())

	require.NoError(t, svc.Notify(context.Background(), "t1", models.NotificationKindBooking, map[string]string{"n": "1"}))
	<-repo.entered
	require.NoError(t, svc.Notify(context.Background(), "t1", models.NotificationKindBooking, map[string]string{"n": "2"}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- svc.Notify(ctx, "t1", models.NotificationKindBooking, map[string]string{"n": "3"})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, jobs.ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("notify blocked while the store was stalled")
	}

	close(repo.release)
	require.NoError(t, svc.Stop(context.Background()))
	assert.Len(t, repo.snapshot(), 2)
}
