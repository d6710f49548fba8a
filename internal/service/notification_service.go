package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
}

// NotificationQuery filters the caller's notifications.
type NotificationQuery struct {
	UnreadOnly bool `form:"unread"`
	Page       int  `form:"page"`
	PageSize   int  `form:"page_size"`
}

// NotificationService queues in-app notifications and persists them from a worker pool.
type NotificationService struct {
	repo    notificationRepository
	metrics *MetricsService
	logger  *zap.Logger
	queue   *jobs.Queue
	now     func() time.Time
}

// NewNotificationService builds the service and its delivery queue. Call Start before Notify.
func NewNotificationService(repo notificationRepository, metrics *MetricsService, cfg jobs.QueueConfig) *NotificationService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, metrics: metrics, logger: cfg.Logger, now: time.Now}
	s.queue = jobs.NewQueue("notifications", s.deliver, cfg)
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for queued notifications to be written or ctx to expire.
func (s *NotificationService) Stop(ctx context.Context) error {
	return s.queue.Stop(ctx)
}

// Notify queues a notification for userID. It never waits for buffer space; a full
// queue drops the notification and reports jobs.ErrQueueFull.
func (s *NotificationService) Notify(ctx context.Context, userID string, kind models.NotificationKind, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}
	n := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Payload:   types.JSONText(raw),
		CreatedAt: s.now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, jobs.Job{ID: n.ID, Type: string(kind), Payload: n}); err != nil {
		s.metrics.RecordNotification(string(kind), "dropped")
		return err
	}
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(*models.Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.Any("payload", job.Payload))
		return nil
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.metrics.RecordNotification(string(n.Kind), "failed")
		return err
	}
	s.metrics.RecordNotification(string(n.Kind), "delivered")
	s.logger.Debug("notification stored", zap.String("notification_id", n.ID), zap.String("user_id", n.UserID), zap.String("kind", string(n.Kind)))
	return nil
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, q NotificationQuery) ([]models.Notification, *models.Pagination, error) {
	filter := models.NotificationFilter{UnreadOnly: q.UnreadOnly, Page: q.Page, PageSize: q.PageSize}
	items, total, err := s.repo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, paginationFor(q.Page, q.PageSize, total), nil
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, id, userID, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}
