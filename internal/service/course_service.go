package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

const courseCachePattern = "courses:*"

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
}

// CourseQuery filters the public course catalog.
type CourseQuery struct {
	TeacherID string `form:"teacher_id"`
	Search    string `form:"search" validate:"omitempty,max=100"`
	Active    *bool  `form:"active"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	PageSize  int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// CreateCourseRequest publishes a new course. TeacherID is only honoured for admins.
type CreateCourseRequest struct {
	TeacherID       string  `json:"teacher_id"`
	Title           string  `json:"title" validate:"required,max=200"`
	Description     string  `json:"description" validate:"max=2000"`
	DurationMinutes int     `json:"duration_minutes" validate:"required,min=5,max=720"`
	Price           float64 `json:"price" validate:"min=0"`
	Active          *bool   `json:"active"`
}

// UpdateCourseRequest changes selected fields of a course.
type UpdateCourseRequest struct {
	Title           *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description     *string  `json:"description" validate:"omitempty,max=2000"`
	DurationMinutes *int     `json:"duration_minutes" validate:"omitempty,min=5,max=720"`
	Price           *float64 `json:"price" validate:"omitempty,min=0"`
	Active          *bool    `json:"active"`
}

type cachedCoursePage struct {
	Items []models.Course `json:"items"`
	Total int             `json:"total"`
}

// CourseService manages the course catalog. Listings are cached per filter and
// invalidated on every write.
type CourseService struct {
	repo      courseRepository
	cache     *CacheService
	ttl       time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the service. cache may be nil.
func NewCourseService(repo courseRepository, cache *CacheService, ttl time.Duration, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cache, ttl: ttl, validator: validate, logger: logger}
}

// List returns a page of courses and whether it was served from cache.
func (s *CourseService) List(ctx context.Context, q CourseQuery) ([]models.Course, *models.Pagination, bool, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course filter")
	}
	filter := models.CourseFilter{
		TeacherID: q.TeacherID,
		Search:    strings.TrimSpace(q.Search),
		Active:    q.Active,
		Page:      q.Page,
		PageSize:  q.PageSize,
	}

	key := courseListKey(filter)
	var cached cachedCoursePage
	if s.cache.Get(ctx, key, &cached) {
		return cached.Items, paginationFor(filter.Page, filter.PageSize, cached.Total), true, nil
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	s.cache.Set(ctx, key, cachedCoursePage{Items: courses, Total: total}, s.ttl)
	return courses, paginationFor(filter.Page, filter.PageSize, total), false, nil
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create publishes a course owned by the acting teacher.
func (s *CourseService) Create(ctx context.Context, actor Actor, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	teacherID := actor.ID
	switch {
	case actor.IsAdmin():
		if req.TeacherID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher_id is required")
		}
		teacherID = req.TeacherID
	case actor.Role != models.RoleTeacher:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can publish courses")
	}

	course := &models.Course{
		TeacherID:       teacherID,
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		Active:          true,
	}
	if req.Active != nil {
		course.Active = *req.Active
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.cache.Invalidate(ctx, courseCachePattern)
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("teacher_id", course.TeacherID))
	return course, nil
}

// Update edits a course. Only its teacher or an admin may do so.
func (s *CourseService) Update(ctx context.Context, actor Actor, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != course.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the owner of this course")
	}

	if req.Title != nil {
		course.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.DurationMinutes != nil {
		course.DurationMinutes = *req.DurationMinutes
	}
	if req.Price != nil {
		course.Price = *req.Price
	}
	if req.Active != nil {
		course.Active = *req.Active
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.cache.Invalidate(ctx, courseCachePattern)
	return course, nil
}

func courseListKey(f models.CourseFilter) string {
	active := "any"
	if f.Active != nil {
		active = fmt.Sprintf("%t", *f.Active)
	}
	page, pageSize := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return fmt.Sprintf("courses:list:%s:%s:%s:%d:%d", f.TeacherID, active, strings.ToLower(f.Search), page, pageSize)
}
