package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

var courseColumns = []string{"id", "teacher_id", "title", "description", "duration_minutes", "price", "active", "created_at", "updated_at"}

func TestCourseRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	active := true
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE teacher_id = $1 AND active = $2 AND (LOWER(title) LIKE $3 OR LOWER(description) LIKE $3) ORDER BY title ASC LIMIT 20 OFFSET 0")).
		WithArgs("t1", true, "%math%").
		WillReturnRows(sqlmock.NewRows(courseColumns).AddRow("c1", "t1", "Math", "Algebra", 45, 25.5, true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE teacher_id = $1")).
		WithArgs("t1", true, "%math%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{TeacherID: "t1", Active: &active, Search: "Math"})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 45, courses[0].DurationMinutes)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").
		WithArgs(sqlmock.AnyArg(), "t1", "Piano", "", 60, 30.0, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	course := &models.Course{TeacherID: "t1", Title: "Piano", DurationMinutes: 60, Price: 30, Active: true}
	require.NoError(t, repo.Create(context.Background(), course))
	require.NotEmpty(t, course.ID)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1")).
		WithArgs(course.ID).
		WillReturnRows(sqlmock.NewRows(courseColumns).AddRow(course.ID, "t1", "Piano", "", 60, 30.0, true, now, now))

	found, err := repo.FindByID(context.Background(), course.ID)
	require.NoError(t, err)
	assert.Equal(t, "Piano", found.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("UPDATE courses SET title").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), &models.Course{ID: "c1", Title: "Piano II", DurationMinutes: 60, Active: false}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
