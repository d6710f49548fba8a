package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("create: %w", Clone(ErrBookingConflict, "slot taken"))

	assert.True(t, errors.Is(err, ErrBookingConflict))
	assert.False(t, errors.Is(err, ErrOutsideHours))
	assert.Equal(t, "slot taken", FromError(err).Message)
	assert.Equal(t, "requested time conflicts with an existing booking", ErrBookingConflict.Message)
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(sql.ErrConnDone, ErrInternal.Code, ErrInternal.Status, "query failed")

	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.True(t, errors.Is(err, ErrInternal))
	assert.Contains(t, err.Error(), "query failed")
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	assert.Nil(t, FromError(nil))

	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}
