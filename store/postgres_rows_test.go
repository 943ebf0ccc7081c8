package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// PROFILE DETAIL ROW ERRORS SUITE
// ============================================================================

var errConnReset = errors.New("connection reset by peer")

func TestProfileDetailRowErrorsSuite(t *testing.T) {
	t.Run("Broken Image Stream", func(t *testing.T) {
		testProfileDetailRowError(t, "images")
	})

	t.Run("Broken Interest Stream", func(t *testing.T) {
		testProfileDetailRowError(t, "interests")
	})
}

func testProfileDetailRowError(t *testing.T, broken string) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.NewString()
	now := time.Now()
	mock.ExpectQuery(`FROM user_profiles WHERE profile_id`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "profile_id", "first_name", "last_name", "age", "location", "occupation",
			"education", "profile_image", "bio", "height", "created_at", "updated_at",
		}).AddRow(uuid.NewString(), id, "Asha", "Rao", 29, "Goa", "Doctor", "Masters", "", "", "", now, now))

	images := sqlmock.NewRows([]string{"id", "image_url", "is_primary", "order_index"}).
		AddRow(uuid.NewString(), "/a.jpg", true, 0).
		AddRow(uuid.NewString(), "/b.jpg", false, 1)
	if broken == "images" {
		images.RowError(1, errConnReset)
	}
	mock.ExpectQuery(`FROM profile_images WHERE profile_id`).WithArgs(id).WillReturnRows(images)

	if broken == "interests" {
		mock.ExpectQuery(`FROM profile_interests WHERE profile_id`).WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id", "interest"}).
				AddRow(uuid.NewString(), "music").
				AddRow(uuid.NewString(), "yoga").
				RowError(1, errConnReset))
	}

	_, err = NewPostgres(db).ProfileDetail(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, errConnReset)
	assert.NoError(t, mock.ExpectationsWereMet())
}
