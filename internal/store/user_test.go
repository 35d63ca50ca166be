package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasknest/apiserver/types"
)

var userRowColumns = []string{"id", "name", "email", "password_hash", "created_at", "updated_at"}

func TestUserRepositoryGetByEmail(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE email = $1")).
		WithArgs("ann@x.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(id.String(), "Ann", "ann@x.com", "$2a$10$hash", now, now))

	user, err := NewUserRepository(db).GetByEmail(context.Background(), "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "$2a$10$hash", user.PasswordHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryGetByIDMissing(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := NewUserRepository(db).GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateDuplicateEmail(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := NewUserRepository(db).Create(context.Background(), types.User{Name: "Ann", Email: "ann@x.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateAssignsID(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(sqlmock.AnyArg(), "Ann", "ann@x.com", "h", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := NewUserRepository(db).Create(context.Background(), types.User{Name: "Ann", Email: "ann@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
