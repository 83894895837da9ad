package user

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateNormalizesEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("Ada Lovelace", "ada@example.com", "555", "hash", RoleUser, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-1"))

	u := &User{Name: "Ada Lovelace", Email: "  Ada@Example.COM ", Phone: "555", PasswordHash: "hash"}
	require.NoError(t, NewSQLStore(db).Create(context.Background(), u))
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "ada@example.com", u.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err = NewSQLStore(db).Create(context.Background(), &User{Email: "ada@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestGetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "password_hash", "role", "created_at"}).
			AddRow("u-1", "Ada", "ada@example.com", "", "hash", RoleAdmin, now))

	u, err := NewSQLStore(db).GetByEmail(context.Background(), "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, RoleAdmin, u.Role)
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id::text = $1")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err = NewSQLStore(db).GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
