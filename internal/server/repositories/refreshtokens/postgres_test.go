package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tokenauth/internal/common"
	"github.com/dmitrijs2005/tokenauth/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

const (
	insertQ    = `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s*\(token,\s*jwt_id,\s*user_id,\s*created_at,\s*expires_at,\s*used,\s*invalidated\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*$`
	selectQ    = `(?s)^\s*SELECT\s+token,\s*jwt_id,\s*user_id,\s*created_at,\s*expires_at,\s*used,\s*invalidated\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`
	lockQ      = `(?s)^\s*SELECT\s+used\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s+FOR\s+UPDATE\s*$`
	markUsedQ  = `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+used\s*=\s*TRUE\s+WHERE\s+token\s*=\s*\$1\s*$`
	sampleTok  = "tok123"
	sampleJti  = "jti-1"
	sampleUser = "u1"
)

func TestAdd_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	rt := &models.RefreshToken{
		Token: sampleTok, JwtID: sampleJti, UserID: sampleUser,
		CreatedAt: now, ExpiresAt: now.AddDate(0, 6, 0),
	}

	mock.ExpectExec(insertQ).
		WithArgs(sampleTok, sampleJti, sampleUser, rt.CreatedAt, rt.ExpiresAt, false, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Add(context.Background(), rt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdd_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).WillReturnError(errors.New("db down"))

	err := repo.Add(context.Background(), &models.RefreshToken{Token: sampleTok})
	if err == nil || !regexp.MustCompile(`error performing sql request: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Now().Add(-time.Hour)
	expires := time.Now().Add(time.Hour)
	rows := sqlmock.NewRows([]string{"token", "jwt_id", "user_id", "created_at", "expires_at", "used", "invalidated"}).
		AddRow(sampleTok, sampleJti, sampleUser, created, expires, true, false)
	mock.ExpectQuery(selectQ).WithArgs(sampleTok).WillReturnRows(rows)

	got, err := repo.Get(context.Background(), sampleTok)
	require.NoError(t, err)
	assert.Equal(t, sampleJti, got.JwtID)
	assert.Equal(t, sampleUser, got.UserID)
	assert.True(t, got.ExpiresAt.Equal(expires))
	assert.True(t, got.Used)
	assert.False(t, got.Invalidated)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQ).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGet_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQ).WithArgs(sampleTok).WillReturnError(errors.New("db err"))

	_, err := repo.Get(context.Background(), sampleTok)
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestMarkUsed_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).WithArgs(sampleTok).
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(false))
	mock.ExpectExec(markUsedQ).WithArgs(sampleTok).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MarkUsed(context.Background(), sampleTok))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsed_AlreadyUsed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).WithArgs(sampleTok).
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.MarkUsed(context.Background(), sampleTok)
	assert.ErrorIs(t, err, common.ErrRefreshTokenUsed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsed_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.MarkUsed(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsed_UpdateErrorRollsBack(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).WithArgs(sampleTok).
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(false))
	mock.ExpectExec(markUsedQ).WithArgs(sampleTok).WillReturnError(errors.New("db err"))
	mock.ExpectRollback()

	err := repo.MarkUsed(context.Background(), sampleTok)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsed_BeginError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("no conn"))

	require.Error(t, repo.MarkUsed(context.Background(), sampleTok))
}
