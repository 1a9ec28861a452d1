package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tokenauth/internal/common"
	"github.com/dmitrijs2005/tokenauth/internal/dbx"
	"github.com/dmitrijs2005/tokenauth/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Add(ctx context.Context, rt *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (token, jwt_id, user_id, created_at, expires_at, used, invalidated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		rt.Token, rt.JwtID, rt.UserID, rt.CreatedAt, rt.ExpiresAt, rt.Used, rt.Invalidated)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `
		SELECT token, jwt_id, user_id, created_at, expires_at, used, invalidated
		FROM refresh_tokens
		WHERE token = $1
	`
	rt := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, token).
		Scan(&rt.Token, &rt.JwtID, &rt.UserID, &rt.CreatedAt, &rt.ExpiresAt, &rt.Used, &rt.Invalidated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rt, nil
}

// MarkUsed locks the row, checks the flag and updates it inside one
// transaction. A concurrent caller blocks on the row lock and then observes
// used = true.
func (r *PostgresRepository) MarkUsed(ctx context.Context, token string) error {
	return dbx.RunInTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		var used bool
		err := tx.QueryRowContext(ctx, `
			SELECT used
			FROM refresh_tokens
			WHERE token = $1
			FOR UPDATE
		`, token).Scan(&used)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return common.ErrorNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}
		if used {
			return common.ErrRefreshTokenUsed
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE refresh_tokens
			SET used = TRUE
			WHERE token = $1
		`, token); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}
