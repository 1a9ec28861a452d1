// Package refreshtokens declares the server-side repository contract for
// refresh-token records and its PostgreSQL, Redis and in-memory
// implementations.
package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/tokenauth/internal/server/models"
)

// Repository stores refresh-token records keyed by their opaque token string.
// Records are never deleted here.
type Repository interface {
	// Get returns the record for token, or common.ErrorNotFound.
	Get(ctx context.Context, token string) (*models.RefreshToken, error)

	// Add stores a new record.
	Add(ctx context.Context, rt *models.RefreshToken) error

	// MarkUsed atomically flips Used from false to true. It returns
	// common.ErrRefreshTokenUsed when the record was already used and
	// common.ErrorNotFound when there is no record. Among concurrent callers
	// for the same token at most one gets nil.
	MarkUsed(ctx context.Context, token string) error
}
