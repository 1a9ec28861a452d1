// Package users declares the persistence contract of the user directory and
// its PostgreSQL and in-memory implementations.
package users

import (
	"context"

	"github.com/dmitrijs2005/tokenauth/internal/server/models"
)

// Repository stores users and their extra claims. Lookups return
// common.ErrorNotFound when nothing matches; Create returns
// common.ErrorAlreadyExists when the email is taken.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	ListClaims(ctx context.Context, userID string) ([]models.Claim, error)
	AddClaim(ctx context.Context, userID string, claim models.Claim) error
}
