// Package directory owns user accounts: creation with password policy and
// hashing, credential checks and per-user claims.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tokenauth/internal/common"
	"github.com/dmitrijs2005/tokenauth/internal/server/models"
	"github.com/dmitrijs2005/tokenauth/internal/server/repositories/users"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CreateResult reports whether a user was created. On rejection Errors holds
// every reason.
type CreateResult struct {
	Succeeded bool
	Errors    []string
}

type Directory struct {
	repo       users.Repository
	policy     PasswordPolicy
	bcryptCost int
}

type Option func(*Directory)

func WithPasswordPolicy(p PasswordPolicy) Option {
	return func(d *Directory) { d.policy = p }
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(d *Directory) { d.bcryptCost = cost }
}

func New(repo users.Repository, opts ...Option) *Directory {
	d := &Directory{
		repo:       repo,
		policy:     DefaultPasswordPolicy(),
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// FindByEmail returns nil without error when no user has the address.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := d.repo.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

// FindByID returns nil without error when the user does not exist.
func (d *Directory) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, err := d.repo.GetByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// Create validates and stores a new user. Validation problems are returned
// in the result; only storage failures produce an error. On success user.ID
// and user.CreatedAt are filled in.
func (d *Directory) Create(ctx context.Context, user *models.User, password string) (*CreateResult, error) {
	user.Email = NormalizeEmail(user.Email)

	errs := checkEmail(user.Email)
	errs = append(errs, d.policy.Check(password)...)
	if len(errs) > 0 {
		return &CreateResult{Errors: errs}, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.bcryptCost)
	if err != nil {
		// bcrypt refuses passwords longer than 72 bytes
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return &CreateResult{Errors: []string{"Passwords must be at most 72 bytes."}}, nil
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.PasswordHash = hash

	created, err := d.repo.Create(ctx, user)
	if errors.Is(err, common.ErrorAlreadyExists) {
		return &CreateResult{Errors: []string{fmt.Sprintf("Email '%s' is already taken.", user.Email)}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	*user = *created
	return &CreateResult{Succeeded: true}, nil
}

// CheckPassword reports whether password matches the user's stored hash.
func (d *Directory) CheckPassword(_ context.Context, user *models.User, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password: %w", err)
	}
}

func (d *Directory) GetClaims(ctx context.Context, user *models.User) ([]models.Claim, error) {
	claims, err := d.repo.ListClaims(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return claims, nil
}

func (d *Directory) AddClaim(ctx context.Context, user *models.User, claim models.Claim) error {
	if err := d.repo.AddClaim(ctx, user.ID, claim); err != nil {
		return fmt.Errorf("add claim: %w", err)
	}
	return nil
}
