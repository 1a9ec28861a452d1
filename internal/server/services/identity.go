package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenauth/internal/common"
	"github.com/dmitrijs2005/tokenauth/internal/logging"
	"github.com/dmitrijs2005/tokenauth/internal/server/auth"
	"github.com/dmitrijs2005/tokenauth/internal/server/directory"
	"github.com/dmitrijs2005/tokenauth/internal/server/models"
	"github.com/dmitrijs2005/tokenauth/internal/server/repositories/refreshtokens"
	"github.com/google/uuid"
)

const (
	msgUserAlreadyExists       = "User with this email address already exists"
	msgUserNotFound            = "User does not exist"
	msgInvalidCredentials      = "User/password combination is wrong"
	msgInvalidToken            = "Invalid token"
	msgTokenNotYetExpired      = "This token hasn't expired yet"
	msgRefreshTokenNotFound    = "This refresh token does not exist"
	msgRefreshTokenExpired     = "This refresh token has expired"
	msgRefreshTokenInvalidated = "This refresh token has been invalidated"
	msgRefreshTokenUsed        = "This refresh token has been used"
	msgTokenMismatch           = "This refresh token does not match this JWT"
)

// UserDirectory is the account store the service authenticates against.
// Find methods return nil without error when the user does not exist.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User, password string) (*directory.CreateResult, error)
	CheckPassword(ctx context.Context, user *models.User, password string) (bool, error)
	GetClaims(ctx context.Context, user *models.User) ([]models.Claim, error)
	AddClaim(ctx context.Context, user *models.User, claim models.Claim) error
}

// Options tunes token lifetimes and the claims granted on registration.
type Options struct {
	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration // zero means six calendar months
	DefaultClaims        []models.Claim
	Now                  func() time.Time
}

// DefaultClaims are granted to every newly registered user.
func DefaultClaims() []models.Claim {
	return []models.Claim{{Type: "tags.view", Value: "true"}}
}

// IdentityService issues access/refresh token pairs on registration and
// login, and rotates them on refresh.
type IdentityService struct {
	users  UserDirectory
	tokens refreshtokens.Repository
	codec  *auth.Codec
	logger logging.Logger
	opts   Options
}

func NewIdentityService(users UserDirectory, tokens refreshtokens.Repository, codec *auth.Codec, logger logging.Logger, opts Options) *IdentityService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &IdentityService{
		users:  users,
		tokens: tokens,
		codec:  codec,
		logger: logger,
		opts:   opts,
	}
}

// Register creates an account, grants the default claims and returns a
// fresh token pair.
func (s *IdentityService) Register(ctx context.Context, email, password string) (*models.AuthResult, error) {
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if existing != nil {
		return models.Failure(models.ReasonUserAlreadyExists, msgUserAlreadyExists), nil
	}

	user := &models.User{Email: email}
	res, err := s.users.Create(ctx, user, password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if !res.Succeeded {
		s.logger.Warn(ctx, "registration rejected", "reasons", len(res.Errors))
		return models.Failure(models.ReasonRegistrationRejected, res.Errors...), nil
	}

	for _, c := range s.opts.DefaultClaims {
		if err := s.users.AddClaim(ctx, user, c); err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return s.mintAndPair(ctx, user)
}

// Login checks credentials and returns a fresh token pair.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*models.AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if user == nil {
		s.logger.Warn(ctx, "login rejected: unknown user")
		return models.Failure(models.ReasonUserNotFound, msgUserNotFound), nil
	}

	ok, err := s.users.CheckPassword(ctx, user, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !ok {
		s.logger.Warn(ctx, "login rejected: wrong password", "user_id", user.ID)
		return models.Failure(models.ReasonInvalidCredentials, msgInvalidCredentials), nil
	}

	return s.mintAndPair(ctx, user)
}

// RefreshToken exchanges an expired access token and the refresh token it
// was issued with for a new pair. The refresh token is consumed.
func (s *IdentityService) RefreshToken(ctx context.Context, accessToken, refreshToken string) (*models.AuthResult, error) {
	claims, err := s.codec.DecodeIgnoringExpiry(accessToken)
	if err != nil || claims.ExpiresAt == nil {
		return s.rejectRefresh(ctx, models.ReasonInvalidToken, msgInvalidToken), nil
	}

	now := s.opts.Now()
	if claims.Expiry().After(now) {
		return s.rejectRefresh(ctx, models.ReasonTokenNotYetExpired, msgTokenNotYetExpired), nil
	}

	record, err := s.tokens.Get(ctx, refreshToken)
	if errors.Is(err, common.ErrorNotFound) {
		return s.rejectRefresh(ctx, models.ReasonRefreshTokenNotFound, msgRefreshTokenNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	switch {
	case now.After(record.ExpiresAt):
		return s.rejectRefresh(ctx, models.ReasonRefreshTokenExpired, msgRefreshTokenExpired), nil
	case record.Invalidated:
		return s.rejectRefresh(ctx, models.ReasonRefreshTokenInvalidated, msgRefreshTokenInvalidated), nil
	case record.Used:
		return s.rejectRefresh(ctx, models.ReasonRefreshTokenUsed, msgRefreshTokenUsed), nil
	case record.JwtID != claims.ID:
		return s.rejectRefresh(ctx, models.ReasonTokenMismatch, msgTokenMismatch), nil
	}

	// a concurrent rotation may have consumed the token since Get
	err = s.tokens.MarkUsed(ctx, refreshToken)
	switch {
	case errors.Is(err, common.ErrRefreshTokenUsed):
		return s.rejectRefresh(ctx, models.ReasonRefreshTokenUsed, msgRefreshTokenUsed), nil
	case errors.Is(err, common.ErrorNotFound):
		return s.rejectRefresh(ctx, models.ReasonRefreshTokenNotFound, msgRefreshTokenNotFound), nil
	case err != nil:
		return nil, fmt.Errorf("refresh: %w", err)
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if user == nil {
		return s.rejectRefresh(ctx, models.ReasonUserNotFound, msgUserNotFound), nil
	}

	return s.mintAndPair(ctx, user)
}

func (s *IdentityService) rejectRefresh(ctx context.Context, reason models.FailureReason, msg string) *models.AuthResult {
	s.logger.Warn(ctx, "refresh rejected", "reason", string(reason))
	return models.Failure(reason, msg)
}

func (s *IdentityService) mintAndPair(ctx context.Context, user *models.User) (*models.AuthResult, error) {
	persisted, err := s.users.GetClaims(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}

	claims := auth.Claims{Email: user.Email, UserID: user.ID}
	claims.ID = uuid.NewString()
	if len(persisted) > 0 {
		claims.Extra = make(map[string]string, len(persisted))
		for _, c := range persisted {
			claims.Extra[c.Type] = c.Value
		}
	}

	token, err := s.codec.Mint(user.Email, claims, s.opts.AccessTokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	refresh, err := common.MakeRandHexString(common.RefreshTokenSize)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.opts.Now().UTC()
	record := &models.RefreshToken{
		Token:     refresh,
		JwtID:     claims.ID,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: s.refreshExpiry(now),
	}
	if err := s.tokens.Add(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &models.AuthResult{
		Success:      true,
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
	}, nil
}

func (s *IdentityService) refreshExpiry(now time.Time) time.Time {
	if s.opts.RefreshTokenLifetime > 0 {
		return now.Add(s.opts.RefreshTokenLifetime)
	}
	return now.AddDate(0, 6, 0)
}
