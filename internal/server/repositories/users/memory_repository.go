package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/tokenauth/internal/common"
	"github.com/dmitrijs2005/tokenauth/internal/server/models"
)

// MemoryRepository keeps users in process memory. Used by tests and by the
// "memory" storage backend.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
	claims  map[string][]models.Claim
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
		claims:  make(map[string][]models.Claim),
	}
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return nil, common.ErrorAlreadyExists
	}
	user.CreatedAt = time.Now().UTC()
	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[user.Email] = user.ID
	return user, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := *r.byID[id]
	return &u, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) ListClaims(_ context.Context, userID string) ([]models.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]models.Claim(nil), r.claims[userID]...), nil
}

func (r *MemoryRepository) AddClaim(_ context.Context, userID string, claim models.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[userID]; !ok {
		return common.ErrorNotFound
	}
	r.claims[userID] = append(r.claims[userID], claim)
	return nil
}

// Delete removes a user. The directory itself never deletes; tests use this
// to simulate an account vanishing between login and refresh.
func (r *MemoryRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.byID[id]; ok {
		delete(r.byEmail, u.Email)
	}
	delete(r.byID, id)
	delete(r.claims, id)
}
