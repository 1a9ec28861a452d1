package refreshtokens

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/tokenauth/internal/common"
	"github.com/dmitrijs2005/tokenauth/internal/server/models"
)

// MemoryRepository serializes all access behind one mutex, which makes
// MarkUsed a single-writer check-and-set.
type MemoryRepository struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]models.RefreshToken)}
}

func (r *MemoryRepository) Add(_ context.Context, rt *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[rt.Token]; ok {
		return common.ErrorAlreadyExists
	}
	r.tokens[rt.Token] = *rt
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, token string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rt, nil
}

func (r *MemoryRepository) MarkUsed(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.tokens[token]
	if !ok {
		return common.ErrorNotFound
	}
	if rt.Used {
		return common.ErrRefreshTokenUsed
	}
	rt.Used = true
	r.tokens[token] = rt
	return nil
}

// Invalidate flags a record as invalidated. Invalidation policy lives
// outside the rotation flow; this hook exists for operators and tests.
func (r *MemoryRepository) Invalidate(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rt, ok := r.tokens[token]; ok {
		rt.Invalidated = true
		r.tokens[token] = rt
	}
}
