package memory

import (
	"context"
	"sync"
	"time"

	"tainment-service/internal/domain/account"
	xerrors "tainment-service/internal/pkg/errors"
)

type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[int64]*account.Account
	now      func() time.Time
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[int64]*account.Account),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *AccountRepository) Ensure(_ context.Context, id int64, displayName string) (*account.Account, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if acc, ok := r.accounts[id]; ok {
		c := *acc
		return &c, false, nil
	}
	acc := &account.Account{ID: id, DisplayName: displayName, CreatedAt: r.now()}
	r.accounts[id] = acc
	c := *acc
	return &c, true, nil
}

func (r *AccountRepository) FindByID(_ context.Context, id int64) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accounts[id]
	if !ok {
		return nil, xerrors.NotFound("account not found")
	}
	c := *acc
	return &c, nil
}
