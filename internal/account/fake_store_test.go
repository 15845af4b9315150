package account

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/postdeck/internal/model"
	"github.com/hitoshi/postdeck/internal/repository"
)

// --- モック ---

// fakeStore はメモリ上のAccountGroupStore。
// WithGroupLockは全体を直列化し、fnが成功した場合のみ変更を反映する。
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account

	listGroupsErr error
	lockErr       map[model.AccountGroup]error
	setFlagErr    error
	insertErr     error
	// onLock はロック取得直後、fn実行前に呼ばれる。
	onLock func(ctx context.Context, group model.AccountGroup)
	locked []model.AccountGroup
}

func newFakeStore(accounts ...*model.Account) *fakeStore {
	s := &fakeStore{accounts: map[string]*model.Account{}, lockErr: map[model.AccountGroup]error{}}
	for _, a := range accounts {
		c := *a
		s.accounts[a.ID] = &c
	}
	return s
}

func (s *fakeStore) WithGroupLock(ctx context.Context, group model.AccountGroup, fn func(ctx context.Context, tx repository.AccountGroupTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locked = append(s.locked, group)
	if s.onLock != nil {
		s.onLock(ctx, group)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.lockErr[group]; err != nil {
		return err
	}

	staged := make(map[string]*model.Account, len(s.accounts))
	for id, a := range s.accounts {
		c := *a
		staged[id] = &c
	}
	if err := fn(ctx, &fakeTx{store: s, accounts: staged, group: group}); err != nil {
		return err
	}
	s.accounts = staged
	return nil
}

func (s *fakeStore) ListGroups(ctx context.Context) ([]model.AccountGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listGroupsErr != nil {
		return nil, s.listGroupsErr
	}
	seen := map[model.AccountGroup]bool{}
	var groups []model.AccountGroup
	for _, a := range s.accounts {
		if a.IsDeleted() || seen[a.Group()] {
			continue
		}
		seen[a.Group()] = true
		groups = append(groups, a.Group())
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].String() < groups[j].String() })
	return groups, nil
}

func (s *fakeStore) get(id string) *model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil
	}
	c := *a
	return &c
}

func (s *fakeStore) defaultIDs(group model.AccountGroup) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, a := range s.accounts {
		if a.Group() == group && !a.IsDeleted() && a.IsDefault {
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

type fakeTx struct {
	store    *fakeStore
	accounts map[string]*model.Account
	group    model.AccountGroup
}

func (t *fakeTx) ListActive(ctx context.Context) ([]*model.Account, error) {
	var out []*model.Account
	for _, a := range t.accounts {
		if a.Group() == t.group && !a.IsDeleted() {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *fakeTx) Insert(ctx context.Context, a *model.Account) error {
	if t.store.insertErr != nil {
		return t.store.insertErr
	}
	if a.Group() != t.group {
		return fmt.Errorf("account %s is outside group %s", a.ID, t.group)
	}
	if _, ok := t.accounts[a.ID]; ok {
		return fmt.Errorf("duplicate account id %s", a.ID)
	}
	c := *a
	t.accounts[a.ID] = &c
	return nil
}

func (t *fakeTx) SetDefaultFlag(ctx context.Context, accountID string, isDefault bool, at time.Time) (bool, error) {
	if t.store.setFlagErr != nil {
		return false, t.store.setFlagErr
	}
	a, ok := t.accounts[accountID]
	if !ok || a.Group() != t.group || a.IsDeleted() || a.IsDefault == isDefault {
		return false, nil
	}
	a.IsDefault = isDefault
	a.UpdatedAt = at
	return true, nil
}

// --- テストデータ ---

const (
	testUserID = "user-1"
	idA        = "0b8f6f8e-0000-4000-8000-00000000000a"
	idB        = "0b8f6f8e-0000-4000-8000-00000000000b"
	idC        = "0b8f6f8e-0000-4000-8000-00000000000c"
	idD        = "0b8f6f8e-0000-4000-8000-00000000000d"
)

var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func testAccount(id string, platform model.Platform, isDefault bool, updatedAt time.Time) *model.Account {
	return &model.Account{
		ID:        id,
		UserID:    testUserID,
		Platform:  platform,
		IsDefault: isDefault,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func deleted(a *model.Account) *model.Account {
	at := a.UpdatedAt.Add(time.Minute)
	a.DeletedAt = &at
	return a
}

var (
	_ repository.AccountGroupStore = (*fakeStore)(nil)
	_ repository.AccountGroupTx    = (*fakeTx)(nil)
)
