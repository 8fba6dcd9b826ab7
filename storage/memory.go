package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"tastebalance"
)

// MemoryStore is an in-memory AccountStore and MealLedger.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[int64]tastebalance.Account
	meals    []tastebalance.MealRecord
	nextID   int64
	err      error
}

var (
	_ tastebalance.AccountStore = (*MemoryStore)(nil)
	_ tastebalance.MealLedger   = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[int64]tastebalance.Account)}
}

// FailWith makes every subsequent call return err; nil restores normal operation.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// PutAccount seeds an account as stored.
func (m *MemoryStore) PutAccount(acc tastebalance.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acc.UserID] = acc
}

func (m *MemoryStore) GetAccount(ctx context.Context, userID int64, today string) (tastebalance.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return tastebalance.Account{}, m.err
	}
	acc, ok := m.accounts[userID]
	if !ok {
		return tastebalance.Account{UserID: userID, LastResetDate: today}, nil
	}
	if acc.LastResetDate != today {
		acc.PhotosToday = 0
		acc.LastResetDate = today
	}
	return acc, nil
}

func (m *MemoryStore) ConsumePhoto(ctx context.Context, userID int64, today string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	acc := m.accounts[userID]
	acc.UserID = userID
	if acc.LastResetDate != today {
		acc.PhotosToday = 0
		acc.LastResetDate = today
	}
	acc.PhotosToday++
	m.accounts[userID] = acc
	return acc.PhotosToday, nil
}

func (m *MemoryStore) SetPremium(ctx context.Context, userID int64, until *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	acc := m.accounts[userID]
	acc.UserID = userID
	acc.IsPremium = true
	acc.PremiumUntil = until
	m.accounts[userID] = acc
	return nil
}

func (m *MemoryStore) PremiumAccounts(ctx context.Context) ([]tastebalance.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []tastebalance.Account
	for _, acc := range m.accounts {
		if acc.IsPremium {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryStore) AppendMeal(ctx context.Context, rec tastebalance.MealRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.nextID++
	rec.ID = m.nextID
	m.meals = append(m.meals, rec)
	return rec.ID, nil
}

func (m *MemoryStore) DayTotals(ctx context.Context, userID int64, date string) (tastebalance.DayTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return tastebalance.DayTotals{}, m.err
	}
	var t tastebalance.DayTotals
	for _, r := range m.meals {
		if r.UserID == userID && r.Date == date {
			t.Cal += r.Cal
			t.Protein += r.Protein
			t.Fat += r.Fat
			t.Carbs += r.Carbs
		}
	}
	return t, nil
}

func (m *MemoryStore) MealsSince(ctx context.Context, userID int64, fromDate string) ([]tastebalance.MealRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []tastebalance.MealRecord
	for _, r := range m.meals {
		if r.UserID == userID && r.Date >= fromDate {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

// Meals returns a copy of every stored row.
func (m *MemoryStore) Meals() []tastebalance.MealRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tastebalance.MealRecord(nil), m.meals...)
}
