package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"tastebalance"
	"tastebalance/meal"
	"tastebalance/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func newTestGate(store *storage.MemoryStore) *Gate {
	return New(store, store, WithClock(func() time.Time { return fixedNow }), WithLocation(time.UTC))
}

func TestGate_CanCapture(t *testing.T) {
	future := fixedNow.Add(48 * time.Hour)
	past := fixedNow.Add(-time.Hour)

	tests := []struct {
		name        string
		account     *tastebalance.Account
		wantAllowed bool
		wantPremium bool
		wantReason  string
	}{
		{name: "new user", wantAllowed: true},
		{
			name:        "one photo used",
			account:     &tastebalance.Account{UserID: 1, PhotosToday: 1, LastResetDate: "2025-03-10"},
			wantAllowed: true,
		},
		{
			name:       "quota reached",
			account:    &tastebalance.Account{UserID: 1, PhotosToday: 2, LastResetDate: "2025-03-10"},
			wantReason: ReasonQuotaExceeded,
		},
		{
			name:        "quota from yesterday is reset",
			account:     &tastebalance.Account{UserID: 1, PhotosToday: 2, LastResetDate: "2025-03-09"},
			wantAllowed: true,
		},
		{
			name:        "premium ignores quota",
			account:     &tastebalance.Account{UserID: 1, IsPremium: true, PremiumUntil: &future, PhotosToday: 9, LastResetDate: "2025-03-10"},
			wantAllowed: true,
			wantPremium: true,
		},
		{
			name:       "expired premium is limited",
			account:    &tastebalance.Account{UserID: 1, IsPremium: true, PremiumUntil: &past, PhotosToday: 2, LastResetDate: "2025-03-10"},
			wantReason: ReasonQuotaExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			if tt.account != nil {
				store.PutAccount(*tt.account)
			}
			g := newTestGate(store)

			d, err := g.CanCapture(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, tt.wantPremium, d.Premium)
			assert.Equal(t, tt.wantReason, d.Reason)
		})
	}
}

func TestGate_ConsumeUntilDenied(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(storage.NewMemoryStore())

	for i := 0; i < DefaultFreePhotosPerDay; i++ {
		d, err := g.CanCapture(ctx, 5)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.NoError(t, g.ConsumePhoto(ctx, 5))
	}

	d, err := g.CanCapture(ctx, 5)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestGate_Commit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	g := newTestGate(store)

	est := meal.NewEstimate([]meal.Item{
		{Name: "rice", WeightG: 200, Nutrients: meal.Nutrients{Cal: 260, Protein: 6, Fat: 2, Carbs: 56}},
		{Name: "egg", WeightG: 50, Nutrients: meal.Nutrients{Cal: 70, Protein: 6, Fat: 5, Carbs: 0.5}},
	})

	rec, err := g.Commit(ctx, 9, est)
	require.NoError(t, err)
	assert.Equal(t, tastebalance.MealRecord{
		ID: 1, UserID: 9, Description: "rice, egg",
		Cal: 330, Protein: 12, Fat: 7, Carbs: 56.5,
		Date: "2025-03-10", Time: "14:30",
	}, rec)

	// no deduplication
	_, err = g.Commit(ctx, 9, est)
	require.NoError(t, err)
	assert.Len(t, store.Meals(), 2)

	totals, err := g.DayTotals(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 660.0, totals.Cal)

	store.FailWith(errors.New("disk full"))
	_, err = g.Commit(ctx, 9, est)
	assert.Error(t, err)
}

func TestGate_GrantPremium(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(storage.NewMemoryStore())

	active, err := g.IsPremiumActive(ctx, 3)
	require.NoError(t, err)
	assert.False(t, active)

	until, err := g.GrantPremium(ctx, 3, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(30*24*time.Hour), until)

	active, err = g.IsPremiumActive(ctx, 3)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestGate_History(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	g := newTestGate(store)

	for _, date := range []string{"2025-03-03", "2025-03-04", "2025-03-10"} {
		_, err := store.AppendMeal(ctx, tastebalance.MealRecord{UserID: 1, Date: date, Time: "12:00"})
		require.NoError(t, err)
	}

	meals, err := g.History(ctx, 1, 7)
	require.NoError(t, err)
	require.Len(t, meals, 2)
	assert.Equal(t, "2025-03-04", meals[0].Date)
}
