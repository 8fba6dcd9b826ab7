package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"tastebalance/meal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle/none"},
		{StateManualTextPending, "manual_text_pending/none"},
		{StateFeedbackPending, "feedback_pending/none"},
		{StateMealReady, "meal_ready/none"},
		{StateAwaitName, "meal_ready/await_new_name"},
		{StateAwaitWeight, "meal_ready/await_new_weight"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestStore_DoSerializesPerUser(t *testing.T) {
	st := NewStore(time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.Do(ctx, 1, func(s *EditSession) error {
				if s.Meal == nil {
					est := meal.NewEstimate(nil)
					s.Meal = &est
					s.State = StateMealReady
				}
				// non-atomic read-modify-write; a lost update means Do is not exclusive
				n := len(s.Meal.Items)
				s.Meal.Items = append(s.Meal.Items, meal.Item{Name: "x", WeightG: float64(n + 1)})
				return nil
			})
		}()
	}
	wg.Wait()

	s, ok := st.Snapshot(1)
	require.True(t, ok)
	assert.Len(t, s.Meal.Items, 50)
}

func TestStore_DropsIdleSessions(t *testing.T) {
	st := NewStore(time.Hour)
	ctx := context.Background()

	require.NoError(t, st.Do(ctx, 1, func(s *EditSession) error { return nil }))
	assert.Equal(t, 0, st.Len())

	require.NoError(t, st.Do(ctx, 1, func(s *EditSession) error {
		s.State = StateManualTextPending
		return nil
	}))
	assert.Equal(t, 1, st.Len())

	require.NoError(t, st.Do(ctx, 1, func(s *EditSession) error {
		s.Reset()
		return nil
	}))
	assert.Equal(t, 0, st.Len())
}

func TestStore_DoCancelled(t *testing.T) {
	st := NewStore(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := st.Do(ctx, 1, func(s *EditSession) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestStore_Sweep(t *testing.T) {
	st := NewStore(time.Hour)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		require.NoError(t, st.Do(ctx, id, func(s *EditSession) error {
			s.State = StateFeedbackPending
			return nil
		}))
	}

	now = now.Add(50 * time.Minute)
	require.NoError(t, st.Do(ctx, 2, func(s *EditSession) error { return nil }))

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 1, st.Sweep())

	_, ok := st.Snapshot(1)
	assert.False(t, ok)
	s, ok := st.Snapshot(2)
	require.True(t, ok)
	assert.Equal(t, StateFeedbackPending, s.State)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	st := NewStore(time.Hour)
	ctx := context.Background()

	require.NoError(t, st.Do(ctx, 1, func(s *EditSession) error {
		s.SetMeal(meal.NewEstimate([]meal.Item{{Name: "apple", WeightG: 100, Nutrients: meal.Nutrients{Cal: 52}}}))
		return nil
	}))

	snap, ok := st.Snapshot(1)
	require.True(t, ok)
	snap.Meal.Items[0].Name = "pear"

	again, _ := st.Snapshot(1)
	assert.Equal(t, "apple", again.Meal.Items[0].Name)
}
