package meal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEstimate() Estimate {
	return NewEstimate([]Item{
		{Name: "chicken", WeightG: 150, Nutrients: Nutrients{Cal: 230, Protein: 32, Fat: 5, Carbs: 0}},
		{Name: "rice", WeightG: 200, Nutrients: Nutrients{Cal: 260, Protein: 6, Fat: 2, Carbs: 56}},
	})
}

func assertTotalsConsistent(t *testing.T, e Estimate) {
	t.Helper()
	var sum Nutrients
	for _, it := range e.Items {
		sum.Cal += it.Cal
		sum.Protein += it.Protein
		sum.Fat += it.Fat
		sum.Carbs += it.Carbs
	}
	assert.Equal(t, Round2(sum.Cal), e.Total.Cal)
	assert.Equal(t, Round2(sum.Protein), e.Total.Protein)
	assert.Equal(t, Round2(sum.Fat), e.Total.Fat)
	assert.Equal(t, Round2(sum.Carbs), e.Total.Carbs)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
		want  Nutrients
	}{
		{name: "no items", items: nil, want: Nutrients{}},
		{
			name: "sums and rounds",
			items: []Item{
				{Nutrients: Nutrients{Cal: 10.111, Protein: 1.25, Fat: 0.333, Carbs: 2}},
				{Nutrients: Nutrients{Cal: 20.222, Protein: 2, Fat: 0.333, Carbs: 3.5}},
			},
			want: Nutrients{Cal: 30.33, Protein: 3.25, Fat: 0.67, Carbs: 5.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.items)
			assert.InDelta(t, tt.want.Cal, got.Cal, 1e-9)
			assert.InDelta(t, tt.want.Protein, got.Protein, 1e-9)
			assert.InDelta(t, tt.want.Fat, got.Fat, 1e-9)
			assert.InDelta(t, tt.want.Carbs, got.Carbs, 1e-9)
		})
	}
}

func TestEstimate_Rename(t *testing.T) {
	t.Run("with new nutrients", func(t *testing.T) {
		e := sampleEstimate()
		err := e.Rename(1, "buckwheat", &Nutrients{Cal: 200, Protein: 8, Fat: 2, Carbs: 40})
		require.NoError(t, err)

		assert.Equal(t, "buckwheat", e.Items[1].Name)
		assert.Equal(t, 200.0, e.Items[1].Cal)
		assert.Equal(t, 200.0, e.Items[1].WeightG)
		assert.Equal(t, 430.0, e.Total.Cal)
		assertTotalsConsistent(t, e)
	})

	t.Run("keeps prior nutrients when none given", func(t *testing.T) {
		e := sampleEstimate()
		require.NoError(t, e.Rename(0, "turkey", nil))

		assert.Equal(t, "turkey", e.Items[0].Name)
		assert.Equal(t, 230.0, e.Items[0].Cal)
		assertTotalsConsistent(t, e)
	})

	t.Run("index out of range", func(t *testing.T) {
		e := sampleEstimate()
		err := e.Rename(5, "x", nil)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
		assert.Equal(t, sampleEstimate(), e)
	})
}

func TestEstimate_Reweight(t *testing.T) {
	tests := []struct {
		name       string
		index      int
		weight     float64
		wantErr    error
		wantWeight float64
		want       Nutrients
	}{
		{
			name: "doubles nutrients", index: 1, weight: 400, wantWeight: 400,
			want: Nutrients{Cal: 520, Protein: 12, Fat: 4, Carbs: 112},
		},
		{
			name: "scales and rounds", index: 0, weight: 100, wantWeight: 100,
			want: Nutrients{Cal: 153.33, Protein: 21.33, Fat: 3.33, Carbs: 0},
		},
		{
			name: "same weight is a no-op", index: 1, weight: 200, wantWeight: 200,
			want: Nutrients{Cal: 260, Protein: 6, Fat: 2, Carbs: 56},
		},
		{name: "zero rejected", index: 1, weight: 0, wantErr: ErrInvalidWeight},
		{name: "negative rejected", index: 1, weight: -5, wantErr: ErrInvalidWeight},
		{name: "NaN rejected", index: 1, weight: math.NaN(), wantErr: ErrInvalidWeight},
		{name: "above cap rejected", index: 1, weight: MaxWeightG + 1, wantErr: ErrInvalidWeight},
		{name: "huge weight rejected", index: 1, weight: 1e307, wantErr: ErrInvalidWeight},
		{name: "bad index", index: 2, weight: 50, wantErr: ErrIndexOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := sampleEstimate()
			err := e.Reweight(tt.index, tt.weight)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, sampleEstimate(), e)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWeight, e.Items[tt.index].WeightG)
			assert.Equal(t, tt.want, e.Items[tt.index].Nutrients)
			assertTotalsConsistent(t, e)
		})
	}
}

func TestEstimate_ReweightWithoutPriorWeight(t *testing.T) {
	e := NewEstimate([]Item{{Name: "sauce", Nutrients: Nutrients{Cal: 40}}})
	require.NoError(t, e.Reweight(0, 30))

	assert.Equal(t, 30.0, e.Items[0].WeightG)
	assert.Equal(t, 40.0, e.Items[0].Cal)
	assertTotalsConsistent(t, e)
}

func TestEstimate_Delete(t *testing.T) {
	e := sampleEstimate()
	clone := e.Clone()

	require.NoError(t, e.Delete(0))
	require.Len(t, e.Items, 1)
	assert.Equal(t, "rice", e.Items[0].Name)
	assert.Equal(t, 260.0, e.Total.Cal)
	assertTotalsConsistent(t, e)

	// the clone must not observe the deletion
	assert.Len(t, clone.Items, 2)
	assert.Equal(t, "chicken", clone.Items[0].Name)

	require.NoError(t, e.Delete(0))
	assert.True(t, e.Empty())
	assert.Equal(t, Nutrients{}, e.Total)

	assert.ErrorIs(t, e.Delete(0), ErrIndexOutOfRange)
}

func TestEstimate_Description(t *testing.T) {
	e := sampleEstimate()
	assert.Equal(t, "chicken, rice", e.Description())
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 153.33, Round2(153.3333))
	assert.Equal(t, 0.5, Round2(0.499))
	assert.Equal(t, 1e307, Round2(1e307))
	assert.False(t, math.IsInf(Round2(math.MaxFloat64), 0))
}

func TestParseWeight(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "150", want: 150},
		{in: " 150g ", want: 150},
		{in: "12,5 г", want: 12.5},
		{in: "80 гр", want: 80},
		{in: "250 grams", want: 250},
		{in: "0", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "100000", want: MaxWeightG},
		{in: "100001", wantErr: true},
		{in: "1e307", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWeight(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidWeight)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatWeight(t *testing.T) {
	assert.Equal(t, "150", FormatWeight(150))
	assert.Equal(t, "12.5", FormatWeight(12.5))
}
