// Package meal holds the structured nutrition estimate and the operations that keep
// its totals consistent with its items.
package meal

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrIndexOutOfRange = errors.New("ingredient index out of range")
	ErrInvalidWeight   = errors.New("weight must be a positive number")
)

// MaxWeightG caps a single ingredient's weight.
const MaxWeightG = 100000

// Nutrients is the per-item or aggregate energy/macro breakdown.
type Nutrients struct {
	Cal     float64 `json:"cal"`
	Protein float64 `json:"protein"`
	Fat     float64 `json:"fat"`
	Carbs   float64 `json:"carbs"`
}

// IsZero reports whether every field is zero.
func (n Nutrients) IsZero() bool {
	return n.Cal == 0 && n.Protein == 0 && n.Fat == 0 && n.Carbs == 0
}

func (n Nutrients) rounded() Nutrients {
	return Nutrients{
		Cal:     Round2(n.Cal),
		Protein: Round2(n.Protein),
		Fat:     Round2(n.Fat),
		Carbs:   Round2(n.Carbs),
	}
}

type Item struct {
	Name    string  `json:"name"`
	WeightG float64 `json:"weight_g"`
	Nutrients
}

// Estimate is an ordered list of ingredients plus their derived totals.
// Total is only ever written by recompute.
type Estimate struct {
	Items []Item    `json:"items"`
	Total Nutrients `json:"total"`
}

// NewEstimate builds an estimate from items, computing the totals.
func NewEstimate(items []Item) Estimate {
	e := Estimate{Items: items}
	e.recompute()
	return e
}

// Round2 rounds to two decimal places. Values too large to scale are returned as is.
func Round2(v float64) float64 {
	scaled := v * 100
	if math.IsInf(scaled, 0) || math.IsNaN(scaled) {
		return v
	}
	return math.Round(scaled) / 100
}

// Aggregate sums every nutrient across items and rounds each sum to two decimals.
func Aggregate(items []Item) Nutrients {
	var sum Nutrients
	for _, it := range items {
		sum.Cal += it.Cal
		sum.Protein += it.Protein
		sum.Fat += it.Fat
		sum.Carbs += it.Carbs
	}
	return sum.rounded()
}

func (e *Estimate) recompute() {
	e.Total = Aggregate(e.Items)
}

func (e *Estimate) checkIndex(i int) error {
	if i < 0 || i >= len(e.Items) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(e.Items))
	}
	return nil
}

// Rename sets the name of item i. When n is non-nil the item's nutrients are replaced
// with it; otherwise the prior values are kept.
func (e *Estimate) Rename(i int, name string, n *Nutrients) error {
	if err := e.checkIndex(i); err != nil {
		return err
	}
	e.Items[i].Name = name
	if n != nil {
		e.Items[i].Nutrients = n.rounded()
	}
	e.recompute()
	return nil
}

// Reweight sets the weight of item i and scales its nutrients by newWeight/oldWeight.
// An item with no prior weight only gets the new weight.
func (e *Estimate) Reweight(i int, weightG float64) error {
	if !validWeight(weightG) {
		return ErrInvalidWeight
	}
	if err := e.checkIndex(i); err != nil {
		return err
	}

	it := &e.Items[i]
	old := it.WeightG
	if weightG == old {
		return nil
	}
	if old > 0 {
		f := weightG / old
		it.Nutrients = Nutrients{
			Cal:     it.Cal * f,
			Protein: it.Protein * f,
			Fat:     it.Fat * f,
			Carbs:   it.Carbs * f,
		}.rounded()
	}
	it.WeightG = weightG
	e.recompute()
	return nil
}

// Delete removes item i, preserving the order of the rest.
func (e *Estimate) Delete(i int) error {
	if err := e.checkIndex(i); err != nil {
		return err
	}
	e.Items = append(e.Items[:i:i], e.Items[i+1:]...)
	e.recompute()
	return nil
}

func (e *Estimate) Empty() bool {
	return len(e.Items) == 0
}

// Description joins the ingredient names for the ledger row.
func (e *Estimate) Description() string {
	names := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		names = append(names, it.Name)
	}
	return strings.Join(names, ", ")
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (e Estimate) Clone() Estimate {
	items := make([]Item, len(e.Items))
	copy(items, e.Items)
	return Estimate{Items: items, Total: e.Total}
}

func validWeight(w float64) bool {
	return w > 0 && w <= MaxWeightG
}

var weightSuffixes = []string{"grams", "gram", "грамм", "гр", "г", "g"}

// ParseWeight reads a user-typed weight in grams such as "150", "150g" or "12,5 г".
func ParseWeight(text string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	for _, suffix := range weightSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}
	s = strings.ReplaceAll(s, ",", ".")
	w, err := strconv.ParseFloat(s, 64)
	if err != nil || !validWeight(w) {
		return 0, ErrInvalidWeight
	}
	return w, nil
}

// FormatWeight prints a weight without trailing zeros.
func FormatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}
