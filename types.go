package tastebalance

import (
	"context"
	"net/http"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Tier selects which model an estimator call is served by.
type Tier int

const (
	TierLite Tier = iota
	TierPremium
)

func (t Tier) String() string {
	if t == TierPremium {
		return "premium"
	}
	return "lite"
}

// Estimator is the opaque AI collaborator. Every method returns the model's raw reply;
// callers must treat it as untrusted text.
type Estimator interface {
	EstimatePhoto(ctx context.Context, photo []byte, tier Tier) (string, error)
	EstimateText(ctx context.Context, description string, tier Tier) (string, error)
	EstimateIngredient(ctx context.Context, name string, weightG float64, tier Tier) (string, error)
}

// Account is the persisted premium and quota state of one user.
type Account struct {
	UserID        int64
	IsPremium     bool
	PremiumUntil  *time.Time
	PhotosToday   int
	LastResetDate string
}

// PremiumActive reports whether the subscription covers now. A premium account with no
// end date never expires.
func (a Account) PremiumActive(now time.Time) bool {
	if !a.IsPremium {
		return false
	}
	if a.PremiumUntil == nil {
		return true
	}
	return !a.PremiumUntil.Before(now)
}

type AccountStore interface {
	GetAccount(ctx context.Context, userID int64, today string) (Account, error)
	// ConsumePhoto atomically resets the counter on date rollover and increments it,
	// returning the new count for today.
	ConsumePhoto(ctx context.Context, userID int64, today string) (int, error)
	SetPremium(ctx context.Context, userID int64, until *time.Time) error
	// PremiumAccounts lists accounts flagged premium, whether or not the period has lapsed.
	PremiumAccounts(ctx context.Context) ([]Account, error)
}

// MealRecord is one immutable ledger row.
type MealRecord struct {
	ID          int64
	UserID      int64
	Description string
	Cal         float64
	Protein     float64
	Fat         float64
	Carbs       float64
	Date        string
	Time        string
}

type DayTotals struct {
	Cal     float64
	Protein float64
	Fat     float64
	Carbs   float64
}

type MealLedger interface {
	AppendMeal(ctx context.Context, rec MealRecord) (int64, error)
	DayTotals(ctx context.Context, userID int64, date string) (DayTotals, error)
	MealsSince(ctx context.Context, userID int64, fromDate string) ([]MealRecord, error)
}
