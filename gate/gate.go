// Package gate decides who may start a photo capture and owns the single path that turns
// a confirmed estimate into a ledger row.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tastebalance"
	"tastebalance/meal"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	// DefaultFreePhotosPerDay is the daily photo allowance of non-premium users.
	DefaultFreePhotosPerDay = 2

	ReasonQuotaExceeded = "quota_exceeded"
)

// Decision is the outcome of a capture check. A denial is a normal result, not an error.
type Decision struct {
	Allowed bool
	Reason  string
	Premium bool
}

type Gate struct {
	accounts   tastebalance.AccountStore
	ledger     tastebalance.MealLedger
	loc        *time.Location
	now        func() time.Time
	freePhotos int
}

type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(g *Gate) { g.loc = loc }
}

func WithFreePhotos(n int) Option {
	return func(g *Gate) { g.freePhotos = n }
}

func New(accounts tastebalance.AccountStore, ledger tastebalance.MealLedger, opts ...Option) *Gate {
	g := &Gate{
		accounts:   accounts,
		ledger:     ledger,
		loc:        time.Local,
		now:        time.Now,
		freePhotos: DefaultFreePhotosPerDay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Now returns the current time in the gate's location.
func (g *Gate) Now() time.Time {
	return g.now().In(g.loc)
}

// Today is the local date used for quota rollover and ledger rows.
func (g *Gate) Today() string {
	return g.Now().Format(DateLayout)
}

func (g *Gate) IsPremiumActive(ctx context.Context, userID int64) (bool, error) {
	acc, err := g.accounts.GetAccount(ctx, userID, g.Today())
	if err != nil {
		return false, err
	}
	return acc.PremiumActive(g.Now()), nil
}

// CanCapture lets premium users through unconditionally and free users while today's
// photo count is below the allowance.
func (g *Gate) CanCapture(ctx context.Context, userID int64) (Decision, error) {
	acc, err := g.accounts.GetAccount(ctx, userID, g.Today())
	if err != nil {
		return Decision{}, fmt.Errorf("capture check: %w", err)
	}
	if acc.PremiumActive(g.Now()) {
		return Decision{Allowed: true, Premium: true}, nil
	}
	if acc.PhotosToday >= g.freePhotos {
		slog.Info("GATE: Photo quota reached", "user_id", userID, "photos_today", acc.PhotosToday)
		return Decision{Reason: ReasonQuotaExceeded}, nil
	}
	return Decision{Allowed: true}, nil
}

// ConsumePhoto records one photo against today's allowance.
func (g *Gate) ConsumePhoto(ctx context.Context, userID int64) error {
	n, err := g.accounts.ConsumePhoto(ctx, userID, g.Today())
	if err != nil {
		return fmt.Errorf("consume photo: %w", err)
	}
	slog.Debug("GATE: Photo consumed", "user_id", userID, "photos_today", n)
	return nil
}

// Commit appends one ledger row for the estimate. It does not deduplicate.
func (g *Gate) Commit(ctx context.Context, userID int64, est meal.Estimate) (tastebalance.MealRecord, error) {
	now := g.Now()
	rec := tastebalance.MealRecord{
		UserID:      userID,
		Description: est.Description(),
		Cal:         est.Total.Cal,
		Protein:     est.Total.Protein,
		Fat:         est.Total.Fat,
		Carbs:       est.Total.Carbs,
		Date:        now.Format(DateLayout),
		Time:        now.Format(TimeLayout),
	}
	id, err := g.ledger.AppendMeal(ctx, rec)
	if err != nil {
		return tastebalance.MealRecord{}, fmt.Errorf("commit meal: %w", err)
	}
	rec.ID = id
	slog.Info("GATE: Meal committed", "user_id", userID, "meal_id", id, "cal", rec.Cal)
	return rec, nil
}

// GrantPremium extends premium for the given duration from now.
func (g *Gate) GrantPremium(ctx context.Context, userID int64, d time.Duration) (time.Time, error) {
	until := g.Now().Add(d)
	if err := g.accounts.SetPremium(ctx, userID, &until); err != nil {
		return time.Time{}, fmt.Errorf("grant premium: %w", err)
	}
	return until, nil
}

// Account exposes the stored account with today's rollover applied.
func (g *Gate) Account(ctx context.Context, userID int64) (tastebalance.Account, error) {
	return g.accounts.GetAccount(ctx, userID, g.Today())
}

// DayTotals returns today's committed totals for the user.
func (g *Gate) DayTotals(ctx context.Context, userID int64) (tastebalance.DayTotals, error) {
	return g.ledger.DayTotals(ctx, userID, g.Today())
}

// History returns the meals of the last days days, today included.
func (g *Gate) History(ctx context.Context, userID int64, days int) ([]tastebalance.MealRecord, error) {
	from := g.Now().AddDate(0, 0, -(days - 1)).Format(DateLayout)
	return g.ledger.MealsSince(ctx, userID, from)
}
