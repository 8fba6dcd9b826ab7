// Package digest sends premium users an evening summary of the day's saved meals.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tastebalance"
	"tastebalance/gate"
	"tastebalance/session"
)

const title = "🌙 Your day in numbers:"

type Digest struct {
	accounts tastebalance.AccountStore
	gate     *gate.Gate
	msgr     session.Messenger
}

func New(accounts tastebalance.AccountStore, g *gate.Gate, msgr session.Messenger) *Digest {
	return &Digest{accounts: accounts, gate: g, msgr: msgr}
}

// Result summarizes one digest run.
type Result struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Run messages every user with an active subscription and something saved today.
// A failure for one user does not stop the others.
func (d *Digest) Run(ctx context.Context) (Result, error) {
	accounts, err := d.accounts.PremiumAccounts(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list premium accounts: %w", err)
	}

	var res Result
	var errs []error
	now := d.gate.Now()
	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !acc.PremiumActive(now) {
			res.Skipped++
			continue
		}

		totals, err := d.gate.DayTotals(ctx, acc.UserID)
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("user %d: %w", acc.UserID, err))
			continue
		}
		if totals == (tastebalance.DayTotals{}) {
			res.Skipped++
			continue
		}

		if err := d.msgr.Send(ctx, acc.UserID, session.Reply{Text: session.RenderDayTotals(title, totals)}); err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("user %d: %w", acc.UserID, err))
			continue
		}
		res.Sent++
	}

	slog.Info("DIGEST: Run complete", "sent", res.Sent, "skipped", res.Skipped, "failed", res.Failed)
	return res, errors.Join(errs...)
}

// NextRun returns the first time at hour:00 strictly after now, in now's location.
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Schedule runs the digest once a day at hour until ctx is done.
func (d *Digest) Schedule(ctx context.Context, hour int) {
	for {
		next := NextRun(d.gate.Now(), hour)
		slog.Info("DIGEST: Next run scheduled", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := d.Run(ctx); err != nil {
			slog.Error("DIGEST: Run finished with errors", "error", err)
		}
	}
}
