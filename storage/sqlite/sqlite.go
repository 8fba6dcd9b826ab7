// Package sqlite persists accounts, the meal ledger and the estimate cache in a single
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tastebalance"
)

type Store struct {
	db *sql.DB
}

var (
	_ tastebalance.AccountStore = (*Store)(nil)
	_ tastebalance.MealLedger   = (*Store)(nil)
)

// Open opens (creating if needed) the database at path. A single connection is used so
// quota increments and ledger inserts never contend.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
    PRAGMA busy_timeout = 5000;

    CREATE TABLE IF NOT EXISTS meals (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER NOT NULL,
        description TEXT NOT NULL,
        calories REAL NOT NULL,
        protein REAL NOT NULL,
        fat REAL NOT NULL,
        carbs REAL NOT NULL,
        date TEXT NOT NULL,
        time TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS users (
        user_id INTEGER PRIMARY KEY,
        is_premium INTEGER NOT NULL DEFAULT 0,
        last_date TEXT,
        photos_today INTEGER NOT NULL DEFAULT 0,
        premium_until TEXT
    );

    CREATE TABLE IF NOT EXISTS cache (
        hash TEXT PRIMARY KEY,
        result TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_meals_user_date ON meals(user_id, date);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID int64, today string) (tastebalance.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT is_premium, premium_until, photos_today, last_date FROM users WHERE user_id = ?`, userID)

	var (
		isPremium    int
		premiumUntil sql.NullString
		photos       int
		lastDate     sql.NullString
	)
	err := row.Scan(&isPremium, &premiumUntil, &photos, &lastDate)
	if errors.Is(err, sql.ErrNoRows) {
		return tastebalance.Account{UserID: userID, LastResetDate: today}, nil
	}
	if err != nil {
		return tastebalance.Account{}, fmt.Errorf("failed to load account %d: %w", userID, err)
	}

	acc := tastebalance.Account{
		UserID:        userID,
		IsPremium:     isPremium != 0,
		PhotosToday:   photos,
		LastResetDate: lastDate.String,
	}
	if lastDate.String != today {
		acc.PhotosToday = 0
		acc.LastResetDate = today
	}
	if premiumUntil.Valid && premiumUntil.String != "" {
		until, err := time.Parse(time.RFC3339, premiumUntil.String)
		if err != nil {
			return tastebalance.Account{}, fmt.Errorf("failed to parse premium_until for %d: %w", userID, err)
		}
		acc.PremiumUntil = &until
	}
	return acc, nil
}

func (s *Store) ConsumePhoto(ctx context.Context, userID int64, today string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO users (user_id, photos_today, last_date) VALUES (?, 1, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            photos_today = CASE WHEN users.last_date = excluded.last_date THEN users.photos_today + 1 ELSE 1 END,
            last_date = excluded.last_date
        RETURNING photos_today`, userID, today)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to consume photo for %d: %w", userID, err)
	}
	return n, nil
}

// SetPremium flags the account premium until the given time, or indefinitely when until is nil.
func (s *Store) SetPremium(ctx context.Context, userID int64, until *time.Time) error {
	var untilStr sql.NullString
	if until != nil {
		untilStr = sql.NullString{String: until.UTC().Format(time.RFC3339), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (user_id, is_premium, premium_until) VALUES (?, 1, ?)
        ON CONFLICT(user_id) DO UPDATE SET is_premium = 1, premium_until = excluded.premium_until`,
		userID, untilStr)
	if err != nil {
		return fmt.Errorf("failed to set premium for %d: %w", userID, err)
	}
	return nil
}

func (s *Store) PremiumAccounts(ctx context.Context) ([]tastebalance.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, premium_until FROM users WHERE is_premium = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query premium users: %w", err)
	}
	defer rows.Close()

	var accounts []tastebalance.Account
	for rows.Next() {
		var (
			id    int64
			until sql.NullString
		)
		if err := rows.Scan(&id, &until); err != nil {
			return nil, fmt.Errorf("failed to scan premium user: %w", err)
		}
		acc := tastebalance.Account{UserID: id, IsPremium: true}
		if until.Valid && until.String != "" {
			t, err := time.Parse(time.RFC3339, until.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse premium_until for %d: %w", id, err)
			}
			acc.PremiumUntil = &t
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (s *Store) AppendMeal(ctx context.Context, rec tastebalance.MealRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO meals (user_id, description, calories, protein, fat, carbs, date, time)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.Description, rec.Cal, rec.Protein, rec.Fat, rec.Carbs, rec.Date, rec.Time)
	if err != nil {
		return 0, fmt.Errorf("failed to insert meal: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) DayTotals(ctx context.Context, userID int64, date string) (tastebalance.DayTotals, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(calories), 0), COALESCE(SUM(protein), 0), COALESCE(SUM(fat), 0), COALESCE(SUM(carbs), 0)
        FROM meals WHERE user_id = ? AND date = ?`, userID, date)

	var t tastebalance.DayTotals
	if err := row.Scan(&t.Cal, &t.Protein, &t.Fat, &t.Carbs); err != nil {
		return tastebalance.DayTotals{}, fmt.Errorf("failed to sum meals: %w", err)
	}
	return t, nil
}

func (s *Store) MealsSince(ctx context.Context, userID int64, fromDate string) ([]tastebalance.MealRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, description, calories, protein, fat, carbs, date, time
        FROM meals WHERE user_id = ? AND date >= ?
        ORDER BY date, time, id`, userID, fromDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}
	defer rows.Close()

	var meals []tastebalance.MealRecord
	for rows.Next() {
		m := tastebalance.MealRecord{UserID: userID}
		if err := rows.Scan(&m.ID, &m.Description, &m.Cal, &m.Protein, &m.Fat, &m.Carbs, &m.Date, &m.Time); err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		meals = append(meals, m)
	}
	return meals, rows.Err()
}

// GetEstimate returns a cached raw estimator reply.
func (s *Store) GetEstimate(ctx context.Context, key string) (string, bool, error) {
	var result string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM cache WHERE hash = ?`, key).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache: %w", err)
	}
	return result, true, nil
}

func (s *Store) PutEstimate(ctx context.Context, key, result string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (hash, result) VALUES (?, ?)`, key, result); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}
