package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmailTaken is returned by CreateUser when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

const userColumns = `id, email, display_name, password_hash, is_admin, is_pro,
	trial_ends_at, pro_cancelled_at, stripe_customer_id, created_at, updated_at`

// CreateUser inserts a new user record. Emails are stored lowercased.
func (s *Store) CreateUser(ctx context.Context, email, displayName, passwordHash string) (*User, error) {
	now := time.Now().UTC()
	email = strings.ToLower(strings.TrimSpace(email))

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, display_name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		email, displayName, passwordHash, now.Unix(), now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create user id: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser retrieves a user by ID. Returns (nil, nil) when absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	return getUser(ctx, s.db, id)
}

// GetUser retrieves a user by ID within the transaction.
func (t *Tx) GetUser(ctx context.Context, id int64) (*User, error) {
	return getUser(ctx, t.tx, id)
}

func getUser(ctx context.Context, q dbtx, id int64) (*User, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email, case-insensitively.
// Returns (nil, nil) when absent.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`,
		strings.TrimSpace(email))
	return scanUser(row)
}

// GetUserByStripeCustomerID retrieves a user by stored billing customer
// reference. Returns (nil, nil) when absent.
func (s *Store) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*User, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE stripe_customer_id = ?`, customerID)
	return scanUser(row)
}

// SetStripeCustomerID backfills the billing customer reference on a user.
func (s *Store) SetStripeCustomerID(ctx context.Context, userID int64, customerID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(customerID), now.Unix(), userID)
	if err != nil {
		return fmt.Errorf("set stripe customer id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// UpdateUserSubscriptionAccess writes the pro flags derived from a provider
// subscription snapshot. clearTrial also nulls trial_ends_at, which happens
// once a user converts to a paid subscription.
func (t *Tx) UpdateUserSubscriptionAccess(ctx context.Context, userID int64, isPro bool, proCancelledAt *time.Time, clearTrial bool) error {
	now := time.Now().UTC()
	var res sql.Result
	var err error
	if clearTrial {
		res, err = t.tx.ExecContext(ctx, `
			UPDATE users SET is_pro = ?, pro_cancelled_at = ?, trial_ends_at = NULL, updated_at = ?
			WHERE id = ?`,
			boolToInt(isPro), nullableTimeUnix(proCancelledAt), now.Unix(), userID)
	} else {
		res, err = t.tx.ExecContext(ctx, `
			UPDATE users SET is_pro = ?, pro_cancelled_at = ?, updated_at = ?
			WHERE id = ?`,
			boolToInt(isPro), nullableTimeUnix(proCancelledAt), now.Unix(), userID)
	}
	if err != nil {
		return fmt.Errorf("update user subscription access: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// UpdateUserTrial sets a new trial expiry and clears any pending cancellation
// stamp, as happens on invite claims and explicit trial starts.
func (t *Tx) UpdateUserTrial(ctx context.Context, userID int64, trialEndsAt time.Time) error {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx, `
		UPDATE users SET trial_ends_at = ?, pro_cancelled_at = NULL, updated_at = ?
		WHERE id = ?`,
		trialEndsAt.Unix(), now.Unix(), userID)
	if err != nil {
		return fmt.Errorf("update user trial: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var trialEndsAt, proCancelledAt sql.NullInt64
	var isAdmin, isPro int
	var createdAt, updatedAt int64

	err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &isAdmin, &isPro,
		&trialEndsAt, &proCancelledAt, &u.StripeCustomerID, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.IsAdmin = isAdmin != 0
	u.IsPro = isPro != 0
	u.TrialEndsAt = scanNullableTime(trialEndsAt)
	u.ProCancelledAt = scanNullableTime(proCancelledAt)
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &u, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
