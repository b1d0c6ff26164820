package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertTip records a completed tip payment. The unique constraint on the
// checkout session ID makes redelivered webhook events harmless; the return
// value reports whether a new row was written.
func (s *Store) InsertTip(ctx context.Context, tip *Tip) (bool, error) {
	if tip == nil {
		return false, fmt.Errorf("tip is nil")
	}
	if tip.CreatedAt.IsZero() {
		tip.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO tips
			(id, tipper_email, amount_cents, stripe_session_id, stripe_payment_intent_id, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tip.ID, tip.TipperEmail, tip.AmountCents, tip.StripeSessionID,
		tip.StripePaymentIntentID, tip.Source, tip.CreatedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert tip: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// GetTipBySessionID retrieves a tip by checkout session ID.
// Returns (nil, nil) when absent.
func (s *Store) GetTipBySessionID(ctx context.Context, sessionID string) (*Tip, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tipper_email, amount_cents, stripe_session_id, stripe_payment_intent_id, source, created_at
		FROM tips WHERE stripe_session_id = ?`, sessionID)

	var t Tip
	var createdAt int64
	err := row.Scan(&t.ID, &t.TipperEmail, &t.AmountCents, &t.StripeSessionID,
		&t.StripePaymentIntentID, &t.Source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan tip: %w", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &t, nil
}
