package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const inviteColumns = `id, code, trial_days, max_uses, used_count, is_active,
	used_at, created_at, updated_at`

// CreateInvite inserts a new invite code. maxUses nil means unlimited.
func (s *Store) CreateInvite(ctx context.Context, code string, trialDays int, maxUses *int) (*Invite, error) {
	now := time.Now().UTC()
	var maxUsesArg any
	if maxUses != nil {
		maxUsesArg = *maxUses
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO invites (code, trial_days, max_uses, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(code), trialDays, maxUsesArg, now.Unix(), now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("invite code %q already exists", code)
		}
		return nil, fmt.Errorf("create invite: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create invite id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = ?`, id)
	return scanInvite(row)
}

// GetInviteByCode looks up an invite by code, case-insensitively.
// Returns (nil, nil) when absent.
func (s *Store) GetInviteByCode(ctx context.Context, code string) (*Invite, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM invites WHERE code = ? COLLATE NOCASE`,
		strings.TrimSpace(code))
	return scanInvite(row)
}

// SetInviteActive enables or disables an invite.
func (s *Store) SetInviteActive(ctx context.Context, id int64, active bool) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE invites SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), now.Unix(), id)
	if err != nil {
		return fmt.Errorf("set invite active: %w", err)
	}
	return nil
}

// ConsumeInvite increments used_count only while the invite is active and
// under its cap. The conditional update is the guard against two concurrent
// claims both passing the pre-check and incrementing past max_uses.
// Returns false when the invite was not consumable.
func (t *Tx) ConsumeInvite(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx, `
		UPDATE invites
		SET used_count = used_count + 1, used_at = ?, updated_at = ?
		WHERE id = ? AND is_active = 1 AND (max_uses IS NULL OR used_count < max_uses)`,
		now.Unix(), now.Unix(), id)
	if err != nil {
		return false, fmt.Errorf("consume invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume invite rows: %w", err)
	}
	return n == 1, nil
}

func scanInvite(row *sql.Row) (*Invite, error) {
	var i Invite
	var maxUses sql.NullInt64
	var isActive int
	var usedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&i.ID, &i.Code, &i.TrialDays, &maxUses, &i.UsedCount, &isActive,
		&usedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan invite: %w", err)
	}

	if maxUses.Valid {
		v := int(maxUses.Int64)
		i.MaxUses = &v
	}
	i.IsActive = isActive != 0
	i.UsedAt = scanNullableTime(usedAt)
	i.CreatedAt = time.Unix(createdAt, 0).UTC()
	i.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &i, nil
}
