package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const artistColumns = `id, user_id, display_name, slug, is_pro, trial_active,
	is_approved, is_listed, deleted_at, created_at, updated_at`

// CreateArtist inserts a new artist profile (unapproved and unlisted).
func (s *Store) CreateArtist(ctx context.Context, userID int64, displayName, slug string) (*Artist, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO artists (user_id, display_name, slug, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		userID, displayName, slug, now.Unix(), now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("artist slug %q already exists", slug)
		}
		return nil, fmt.Errorf("create artist: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create artist id: %w", err)
	}
	return s.GetArtist(ctx, id)
}

// GetArtist retrieves an artist by ID. Returns (nil, nil) when absent.
func (s *Store) GetArtist(ctx context.Context, id int64) (*Artist, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+artistColumns+` FROM artists WHERE id = ?`, id)
	return scanArtist(row)
}

// ListArtistsByOwner returns all profiles owned by the user, including
// soft-deleted ones so callers can make their own visibility decisions.
func (s *Store) ListArtistsByOwner(ctx context.Context, userID int64) ([]*Artist, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+artistColumns+` FROM artists WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list artists by owner: %w", err)
	}
	defer rows.Close()

	var artists []*Artist
	for rows.Next() {
		a, err := scanArtistRows(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// ListListedArtists returns the public directory: approved, listed,
// non-deleted profiles.
func (s *Store) ListListedArtists(ctx context.Context) ([]*Artist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+artistColumns+` FROM artists
		WHERE is_listed = 1 AND is_approved = 1 AND deleted_at IS NULL
		ORDER BY display_name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list listed artists: %w", err)
	}
	defer rows.Close()

	var artists []*Artist
	for rows.Next() {
		a, err := scanArtistRows(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// SetArtistApproval flips the moderation flag. Returns the updated record,
// or (nil, nil) when the artist does not exist.
func (s *Store) SetArtistApproval(ctx context.Context, id int64, approved bool) (*Artist, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE artists SET is_approved = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		boolToInt(approved), now.Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("set artist approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetArtist(ctx, id)
}

// SetArtistListed flips public listing directly (owner/admin action).
func (s *Store) SetArtistListed(ctx context.Context, id int64, listed bool) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE artists SET is_listed = ?, updated_at = ? WHERE id = ?`,
		boolToInt(listed), now.Unix(), id)
	if err != nil {
		return fmt.Errorf("set artist listed: %w", err)
	}
	return nil
}

// SetArtistAccessFlags writes the pro/trial mirror flags directly, as
// onboarding does when a profile starts inside an active trial.
func (s *Store) SetArtistAccessFlags(ctx context.Context, id int64, isPro, trialActive bool) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE artists SET is_pro = ?, trial_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(isPro), boolToInt(trialActive), now.Unix(), id)
	if err != nil {
		return fmt.Errorf("set artist access flags: %w", err)
	}
	return nil
}

// SoftDeleteArtist marks the profile deleted without removing the row.
func (s *Store) SoftDeleteArtist(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE artists SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now.Unix(), now.Unix(), id)
	if err != nil {
		return fmt.Errorf("soft delete artist: %w", err)
	}
	return nil
}

// SyncArtistAccess mirrors the owning user's pro state onto every non-deleted
// profile. When proActive is true the trial flag is forced off; when false the
// trial flag is left alone.
func (t *Tx) SyncArtistAccess(ctx context.Context, userID int64, proActive bool) error {
	now := time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, `
		UPDATE artists
		SET is_pro = ?,
		    trial_active = CASE WHEN ? THEN 0 ELSE trial_active END,
		    updated_at = ?
		WHERE user_id = ? AND deleted_at IS NULL`,
		boolToInt(proActive), boolToInt(proActive), now.Unix(), userID)
	if err != nil {
		return fmt.Errorf("sync artist access: %w", err)
	}
	return nil
}

// AutoListApprovedArtists publishes approved, unlisted, non-deleted profiles
// owned by the user. It never unlists; losing access leaves listings alone.
func (t *Tx) AutoListApprovedArtists(ctx context.Context, userID int64) (int64, error) {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx, `
		UPDATE artists SET is_listed = 1, updated_at = ?
		WHERE user_id = ? AND deleted_at IS NULL AND is_approved = 1 AND is_listed = 0`,
		now.Unix(), userID)
	if err != nil {
		return 0, fmt.Errorf("auto-list artists: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanArtist(row *sql.Row) (*Artist, error) {
	var a Artist
	var userID sql.NullInt64
	var isPro, trialActive, isApproved, isListed int
	var deletedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&a.ID, &userID, &a.DisplayName, &a.Slug, &isPro, &trialActive,
		&isApproved, &isListed, &deletedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan artist: %w", err)
	}
	applyArtistFields(&a, userID, isPro, trialActive, isApproved, isListed, deletedAt, createdAt, updatedAt)
	return &a, nil
}

func scanArtistRows(rows *sql.Rows) (*Artist, error) {
	var a Artist
	var userID sql.NullInt64
	var isPro, trialActive, isApproved, isListed int
	var deletedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := rows.Scan(
		&a.ID, &userID, &a.DisplayName, &a.Slug, &isPro, &trialActive,
		&isApproved, &isListed, &deletedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan artist: %w", err)
	}
	applyArtistFields(&a, userID, isPro, trialActive, isApproved, isListed, deletedAt, createdAt, updatedAt)
	return &a, nil
}

func applyArtistFields(a *Artist, userID sql.NullInt64, isPro, trialActive, isApproved, isListed int, deletedAt sql.NullInt64, createdAt, updatedAt int64) {
	if userID.Valid {
		v := userID.Int64
		a.UserID = &v
	}
	a.IsPro = isPro != 0
	a.TrialActive = trialActive != 0
	a.IsApproved = isApproved != 0
	a.IsListed = isListed != 0
	a.DeletedAt = scanNullableTime(deletedAt)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
}
