package store

import (
	"context"
	"fmt"
	"time"
)

// inFlightTTL bounds how long an unfinished webhook event blocks redelivery.
// Past it, a crashed attempt is assumed dead and the retry is processed.
const inFlightTTL = 10 * time.Minute

// RegisterWebhookEvent records an inbound provider event ID and classifies
// the delivery. Provider retries of the same event ID land here:
//
//   - never seen            -> WebhookEventNew
//   - processed already     -> WebhookEventDuplicate (caller must not re-run)
//   - unfinished and fresh  -> WebhookEventInFlight (caller answers retryable)
//   - unfinished and stale  -> WebhookEventRetry (caller processes again)
func (s *Store) RegisterWebhookEvent(ctx context.Context, eventID, eventType string) (WebhookEventStatus, error) {
	if eventID == "" {
		return "", fmt.Errorf("event id is required")
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO webhook_events (provider_event_id, event_type, received_at)
		VALUES (?, ?, ?)`,
		eventID, eventType, now.Unix())
	if err != nil {
		return "", fmt.Errorf("register webhook event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return WebhookEventNew, nil
	}

	var processedAt, receivedAt int64
	var hasProcessed bool
	row := s.db.QueryRowContext(ctx, `
		SELECT received_at, COALESCE(processed_at, 0), processed_at IS NOT NULL
		FROM webhook_events WHERE provider_event_id = ?`, eventID)
	if err := row.Scan(&receivedAt, &processedAt, &hasProcessed); err != nil {
		return "", fmt.Errorf("load webhook event: %w", err)
	}

	if hasProcessed {
		return WebhookEventDuplicate, nil
	}
	if now.Sub(time.Unix(receivedAt, 0)) < inFlightTTL {
		return WebhookEventInFlight, nil
	}

	// Take over the stale attempt so a third delivery is fenced again.
	if _, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events SET received_at = ? WHERE provider_event_id = ?`,
		now.Unix(), eventID); err != nil {
		return "", fmt.Errorf("refresh webhook event: %w", err)
	}
	return WebhookEventRetry, nil
}

// MarkWebhookEventProcessed stamps successful completion; subsequent
// deliveries of the event ID are reported as duplicates.
func (s *Store) MarkWebhookEventProcessed(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events SET processed_at = ?, last_error = '' WHERE provider_event_id = ?`,
		now.Unix(), eventID)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("webhook event %q not registered", eventID)
	}
	return nil
}

// RecordWebhookEventError notes a failed attempt. The row stays unprocessed
// so a later redelivery can run again; received_at is rewound past the
// in-flight window so the retry is not fenced out.
func (s *Store) RecordWebhookEventError(ctx context.Context, eventID, message string) error {
	stale := time.Now().UTC().Add(-inFlightTTL)
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events SET last_error = ?, received_at = ? WHERE provider_event_id = ?`,
		message, stale.Unix(), eventID)
	if err != nil {
		return fmt.Errorf("record webhook event error: %w", err)
	}
	return nil
}
