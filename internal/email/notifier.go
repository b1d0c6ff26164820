package email

import (
	"context"
	"fmt"
	"time"
)

// Notifier sends the access lifecycle notices. Failures are the caller's to
// log; the notices are best-effort and never gate access changes.
type Notifier struct {
	sender  Sender
	from    string
	siteURL string
}

// NewNotifier creates a Notifier that sends via the given sender.
func NewNotifier(sender Sender, from, siteURL string) *Notifier {
	return &Notifier{sender: sender, from: from, siteURL: siteURL}
}

// TrialStarted notifies a user that their trial is active.
func (n *Notifier) TrialStarted(ctx context.Context, to, displayName string, endsAt time.Time) error {
	if n == nil || n.sender == nil {
		return nil
	}
	html, text, err := RenderTrialStartedEmail(displayName, endsAt, n.siteURL)
	if err != nil {
		return err
	}
	return n.send(ctx, to, "Your Pro trial is active", html, text)
}

// ProActivated notifies a user that their paid subscription took effect.
func (n *Notifier) ProActivated(ctx context.Context, to, displayName string) error {
	if n == nil || n.sender == nil {
		return nil
	}
	html, text, err := RenderProActivatedEmail(displayName, n.siteURL)
	if err != nil {
		return err
	}
	return n.send(ctx, to, "Welcome to Pro", html, text)
}

func (n *Notifier) send(ctx context.Context, to, subject, html, text string) error {
	if n == nil || n.sender == nil {
		return nil
	}
	if to == "" {
		return fmt.Errorf("no recipient address")
	}
	return n.sender.Send(ctx, Message{
		From:    n.from,
		To:      to,
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
}
