package email

import (
	"strings"
	"testing"
	"time"
)

func TestRenderTrialStartedEmail(t *testing.T) {
	endsAt := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	html, text, err := RenderTrialStartedEmail("Alex", endsAt, "https://example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "April 1, 2026") || !strings.Contains(text, "April 1, 2026") {
		t.Fatalf("trial end date missing from rendered email")
	}
	if !strings.Contains(html, "https://example.com") {
		t.Fatalf("site link missing from rendered email")
	}
	if !strings.Contains(html, "Alex") {
		t.Fatalf("display name missing from rendered email")
	}
}

func TestRenderProActivatedEmailFallbackName(t *testing.T) {
	html, text, err := RenderProActivatedEmail("", "https://example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "Hi there") || !strings.Contains(text, "Hi there") {
		t.Fatalf("empty display name must fall back to a greeting")
	}
}

func TestNotifierWithoutSenderIsNoop(t *testing.T) {
	var n *Notifier
	if err := n.ProActivated(t.Context(), "a@example.com", "A"); err != nil {
		t.Fatalf("nil notifier must be a no-op, got %v", err)
	}
}

func TestLogSenderCaptures(t *testing.T) {
	var gotTo, gotSubject string
	s := NewLogSender(func(to, subject, _ string) {
		gotTo, gotSubject = to, subject
	})
	n := NewNotifier(s, "noreply@example.com", "https://example.com")
	if err := n.ProActivated(t.Context(), "fan@example.com", "Fan"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotTo != "fan@example.com" || gotSubject != "Welcome to Pro" {
		t.Fatalf("captured to=%q subject=%q", gotTo, gotSubject)
	}
}
