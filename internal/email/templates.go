package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var accessTemplate = template.Must(template.New("access_notice").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 0; background-color: #f5f5f5;">
<table role="presentation" style="width: 100%; border: 0; cellpadding: 0; cellspacing: 0;">
<tr><td style="padding: 40px 0; text-align: center;">
<table role="presentation" style="max-width: 480px; margin: 0 auto; background: #ffffff; border-radius: 8px; overflow: hidden; box-shadow: 0 1px 3px rgba(0,0,0,0.1);">
<tr><td style="padding: 32px 40px; text-align: center;">
<h1 style="margin: 0 0 16px; font-size: 24px; color: #1a1a1a;">{{.Title}}</h1>
<p style="margin: 0 0 24px; color: #666; font-size: 15px; line-height: 1.5;">
{{.Body}}
</p>
{{if .CTAURL}}
<a href="{{.CTAURL}}" style="display: inline-block; padding: 12px 32px; background: #2563eb; color: #ffffff; text-decoration: none; border-radius: 6px; font-size: 15px; font-weight: 500;">
{{.CTALabel}}
</a>
{{end}}
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`))

type accessNoticeData struct {
	Title    string
	Body     string
	CTAURL   string
	CTALabel string
}

func renderAccessNotice(data accessNoticeData) (html, text string, err error) {
	var buf bytes.Buffer
	if err := accessTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render access notice template: %w", err)
	}
	textBody := fmt.Sprintf("%s\n\n%s", data.Title, data.Body)
	if data.CTAURL != "" {
		textBody += "\n\n" + data.CTAURL
	}
	return buf.String(), textBody, nil
}

// RenderTrialStartedEmail renders the notice sent when a trial is granted.
func RenderTrialStartedEmail(displayName string, endsAt time.Time, siteURL string) (html, text string, err error) {
	name := displayName
	if name == "" {
		name = "there"
	}
	return renderAccessNotice(accessNoticeData{
		Title: "Your Pro trial is active",
		Body: fmt.Sprintf("Hi %s, your Pro trial is now active until %s. Your approved artist profiles are live in the public directory.",
			name, endsAt.Format("January 2, 2006")),
		CTAURL:   siteURL,
		CTALabel: "Open Your Dashboard",
	})
}

// RenderProActivatedEmail renders the notice sent when a paid subscription
// takes effect.
func RenderProActivatedEmail(displayName, siteURL string) (html, text string, err error) {
	name := displayName
	if name == "" {
		name = "there"
	}
	return renderAccessNotice(accessNoticeData{
		Title: "Welcome to Pro",
		Body: fmt.Sprintf("Hi %s, your Pro subscription is active. Your approved artist profiles are live in the public directory and all Pro features are unlocked.",
			name),
		CTAURL:   siteURL,
		CTALabel: "Open Your Dashboard",
	})
}
