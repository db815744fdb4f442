package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var verificationTmpl = template.Must(template.New("verification").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Email Verification</h2>
  <p>Hello {{.Name}},</p>
  <p>Your verification code is:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>This code will expire in {{.ExpiresIn}}.</p>
  <p>If you did not request this, you can ignore this email.</p>
</div>`))

var resetTmpl = template.Must(template.New("reset").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Password Reset</h2>
  <p>Hello {{.Name}},</p>
  <p>You requested a password reset. Click the link below to choose a new password:</p>
  <p><a href="{{.URL}}">Reset your password</a></p>
  <p>This link will expire in {{.ExpiresIn}}. If you did not request a reset, ignore this email.</p>
</div>`))

var statusTmpl = template.Must(template.New("status").Funcs(template.FuncMap{
	"title": capitalize,
	"date":  func(t time.Time) string { return t.Format("02 Jan 2006 15:04") },
}).Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Request Status Update</h2>
  <p>Hello {{.OwnerName}},</p>
  <p>Your request <strong>{{.RequestID}}</strong> has been
    <strong style="color: {{.Color}};">{{title .Status}}</strong>.</p>
  {{if .Remark}}<p><strong>Remark:</strong> {{.Remark}}</p>{{end}}
  <table style="border-collapse: collapse; width: 100%;">
    <tr><td style="padding: 6px; border: 1px solid #ddd;"><strong>Request ID</strong></td><td style="padding: 6px; border: 1px solid #ddd;">{{.RequestID}}</td></tr>
    <tr><td style="padding: 6px; border: 1px solid #ddd;"><strong>Subject</strong></td><td style="padding: 6px; border: 1px solid #ddd;">{{.Subject}}</td></tr>
    <tr><td style="padding: 6px; border: 1px solid #ddd;"><strong>Description</strong></td><td style="padding: 6px; border: 1px solid #ddd;">{{.Description}}</td></tr>
    <tr><td style="padding: 6px; border: 1px solid #ddd;"><strong>Submitted</strong></td><td style="padding: 6px; border: 1px solid #ddd;">{{date .CreatedAt}}</td></tr>
    <tr><td style="padding: 6px; border: 1px solid #ddd;"><strong>Updated</strong></td><td style="padding: 6px; border: 1px solid #ddd;">{{date .ActionAt}}</td></tr>
  </table>
</div>`))

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// VerificationEmail renders the one-time code email.
func VerificationEmail(to, name, code string, expiresIn time.Duration) (Message, error) {
	html, err := render(verificationTmpl, map[string]interface{}{
		"Name":      name,
		"Code":      code,
		"ExpiresIn": humanDuration(expiresIn),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{to}, Subject: "Email Verification Code", HTML: html}, nil
}

// PasswordResetEmail renders the reset link email.
func PasswordResetEmail(to, name, url string, expiresIn time.Duration) (Message, error) {
	html, err := render(resetTmpl, map[string]interface{}{
		"Name":      name,
		"URL":       url,
		"ExpiresIn": humanDuration(expiresIn),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{to}, Subject: "Password Reset Request", HTML: html}, nil
}

// StatusChangeEmail renders the owner notification for a status change.
func StatusChangeEmail(change StatusChange, cc []string) (Message, error) {
	html, err := render(statusTmpl, struct {
		StatusChange
		Color string
	}{change, statusColor(change.Status)})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{change.OwnerEmail},
		Cc:      cc,
		Subject: fmt.Sprintf("Request %s Status Update", change.RequestID),
		HTML:    html,
	}, nil
}

func statusColor(status string) string {
	switch status {
	case "approved":
		return "#34C759"
	case "rejected":
		return "#FF3737"
	default:
		return "#FFC107"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
