// Package mail delivers account emails (signup OTP, password reset).
package mail

import (
	"context"
	"fmt"
	"html"

	gomail "github.com/wneessen/go-mail"
)

// Sender is the outbound email collaborator. The API layer treats delivery
// as opaque; tests swap in a fake.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) (*SMTPSender, error) {
	client, err := gomail.NewClient(host,
		gomail.WithPort(port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(username),
		gomail.WithPassword(password),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: from}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// VerificationBody renders the signup OTP email.
func VerificationBody(name, code string) string {
	return fmt.Sprintf(`<p>Dear %s,</p>
<p>Thank you for signing up. Your account activation code is:</p>
<p><strong>%s</strong></p>
<p>The code expires in one hour. If you did not request this, you can ignore this email.</p>`,
		html.EscapeString(name), html.EscapeString(code))
}

// ResetBody renders the password-reset email.
func ResetBody(name, resetURL string) string {
	return fmt.Sprintf(`<p>Dear %s,</p>
<p>A password reset was requested for your account. Follow the link below to choose a new password:</p>
<p><a href="%s">%s</a></p>
<p>The link expires in one hour. If you did not request this, you can ignore this email.</p>`,
		html.EscapeString(name), resetURL, html.EscapeString(resetURL))
}
