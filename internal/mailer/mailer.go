// Package mailer dispatches the one-shot completion email over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/retouchlab/retouchops/internal/config"
	"github.com/retouchlab/retouchops/internal/domain"
)

// Attachment is the edited image payload shipped with the completion email.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Mailer sends completion notifications through a configured SMTP relay.
type Mailer struct {
	cfg config.MailConfig
}

// New creates a Mailer. Fails when the relay or sender address is not
// configured, so a misconfigured deployment surfaces at startup and not on
// the first send.
func New(cfg config.MailConfig) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mail host is required")
	}
	if cfg.Sender() == "" {
		return nil, fmt.Errorf("mail sender is required (MAIL_FROM or MAIL_USERNAME)")
	}
	return &Mailer{cfg: cfg}, nil
}

// SendCompletion delivers the "your edit is ready" email with the edited
// image attached. Any delivery failure wraps domain.ErrTransport.
func (m *Mailer) SendCompletion(ctx context.Context, recipient, requestID string, att Attachment) error {
	msg, err := m.buildCompletion(recipient, requestID, att)
	if err != nil {
		return err
	}

	client, err := m.client()
	if err != nil {
		return err
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send completion email to %s: %w: %w", recipient, domain.ErrTransport, err)
	}
	return nil
}

func (m *Mailer) buildCompletion(recipient, requestID string, att Attachment) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.Sender()); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(recipient); err != nil {
		return nil, fmt.Errorf("set recipient %s: %w", recipient, err)
	}

	msg.Subject("Your Image Edit is Ready!")
	msg.SetBodyString(gomail.TypeTextPlain, completionTextBody(requestID))
	msg.AddAlternativeString(gomail.TypeTextHTML, completionHTMLBody(requestID))
	if err := msg.AttachReader(att.Filename, bytes.NewReader(att.Data),
		gomail.WithFileContentType(gomail.ContentType(att.ContentType))); err != nil {
		return nil, fmt.Errorf("attach %s: %w", att.Filename, err)
	}
	return msg, nil
}

func (m *Mailer) client() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.UseTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}

	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w: %w", domain.ErrTransport, err)
	}
	return client, nil
}

func completionTextBody(requestID string) string {
	return fmt.Sprintf("Hello,\n\nYour requested image edit (ID: %s) is complete.\nPlease find the edited image attached.\n\nThank you!", requestID)
}

func completionHTMLBody(requestID string) string {
	return fmt.Sprintf(`<p>Hello,</p>
<p>Your requested image edit (ID: <strong>%s</strong>) is complete.</p>
<p>Please find the edited image attached.</p>
<p>Thank you!</p>`, requestID)
}
