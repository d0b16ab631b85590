package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// Message is one plain-text mail.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
	Date    time.Time
}

// Mailer sends a Message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// CredentialsFunc resolves SMTP credentials right before sending.
type CredentialsFunc func(ctx context.Context) (username, password string, err error)

// StaticCredentials returns fixed credentials.
func StaticCredentials(username, password string) CredentialsFunc {
	return func(context.Context) (string, string, error) { return username, password, nil }
}

// Msg converts m into a go-mail message. The body is quoted-printable
// encoded, so long log lines are soft-wrapped.
func (m Message) Msg() (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithEncoding(mail.EncodingQP), mail.WithCharset(mail.CharsetUTF8))
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("sender %q: %w", m.From, err)
	}
	if err := msg.To(m.To...); err != nil {
		return nil, fmt.Errorf("recipients %v: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	if m.Date.IsZero() {
		msg.SetDate()
	} else {
		msg.SetDateWithValue(m.Date)
	}
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}

// Bytes renders the message as it goes over the wire.
func (m Message) Bytes() ([]byte, error) {
	msg, err := m.Msg()
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	if _, err := msg.WriteTo(&b); err != nil {
		return nil, fmt.Errorf("render message: %w", err)
	}
	return b.Bytes(), nil
}

// SMTPMailer delivers through an SMTP relay with optional STARTTLS and PLAIN auth.
type SMTPMailer struct {
	Host        string
	Port        int
	StartTLS    bool
	Timeout     time.Duration
	Credentials CredentialsFunc
}

var _ Mailer = (*SMTPMailer)(nil)

func (m *SMTPMailer) options(user, pass string) []mail.Option {
	opts := []mail.Option{mail.WithPort(m.Port)}
	if m.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.Timeout))
	}
	if m.StartTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(pass),
		)
	}
	return opts
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	var user, pass string
	if m.Credentials != nil {
		var err error
		if user, pass, err = m.Credentials(ctx); err != nil {
			return fmt.Errorf("smtp credentials: %w", err)
		}
	}

	out, err := msg.Msg()
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.Host, m.options(user, pass)...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("smtp %s:%d: %w", m.Host, m.Port, err)
	}
	return nil
}
