package smtp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/lsc-studio/lscauth"
)

// Config describes the SMTP relay and the public base URL used in email links.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool

	// BaseURL is the frontend origin; links point at /verify-email and /reset-password.
	BaseURL string
}

// Sender delivers account emails through an SMTP relay with go-mail.
type Sender struct {
	cfg     Config
	baseURL string
	deliver func(ctx context.Context, msg *mail.Msg) error
}

var _ lscauth.Mailer = (*Sender)(nil)

// NewSender validates cfg and builds a Sender. Port defaults to 587.
func NewSender(cfg Config) (*Sender, error) {
	if cfg.Host == "" {
		return nil, errors.New("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("SMTP from address is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	s := &Sender{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
	s.deliver = s.dialAndSend
	return s, nil
}

// SendVerificationEmail sends the account activation link.
func (s *Sender) SendVerificationEmail(ctx context.Context, email, rawToken string) error {
	link := s.link("/verify-email", rawToken)
	body := fmt.Sprintf("Welcome!\n\nConfirm your email address by opening the link below:\n\n%s\n\nThe link expires in 24 hours. If you did not create an account, ignore this email.\n", link)
	return s.send(ctx, email, "Verify your email address", body)
}

// SendPasswordResetEmail sends the password reset link.
func (s *Sender) SendPasswordResetEmail(ctx context.Context, email, rawToken string) error {
	link := s.link("/reset-password", rawToken)
	body := fmt.Sprintf("A password reset was requested for your account.\n\nChoose a new password here:\n\n%s\n\nThe link expires in 15 minutes and works once. If you did not ask for this, ignore this email.\n", link)
	return s.send(ctx, email, "Reset your password", body)
}

// SendPasswordChangedEmail notifies the owner that the password changed.
func (s *Sender) SendPasswordChangedEmail(ctx context.Context, email string) error {
	body := "The password of your account was just changed and every active session was signed out.\n\nIf this was not you, reset your password immediately.\n"
	return s.send(ctx, email, "Your password was changed", body)
}

func (s *Sender) link(path, token string) string {
	return s.baseURL + path + "?token=" + url.QueryEscape(token)
}

func (s *Sender) send(ctx context.Context, to, subject, body string) error {
	msg, err := s.compose(to, subject, body)
	if err != nil {
		return err
	}
	return s.deliver(ctx, msg)
}

func (s *Sender) compose(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (s *Sender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// 465 is implicit TLS; every other port upgrades with STARTTLS.
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

func (s *Sender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
