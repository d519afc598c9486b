// Package notify provides delivery gateways for account lifecycle
// notifications: an SMTP mailer for user-facing messages and an AMQP
// publisher that feeds operational events to the back office queue.
package notify

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/gomail.v2"

	accounts "github.com/ecopulse/go-accounts"
)

// SMTPConfig carries the relay settings for the mail gateway.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) validate() error {
	if c.Host == "" {
		return goerrors.New("smtp gateway requires a host", goerrors.CategoryValidation)
	}
	if c.Port == 0 {
		return goerrors.New("smtp gateway requires a port", goerrors.CategoryValidation)
	}
	if c.From == "" {
		return goerrors.New("smtp gateway requires a from address", goerrors.CategoryValidation)
	}
	return nil
}

// SMTPNotifier renders lifecycle notifications as plain text email and
// delivers them through a gomail dialer.
type SMTPNotifier struct {
	config SMTPConfig
	dialer *gomail.Dialer
	logger accounts.Logger
}

type SMTPOption func(*SMTPNotifier)

func WithSMTPLogger(logger accounts.Logger) SMTPOption {
	return func(n *SMTPNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func NewSMTPNotifier(cfg SMTPConfig, opts ...SMTPOption) (*SMTPNotifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	n := &SMTPNotifier{
		config: cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n, nil
}

// Send implements accounts.Notifier.
func (n *SMTPNotifier) Send(ctx context.Context, msg accounts.Notification) error {
	if msg.Recipient == "" {
		return goerrors.New("notification has no recipient", goerrors.CategoryValidation)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.config.From)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", subjectFor(msg))
	m.SetBody("text/plain", bodyFor(msg))

	if err := n.dialer.DialAndSend(m); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp delivery failed")
	}

	if n.logger != nil {
		n.logger.Debug("delivered %s email to %s", msg.Kind, msg.Recipient)
	}

	return nil
}

func subjectFor(msg accounts.Notification) string {
	if msg.Subject != "" {
		return msg.Subject
	}

	switch msg.Kind {
	case accounts.NotificationVerification:
		return "Verify your EcoPulse email"
	case accounts.NotificationPasswordReset:
		return "Reset your EcoPulse password"
	case accounts.NotificationAutoDeactivation:
		return "Your EcoPulse account was deactivated for inactivity"
	case accounts.NotificationReactivationToken:
		return "Reactivate your EcoPulse account"
	case accounts.NotificationReactivationConfirmation:
		return "Your EcoPulse account is active again"
	case accounts.NotificationAdminAlert:
		return "EcoPulse account lifecycle alert"
	default:
		return "EcoPulse account notification"
	}
}

func bodyFor(msg accounts.Notification) string {
	switch msg.Kind {
	case accounts.NotificationVerification:
		return fmt.Sprintf(
			"Hi %v,\n\nYour verification code is %v. It expires at %v.",
			msg.Data["first_name"], msg.Data["code"], msg.Data["expires_at"],
		)
	case accounts.NotificationPasswordReset:
		return fmt.Sprintf(
			"Hi %v,\n\nUse code %v to reset your password, or paste this token into the reset form:\n\n%v\n\nBoth expire at %v.",
			msg.Data["first_name"], msg.Data["code"], msg.Data["token"], msg.Data["expires_at"],
		)
	case accounts.NotificationAutoDeactivation, accounts.NotificationReactivationToken:
		return fmt.Sprintf(
			"Hi %v,\n\nYour account is deactivated. Use this token to reactivate it before %v:\n\n%v",
			msg.Data["first_name"], msg.Data["expires_at"], msg.Data["token"],
		)
	case accounts.NotificationReactivationConfirmation:
		return fmt.Sprintf(
			"Hi %v,\n\nYour account has been reactivated. You can sign in as usual.",
			msg.Data["first_name"],
		)
	default:
		return fmt.Sprintf("%v", msg.Data)
	}
}
