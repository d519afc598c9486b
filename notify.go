package accounts

import (
	"context"
)

// NotificationKind selects the template a gateway renders.
type NotificationKind string

const (
	NotificationVerification             NotificationKind = "verification"
	NotificationPasswordReset            NotificationKind = "password_reset"
	NotificationAutoDeactivation         NotificationKind = "auto_deactivation"
	NotificationReactivationToken        NotificationKind = "reactivation_token"
	NotificationReactivationConfirmation NotificationKind = "reactivation_confirmation"
	NotificationAdminAlert               NotificationKind = "admin_alert"
)

// Notification is a single outbound message. Data carries template fields
// like codes, links, and display names.
type Notification struct {
	Kind      NotificationKind
	Recipient string
	Subject   string
	Data      map[string]any
}

// Notifier delivers notifications. Delivery is best effort: lifecycle
// operations log failures and carry on, so a dead mail relay can never
// roll back a committed state change.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Send implements Notifier.
func (f NotifierFunc) Send(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, Notification) error { return nil }

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// sendNotification delivers best effort: errors are logged and swallowed.
func sendNotification(ctx context.Context, logger Logger, notifier Notifier, n Notification) {
	if logger == nil {
		logger = defLogger{}
	}
	if err := normalizeNotifier(notifier).Send(ctx, n); err != nil {
		logger.Error("failed to send %s notification to %s: %v", n.Kind, n.Recipient, err)
	}
}
