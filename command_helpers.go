package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// issueReactivation mints a reactivation credential and persists it,
// bumping the attempt counter. The returned user carries the refreshed
// credential columns.
func issueReactivation(ctx context.Context, users Users, user *User, at time.Time) (IssuedCredential, *User, error) {
	cred, err := IssueCredential(CredentialReactivation, at)
	if err != nil {
		return IssuedCredential{}, nil, err
	}

	updated, err := users.IssueReactivationToken(ctx, user.ID, cred, at)
	if err != nil {
		return IssuedCredential{}, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store reactivation token")
	}

	return cred, updated, nil
}

// notifyReactivationIssued tells the account owner how to come back, and
// raises an admin alert so the operations side can see deactivated login
// traffic.
func notifyReactivationIssued(ctx context.Context, logger Logger, notifier Notifier, user *User, cred IssuedCredential, reason string) {
	sendNotification(ctx, logger, notifier, Notification{
		Kind:      NotificationReactivationToken,
		Recipient: user.Email,
		Data: map[string]any{
			"first_name": user.FirstName,
			"token":      cred.Secret,
			"expires_at": cred.ExpiresAt,
			"reason":     reason,
		},
	})

	sendNotification(ctx, logger, notifier, Notification{
		Kind:      NotificationAdminAlert,
		Recipient: "",
		Subject:   "reactivation token issued",
		Data: map[string]any{
			"email":    user.Email,
			"status":   user.Status,
			"reason":   reason,
			"attempts": user.ReactivationAttempts,
		},
	})
}

// reactivationDaysRemaining reports how many whole days the stored token
// has left, zero when absent or expired.
func reactivationDaysRemaining(user *User, now time.Time) int {
	if user.ReactivationTokenExpires == nil {
		return 0
	}
	remaining := user.ReactivationTokenExpires.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Hours() / 24)
}
