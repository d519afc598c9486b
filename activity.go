package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserStatusChanged   ActivityEventType = "user.status.changed"
	ActivityEventLoginSuccess        ActivityEventType = "accounts.login.success"
	ActivityEventLoginFailure        ActivityEventType = "accounts.login.failure"
	ActivityEventLoginDeactivated    ActivityEventType = "accounts.login.deactivated"
	ActivityEventExternalLogin       ActivityEventType = "accounts.external.login"
	ActivityEventEmailVerified       ActivityEventType = "accounts.email.verified"
	ActivityEventPasswordReset       ActivityEventType = "accounts.password.reset"
	ActivityEventReactivationIssued  ActivityEventType = "accounts.reactivation.issued"
	ActivityEventAccountReactivated  ActivityEventType = "accounts.reactivated"
	ActivityEventInactivitySweepDone ActivityEventType = "accounts.sweep.completed"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
