package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type DeactivateAccountMessage struct {
	UserID uuid.UUID `json:"user_id"`
	// Actor identifies who requested the deactivation. Self-service and
	// admin deactivation share this handler; the actor determines which
	// stamp lands on the record.
	Actor      ActorRef
	Reason     string `json:"reason"`
	OnResponse func(resp *DeactivateAccountResponse)
}

func (e DeactivateAccountMessage) Type() string { return "user.deactivate" }

type DeactivateAccountResponse struct {
	User *User
	// ReactivationIssued is true when a reactivation credential was stored
	// and mailed as part of the deactivation.
	ReactivationIssued bool
}

// DeactivateAccountHandler moves an account into the deactivated state
// through the state machine and issues the credential that lets the owner
// come back. Whoever observes the account already deactivated loses the
// race and gets ErrStaleTransition.
type DeactivateAccountHandler struct {
	Repo     RepositoryManager
	Machine  UserStateMachine
	Notifier Notifier
	Logger   Logger
	Now      func() time.Time
}

func (h *DeactivateAccountHandler) Execute(ctx context.Context, event DeactivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deactivation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeactivateAccountHandler) execute(ctx context.Context, event DeactivateAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)
	users := h.Repo.Users()

	user, err := users.GetByID(ctx, event.UserID, VisibilityAll)
	if err != nil {
		return WrapRepositoryError(err, "failed to load account for deactivation")
	}

	if user.IsDeactivated() {
		return ErrStaleTransition.WithMetadata(map[string]any{
			"id":     user.ID.String(),
			"status": user.Status,
		})
	}

	cred, err := IssueCredential(CredentialReactivation, now)
	if err != nil {
		return err
	}

	opts := []TransitionOption{
		WithIssuedReactivation(cred),
		WithDeactivationTime(now),
	}
	if event.Reason != "" {
		opts = append(opts, WithTransitionReason(event.Reason))
	}
	if event.Actor.Type == "admin" {
		if adminID, err := uuid.Parse(event.Actor.ID); err == nil {
			opts = append(opts, WithDeactivatedBy(adminID))
		}
	}

	updated, err := h.Machine.Transition(ctx, event.Actor, user, UserStatusDeactivated, opts...)
	if err != nil {
		return err
	}

	notifyReactivationIssued(ctx, h.Logger, h.Notifier, updated, cred, deactivationReason(event))

	if event.OnResponse != nil {
		event.OnResponse(&DeactivateAccountResponse{
			User:               updated,
			ReactivationIssued: true,
		})
	}

	return nil
}

func deactivationReason(event DeactivateAccountMessage) string {
	if event.Reason != "" {
		return event.Reason
	}
	if event.Actor.Type == "admin" {
		return "account deactivated by administrator"
	}
	return "account deactivated on request"
}

type RestoreAccountMessage struct {
	UserID     uuid.UUID `json:"user_id"`
	Actor      ActorRef
	OnResponse func(resp *RestoreAccountResponse)
}

func (e RestoreAccountMessage) Type() string { return "user.restore" }

type RestoreAccountResponse struct {
	User *User
}

// RestoreAccountHandler is the admin path back to active: no token needed,
// the actor's role was already checked at the route. Credential columns
// and deactivation stamps are cleared by the transition.
type RestoreAccountHandler struct {
	Repo     RepositoryManager
	Machine  UserStateMachine
	Notifier Notifier
	Logger   Logger
	Now      func() time.Time
}

func (h *RestoreAccountHandler) Execute(ctx context.Context, event RestoreAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account restore",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RestoreAccountHandler) execute(ctx context.Context, event RestoreAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	users := h.Repo.Users()

	user, err := users.GetByID(ctx, event.UserID, VisibilityAll)
	if err != nil {
		return WrapRepositoryError(err, "failed to load account for restore")
	}

	if !user.IsDeactivated() {
		return ErrStaleTransition.WithMetadata(map[string]any{
			"id":     user.ID.String(),
			"status": user.Status,
		})
	}

	updated, err := h.Machine.Transition(ctx, event.Actor, user, UserStatusActive,
		WithTransitionReason("restored by administrator"))
	if err != nil {
		return err
	}

	sendNotification(ctx, h.Logger, h.Notifier, Notification{
		Kind:      NotificationReactivationConfirmation,
		Recipient: updated.Email,
		Data: map[string]any{
			"first_name": updated.FirstName,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(&RestoreAccountResponse{User: updated})
	}

	return nil
}
