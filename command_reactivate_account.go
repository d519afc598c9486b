package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type ReactivateAccountMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *ReactivateAccountResponse)
}

func (e ReactivateAccountMessage) Type() string { return "user.reactivate" }

type ReactivateAccountResponse struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

// ReactivateAccountHandler redeems a reactivation token. The redemption is
// one guarded update keyed on the token and its expiry: it flips the
// account to active, wipes every deactivation and credential column, and
// touches the login stamps so the sweeper does not immediately re-retire
// the account. Of two concurrent redeemers exactly one wins.
type ReactivateAccountHandler struct {
	Repo     RepositoryManager
	Machine  UserStateMachine
	Issuer   *TokenIssuer
	Notifier Notifier
	Activity ActivitySink
	Logger   Logger
	Now      func() time.Time
}

func (h *ReactivateAccountHandler) Execute(ctx context.Context, event ReactivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account reactivation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ReactivateAccountHandler) execute(ctx context.Context, event ReactivateAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)
	users := h.Repo.Users()

	user, err := users.GetByReactivationToken(ctx, event.Token)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrCredentialInvalid
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for reactivation")
	}

	from := user.Status
	if !h.Machine.CanTransition(from, UserStatusActive) {
		return ErrCredentialInvalid
	}

	if user.ReactivationTokenExpired(now) {
		return ErrCredentialExpired
	}

	reactivated, err := users.ConsumeReactivationToken(ctx, event.Token, now)
	if err != nil {
		return err
	}

	resp := &ReactivateAccountResponse{User: reactivated}

	if resp.AccessToken, err = h.Issuer.Generate(reactivated); err != nil {
		return err
	}
	if resp.RefreshToken, err = h.Issuer.GenerateRefresh(reactivated); err != nil {
		return err
	}

	sendNotification(ctx, h.Logger, h.Notifier, Notification{
		Kind:      NotificationReactivationConfirmation,
		Recipient: reactivated.Email,
		Data: map[string]any{
			"first_name": reactivated.FirstName,
		},
	})
	sendNotification(ctx, h.Logger, h.Notifier, Notification{
		Kind:    NotificationAdminAlert,
		Subject: "account reactivated",
		Data: map[string]any{
			"email": reactivated.Email,
			"from":  from,
		},
	})

	sink := normalizeActivitySink(h.Activity)
	if err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventAccountReactivated,
		UserID:     reactivated.ID.String(),
		FromStatus: from,
		ToStatus:   UserStatusActive,
		OccurredAt: now,
	}); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("reactivation activity sink error: %v", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

type RequestReactivationMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *RequestReactivationResponse)
}

func (e RequestReactivationMessage) Type() string { return "user.request_reactivation" }

type RequestReactivationResponse struct {
	// Sent is always true. Unknown addresses and active accounts receive
	// the same acknowledgement as deactivated ones.
	Sent bool
}

// RequestReactivationHandler re-issues a reactivation token on request.
// The response never varies with account state, so the endpoint cannot be
// used to probe which addresses exist or which are deactivated.
type RequestReactivationHandler struct {
	Repo     RepositoryManager
	Notifier Notifier
	Activity ActivitySink
	Logger   Logger
	Now      func() time.Time
}

func (h *RequestReactivationHandler) Execute(ctx context.Context, event RequestReactivationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during reactivation request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestReactivationHandler) execute(ctx context.Context, event RequestReactivationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)
	users := h.Repo.Users()

	resp := &RequestReactivationResponse{Sent: true}
	respond := func() {
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
	}

	user, err := users.GetByEmail(ctx, event.Email, VisibilityAll)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			respond()
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for reactivation request")
	}

	if !user.IsDeactivated() {
		respond()
		return nil
	}

	cred, updated, err := issueReactivation(ctx, users, user, now)
	if err != nil {
		return err
	}

	notifyReactivationIssued(ctx, h.Logger, h.Notifier, updated, cred, "reactivation requested")

	sink := normalizeActivitySink(h.Activity)
	if err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventReactivationIssued,
		UserID:     user.ID.String(),
		OccurredAt: now,
	}); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("reactivation request activity sink error: %v", err)
		}
	}

	respond()
	return nil
}
