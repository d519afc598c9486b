package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type VerifyEmailMessage struct {
	UserID     uuid.UUID `json:"user_id"`
	Code       string    `json:"code"`
	OnResponse func(resp *VerifyEmailResponse)
}

func (e VerifyEmailMessage) Type() string { return "user.verify_email" }

type VerifyEmailResponse struct {
	User            *User
	AccessToken     string
	RefreshToken    string
	AlreadyVerified bool
}

// VerifyEmailHandler redeems the six digit code issued at registration.
// The redemption is a single guarded update keyed on the pending status,
// so a code can only ever move the account to active once.
type VerifyEmailHandler struct {
	Repo     RepositoryManager
	Issuer   *TokenIssuer
	Activity ActivitySink
	Logger   Logger
	Now      func() time.Time
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)
	users := h.Repo.Users()

	user, err := users.GetByID(ctx, event.UserID, VisibilityDefault)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrCredentialInvalid
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for verification")
	}

	resp := &VerifyEmailResponse{}

	if user.IsVerified() {
		resp.User = user
		resp.AlreadyVerified = true
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	expired := user.VerificationCodeExpires != nil && now.After(*user.VerificationCodeExpires)

	verified, err := users.ConsumeVerificationCode(ctx, user.ID, event.Code, now)
	if err != nil {
		if goerrors.Is(err, ErrCredentialInvalid) && expired {
			return ErrCredentialExpired
		}
		return err
	}

	if resp.AccessToken, err = h.Issuer.Generate(verified); err != nil {
		return err
	}
	if resp.RefreshToken, err = h.Issuer.GenerateRefresh(verified); err != nil {
		return err
	}

	sink := normalizeActivitySink(h.Activity)
	if err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventEmailVerified,
		UserID:     verified.ID.String(),
		FromStatus: UserStatusPending,
		ToStatus:   UserStatusActive,
		OccurredAt: now,
	}); err != nil {
		h.logger().Warn("verification activity sink error: %v", err)
	}

	resp.User = verified
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *VerifyEmailHandler) logger() Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return defLogger{}
}

type ResendVerificationMessage struct {
	UserID     uuid.UUID `json:"user_id"`
	OnResponse func(resp *ResendVerificationResponse)
}

func (e ResendVerificationMessage) Type() string { return "user.resend_verification" }

type ResendVerificationResponse struct {
	AlreadyVerified bool
	Sent            bool
}

// ResendVerificationHandler replaces the stored verification code with a
// fresh one. The previous code stops working the moment the new one lands.
type ResendVerificationHandler struct {
	Repo     RepositoryManager
	Notifier Notifier
	Logger   Logger
	Now      func() time.Time
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)
	users := h.Repo.Users()

	user, err := users.GetByID(ctx, event.UserID, VisibilityDefault)
	if err != nil {
		return WrapRepositoryError(err, "failed to load account for verification resend")
	}

	resp := &ResendVerificationResponse{}

	if user.IsVerified() {
		resp.AlreadyVerified = true
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	verification, err := IssueCredential(CredentialVerification, now)
	if err != nil {
		return err
	}
	if err := users.SetVerificationCode(ctx, user.ID, verification); err != nil {
		return err
	}

	sendNotification(ctx, h.Logger, h.Notifier, Notification{
		Kind:      NotificationVerification,
		Recipient: user.Email,
		Data: map[string]any{
			"first_name": user.FirstName,
			"code":       verification.Secret,
			"expires_at": verification.ExpiresAt,
		},
	})

	resp.Sent = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
