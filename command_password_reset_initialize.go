package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "user.password_reset_init" }

type InitializePasswordResetResponse struct {
	// Sent is always true: the endpoint acknowledges every address the
	// same way so it cannot be used to enumerate accounts.
	Sent bool
}

// InitializePasswordResetHandler issues the reset pair: a long token for
// the emailed link and a short typable code. Both share one expiry and are
// consumed together. Deactivated accounts are invisible here; their path
// back in is reactivation, never a silent reset.
type InitializePasswordResetHandler struct {
	Repo     RepositoryManager
	Notifier Notifier
	Logger   Logger
	Now      func() time.Time
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)
	users := h.Repo.Users()

	resp := &InitializePasswordResetResponse{Sent: true}
	respond := func() {
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
	}

	user, err := users.GetByEmail(ctx, event.Email, VisibilityDefault)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			respond()
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for password reset")
	}

	reset, err := IssueCredential(CredentialPasswordReset, now)
	if err != nil {
		return err
	}

	if err := users.SetPasswordReset(ctx, user.ID, reset); err != nil {
		return err
	}

	sendNotification(ctx, h.Logger, h.Notifier, Notification{
		Kind:      NotificationPasswordReset,
		Recipient: user.Email,
		Data: map[string]any{
			"first_name": user.FirstName,
			"token":      reset.Secret,
			"code":       reset.ShortCode,
			"expires_at": reset.ExpiresAt,
		},
	})

	respond()
	return nil
}

type VerifyResetCodeMessage struct {
	Email      string `json:"email"`
	Code       string `json:"code"`
	OnResponse func(resp *VerifyResetCodeResponse)
}

func (e VerifyResetCodeMessage) Type() string { return "user.password_reset_verify_code" }

type VerifyResetCodeResponse struct {
	// Token is the full reset token, handed out once the short code has
	// been presented so the final reset call can use either form.
	Token string
}

// VerifyResetCodeHandler exchanges a short reset code for the full token.
// The code is not consumed here; the exchange is read-only.
type VerifyResetCodeHandler struct {
	Repo   RepositoryManager
	Logger Logger
	Now    func() time.Time
}

func (h *VerifyResetCodeHandler) Execute(ctx context.Context, event VerifyResetCodeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during reset code verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyResetCodeHandler) execute(ctx context.Context, event VerifyResetCodeMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)

	user, err := h.Repo.Users().GetByResetShortCode(ctx, event.Email, event.Code, now)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrCredentialInvalid
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify reset code")
	}

	if user.ResetToken == nil {
		return ErrCredentialInvalid
	}

	if event.OnResponse != nil {
		event.OnResponse(&VerifyResetCodeResponse{Token: *user.ResetToken})
	}

	return nil
}
