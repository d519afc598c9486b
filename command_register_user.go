package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	UseHashid  bool
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User             *User
	VerificationSent bool
}

// RegisterUserHandler creates a pending account and issues its email
// verification code. Registration against an address the sweeper retired
// returns ErrReactivationRequired so the client can steer the user to the
// reactivation flow instead of duplicating the account.
type RegisterUserHandler struct {
	Repo     RepositoryManager
	Notifier Notifier
	Logger   Logger
	Now      func() time.Time
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	resp := &RegisterUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)
	var verification IssuedCredential

	err := h.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := h.Repo.Users().GetByEmailTx(ctx, tx, event.Email, VisibilityAll)
		if err != nil && !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing account")
		}
		if existing != nil {
			if existing.Status == UserStatusAutoDeactivated {
				return ErrReactivationRequired.WithMetadata(map[string]any{
					"email": existing.Email,
				})
			}
			return ErrDuplicateEmail
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		verification, err = IssueCredential(CredentialVerification, now)
		if err != nil {
			return err
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Status = UserStatusPending
		user.VerificationCode = &verification.Secret
		user.VerificationCodeExpires = &verification.ExpiresAt
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.Repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
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

	resp.User = user
	resp.VerificationSent = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func handlerClock(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now()
}
