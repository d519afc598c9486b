package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type LoginUserMessage struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	OnResponse func(resp *LoginUserResponse)
}

func (e LoginUserMessage) Type() string { return "user.login" }

type LoginUserResponse struct {
	User                 *User
	AccessToken          string
	RefreshToken         string
	RequiresVerification bool
}

// LoginUserHandler authenticates an email/password pair. The password is
// checked before any lifecycle branching so a deactivated-account response
// is only ever shown to someone holding valid credentials; without that
// ordering the endpoint would leak deactivation state to strangers.
type LoginUserHandler struct {
	Repo     RepositoryManager
	Issuer   *TokenIssuer
	Notifier Notifier
	Activity ActivitySink
	Logger   Logger
	Now      func() time.Time
}

func (h *LoginUserHandler) Execute(ctx context.Context, event LoginUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during login",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *LoginUserHandler) execute(ctx context.Context, event LoginUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)
	users := h.Repo.Users()

	user, err := users.GetByEmail(ctx, event.Email, VisibilityAll)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			h.recordActivity(ctx, ActivityEventLoginFailure, event.Email, now)
			return ErrInvalidCredentials
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for login")
	}

	if err := ComparePasswordAndHash(event.Password, user.PasswordHash); err != nil {
		h.recordActivity(ctx, ActivityEventLoginFailure, user.Email, now)
		return ErrInvalidCredentials
	}

	if user.IsDeactivated() {
		cred, updated, err := issueReactivation(ctx, users, user, now)
		if err != nil {
			return err
		}
		notifyReactivationIssued(ctx, h.Logger, h.Notifier, updated, cred, "login attempt on deactivated account")
		h.recordActivity(ctx, ActivityEventLoginDeactivated, user.Email, now)

		return ErrAccountDeactivated.WithMetadata(map[string]any{
			"email": user.Email,
		})
	}

	resp := &LoginUserResponse{User: user}

	if user.Status == UserStatusPending {
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
		resp.RequiresVerification = true
	}

	if err := users.TouchLogin(ctx, user.ID, now); err != nil {
		h.logger().Warn("failed to track login for %s: %v", user.ID, err)
	}

	if resp.AccessToken, err = h.Issuer.Generate(user); err != nil {
		return err
	}
	if resp.RefreshToken, err = h.Issuer.GenerateRefresh(user); err != nil {
		return err
	}

	h.recordActivity(ctx, ActivityEventLoginSuccess, user.Email, now)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *LoginUserHandler) recordActivity(ctx context.Context, kind ActivityEventType, email string, at time.Time) {
	sink := normalizeActivitySink(h.Activity)
	err := sink.Record(ctx, ActivityEvent{
		EventType:  kind,
		Metadata:   map[string]any{"email": email},
		OccurredAt: at,
	})
	if err != nil {
		h.logger().Warn("login activity sink error: %v", err)
	}
}

func (h *LoginUserHandler) logger() Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return defLogger{}
}
