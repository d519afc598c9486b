package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type ExternalSignInMessage struct {
	// Assertion is the provider-issued credential, e.g. a Google ID token.
	Assertion  string `json:"assertion"`
	OnResponse func(resp *ExternalSignInResponse)
}

func (e ExternalSignInMessage) Type() string { return "user.external_signin" }

type ExternalSignInResponse struct {
	User                 *User
	AccessToken          string
	RefreshToken         string
	Created              bool
	RequiresVerification bool
}

// ExternalSignInHandler verifies a federated assertion and funnels the
// resulting profile through the same lifecycle rules as password login: a
// deactivated account gets a reactivation token and a 403, never a fresh
// session. First-time profiles become pending accounts and go through
// email verification like everyone else.
type ExternalSignInHandler struct {
	Repo     RepositoryManager
	Provider ExternalIdentityProvider
	Issuer   *TokenIssuer
	Notifier Notifier
	Activity ActivitySink
	Logger   Logger
	Now      func() time.Time
}

func (h *ExternalSignInHandler) Execute(ctx context.Context, event ExternalSignInMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during external sign-in",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ExternalSignInHandler) execute(ctx context.Context, event ExternalSignInMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)
	users := h.Repo.Users()

	profile, err := h.Provider.Verify(ctx, event.Assertion)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryAuth, "external assertion rejected").
			WithCode(goerrors.CodeUnauthorized)
	}
	if profile == nil || profile.Email == "" {
		return goerrors.New("external profile missing email", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	resp := &ExternalSignInResponse{}

	user, err := users.GetByEmail(ctx, profile.Email, VisibilityAll)
	if err != nil && !repository.IsRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for external sign-in")
	}

	switch {
	case user == nil:
		user, err = h.registerFromProfile(ctx, profile, now)
		if err != nil {
			return err
		}
		resp.Created = true
		resp.RequiresVerification = true

	case user.IsDeactivated():
		cred, updated, err := issueReactivation(ctx, users, user, now)
		if err != nil {
			return err
		}
		notifyReactivationIssued(ctx, h.Logger, h.Notifier, updated, cred, "external sign-in on deactivated account")

		return ErrAccountDeactivated.WithMetadata(map[string]any{
			"email": user.Email,
		})

	default:
		if user.ExternalID == nil {
			if err := users.LinkExternalIdentity(ctx, user.ID, profile.ExternalID, profile.AvatarURL); err != nil {
				h.logger().Warn("failed to link external identity for %s: %v", user.ID, err)
			}
		}
		if user.Status == UserStatusPending {
			resp.RequiresVerification = true
		}
		if err := users.TouchLogin(ctx, user.ID, now); err != nil {
			h.logger().Warn("failed to track external login for %s: %v", user.ID, err)
		}
	}

	resp.User = user

	if resp.AccessToken, err = h.Issuer.Generate(user); err != nil {
		return err
	}
	if resp.RefreshToken, err = h.Issuer.GenerateRefresh(user); err != nil {
		return err
	}

	sink := normalizeActivitySink(h.Activity)
	if err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventExternalLogin,
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"provider": profile.Provider},
		OccurredAt: now,
	}); err != nil {
		h.logger().Warn("external sign-in activity sink error: %v", err)
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *ExternalSignInHandler) registerFromProfile(ctx context.Context, profile *ExternalProfile, now time.Time) (*User, error) {
	verification, err := IssueCredential(CredentialVerification, now)
	if err != nil {
		return nil, err
	}

	first, last := splitDisplayName(profile.DisplayName)
	externalID := profile.ExternalID

	user := &User{
		Email:                   profile.Email,
		FirstName:               first,
		LastName:                last,
		AvatarURL:               profile.AvatarURL,
		PasswordHash:            RandomPasswordHash(),
		Status:                  UserStatusPending,
		VerificationCode:        &verification.Secret,
		VerificationCodeExpires: &verification.ExpiresAt,
	}
	if externalID != "" {
		user.ExternalID = &externalID
	}

	created, err := h.Repo.Users().Register(ctx, user)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user from external profile")
	}

	sendNotification(ctx, h.Logger, h.Notifier, Notification{
		Kind:      NotificationVerification,
		Recipient: created.Email,
		Data: map[string]any{
			"first_name": created.FirstName,
			"code":       verification.Secret,
			"expires_at": verification.ExpiresAt,
		},
	})

	return created, nil
}

func (h *ExternalSignInHandler) logger() Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return defLogger{}
}

func splitDisplayName(name string) (first, last string) {
	for i := 0; i < len(name); i++ {
		if name[i] == ' ' {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}
