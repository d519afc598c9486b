package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Token      string `json:"token"`
	Password   string `json:"password"`
	OnResponse func(resp *FinalizePasswordResetResponse)
}

func (e FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

type FinalizePasswordResetResponse struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

// FinalizePasswordResetHandler redeems a reset credential, accepting either
// the full token or the short code, and installs the new password hash in
// the same guarded update that clears both credential columns. Concurrent
// redeemers race on that update and exactly one succeeds.
type FinalizePasswordResetHandler struct {
	Repo     RepositoryManager
	Issuer   *TokenIssuer
	Activity ActivitySink
	Logger   Logger
	Now      func() time.Time
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)

	hash, err := HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user, err := h.Repo.Users().ConsumePasswordReset(ctx, event.Token, hash, now)
	if err != nil {
		return err
	}

	resp := &FinalizePasswordResetResponse{User: user}

	if resp.AccessToken, err = h.Issuer.Generate(user); err != nil {
		return err
	}
	if resp.RefreshToken, err = h.Issuer.GenerateRefresh(user); err != nil {
		return err
	}

	sink := normalizeActivitySink(h.Activity)
	if err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventPasswordReset,
		UserID:     user.ID.String(),
		OccurredAt: now,
	}); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("password reset activity sink error: %v", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
