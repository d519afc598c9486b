package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type AccountStatusMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *AccountStatusResponse)
}

func (e AccountStatusMessage) Type() string { return "user.account_status" }

// AccountStatusResponse always carries every field, whatever the account
// state. A nonexistent address and an active account produce identical
// responses, so the endpoint reveals deactivation only for accounts that
// are actually deactivated, and existence never.
type AccountStatusResponse struct {
	Deactivated   bool `json:"deactivated"`
	TokenExpired  bool `json:"token_expired"`
	DaysRemaining int  `json:"days_remaining"`
}

// AccountStatusHandler answers the pre-login probe the dashboard issues so
// it can route a returning user straight to the reactivation screen.
type AccountStatusHandler struct {
	Repo   RepositoryManager
	Logger Logger
	Now    func() time.Time
}

func (h *AccountStatusHandler) Execute(ctx context.Context, event AccountStatusMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account status check",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountStatusHandler) execute(ctx context.Context, event AccountStatusMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := handlerClock(h.Now)

	resp := &AccountStatusResponse{}
	respond := func() {
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
	}

	user, err := h.Repo.Users().GetByEmail(ctx, event.Email, VisibilityAll)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			respond()
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for status check")
	}

	if user.IsDeactivated() {
		resp.Deactivated = true
		resp.TokenExpired = user.ReactivationTokenExpired(now)
		resp.DaysRemaining = reactivationDaysRemaining(user, now)
	}

	respond()
	return nil
}

type AccountReportMessage struct {
	OnResponse func(resp *AccountReportResponse)
}

func (e AccountReportMessage) Type() string { return "user.account_report" }

type AccountReportResponse struct {
	Counts      map[UserStatus]int
	Deactivated []*User
}

// AccountReportHandler builds the admin view: per-status totals plus the
// deactivated roster with stamps and attempt counters. Route protection
// keeps this behind the admin role.
type AccountReportHandler struct {
	Repo   RepositoryManager
	Logger Logger
}

func (h *AccountReportHandler) Execute(ctx context.Context, event AccountReportMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account report",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountReportHandler) execute(ctx context.Context, event AccountReportMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	users := h.Repo.Users()

	counts, err := users.CountByStatus(ctx)
	if err != nil {
		return err
	}

	deactivated, err := users.SelectDeactivated(ctx)
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&AccountReportResponse{
			Counts:      counts,
			Deactivated: deactivated,
		})
	}

	return nil
}
