package accounts

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RegisterAccountRoutes mounts the account lifecycle API on the given
// router. Route semantics are fixed; paths can be overridden through the
// controller options.
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountsControllerOption) {
	controller := NewAccountsController(opts...)
	guard := controller.Guard

	app.Post(controller.Routes.Register, controller.Register).SetName("accounts.register")
	app.Post(controller.Routes.Login, controller.Login).SetName("accounts.login")
	app.Post(controller.Routes.Logout, controller.Logout).SetName("accounts.logout")

	app.Post(controller.Routes.VerifyEmail,
		guard.Protected()(controller.VerifyEmail)).SetName("accounts.verify-email")
	app.Post(controller.Routes.ResendVerification,
		guard.Protected()(controller.ResendVerification)).SetName("accounts.resend-verification")

	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword).SetName("accounts.forgot-password")
	app.Post(controller.Routes.VerifyResetCode, controller.VerifyResetCode).SetName("accounts.verify-reset-code")
	app.Post(controller.Routes.ResetPassword, controller.ResetPassword).SetName("accounts.reset-password")

	app.Post(controller.Routes.DeactivateAccount,
		guard.ProtectedVerified()(controller.DeactivateAccount)).SetName("accounts.deactivate")
	app.Post(controller.Routes.RequestReactivation, controller.RequestReactivation).SetName("accounts.request-reactivation")
	app.Post(controller.Routes.ReactivateAccount, controller.ReactivateAccount).SetName("accounts.reactivate")
	app.Post(controller.Routes.AccountStatus, controller.AccountStatus).SetName("accounts.status")

	app.Post(controller.Routes.ExternalSignIn, controller.ExternalSignIn).SetName("accounts.external-signin")

	app.Post(controller.Routes.AdminDeactivate,
		guard.ProtectedAdmin()(controller.AdminDeactivate)).SetName("accounts.admin.deactivate")
	app.Post(controller.Routes.AdminRestore,
		guard.ProtectedAdmin()(controller.AdminRestore)).SetName("accounts.admin.restore")
	app.Get(controller.Routes.AdminReport,
		guard.ProtectedAdmin()(controller.AdminReport)).SetName("accounts.admin.report")
}

type AccountsControllerRoutes struct {
	Register            string
	Login               string
	Logout              string
	VerifyEmail         string
	ResendVerification  string
	ForgotPassword      string
	VerifyResetCode     string
	ResetPassword       string
	DeactivateAccount   string
	RequestReactivation string
	ReactivateAccount   string
	AccountStatus       string
	ExternalSignIn      string
	AdminDeactivate     string
	AdminRestore        string
	AdminReport         string
}

type AccountsController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Issuer   *TokenIssuer
	Machine  UserStateMachine
	Guard    *SessionGuard
	Notifier Notifier
	Activity ActivitySink
	Provider ExternalIdentityProvider
	Routes   *AccountsControllerRoutes
	Now      func() time.Time
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func WithControllerLogger(logger Logger) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Repo = repo
		return c
	}
}

func WithControllerIssuer(issuer *TokenIssuer) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Issuer = issuer
		return c
	}
}

func WithControllerMachine(machine UserStateMachine) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Machine = machine
		return c
	}
}

func WithControllerGuard(guard *SessionGuard) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Guard = guard
		return c
	}
}

func WithControllerNotifier(n Notifier) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Notifier = normalizeNotifier(n)
		return c
	}
}

func WithControllerActivitySink(sink ActivitySink) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Activity = normalizeActivitySink(sink)
		return c
	}
}

func WithControllerProvider(p ExternalIdentityProvider) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Provider = p
		return c
	}
}

func WithControllerDebug(debug bool) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Debug = debug
		return c
	}
}

func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger:   defLogger{},
		Notifier: noopNotifier{},
		Activity: noopActivitySink{},
		Now:      time.Now,
		Routes: &AccountsControllerRoutes{
			Register:            "/auth/register",
			Login:               "/auth/login",
			Logout:              "/auth/logout",
			VerifyEmail:         "/auth/verify-email",
			ResendVerification:  "/auth/resend-verification",
			ForgotPassword:      "/auth/forgot-password",
			VerifyResetCode:     "/auth/verify-reset-code",
			ResetPassword:       "/auth/reset-password",
			DeactivateAccount:   "/auth/deactivate-account",
			RequestReactivation: "/auth/request-reactivation",
			ReactivateAccount:   "/auth/reactivate-account",
			AccountStatus:       "/auth/check-account-status",
			ExternalSignIn:      "/auth/google-signin",
			AdminDeactivate:     "/admin/users/:id/deactivate",
			AdminRestore:        "/admin/users/:id/restore",
			AdminReport:         "/admin/accounts/report",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in accounts controller...")
	}

	if c.Issuer == nil {
		panic("Missing TokenIssuer in accounts controller...")
	}

	if c.Machine == nil {
		c.Machine = NewUserStateMachine(c.Repo.Users(),
			WithStateMachineLogger(c.Logger),
			WithStateMachineActivitySink(c.Activity),
		)
	}

	if c.Guard == nil {
		panic("Missing SessionGuard in accounts controller...")
	}

	return c
}

// RegisterRequest payload
type RegisterRequest struct {
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Email     string `form:"email" json:"email"`
	Password  string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(8, 128),
		),
		validation.Field(
			&r.FirstName,
			validation.Length(0, 120),
		),
		validation.Field(
			&r.LastName,
			validation.Length(0, 120),
		),
	)
}

func (a *AccountsController) Register(ctx router.Context) error {
	payload := new(RegisterRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(payload))
	}

	handler := &RegisterUserHandler{
		Repo:     a.Repo,
		Notifier: a.Notifier,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	var resp *RegisterUserResponse
	err := handler.Execute(ctx.Context(), RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		Password:  payload.Password,
		OnResponse: func(r *RegisterUserResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"success":           true,
		"message":           "registration successful, verification code sent",
		"user":              resp.User,
		"verification_sent": resp.VerificationSent,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AccountsController) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	handler := &LoginUserHandler{
		Repo:     a.Repo,
		Issuer:   a.Issuer,
		Notifier: a.Notifier,
		Activity: a.Activity,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	var resp *LoginUserResponse
	err := handler.Execute(ctx.Context(), LoginUserMessage{
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(r *LoginUserResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	a.setSessionCookies(ctx, resp.AccessToken, resp.RefreshToken)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":               true,
		"user":                  resp.User,
		"token":                 resp.AccessToken,
		"refresh_token":         resp.RefreshToken,
		"requires_verification": resp.RequiresVerification,
	})
}

func (a *AccountsController) Logout(ctx router.Context) error {
	a.clearSessionCookies(ctx)
	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "logged out",
	})
}

// VerifyEmailRequest payload
type VerifyEmailRequest struct {
	Code string `form:"code" json:"code"`
}

// Validate will run validation rules
func (r VerifyEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Code,
			validation.Required,
			validation.Length(6, 6),
			is.Digit,
		),
	)
}

func (a *AccountsController) VerifyEmail(ctx router.Context) error {
	user, ok := GetRouterUser(ctx)
	if !ok {
		return a.respondError(ctx, ErrUnableToDecodeSession)
	}

	payload := new(VerifyEmailRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	handler := &VerifyEmailHandler{
		Repo:     a.Repo,
		Issuer:   a.Issuer,
		Activity: a.Activity,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	var resp *VerifyEmailResponse
	err := handler.Execute(ctx.Context(), VerifyEmailMessage{
		UserID: user.ID,
		Code:   payload.Code,
		OnResponse: func(r *VerifyEmailResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	if resp.AlreadyVerified {
		return ctx.JSON(router.StatusOK, map[string]any{
			"success": true,
			"message": "email already verified",
		})
	}

	a.setSessionCookies(ctx, resp.AccessToken, resp.RefreshToken)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "email verified",
		"user":    resp.User,
		"token":   resp.AccessToken,
	})
}

func (a *AccountsController) ResendVerification(ctx router.Context) error {
	user, ok := GetRouterUser(ctx)
	if !ok {
		return a.respondError(ctx, ErrUnableToDecodeSession)
	}

	handler := &ResendVerificationHandler{
		Repo:     a.Repo,
		Notifier: a.Notifier,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	var resp *ResendVerificationResponse
	err := handler.Execute(ctx.Context(), ResendVerificationMessage{
		UserID: user.ID,
		OnResponse: func(r *ResendVerificationResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	if resp.AlreadyVerified {
		return ctx.JSON(router.StatusOK, map[string]any{
			"success": true,
			"message": "email already verified",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "verification code sent",
	})
}

// EmailRequest payload shared by the anti-enumeration endpoints
type EmailRequest struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AccountsController) ForgotPassword(ctx router.Context) error {
	payload := new(EmailRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	handler := &InitializePasswordResetHandler{
		Repo:     a.Repo,
		Notifier: a.Notifier,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	err := handler.Execute(ctx.Context(), InitializePasswordResetMessage{
		Email: payload.Email,
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	// identical response whether or not the address exists
	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "if the address exists, reset instructions were sent",
	})
}

// VerifyResetCodeRequest payload
type VerifyResetCodeRequest struct {
	Email string `form:"email" json:"email"`
	Code  string `form:"code" json:"code"`
}

// Validate will run validation rules
func (r VerifyResetCodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Code,
			validation.Required,
			validation.Length(6, 6),
		),
	)
}

func (a *AccountsController) VerifyResetCode(ctx router.Context) error {
	payload := new(VerifyResetCodeRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	handler := &VerifyResetCodeHandler{
		Repo:   a.Repo,
		Logger: a.Logger,
		Now:    a.Now,
	}

	var resp *VerifyResetCodeResponse
	err := handler.Execute(ctx.Context(), VerifyResetCodeMessage{
		Email: payload.Email,
		Code:  payload.Code,
		OnResponse: func(r *VerifyResetCodeResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"token":   resp.Token,
	})
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Token    string `form:"token" json:"token"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Token,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(8, 128),
		),
	)
}

func (a *AccountsController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	handler := &FinalizePasswordResetHandler{
		Repo:     a.Repo,
		Issuer:   a.Issuer,
		Activity: a.Activity,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	var resp *FinalizePasswordResetResponse
	err := handler.Execute(ctx.Context(), FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.Password,
		OnResponse: func(r *FinalizePasswordResetResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	a.setSessionCookies(ctx, resp.AccessToken, resp.RefreshToken)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "password updated",
		"token":   resp.AccessToken,
	})
}

// DeactivateRequest payload
type DeactivateRequest struct {
	Reason string `form:"reason" json:"reason"`
}

// Validate will run validation rules
func (r DeactivateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Reason,
			validation.Length(0, 500),
		),
	)
}

func (a *AccountsController) DeactivateAccount(ctx router.Context) error {
	user, ok := GetRouterUser(ctx)
	if !ok {
		return a.respondError(ctx, ErrUnableToDecodeSession)
	}

	payload := new(DeactivateRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	handler := &DeactivateAccountHandler{
		Repo:     a.Repo,
		Machine:  a.Machine,
		Notifier: a.Notifier,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	err := handler.Execute(ctx.Context(), DeactivateAccountMessage{
		UserID: user.ID,
		Actor:  ActorRef{ID: user.ID.String(), Type: "user"},
		Reason: payload.Reason,
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	a.clearSessionCookies(ctx)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "account deactivated, reactivation instructions sent",
	})
}

func (a *AccountsController) RequestReactivation(ctx router.Context) error {
	payload := new(EmailRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	handler := &RequestReactivationHandler{
		Repo:     a.Repo,
		Notifier: a.Notifier,
		Activity: a.Activity,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	err := handler.Execute(ctx.Context(), RequestReactivationMessage{
		Email: payload.Email,
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	// identical response whether or not the address exists
	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "if the account is deactivated, reactivation instructions were sent",
	})
}

// ReactivateRequest payload
type ReactivateRequest struct {
	Token string `form:"token" json:"token"`
}

// Validate will run validation rules
func (r ReactivateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Token,
			validation.Required,
		),
	)
}

func (a *AccountsController) ReactivateAccount(ctx router.Context) error {
	payload := new(ReactivateRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	handler := &ReactivateAccountHandler{
		Repo:     a.Repo,
		Machine:  a.Machine,
		Issuer:   a.Issuer,
		Notifier: a.Notifier,
		Activity: a.Activity,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	var resp *ReactivateAccountResponse
	err := handler.Execute(ctx.Context(), ReactivateAccountMessage{
		Token: payload.Token,
		OnResponse: func(r *ReactivateAccountResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	a.setSessionCookies(ctx, resp.AccessToken, resp.RefreshToken)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "account reactivated",
		"user":    resp.User,
		"token":   resp.AccessToken,
	})
}

func (a *AccountsController) AccountStatus(ctx router.Context) error {
	payload := new(EmailRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	handler := &AccountStatusHandler{
		Repo:   a.Repo,
		Logger: a.Logger,
		Now:    a.Now,
	}

	var resp *AccountStatusResponse
	err := handler.Execute(ctx.Context(), AccountStatusMessage{
		Email: payload.Email,
		OnResponse: func(r *AccountStatusResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":        true,
		"deactivated":    resp.Deactivated,
		"token_expired":  resp.TokenExpired,
		"days_remaining": resp.DaysRemaining,
	})
}

// ExternalSignInRequest payload
type ExternalSignInRequest struct {
	Credential string `form:"credential" json:"credential"`
}

// Validate will run validation rules
func (r ExternalSignInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Credential,
			validation.Required,
		),
	)
}

func (a *AccountsController) ExternalSignIn(ctx router.Context) error {
	if a.Provider == nil {
		return a.respondError(ctx, goerrors.New("external sign-in not configured", goerrors.CategoryOperation))
	}

	payload := new(ExternalSignInRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.respondValidation(ctx, err)
	}

	handler := &ExternalSignInHandler{
		Repo:     a.Repo,
		Provider: a.Provider,
		Issuer:   a.Issuer,
		Notifier: a.Notifier,
		Activity: a.Activity,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	var resp *ExternalSignInResponse
	err := handler.Execute(ctx.Context(), ExternalSignInMessage{
		Assertion: payload.Credential,
		OnResponse: func(r *ExternalSignInResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	a.setSessionCookies(ctx, resp.AccessToken, resp.RefreshToken)

	status := router.StatusOK
	if resp.Created {
		status = router.StatusCreated
	}

	return ctx.JSON(status, map[string]any{
		"success":               true,
		"user":                  resp.User,
		"token":                 resp.AccessToken,
		"refresh_token":         resp.RefreshToken,
		"requires_verification": resp.RequiresVerification,
	})
}

func (a *AccountsController) AdminDeactivate(ctx router.Context) error {
	actor, ok := GetRouterUser(ctx)
	if !ok {
		return a.respondError(ctx, ErrUnableToDecodeSession)
	}

	targetID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.respondError(ctx, goerrors.New("invalid user id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	payload := new(DeactivateRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, err)
	}

	handler := &DeactivateAccountHandler{
		Repo:     a.Repo,
		Machine:  a.Machine,
		Notifier: a.Notifier,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	err = handler.Execute(ctx.Context(), DeactivateAccountMessage{
		UserID: targetID,
		Actor:  ActorRef{ID: actor.ID.String(), Type: "admin"},
		Reason: payload.Reason,
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "account deactivated",
	})
}

func (a *AccountsController) AdminRestore(ctx router.Context) error {
	actor, ok := GetRouterUser(ctx)
	if !ok {
		return a.respondError(ctx, ErrUnableToDecodeSession)
	}

	targetID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.respondError(ctx, goerrors.New("invalid user id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	handler := &RestoreAccountHandler{
		Repo:     a.Repo,
		Machine:  a.Machine,
		Notifier: a.Notifier,
		Logger:   a.Logger,
		Now:      a.Now,
	}

	var resp *RestoreAccountResponse
	err = handler.Execute(ctx.Context(), RestoreAccountMessage{
		UserID: targetID,
		Actor:  ActorRef{ID: actor.ID.String(), Type: "admin"},
		OnResponse: func(r *RestoreAccountResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": "account restored",
		"user":    resp.User,
	})
}

func (a *AccountsController) AdminReport(ctx router.Context) error {
	handler := &AccountReportHandler{
		Repo:   a.Repo,
		Logger: a.Logger,
	}

	var resp *AccountReportResponse
	err := handler.Execute(ctx.Context(), AccountReportMessage{
		OnResponse: func(r *AccountReportResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":     true,
		"counts":      resp.Counts,
		"deactivated": resp.Deactivated,
	})
}

func (a *AccountsController) setSessionCookies(ctx router.Context, access, refresh string) {
	now := a.Now()
	if access != "" {
		ctx.Cookie(&router.Cookie{
			Name:     SessionCookieName,
			Value:    access,
			Expires:  now.Add(PolicyFor(CredentialAccess).Lifetime),
			HTTPOnly: true,
			Secure:   true,
			SameSite: "Lax",
		})
	}
	if refresh != "" {
		ctx.Cookie(&router.Cookie{
			Name:     RefreshCookieName,
			Value:    refresh,
			Expires:  now.Add(PolicyFor(CredentialRefresh).Lifetime),
			HTTPOnly: true,
			Secure:   true,
			SameSite: "Lax",
		})
	}
}

func (a *AccountsController) clearSessionCookies(ctx router.Context) {
	expired := a.Now().Add(-time.Hour * 24 * 365)
	for _, name := range []string{SessionCookieName, RefreshCookieName} {
		ctx.Cookie(&router.Cookie{
			Name:     name,
			Value:    "",
			Expires:  expired,
			HTTPOnly: true,
			Secure:   true,
			SameSite: "Lax",
		})
	}
}

func (a *AccountsController) respondValidation(ctx router.Context, err error) error {
	body := map[string]any{
		"success": false,
		"message": "validation failed",
	}

	if fields, ok := err.(validation.Errors); ok {
		detail := make(map[string]string, len(fields))
		for name, ferr := range fields {
			detail[name] = ferr.Error()
		}
		body["fields"] = detail
	} else {
		body["message"] = err.Error()
	}

	return ctx.JSON(router.StatusBadRequest, body)
}

func (a *AccountsController) respondError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		a.Logger.Error("unhandled error in accounts controller: %v", err)
		return ctx.JSON(router.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "server error",
		})
	}

	status := statusForCategory(richErr)

	if status >= router.StatusInternalServerError {
		a.Logger.Error("accounts controller error: %s text_code=%s: %v", richErr.Message, richErr.TextCode, err)
	} else {
		a.Logger.Debug("accounts controller rejected request: %s text_code=%s", richErr.Message, richErr.TextCode)
	}

	body := map[string]any{
		"success": false,
		"message": richErr.Message,
	}
	if richErr.TextCode != "" {
		body["text_code"] = richErr.TextCode
	}
	if email, ok := richErr.Metadata["email"]; ok {
		body["email"] = email
	}
	if status >= router.StatusInternalServerError {
		body["message"] = "server error"
		delete(body, "email")
	}

	return ctx.JSON(status, body)
}

func statusForCategory(richErr *goerrors.Error) int {
	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return router.StatusBadRequest
	case goerrors.CategoryAuth:
		if richErr.TextCode == TextCodeCredentialInvalid || richErr.TextCode == TextCodeCredentialExpired {
			return router.StatusBadRequest
		}
		return router.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return router.StatusForbidden
	case goerrors.CategoryNotFound:
		return router.StatusNotFound
	case goerrors.CategoryConflict:
		if richErr.TextCode == TextCodeDuplicateEmail {
			return router.StatusBadRequest
		}
		return router.StatusConflict
	default:
		return router.StatusInternalServerError
	}
}
