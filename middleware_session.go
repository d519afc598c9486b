package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

const (
	// SessionCookieName is the cookie carrying the access token.
	SessionCookieName = "token"
	// RefreshCookieName is the cookie carrying the refresh token.
	RefreshCookieName = "refresh_token"
	// RotatedTokenHeader carries a silently rotated access token back to
	// the client alongside the refreshed cookie.
	RotatedTokenHeader = "X-New-Token"
	// DefaultRotationWindow is how close to expiry a token must be before
	// the guard mints a replacement mid-request.
	DefaultRotationWindow = 5 * time.Minute

	defaultTokenLookup = "cookie:" + SessionCookieName + ",header:" + router.HeaderAuthorization
)

// ErrJWTMissingOrMalformed is returned when no token could be extracted
// from the request.
var ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")

// AuthenticatedSession is the result of resolving a request's access token
// against the live account record.
type AuthenticatedSession struct {
	User   *User
	Claims *AccessClaims
	// RotatedToken is non-empty when the presented token was close enough
	// to expiry that a replacement was minted. The original stays valid
	// until its natural expiry; rotation is additive.
	RotatedToken string
}

// SessionGuard authenticates requests: token extraction, validation,
// account liveness, activity tracking, and near-expiry rotation. Route
// handlers behind the guard can rely on the account being active.
type SessionGuard struct {
	issuer         *TokenIssuer
	users          Users
	logger         Logger
	contextKey     string
	tokenLookup    string
	authScheme     string
	rotationWindow time.Duration
	now            func() time.Time
}

// SessionGuardOption customizes guard construction.
type SessionGuardOption func(*SessionGuard)

// WithGuardLogger overrides the guard logger.
func WithGuardLogger(logger Logger) SessionGuardOption {
	return func(g *SessionGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardClock injects a custom clock (useful for tests).
func WithGuardClock(clock func() time.Time) SessionGuardOption {
	return func(g *SessionGuard) {
		if clock != nil {
			g.now = clock
		}
	}
}

// WithGuardRotationWindow overrides how close to expiry a token must be
// before rotation kicks in. Zero disables rotation.
func WithGuardRotationWindow(window time.Duration) SessionGuardOption {
	return func(g *SessionGuard) {
		g.rotationWindow = window
	}
}

// NewSessionGuard builds a guard from config, a token issuer, and the users
// repository.
func NewSessionGuard(cfg Config, issuer *TokenIssuer, users Users, opts ...SessionGuardOption) *SessionGuard {
	g := &SessionGuard{
		issuer:         issuer,
		users:          users,
		logger:         defLogger{},
		contextKey:     cfg.GetContextKey(),
		tokenLookup:    cfg.GetTokenLookup(),
		authScheme:     cfg.GetAuthScheme(),
		rotationWindow: DefaultRotationWindow,
		now:            time.Now,
	}

	if g.contextKey == "" {
		g.contextKey = "user"
	}
	if g.tokenLookup == "" {
		g.tokenLookup = defaultTokenLookup
	}
	if g.authScheme == "" {
		g.authScheme = "Bearer"
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Authenticate resolves a raw access token into a live session. It checks
// the signature and expiry, loads the account, rejects deactivated
// accounts, touches last activity, and mints a replacement token when the
// presented one is inside the rotation window.
func (g *SessionGuard) Authenticate(ctx context.Context, raw string) (*AuthenticatedSession, error) {
	claims, err := g.issuer.Validate(raw)
	if err != nil {
		return nil, err
	}

	id, err := claims.UserUUID()
	if err != nil {
		return nil, ErrTokenMalformed
	}

	user, err := g.users.GetByID(ctx, id, VisibilityAll)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrUnableToDecodeSession
		}
		return nil, WrapRepositoryError(err, "loading session account")
	}

	if user.IsDeactivated() {
		return nil, ErrAccountDeactivated.WithMetadata(map[string]any{
			"email": user.Email,
		})
	}

	now := g.now()
	if err := g.users.TouchActivity(ctx, user.ID, now); err != nil {
		g.logger.Warn("session guard could not update last activity for %s: %v", user.ID, err)
	}

	session := &AuthenticatedSession{User: user, Claims: claims}

	if g.rotationWindow > 0 && claims.Expires().Sub(now) < g.rotationWindow {
		rotated, err := g.issuer.Generate(user)
		if err != nil {
			g.logger.Warn("session guard could not rotate token for %s: %v", user.ID, err)
		} else {
			session.RotatedToken = rotated
		}
	}

	return session, nil
}

type guardRequirements struct {
	requireVerified bool
	minimumRole     string
}

// Protected authenticates the request and stores the session in the router
// context. Deactivated accounts are rejected; pending accounts pass, so
// verification endpoints can sit behind it.
func (g *SessionGuard) Protected() router.MiddlewareFunc {
	return g.middleware(guardRequirements{})
}

// ProtectedVerified additionally rejects accounts that have not completed
// email verification.
func (g *SessionGuard) ProtectedVerified() router.MiddlewareFunc {
	return g.middleware(guardRequirements{requireVerified: true})
}

// ProtectedAdmin requires a verified account with the admin role.
func (g *SessionGuard) ProtectedAdmin() router.MiddlewareFunc {
	return g.middleware(guardRequirements{
		requireVerified: true,
		minimumRole:     RoleAdmin,
	})
}

func (g *SessionGuard) middleware(reqs guardRequirements) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			raw, err := extractRawToken(ctx, getExtractors(g.tokenLookup, g.authScheme))
			if err != nil {
				return g.reject(ctx, ErrTokenMalformed)
			}

			session, err := g.Authenticate(ctx.Context(), raw)
			if err != nil {
				return g.reject(ctx, err)
			}

			if reqs.requireVerified && !session.User.IsVerified() {
				return g.reject(ctx, ErrVerificationRequired)
			}

			if reqs.minimumRole != "" && !RoleAtLeast(session.User.Role, reqs.minimumRole) {
				return g.reject(ctx, ErrForbidden)
			}

			ctx.Locals(g.contextKey, session.Claims)
			ctx.Locals("current_user", session.User)

			std := WithContext(ctx.Context(), session.User)
			std = WithClaimsContext(std, session.Claims)
			ctx.SetContext(std)

			if session.RotatedToken != "" {
				ctx.Cookie(&router.Cookie{
					Name:     SessionCookieName,
					Value:    session.RotatedToken,
					Expires:  g.now().Add(PolicyFor(CredentialAccess).Lifetime),
					HTTPOnly: true,
					Secure:   true,
					SameSite: "Lax",
				})
				ctx.SetHeader(RotatedTokenHeader, session.RotatedToken)
			}

			return hf(ctx)
		}
	}
}

func (g *SessionGuard) reject(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "authentication failed").
			WithCode(goerrors.CodeUnauthorized)
	}

	g.logger.Debug("session guard rejected request: %s text_code=%s", richErr.Message, richErr.TextCode)

	status := router.StatusUnauthorized
	if richErr.Category == goerrors.CategoryAuthz {
		status = router.StatusForbidden
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

	return ctx.JSON(status, body)
}

type jwtExtractor func(c router.Context) (string, error)

func extractRawToken(ctx router.Context, extractors []jwtExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	if raw == "" {
		return "", ErrJWTMissingOrMalformed
	}

	return raw, err
}

// getExtractors parses a lookup spec like
// "cookie:token,header:Authorization" into extractor functions tried in
// order.
func getExtractors(tokenLookup string, authScheme string) []jwtExtractor {
	extractors := make([]jwtExtractor, 0)

	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) < 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

// jwtFromHeader returns a function that extracts token from the request header.
func jwtFromHeader(header string, authScheme string) jwtExtractor {
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		l := len(authScheme)
		if l == 0 {
			return "", ErrJWTMissingOrMalformed
		}
		authScheme = strings.TrimSpace(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) jwtExtractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) jwtExtractor {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
