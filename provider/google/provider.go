// Package google verifies Google ID tokens for federated sign-in. The
// token signature is checked against Google's published JWKS, which the
// provider keeps refreshed in the background.
package google

import (
	"context"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"

	accounts "github.com/ecopulse/go-accounts"
)

// ProviderName is the provider tag recorded on linked accounts.
const ProviderName = "google"

// DefaultJWKSURL serves Google's current signing keys.
const DefaultJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// IdentityProvider implements accounts.ExternalIdentityProvider for
// Google Sign-In credentials.
type IdentityProvider struct {
	clientID string
	jwks     *keyfunc.JWKS
	logger   accounts.Logger
	now      func() time.Time
}

type Option func(*IdentityProvider)

func WithLogger(logger accounts.Logger) Option {
	return func(p *IdentityProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *IdentityProvider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// NewIdentityProvider fetches Google's JWKS and keeps it refreshed until
// ctx is cancelled. clientID is the OAuth client the ID tokens must be
// issued for.
func NewIdentityProvider(ctx context.Context, clientID string, opts ...Option) (*IdentityProvider, error) {
	return newProviderWithURL(ctx, clientID, DefaultJWKSURL, opts...)
}

func newProviderWithURL(ctx context.Context, clientID, jwksURL string, opts ...Option) (*IdentityProvider, error) {
	if clientID == "" {
		return nil, goerrors.New("google provider requires a client id", goerrors.CategoryValidation)
	}

	p := &IdentityProvider{
		clientID: clientID,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			if p.logger != nil {
				p.logger.Error("failed to refresh google JWKS: %v", err)
			}
		},
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "unable to fetch google JWKS")
	}

	p.jwks = jwks

	return p, nil
}

// Verify implements accounts.ExternalIdentityProvider. It checks the ID
// token signature, issuer, audience and expiry, and requires the Google
// account's email to be verified on their side.
func (p *IdentityProvider) Verify(ctx context.Context, assertion string) (*accounts.ExternalProfile, error) {
	if assertion == "" {
		return nil, accounts.ErrTokenMalformed
	}

	claims := &idTokenClaims{}
	token, err := jwt.ParseWithClaims(assertion, claims, p.jwks.Keyfunc,
		jwt.WithTimeFunc(p.now),
		jwt.WithAudience(p.clientID),
	)
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, accounts.ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "google id token rejected").
			WithTextCode(accounts.TextCodeTokenMalformed)
	}

	if !token.Valid {
		return nil, accounts.ErrTokenMalformed
	}

	if !issuedByGoogle(claims.Issuer) {
		return nil, goerrors.New("google id token has unexpected issuer", goerrors.CategoryAuth).
			WithTextCode(accounts.TextCodeTokenMalformed)
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, goerrors.New("google id token is missing identity claims", goerrors.CategoryAuth).
			WithTextCode(accounts.TextCodeTokenMalformed)
	}

	if !claims.EmailVerified {
		return nil, goerrors.New("google account email is not verified", goerrors.CategoryAuth).
			WithTextCode(accounts.TextCodeVerificationRequired)
	}

	displayName := claims.Name
	if displayName == "" {
		displayName = claims.GivenName + " " + claims.FamilyName
	}

	return &accounts.ExternalProfile{
		Provider:    ProviderName,
		ExternalID:  claims.Subject,
		Email:       claims.Email,
		DisplayName: displayName,
		AvatarURL:   claims.Picture,
	}, nil
}

// Close stops the background JWKS refresh.
func (p *IdentityProvider) Close() {
	if p.jwks != nil {
		p.jwks.EndBackground()
	}
}

func issuedByGoogle(issuer string) bool {
	for _, iss := range googleIssuers {
		if issuer == iss {
			return true
		}
	}
	return false
}
