package accounts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ErrUnableToDecodeSession is returned when a parsed token carries claims
// we cannot interpret.
var ErrUnableToDecodeSession = goerrors.New("unable to decode session claims", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// TokenIssuer mints and validates the two JWT credential kinds: access
// tokens carrying a profile snapshot, and id-only refresh tokens signed
// with a separate key. Lifetimes come from the credential policy table.
type TokenIssuer struct {
	signingKey        []byte
	refreshSigningKey []byte
	issuer            string
	audience          jwt.ClaimStrings
	logger            Logger
	now               func() time.Time
}

// TokenIssuerOption customizes issuer construction.
type TokenIssuerOption func(*TokenIssuer)

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if clock != nil {
			ti.now = clock
		}
	}
}

// WithTokenLogger overrides the issuer logger.
func WithTokenLogger(logger Logger) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if logger != nil {
			ti.logger = logger
		}
	}
}

// NewTokenIssuer creates a TokenIssuer from config. An empty refresh key
// falls back to the access key.
func NewTokenIssuer(cfg Config, opts ...TokenIssuerOption) *TokenIssuer {
	refreshKey := cfg.GetRefreshSigningKey()
	if refreshKey == "" {
		refreshKey = cfg.GetSigningKey()
	}

	ti := &TokenIssuer{
		signingKey:        []byte(cfg.GetSigningKey()),
		refreshSigningKey: []byte(refreshKey),
		issuer:            cfg.GetIssuer(),
		audience:          jwt.ClaimStrings(cfg.GetAudience()),
		logger:            defLogger{},
		now:               time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ti)
		}
	}

	return ti
}

// Generate creates an access token for the user.
func (ti *TokenIssuer) Generate(user *User) (string, error) {
	if user == nil {
		return "", goerrors.New("user must not be nil", goerrors.CategoryInternal)
	}

	now := ti.now()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   user.ID.String(),
			Audience:  ti.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(PolicyFor(CredentialAccess).Lifetime)),
		},
		UID:       user.ID.String(),
		UserEmail: user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		UserRole:  user.Role,
		Avatar:    user.AvatarURL,
		Verified:  user.IsVerified(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	return ti.SignClaims(claims)
}

// GenerateRefresh creates a refresh token carrying only the account id.
func (ti *TokenIssuer) GenerateRefresh(user *User) (string, error) {
	if user == nil {
		return "", goerrors.New("user must not be nil", goerrors.CategoryInternal)
	}

	now := ti.now()
	claims := &RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   user.ID.String(),
			Audience:  ti.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(PolicyFor(CredentialRefresh).Lifetime)),
		},
		UID: user.ID.String(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.refreshSigningKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign refresh JWT")
	}
	return signed, nil
}

// SignClaims signs arbitrary access claims using the configured signing key.
func (ti *TokenIssuer) SignClaims(claims *AccessClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ti.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

// Validate parses and validates an access token, returning structured claims.
// An expired token surfaces ErrTokenExpired so callers can distinguish
// retry-with-refresh from re-login.
func (ti *TokenIssuer) Validate(tokenString string) (*AccessClaims, error) {
	token, err := ti.parse(tokenString, &AccessClaims{}, ti.signingKey)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AccessClaims); ok && token.Valid {
		return claims, nil
	}

	ti.logger.Error("token issuer could not decode or validate access claims")
	return nil, ErrUnableToDecodeSession
}

// ValidateRefresh parses and validates a refresh token. The package ships
// no refresh-redemption route; embedding servers that want one call this
// and mint a fresh pair with Generate/GenerateRefresh.
func (ti *TokenIssuer) ValidateRefresh(tokenString string) (*RefreshClaims, error) {
	token, err := ti.parse(tokenString, &RefreshClaims{}, ti.refreshSigningKey)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*RefreshClaims); ok && token.Valid {
		return claims, nil
	}

	ti.logger.Error("token issuer could not decode or validate refresh claims")
	return nil, ErrUnableToDecodeSession
}

func (ti *TokenIssuer) parse(tokenString string, claims jwt.Claims, key []byte) (*jwt.Token, error) {
	parserOptions := make([]jwt.ParserOption, 0, 3)
	parserOptions = append(parserOptions, jwt.WithTimeFunc(ti.now))
	if ti.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ti.issuer))
	}
	if len(ti.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ti.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ti.logger.Error("token issuer encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	return token, nil
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
