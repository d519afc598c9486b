package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the knobs the session layer reads. Token lifetimes come from
// the credential policy table, not from config, so they cannot drift
// between issuer and middleware.
type Config interface {
	GetSigningKey() string
	GetRefreshSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
}

// Session is the authenticated view of a request, resolved by the session
// guard and stashed in the request context.
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetEmail() string
	GetRole() string
	GetIssuer() string
	GetIssuedAt() *time.Time
	IsVerified() bool
}

// PasswordAuthenticator hashes and verifies passwords.
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// ExternalProfile is the identity asserted by a federated provider after
// its credential has been verified.
type ExternalProfile struct {
	Provider    string
	ExternalID  string
	Email       string
	DisplayName string
	AvatarURL   string
}

// ExternalIdentityProvider verifies a provider-issued assertion (e.g. a
// Google ID token) and returns the profile it vouches for.
type ExternalIdentityProvider interface {
	Verify(ctx context.Context, assertion string) (*ExternalProfile, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
