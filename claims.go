package accounts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthClaims is the decoded view of an access token.
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	Email() string
	IsVerified() bool
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// AccessClaims carries a snapshot of the account profile so the dashboard
// can render the session owner without a user lookup. The snapshot is only
// as fresh as the token; anything security-sensitive is re-checked against
// the database by the session guard.
type AccessClaims struct {
	jwt.RegisteredClaims
	UID       string `json:"uid,omitempty"`
	UserEmail string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	UserRole  string `json:"role,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Verified  bool   `json:"verified"`
}

var _ AuthClaims = (*AccessClaims)(nil)

// Subject returns the subject claim
func (c *AccessClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *AccessClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// UserUUID parses the user ID claim.
func (c *AccessClaims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID())
}

// Role returns the account role
func (c *AccessClaims) Role() string {
	return c.UserRole
}

// Email returns the account email snapshot
func (c *AccessClaims) Email() string {
	return c.UserEmail
}

// IsVerified reports the verification snapshot carried by the token
func (c *AccessClaims) IsVerified() bool {
	return c.Verified
}

// HasRole checks if the account has a specific role
func (c *AccessClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the account role is at least the minimum required role
func (c *AccessClaims) IsAtLeast(minRole string) bool {
	return RoleAtLeast(c.UserRole, minRole)
}

// Expires returns the expiration time
func (c *AccessClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *AccessClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// RefreshClaims carries only the account id. Refresh tokens are signed
// with a separate key so an access token can never be replayed as one.
type RefreshClaims struct {
	jwt.RegisteredClaims
	UID string `json:"uid,omitempty"`
}

// UserID returns the user ID
func (c *RefreshClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}
