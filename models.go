package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the single lifecycle tag of an account. Every operation in
// the package funnels status changes through the state machine so that the
// tag can never drift into an ambiguous combination.
type UserStatus string

const (
	// UserStatusPending is the state after registration, before the email
	// address is verified.
	UserStatusPending UserStatus = "pending"
	// UserStatusActive is a verified account in good standing.
	UserStatusActive UserStatus = "active"
	// UserStatusDeactivated is a user or admin initiated deactivation.
	UserStatusDeactivated UserStatus = "deactivated"
	// UserStatusAutoDeactivated is set by the inactivity sweeper.
	UserStatusAutoDeactivated UserStatus = "auto_deactivated"
)

func (s UserStatus) String() string { return string(s) }

// IsDeactivated reports whether the status is either deactivation flavor.
func (s UserStatus) IsDeactivated() bool {
	return s == UserStatusDeactivated || s == UserStatusAutoDeactivated
}

// IsValid reports whether s is one of the four known lifecycle tags.
func (s UserStatus) IsValid() bool {
	switch s {
	case UserStatusPending, UserStatusActive, UserStatusDeactivated, UserStatusAutoDeactivated:
		return true
	}
	return false
}

// User is the account record. Credential secrets are excluded from JSON so
// a serialized user can be returned from HTTP handlers as-is.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u" json:"-"`

	ID        uuid.UUID  `bun:"id,pk,notnull" json:"id"`
	FirstName string     `bun:"first_name" json:"first_name"`
	LastName  string     `bun:"last_name" json:"last_name"`
	Email     string     `bun:"email,notnull,unique" json:"email"`
	Role      string     `bun:"role,notnull" json:"role"`
	Status    UserStatus `bun:"status,notnull" json:"status"`

	PasswordHash string  `bun:"password_hash" json:"-"`
	ExternalID   *string `bun:"external_id,nullzero" json:"-"`
	AvatarURL    string  `bun:"avatar_url" json:"avatar_url,omitempty"`

	VerificationCode        *string    `bun:"verification_code,nullzero" json:"-"`
	VerificationCodeExpires *time.Time `bun:"verification_code_expires,nullzero" json:"-"`

	ResetToken     *string    `bun:"reset_token,nullzero" json:"-"`
	ResetShortCode *string    `bun:"reset_short_code,nullzero" json:"-"`
	ResetExpires   *time.Time `bun:"reset_expires,nullzero" json:"-"`

	ReactivationToken        *string    `bun:"reactivation_token,nullzero" json:"-"`
	ReactivationTokenExpires *time.Time `bun:"reactivation_token_expires,nullzero" json:"-"`
	ReactivationAttempts     int        `bun:"reactivation_attempts" json:"-"`
	LastReactivationAttempt  *time.Time `bun:"last_reactivation_attempt,nullzero" json:"-"`

	DeactivatedAt     *time.Time `bun:"deactivated_at,nullzero" json:"-"`
	DeactivatedBy     *uuid.UUID `bun:"deactivated_by,nullzero" json:"-"`
	AutoDeactivatedAt *time.Time `bun:"auto_deactivated_at,nullzero" json:"-"`

	LastLogin    *time.Time `bun:"last_login,nullzero" json:"last_login,omitempty"`
	LastActivity time.Time  `bun:"last_activity,notnull" json:"-"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// EnsureStatus backfills the lifecycle tag on records created before the
// column existed. A missing tag is treated as pending so a stale row can
// never masquerade as verified.
func (u *User) EnsureStatus() {
	if !u.Status.IsValid() {
		u.Status = UserStatusPending
	}
}

// IsVerified reports whether the account completed email verification.
// Deactivated accounts keep their verification history, so this is true
// for any status past pending.
func (u *User) IsVerified() bool {
	return u.Status != UserStatusPending && u.Status.IsValid()
}

// IsDeactivated reports whether the account is in either deactivated state.
func (u *User) IsDeactivated() bool {
	return u.Status.IsDeactivated()
}

// FullName joins first and last name, tolerating either being empty.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ReactivationTokenExpired reports whether the stored reactivation token
// exists but has passed its expiry.
func (u *User) ReactivationTokenExpired(now time.Time) bool {
	if u.ReactivationToken == nil || u.ReactivationTokenExpires == nil {
		return false
	}
	return now.After(*u.ReactivationTokenExpires)
}

// NormalizeEmail lowercases and trims an address so lookups are
// case-insensitive regardless of how the client typed it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
