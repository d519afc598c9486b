package accounts_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/ecopulse/go-accounts"
)

func TestUserStatusPredicates(t *testing.T) {
	assert.True(t, accounts.UserStatusDeactivated.IsDeactivated())
	assert.True(t, accounts.UserStatusAutoDeactivated.IsDeactivated())
	assert.False(t, accounts.UserStatusActive.IsDeactivated())
	assert.False(t, accounts.UserStatusPending.IsDeactivated())

	assert.True(t, accounts.UserStatusPending.IsValid())
	assert.False(t, accounts.UserStatus("suspended").IsValid())
	assert.False(t, accounts.UserStatus("").IsValid())
}

func TestEnsureStatusBackfillsPending(t *testing.T) {
	user := &accounts.User{}
	user.EnsureStatus()
	assert.Equal(t, accounts.UserStatusPending, user.Status)

	user.Status = accounts.UserStatusActive
	user.EnsureStatus()
	assert.Equal(t, accounts.UserStatusActive, user.Status)
}

func TestIsVerifiedTracksLifecycle(t *testing.T) {
	user := testUser()

	user.Status = accounts.UserStatusPending
	assert.False(t, user.IsVerified())

	user.Status = accounts.UserStatusActive
	assert.True(t, user.IsVerified())

	// deactivation does not undo verification
	user.Status = accounts.UserStatusDeactivated
	assert.True(t, user.IsVerified())
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&accounts.User{FirstName: "Ada", LastName: "Lovelace"}).FullName())
	assert.Equal(t, "Ada", (&accounts.User{FirstName: "Ada"}).FullName())
	assert.Equal(t, "", (&accounts.User{}).FullName())
}

func TestReactivationTokenExpired(t *testing.T) {
	now := time.Date(2025, 5, 6, 8, 0, 0, 0, time.UTC)

	user := &accounts.User{}
	assert.False(t, user.ReactivationTokenExpired(now), "no token means nothing to expire")

	token := "tok"
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	user.ReactivationToken = &token
	user.ReactivationTokenExpires = &future
	assert.False(t, user.ReactivationTokenExpired(now))

	user.ReactivationTokenExpires = &past
	assert.True(t, user.ReactivationTokenExpired(now))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", accounts.NormalizeEmail("  Ada@Example.COM "))
	assert.Equal(t, "", accounts.NormalizeEmail("   "))
}

func TestUserJSONHidesCredentials(t *testing.T) {
	code := "123456"
	reset := "deadbeef"
	user := testUser()
	user.PasswordHash = "bcrypt-hash"
	user.VerificationCode = &code
	user.ResetToken = &reset

	raw, err := json.Marshal(user)
	require.NoError(t, err)

	payload := string(raw)
	assert.NotContains(t, payload, "bcrypt-hash")
	assert.NotContains(t, payload, code)
	assert.NotContains(t, payload, reset)
	assert.Contains(t, payload, user.Email)
}

func TestParseRoleAndRanking(t *testing.T) {
	assert.Equal(t, accounts.RoleAdmin, accounts.ParseRole("admin"))
	assert.Equal(t, accounts.RoleUser, accounts.ParseRole("user"))
	assert.Equal(t, accounts.RoleUser, accounts.ParseRole("made-up-role"))

	assert.True(t, accounts.RoleAtLeast(accounts.RoleAdmin, accounts.RoleUser))
	assert.True(t, accounts.RoleAtLeast(accounts.RoleUser, accounts.RoleUser))
	assert.False(t, accounts.RoleAtLeast(accounts.RoleGuest, accounts.RoleUser))
	assert.False(t, accounts.RoleAtLeast(accounts.RoleUser, accounts.RoleAdmin))
}
