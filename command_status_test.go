package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	accounts "github.com/ecopulse/go-accounts"
)

func statusProbe(t *testing.T, users *MockUsers, now time.Time, email string) *accounts.AccountStatusResponse {
	t.Helper()

	handler := &accounts.AccountStatusHandler{
		Repo:   newMockRepositoryManager(users),
		Logger: testLogger{},
		Now:    func() time.Time { return now },
	}

	var resp *accounts.AccountStatusResponse
	err := handler.Execute(context.Background(), accounts.AccountStatusMessage{
		Email: email,
		OnResponse: func(r *accounts.AccountStatusResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func TestAccountStatusUnknownAndActiveLookIdentical(t *testing.T) {
	now := time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	active := testUser()
	users.On("GetByEmail", mock.Anything, active.Email, accounts.VisibilityAll).
		Return(active, nil).Once()
	users.On("GetByEmail", mock.Anything, "nobody@example.com", accounts.VisibilityAll).
		Return(nil, repository.NewRecordNotFound()).Once()

	forActive := statusProbe(t, users, now, active.Email)
	forUnknown := statusProbe(t, users, now, "nobody@example.com")

	assert.Equal(t, forActive, forUnknown, "existence must not be observable")
	assert.False(t, forUnknown.Deactivated)
	assert.False(t, forUnknown.TokenExpired)
	assert.Zero(t, forUnknown.DaysRemaining)
}

func TestAccountStatusDeactivatedAccount(t *testing.T) {
	now := time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	expires := now.Add(10 * 24 * time.Hour)
	user := deactivatedUserWithToken("some-token", expires)
	users.On("GetByEmail", mock.Anything, user.Email, accounts.VisibilityAll).
		Return(user, nil).Once()

	resp := statusProbe(t, users, now, user.Email)
	assert.True(t, resp.Deactivated)
	assert.False(t, resp.TokenExpired)
	assert.Equal(t, 10, resp.DaysRemaining)
}

func TestAccountStatusExpiredReactivationWindow(t *testing.T) {
	now := time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	user := deactivatedUserWithToken("some-token", now.Add(-time.Hour))
	user.Status = accounts.UserStatusAutoDeactivated
	users.On("GetByEmail", mock.Anything, user.Email, accounts.VisibilityAll).
		Return(user, nil).Once()

	resp := statusProbe(t, users, now, user.Email)
	assert.True(t, resp.Deactivated)
	assert.True(t, resp.TokenExpired)
	assert.Zero(t, resp.DaysRemaining)
}

func TestAccountReportAggregatesStatuses(t *testing.T) {
	users := &MockUsers{}

	deactivated := []*accounts.User{
		deactivatedUserWithToken("t1", time.Now().Add(time.Hour)),
		deactivatedUserWithToken("t2", time.Now().Add(time.Hour)),
	}
	counts := map[accounts.UserStatus]int{
		accounts.UserStatusActive:      12,
		accounts.UserStatusPending:     3,
		accounts.UserStatusDeactivated: 2,
	}

	users.On("CountByStatus", mock.Anything).Return(counts, nil).Once()
	users.On("SelectDeactivated", mock.Anything).Return(deactivated, nil).Once()

	handler := &accounts.AccountReportHandler{
		Repo:   newMockRepositoryManager(users),
		Logger: testLogger{},
	}

	var resp *accounts.AccountReportResponse
	err := handler.Execute(context.Background(), accounts.AccountReportMessage{
		OnResponse: func(r *accounts.AccountReportResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, counts, resp.Counts)
	assert.Len(t, resp.Deactivated, 2)
	users.AssertExpectations(t)
}
