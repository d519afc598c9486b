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

func newReactivateHandler(users *MockUsers, notifier accounts.Notifier, sink accounts.ActivitySink, now time.Time) *accounts.ReactivateAccountHandler {
	return &accounts.ReactivateAccountHandler{
		Repo:     newMockRepositoryManager(users),
		Machine:  accounts.NewUserStateMachine(users),
		Issuer:   accounts.NewTokenIssuer(newTestConfig()),
		Notifier: notifier,
		Activity: sink,
		Logger:   testLogger{},
		Now:      func() time.Time { return now },
	}
}

func deactivatedUserWithToken(token string, expires time.Time) *accounts.User {
	user := testUser()
	user.Status = accounts.UserStatusDeactivated
	user.ReactivationToken = &token
	user.ReactivationTokenExpires = &expires
	return user
}

func TestReactivateRedeemsToken(t *testing.T) {
	now := time.Date(2025, 5, 3, 11, 0, 0, 0, time.UTC)
	users := &MockUsers{}
	notifier := &capturingNotifier{}
	sink := &capturingSink{}

	token := "aaaabbbbccccddddeeeeffff0000111122223333444455556666777788889999"
	user := deactivatedUserWithToken(token, now.Add(24*time.Hour))

	reactivated := *user
	reactivated.Status = accounts.UserStatusActive
	reactivated.ReactivationToken = nil
	reactivated.ReactivationTokenExpires = nil

	users.On("GetByReactivationToken", mock.Anything, token).
		Return(user, nil).Once()
	users.On("ConsumeReactivationToken", mock.Anything, token, now).
		Return(&reactivated, nil).Once()

	handler := newReactivateHandler(users, notifier, sink, now)

	var resp *accounts.ReactivateAccountResponse
	err := handler.Execute(context.Background(), accounts.ReactivateAccountMessage{
		Token: token,
		OnResponse: func(r *accounts.ReactivateAccountResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, accounts.UserStatusActive, resp.User.Status)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	require.Len(t, notifier.byKind(accounts.NotificationReactivationConfirmation), 1)
	require.Len(t, sink.byType(accounts.ActivityEventAccountReactivated), 1)
	assert.Equal(t, accounts.UserStatusDeactivated, sink.byType(accounts.ActivityEventAccountReactivated)[0].FromStatus)
	users.AssertExpectations(t)
}

func TestReactivateUnknownToken(t *testing.T) {
	now := time.Date(2025, 5, 3, 11, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	users.On("GetByReactivationToken", mock.Anything, "no-such-token").
		Return(nil, repository.NewRecordNotFound()).Once()

	handler := newReactivateHandler(users, nil, nil, now)

	err := handler.Execute(context.Background(), accounts.ReactivateAccountMessage{Token: "no-such-token"})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrCredentialInvalid)
}

func TestReactivateExpiredToken(t *testing.T) {
	now := time.Date(2025, 5, 3, 11, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	token := "expired-token"
	user := deactivatedUserWithToken(token, now.Add(-time.Hour))

	users.On("GetByReactivationToken", mock.Anything, token).
		Return(user, nil).Once()

	handler := newReactivateHandler(users, nil, nil, now)

	err := handler.Execute(context.Background(), accounts.ReactivateAccountMessage{Token: token})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrCredentialExpired)
	users.AssertNotCalled(t, "ConsumeReactivationToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestReactivateRaceLoserGetsInvalidCredential(t *testing.T) {
	now := time.Date(2025, 5, 3, 11, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	token := "contended-token"
	user := deactivatedUserWithToken(token, now.Add(24*time.Hour))

	users.On("GetByReactivationToken", mock.Anything, token).
		Return(user, nil).Once()
	// a concurrent redeemer consumed the token between load and redeem
	users.On("ConsumeReactivationToken", mock.Anything, token, now).
		Return(nil, accounts.ErrCredentialInvalid).Once()

	handler := newReactivateHandler(users, nil, nil, now)

	err := handler.Execute(context.Background(), accounts.ReactivateAccountMessage{Token: token})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrCredentialInvalid)
}

func TestRequestReactivationIsUniformAcrossAccountStates(t *testing.T) {
	now := time.Date(2025, 5, 3, 11, 0, 0, 0, time.UTC)
	users := &MockUsers{}
	notifier := &capturingNotifier{}

	deactivated := testUser()
	deactivated.Status = accounts.UserStatusDeactivated
	active := testUser()
	active.Email = "active@example.com"

	users.On("GetByEmail", mock.Anything, deactivated.Email, accounts.VisibilityAll).
		Return(deactivated, nil).Once()
	users.On("GetByEmail", mock.Anything, active.Email, accounts.VisibilityAll).
		Return(active, nil).Once()
	users.On("GetByEmail", mock.Anything, "nobody@example.com", accounts.VisibilityAll).
		Return(nil, repository.NewRecordNotFound()).Once()
	users.On("IssueReactivationToken", mock.Anything, deactivated.ID, mock.Anything, now).
		Return(deactivated, nil).Once()

	handler := &accounts.RequestReactivationHandler{
		Repo:     newMockRepositoryManager(users),
		Notifier: notifier,
		Logger:   testLogger{},
		Now:      func() time.Time { return now },
	}

	for _, email := range []string{deactivated.Email, active.Email, "nobody@example.com"} {
		var resp *accounts.RequestReactivationResponse
		err := handler.Execute(context.Background(), accounts.RequestReactivationMessage{
			Email: email,
			OnResponse: func(r *accounts.RequestReactivationResponse) {
				resp = r
			},
		})
		require.NoError(t, err, "email %s", email)
		require.NotNil(t, resp)
		assert.True(t, resp.Sent, "acknowledgement must not vary with account state")
	}

	// only the deactivated account actually got a token
	assert.Len(t, notifier.byKind(accounts.NotificationReactivationToken), 1)
	users.AssertExpectations(t)
}
