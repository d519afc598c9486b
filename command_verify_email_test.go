package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	accounts "github.com/ecopulse/go-accounts"
)

func pendingUserWithCode(code string, expires time.Time) *accounts.User {
	user := testUser()
	user.Status = accounts.UserStatusPending
	user.VerificationCode = &code
	user.VerificationCodeExpires = &expires
	return user
}

func newVerifyHandler(users *MockUsers, sink accounts.ActivitySink, now time.Time) *accounts.VerifyEmailHandler {
	return &accounts.VerifyEmailHandler{
		Repo:     newMockRepositoryManager(users),
		Issuer:   accounts.NewTokenIssuer(newTestConfig()),
		Activity: sink,
		Logger:   testLogger{},
		Now:      func() time.Time { return now },
	}
}

func TestVerifyEmailActivatesAccount(t *testing.T) {
	now := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	users := &MockUsers{}
	sink := &capturingSink{}

	user := pendingUserWithCode("482913", now.Add(time.Hour))

	verified := *user
	verified.Status = accounts.UserStatusActive
	verified.VerificationCode = nil
	verified.VerificationCodeExpires = nil

	users.On("GetByID", mock.Anything, user.ID, accounts.VisibilityDefault).
		Return(user, nil).Once()
	users.On("ConsumeVerificationCode", mock.Anything, user.ID, "482913", now).
		Return(&verified, nil).Once()

	handler := newVerifyHandler(users, sink, now)

	var resp *accounts.VerifyEmailResponse
	err := handler.Execute(context.Background(), accounts.VerifyEmailMessage{
		UserID: user.ID,
		Code:   "482913",
		OnResponse: func(r *accounts.VerifyEmailResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.AlreadyVerified)
	assert.Equal(t, accounts.UserStatusActive, resp.User.Status)
	assert.NotEmpty(t, resp.AccessToken)
	require.Len(t, sink.byType(accounts.ActivityEventEmailVerified), 1)
	users.AssertExpectations(t)
}

func TestVerifyEmailIdempotentWhenAlreadyVerified(t *testing.T) {
	now := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	user := testUser()

	users.On("GetByID", mock.Anything, user.ID, accounts.VisibilityDefault).
		Return(user, nil).Once()

	handler := newVerifyHandler(users, nil, now)

	var resp *accounts.VerifyEmailResponse
	err := handler.Execute(context.Background(), accounts.VerifyEmailMessage{
		UserID: user.ID,
		Code:   "000000",
		OnResponse: func(r *accounts.VerifyEmailResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.AlreadyVerified)
	users.AssertNotCalled(t, "ConsumeVerificationCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyEmailWrongCode(t *testing.T) {
	now := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	user := pendingUserWithCode("482913", now.Add(time.Hour))

	users.On("GetByID", mock.Anything, user.ID, accounts.VisibilityDefault).
		Return(user, nil).Once()
	users.On("ConsumeVerificationCode", mock.Anything, user.ID, "111111", now).
		Return(nil, accounts.ErrCredentialInvalid).Once()

	handler := newVerifyHandler(users, nil, now)

	err := handler.Execute(context.Background(), accounts.VerifyEmailMessage{
		UserID: user.ID,
		Code:   "111111",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrCredentialInvalid)
}

func TestVerifyEmailExpiredCodeIsDistinguishable(t *testing.T) {
	now := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	user := pendingUserWithCode("482913", now.Add(-time.Minute))

	users.On("GetByID", mock.Anything, user.ID, accounts.VisibilityDefault).
		Return(user, nil).Once()
	users.On("ConsumeVerificationCode", mock.Anything, user.ID, "482913", now).
		Return(nil, accounts.ErrCredentialInvalid).Once()

	handler := newVerifyHandler(users, nil, now)

	err := handler.Execute(context.Background(), accounts.VerifyEmailMessage{
		UserID: user.ID,
		Code:   "482913",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrCredentialExpired)
}

func TestResendVerificationReplacesCode(t *testing.T) {
	now := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	users := &MockUsers{}
	notifier := &capturingNotifier{}

	user := pendingUserWithCode("482913", now.Add(time.Hour))

	users.On("GetByID", mock.Anything, user.ID, accounts.VisibilityDefault).
		Return(user, nil).Once()
	users.On("SetVerificationCode", mock.Anything, user.ID, mock.MatchedBy(func(cred accounts.IssuedCredential) bool {
		return cred.Kind == accounts.CredentialVerification && len(cred.Secret) == 6
	})).Return(nil).Once()

	handler := &accounts.ResendVerificationHandler{
		Repo:     newMockRepositoryManager(users),
		Notifier: notifier,
		Logger:   testLogger{},
		Now:      func() time.Time { return now },
	}

	var resp *accounts.ResendVerificationResponse
	err := handler.Execute(context.Background(), accounts.ResendVerificationMessage{
		UserID: user.ID,
		OnResponse: func(r *accounts.ResendVerificationResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Sent)
	assert.False(t, resp.AlreadyVerified)
	require.Len(t, notifier.byKind(accounts.NotificationVerification), 1)
	users.AssertExpectations(t)
}
