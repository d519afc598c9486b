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

func TestInitializePasswordResetIssuesTokenAndCode(t *testing.T) {
	now := time.Date(2025, 5, 7, 14, 0, 0, 0, time.UTC)
	users := &MockUsers{}
	notifier := &capturingNotifier{}

	user := testUser()

	users.On("GetByEmail", mock.Anything, user.Email, accounts.VisibilityDefault).
		Return(user, nil).Once()
	users.On("SetPasswordReset", mock.Anything, user.ID, mock.MatchedBy(func(cred accounts.IssuedCredential) bool {
		return cred.Kind == accounts.CredentialPasswordReset &&
			len(cred.Secret) == 40 &&
			len(cred.ShortCode) == 6 &&
			cred.ExpiresAt.Equal(now.Add(time.Hour))
	})).Return(nil).Once()

	handler := &accounts.InitializePasswordResetHandler{
		Repo:     newMockRepositoryManager(users),
		Notifier: notifier,
		Logger:   testLogger{},
		Now:      func() time.Time { return now },
	}

	var resp *accounts.InitializePasswordResetResponse
	err := handler.Execute(context.Background(), accounts.InitializePasswordResetMessage{
		Email: user.Email,
		OnResponse: func(r *accounts.InitializePasswordResetResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Sent)

	sent := notifier.byKind(accounts.NotificationPasswordReset)
	require.Len(t, sent, 1)
	assert.Equal(t, user.Email, sent[0].Recipient)
	assert.NotEmpty(t, sent[0].Data["token"])
	assert.NotEmpty(t, sent[0].Data["code"])
	users.AssertExpectations(t)
}

func TestInitializePasswordResetUnknownEmailSameResponse(t *testing.T) {
	users := &MockUsers{}
	notifier := &capturingNotifier{}

	users.On("GetByEmail", mock.Anything, "nobody@example.com", accounts.VisibilityDefault).
		Return(nil, repository.NewRecordNotFound()).Once()

	handler := &accounts.InitializePasswordResetHandler{
		Repo:     newMockRepositoryManager(users),
		Notifier: notifier,
		Logger:   testLogger{},
	}

	var resp *accounts.InitializePasswordResetResponse
	err := handler.Execute(context.Background(), accounts.InitializePasswordResetMessage{
		Email: "nobody@example.com",
		OnResponse: func(r *accounts.InitializePasswordResetResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Sent, "unknown addresses get the same acknowledgement")
	assert.Empty(t, notifier.sent)
}

func TestInitializePasswordResetSkipsDeactivatedAccounts(t *testing.T) {
	users := &MockUsers{}
	notifier := &capturingNotifier{}

	// default visibility hides deactivated records, so the repo answers not found
	users.On("GetByEmail", mock.Anything, "gone@example.com", accounts.VisibilityDefault).
		Return(nil, repository.NewRecordNotFound()).Once()

	handler := &accounts.InitializePasswordResetHandler{
		Repo:     newMockRepositoryManager(users),
		Notifier: notifier,
		Logger:   testLogger{},
	}

	err := handler.Execute(context.Background(), accounts.InitializePasswordResetMessage{
		Email: "gone@example.com",
	})
	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
	users.AssertNotCalled(t, "SetPasswordReset", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyResetCodeExchangesCodeForToken(t *testing.T) {
	now := time.Date(2025, 5, 7, 14, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	token := "aabbccddeeff00112233445566778899aabbccdd"
	user := testUser()
	user.ResetToken = &token

	users.On("GetByResetShortCode", mock.Anything, user.Email, "ABC234", now).
		Return(user, nil).Once()

	handler := &accounts.VerifyResetCodeHandler{
		Repo:   newMockRepositoryManager(users),
		Logger: testLogger{},
		Now:    func() time.Time { return now },
	}

	var resp *accounts.VerifyResetCodeResponse
	err := handler.Execute(context.Background(), accounts.VerifyResetCodeMessage{
		Email: user.Email,
		Code:  "ABC234",
		OnResponse: func(r *accounts.VerifyResetCodeResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, token, resp.Token)
}

func TestVerifyResetCodeRejectsUnknownCode(t *testing.T) {
	now := time.Date(2025, 5, 7, 14, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	users.On("GetByResetShortCode", mock.Anything, "ada@example.com", "WRONG1", now).
		Return(nil, repository.NewRecordNotFound()).Once()

	handler := &accounts.VerifyResetCodeHandler{
		Repo:   newMockRepositoryManager(users),
		Logger: testLogger{},
		Now:    func() time.Time { return now },
	}

	err := handler.Execute(context.Background(), accounts.VerifyResetCodeMessage{
		Email: "ada@example.com",
		Code:  "WRONG1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrCredentialInvalid)
}

func TestFinalizePasswordResetSetsNewPassword(t *testing.T) {
	now := time.Date(2025, 5, 7, 14, 0, 0, 0, time.UTC)
	users := &MockUsers{}
	sink := &capturingSink{}

	token := "aabbccddeeff00112233445566778899aabbccdd"
	user := testUser()

	users.On("ConsumePasswordReset", mock.Anything, token, mock.MatchedBy(func(hash string) bool {
		return accounts.ComparePasswordAndHash("a brand new password", hash) == nil
	}), now).Return(user, nil).Once()

	handler := &accounts.FinalizePasswordResetHandler{
		Repo:     newMockRepositoryManager(users),
		Issuer:   accounts.NewTokenIssuer(newTestConfig()),
		Activity: sink,
		Logger:   testLogger{},
		Now:      func() time.Time { return now },
	}

	var resp *accounts.FinalizePasswordResetResponse
	err := handler.Execute(context.Background(), accounts.FinalizePasswordResetMessage{
		Token:    token,
		Password: "a brand new password",
		OnResponse: func(r *accounts.FinalizePasswordResetResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	require.Len(t, sink.byType(accounts.ActivityEventPasswordReset), 1)
	users.AssertExpectations(t)
}

func TestFinalizePasswordResetConsumedTokenFails(t *testing.T) {
	now := time.Date(2025, 5, 7, 14, 0, 0, 0, time.UTC)
	users := &MockUsers{}

	users.On("ConsumePasswordReset", mock.Anything, "already-used", mock.Anything, now).
		Return(nil, accounts.ErrCredentialInvalid).Once()

	handler := &accounts.FinalizePasswordResetHandler{
		Repo:   newMockRepositoryManager(users),
		Issuer: accounts.NewTokenIssuer(newTestConfig()),
		Logger: testLogger{},
		Now:    func() time.Time { return now },
	}

	err := handler.Execute(context.Background(), accounts.FinalizePasswordResetMessage{
		Token:    "already-used",
		Password: "a brand new password",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrCredentialInvalid)
}
