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

func TestRegisterCreatesPendingAccountAndSendsCode(t *testing.T) {
	now := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	users := &MockUsers{}
	notifier := &capturingNotifier{}

	users.On("GetByEmailTx", mock.Anything, mock.Anything, "new@example.com", accounts.VisibilityAll).
		Return(nil, repository.NewRecordNotFound()).Once()
	users.On("RegisterTx", mock.Anything, mock.Anything, mock.MatchedBy(func(u *accounts.User) bool {
		return u.Status == accounts.UserStatusPending &&
			u.VerificationCode != nil &&
			len(*u.VerificationCode) == 6 &&
			u.VerificationCodeExpires != nil &&
			u.VerificationCodeExpires.Equal(now.Add(2*time.Hour))
	})).Return(&accounts.User{Email: "new@example.com", Status: accounts.UserStatusPending}, nil).Once()

	handler := &accounts.RegisterUserHandler{
		Repo:     newMockRepositoryManager(users),
		Notifier: notifier,
		Logger:   testLogger{},
		Now:      func() time.Time { return now },
	}

	var resp *accounts.RegisterUserResponse
	err := handler.Execute(context.Background(), accounts.RegisterUserMessage{
		FirstName: "New",
		LastName:  "User",
		Email:     "new@example.com",
		Password:  "a long enough password",
		OnResponse: func(r *accounts.RegisterUserResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.VerificationSent)
	require.Len(t, notifier.byKind(accounts.NotificationVerification), 1)
	assert.Equal(t, "new@example.com", notifier.byKind(accounts.NotificationVerification)[0].Recipient)
	users.AssertExpectations(t)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	users := &MockUsers{}

	existing := testUser()
	users.On("GetByEmailTx", mock.Anything, mock.Anything, existing.Email, accounts.VisibilityAll).
		Return(existing, nil).Once()

	handler := &accounts.RegisterUserHandler{
		Repo:   newMockRepositoryManager(users),
		Logger: testLogger{},
	}

	err := handler.Execute(context.Background(), accounts.RegisterUserMessage{
		Email:    existing.Email,
		Password: "a long enough password",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrDuplicateEmail)
	users.AssertNotCalled(t, "RegisterTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterAutoDeactivatedEmailPointsToReactivation(t *testing.T) {
	users := &MockUsers{}

	existing := testUser()
	existing.Status = accounts.UserStatusAutoDeactivated
	users.On("GetByEmailTx", mock.Anything, mock.Anything, existing.Email, accounts.VisibilityAll).
		Return(existing, nil).Once()

	handler := &accounts.RegisterUserHandler{
		Repo:   newMockRepositoryManager(users),
		Logger: testLogger{},
	}

	err := handler.Execute(context.Background(), accounts.RegisterUserMessage{
		Email:    existing.Email,
		Password: "a long enough password",
	})
	require.Error(t, err)
	assertTextCode(t, err, accounts.TextCodeReactivationRequired)
	users.AssertNotCalled(t, "RegisterTx", mock.Anything, mock.Anything, mock.Anything)
}
