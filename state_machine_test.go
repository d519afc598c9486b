package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	accounts "github.com/ecopulse/go-accounts"
)

func TestStateMachineTransitionToDeactivated(t *testing.T) {
	repo := &MockUsers{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	user := &accounts.User{
		ID:     uuid.New(),
		Status: accounts.UserStatusActive,
	}

	expected := &accounts.User{
		ID:            user.ID,
		Status:        accounts.UserStatusDeactivated,
		DeactivatedAt: &now,
	}

	repo.On("UpdateStatus", mock.Anything, user.ID, accounts.UserStatusActive, accounts.UserStatusDeactivated, mock.Anything).
		Return(expected, nil).Once()

	sm := accounts.NewUserStateMachine(repo,
		accounts.WithStateMachineClock(func() time.Time { return now }),
	)

	result, err := sm.Transition(context.Background(), accounts.ActorRef{ID: "admin", Type: "admin"}, user, accounts.UserStatusDeactivated)
	require.NoError(t, err)
	assert.True(t, result.IsDeactivated())
	require.NotNil(t, result.DeactivatedAt)
	assert.Equal(t, now, result.DeactivatedAt.UTC())
	repo.AssertExpectations(t)
}

func TestStateMachineRejectsUnknownTransition(t *testing.T) {
	repo := &MockUsers{}
	user := &accounts.User{
		ID:     uuid.New(),
		Status: accounts.UserStatusDeactivated,
	}

	sm := accounts.NewUserStateMachine(repo)

	_, err := sm.Transition(context.Background(), accounts.SystemActor, user, accounts.UserStatusAutoDeactivated)
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrInvalidTransition)
	repo.AssertNotCalled(t, "UpdateStatus",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStateMachineTransitionTable(t *testing.T) {
	sm := accounts.NewUserStateMachine(&MockUsers{})

	cases := []struct {
		from, to accounts.UserStatus
		allowed  bool
	}{
		{accounts.UserStatusPending, accounts.UserStatusActive, true},
		{accounts.UserStatusPending, accounts.UserStatusDeactivated, true},
		{accounts.UserStatusPending, accounts.UserStatusAutoDeactivated, true},
		{accounts.UserStatusActive, accounts.UserStatusDeactivated, true},
		{accounts.UserStatusActive, accounts.UserStatusAutoDeactivated, true},
		{accounts.UserStatusDeactivated, accounts.UserStatusActive, true},
		{accounts.UserStatusAutoDeactivated, accounts.UserStatusActive, true},

		{accounts.UserStatusActive, accounts.UserStatusPending, false},
		{accounts.UserStatusDeactivated, accounts.UserStatusPending, false},
		{accounts.UserStatusDeactivated, accounts.UserStatusAutoDeactivated, false},
		{accounts.UserStatusAutoDeactivated, accounts.UserStatusDeactivated, false},
		{accounts.UserStatusActive, accounts.UserStatusActive, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, sm.CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestStateMachinePropagatesStaleTransition(t *testing.T) {
	repo := &MockUsers{}
	user := &accounts.User{
		ID:     uuid.New(),
		Status: accounts.UserStatusActive,
	}

	repo.On("UpdateStatus", mock.Anything, user.ID, accounts.UserStatusActive, accounts.UserStatusAutoDeactivated, mock.Anything).
		Return(nil, accounts.ErrStaleTransition).Once()

	sm := accounts.NewUserStateMachine(repo)

	_, err := sm.Transition(context.Background(), accounts.SystemActor, user, accounts.UserStatusAutoDeactivated)
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrStaleTransition)
	repo.AssertExpectations(t)
}

func TestStateMachineEmitsStatusChangeActivity(t *testing.T) {
	repo := &MockUsers{}
	sink := &capturingSink{}

	user := &accounts.User{
		ID:     uuid.New(),
		Status: accounts.UserStatusDeactivated,
	}

	repo.On("UpdateStatus", mock.Anything, user.ID, accounts.UserStatusDeactivated, accounts.UserStatusActive, mock.Anything).
		Return(&accounts.User{ID: user.ID, Status: accounts.UserStatusActive}, nil).Once()

	sm := accounts.NewUserStateMachine(repo, accounts.WithStateMachineActivitySink(sink))

	_, err := sm.Transition(context.Background(), accounts.SystemActor, user, accounts.UserStatusActive,
		accounts.WithTransitionReason("token redeemed"))
	require.NoError(t, err)

	events := sink.byType(accounts.ActivityEventUserStatusChanged)
	require.Len(t, events, 1)
	assert.Equal(t, string(accounts.UserStatusDeactivated), string(events[0].FromStatus))
	assert.Equal(t, string(accounts.UserStatusActive), string(events[0].ToStatus))
}

func TestStateMachineRunsHooksInOrder(t *testing.T) {
	repo := &MockUsers{}
	user := &accounts.User{
		ID:     uuid.New(),
		Status: accounts.UserStatusPending,
	}

	repo.On("UpdateStatus", mock.Anything, user.ID, accounts.UserStatusPending, accounts.UserStatusActive, mock.Anything).
		Return(&accounts.User{ID: user.ID, Status: accounts.UserStatusActive}, nil).Once()

	sm := accounts.NewUserStateMachine(repo)

	var order []string
	_, err := sm.Transition(context.Background(), accounts.SystemActor, user, accounts.UserStatusActive,
		accounts.WithBeforeTransitionHook(func(ctx context.Context, tc accounts.TransitionContext) error {
			order = append(order, "before")
			return nil
		}),
		accounts.WithAfterTransitionHook(func(ctx context.Context, tc accounts.TransitionContext) error {
			order = append(order, "after")
			return nil
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, order)
}
