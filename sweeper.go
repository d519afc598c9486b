package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultInactivityThreshold is how long an account can sit idle
	// before the sweeper retires it.
	DefaultInactivityThreshold = 30 * 24 * time.Hour
	// DefaultSweepInterval is how often the background loop runs.
	DefaultSweepInterval = 24 * time.Hour
	// DefaultSweepBatchSize bounds how many accounts one pass processes.
	DefaultSweepBatchSize = 200
)

// SweepReport summarizes one sweeper pass.
type SweepReport struct {
	Scanned     int
	Deactivated int
	// Raced counts accounts another writer transitioned between the scan
	// and the guarded update. They are skipped, not failed.
	Raced      int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Sweeper retires accounts idle past the threshold. Each retirement goes
// through the state machine with the same guarded update as every other
// transition, so a user logging in mid-sweep wins the race and keeps the
// account active. Running the sweeper twice over the same window is a
// no-op: retired accounts no longer match the scan.
type Sweeper struct {
	repo      RepositoryManager
	machine   UserStateMachine
	notifier  Notifier
	activity  ActivitySink
	logger    Logger
	threshold time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// SweeperOption customizes sweeper construction.
type SweeperOption func(*Sweeper)

// WithSweeperThreshold overrides the inactivity threshold.
func WithSweeperThreshold(threshold time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithSweeperInterval overrides how often the background loop runs.
func WithSweeperInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSweeperBatchSize bounds how many accounts a single pass processes.
func WithSweeperBatchSize(size int) SweeperOption {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithSweeperNotifier sets the notification gateway.
func WithSweeperNotifier(n Notifier) SweeperOption {
	return func(s *Sweeper) {
		s.notifier = normalizeNotifier(n)
	}
}

// WithSweeperActivitySink sets the sink receiving sweep events.
func WithSweeperActivitySink(sink ActivitySink) SweeperOption {
	return func(s *Sweeper) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithSweeperLogger overrides the sweeper logger.
func WithSweeperLogger(logger Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweeperClock injects a custom clock (useful for tests).
func WithSweeperClock(clock func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewSweeper builds a sweeper over the given repositories and state machine.
func NewSweeper(repo RepositoryManager, machine UserStateMachine, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		repo:      repo,
		machine:   machine,
		notifier:  noopNotifier{},
		activity:  noopActivitySink{},
		logger:    defLogger{},
		threshold: DefaultInactivityThreshold,
		interval:  DefaultSweepInterval,
		batchSize: DefaultSweepBatchSize,
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Run executes Sweep on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("inactivity sweep failed: %v", err)
			}
		}
	}
}

// Sweep performs a single pass: scan for idle accounts, retire each with
// a reactivation credential, and notify the owner.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	now := s.now()
	report := &SweepReport{StartedAt: now}

	cutoff := now.Add(-s.threshold)
	idle, err := s.repo.Users().SelectInactive(ctx, cutoff, s.batchSize)
	if err != nil {
		return nil, err
	}

	report.Scanned = len(idle)

	for _, user := range idle {
		select {
		case <-ctx.Done():
			report.FinishedAt = s.now()
			return report, ctx.Err()
		default:
		}

		if err := s.retire(ctx, user, now); err != nil {
			if goerrors.Is(err, ErrStaleTransition) {
				report.Raced++
				continue
			}
			report.Failed++
			s.logger.Error("failed to auto-deactivate %s: %v", user.ID, err)
			continue
		}
		report.Deactivated++
	}

	report.FinishedAt = s.now()

	if err := s.activity.Record(ctx, ActivityEvent{
		EventType:  ActivityEventInactivitySweepDone,
		Actor:      SystemActor,
		OccurredAt: report.FinishedAt,
		Metadata: map[string]any{
			"scanned":     report.Scanned,
			"deactivated": report.Deactivated,
			"raced":       report.Raced,
			"failed":      report.Failed,
		},
	}); err != nil {
		s.logger.Warn("sweep activity sink error: %v", err)
	}

	s.logger.Info("inactivity sweep: scanned=%d deactivated=%d raced=%d failed=%d",
		report.Scanned, report.Deactivated, report.Raced, report.Failed)

	return report, nil
}

func (s *Sweeper) retire(ctx context.Context, user *User, now time.Time) error {
	cred, err := IssueCredential(CredentialReactivation, now)
	if err != nil {
		return err
	}

	_, err = s.machine.Transition(ctx, SystemActor, user, UserStatusAutoDeactivated,
		WithIssuedReactivation(cred),
		WithDeactivationTime(now),
		WithTransitionReason("inactive past threshold"),
	)
	if err != nil {
		return err
	}

	sendNotification(ctx, s.logger, s.notifier, Notification{
		Kind:      NotificationAutoDeactivation,
		Recipient: user.Email,
		Data: map[string]any{
			"first_name": user.FirstName,
			"token":      cred.Secret,
			"expires_at": cred.ExpiresAt,
		},
	})

	return nil
}
