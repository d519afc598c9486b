package accounts_test

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"

	accounts "github.com/ecopulse/go-accounts"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

type testConfig struct {
	signingKey        string
	refreshSigningKey string
	issuer            string
	audience          []string
}

func newTestConfig() testConfig {
	return testConfig{
		signingKey: "test-signing-key",
		issuer:     "ecopulse",
	}
}

func (c testConfig) GetSigningKey() string        { return c.signingKey }
func (c testConfig) GetRefreshSigningKey() string { return c.refreshSigningKey }
func (c testConfig) GetSigningMethod() string     { return "HS256" }
func (c testConfig) GetContextKey() string        { return "user" }
func (c testConfig) GetTokenLookup() string       { return "cookie:token,header:Authorization" }
func (c testConfig) GetAuthScheme() string        { return "Bearer" }
func (c testConfig) GetIssuer() string            { return c.issuer }
func (c testConfig) GetAudience() []string        { return c.audience }

// MockUsers stubs the user repository. The embedded interface covers the
// generic repository surface; calling a method without a stub panics, which
// is what we want from a test that forgot an expectation.
type MockUsers struct {
	mock.Mock
	accounts.Users
}

func (m *MockUsers) GetByID(ctx context.Context, id uuid.UUID, vis accounts.Visibility) (*accounts.User, error) {
	args := m.Called(ctx, id, vis)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string, vis accounts.Visibility) (*accounts.User, error) {
	args := m.Called(ctx, tx, email, vis)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string, vis accounts.Visibility) (*accounts.User, error) {
	args := m.Called(ctx, email, vis)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) GetByReactivationToken(ctx context.Context, token string) (*accounts.User, error) {
	args := m.Called(ctx, token)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) GetByResetShortCode(ctx context.Context, email, code string, now time.Time) (*accounts.User, error) {
	args := m.Called(ctx, email, code, now)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) Register(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, user)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, tx, user)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) UpdateStatus(ctx context.Context, id uuid.UUID, from, to accounts.UserStatus, opts ...accounts.StatusUpdateOption) (*accounts.User, error) {
	args := m.Called(ctx, id, from, to, opts)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) SetVerificationCode(ctx context.Context, id uuid.UUID, cred accounts.IssuedCredential) error {
	args := m.Called(ctx, id, cred)
	return args.Error(0)
}

func (m *MockUsers) ConsumeVerificationCode(ctx context.Context, id uuid.UUID, code string, now time.Time) (*accounts.User, error) {
	args := m.Called(ctx, id, code, now)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) SetPasswordReset(ctx context.Context, id uuid.UUID, cred accounts.IssuedCredential) error {
	args := m.Called(ctx, id, cred)
	return args.Error(0)
}

func (m *MockUsers) ConsumePasswordReset(ctx context.Context, secret, passwordHash string, now time.Time) (*accounts.User, error) {
	args := m.Called(ctx, secret, passwordHash, now)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) IssueReactivationToken(ctx context.Context, id uuid.UUID, cred accounts.IssuedCredential, at time.Time) (*accounts.User, error) {
	args := m.Called(ctx, id, cred, at)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) ConsumeReactivationToken(ctx context.Context, token string, now time.Time) (*accounts.User, error) {
	args := m.Called(ctx, token, now)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) LinkExternalIdentity(ctx context.Context, id uuid.UUID, externalID, avatarURL string) error {
	args := m.Called(ctx, id, externalID, avatarURL)
	return args.Error(0)
}

func (m *MockUsers) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockUsers) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockUsers) SelectInactive(ctx context.Context, cutoff time.Time, limit int) ([]*accounts.User, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*accounts.User), args.Error(1)
}

func (m *MockUsers) SelectDeactivated(ctx context.Context) ([]*accounts.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*accounts.User), args.Error(1)
}

func (m *MockUsers) CountByStatus(ctx context.Context) (map[accounts.UserStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[accounts.UserStatus]int), args.Error(1)
}

func userArg(v any) *accounts.User {
	if v == nil {
		return nil
	}
	return v.(*accounts.User)
}

// MockRepositoryManager hands out the mock users repo and executes
// transactional closures inline with a zero tx.
type MockRepositoryManager struct {
	users accounts.Users
}

func newMockRepositoryManager(users accounts.Users) *MockRepositoryManager {
	return &MockRepositoryManager{users: users}
}

func (m *MockRepositoryManager) Validate() error { return nil }
func (m *MockRepositoryManager) MustValidate()   {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	var tx bun.Tx
	return f(ctx, tx)
}

func (m *MockRepositoryManager) Users() accounts.Users { return m.users }

type capturingSink struct {
	events []accounts.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt accounts.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) byType(eventType accounts.ActivityEventType) []accounts.ActivityEvent {
	var out []accounts.ActivityEvent
	for _, evt := range c.events {
		if evt.EventType == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type capturingNotifier struct {
	sent []accounts.Notification
}

func (c *capturingNotifier) Send(ctx context.Context, n accounts.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func (c *capturingNotifier) byKind(kind accounts.NotificationKind) []accounts.Notification {
	var out []accounts.Notification
	for _, n := range c.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func assertTextCode(t interface {
	Helper()
	Errorf(format string, args ...any)
}, err error, textCode string) {
	t.Helper()
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Errorf("expected a categorized error, got %v", err)
		return
	}
	if richErr.TextCode != textCode {
		t.Errorf("expected text code %s, got %s", textCode, richErr.TextCode)
	}
}

// MockIdentityProvider stubs federated assertion verification.
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) Verify(ctx context.Context, assertion string) (*accounts.ExternalProfile, error) {
	args := m.Called(ctx, assertion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.ExternalProfile), args.Error(1)
}
