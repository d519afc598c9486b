package accounts

import (
	"context"
	"database/sql"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Server wires the full account subsystem behind a fiber HTTP listener:
// repositories, token issuer, session guard, lifecycle state machine,
// HTTP controller and the inactivity sweeper.
type Server struct {
	config   Config
	db       *bun.DB
	srv      router.Server[*fiber.App]
	repo     RepositoryManager
	issuer   *TokenIssuer
	guard    *SessionGuard
	machine  UserStateMachine
	sweeper  *Sweeper
	notifier Notifier
	activity ActivitySink
	provider ExternalIdentityProvider
	logger   Logger
	debug    bool
	addr     string

	sweepCancel context.CancelFunc
}

type ServerOption func(*Server)

func WithServerDB(db *bun.DB) ServerOption {
	return func(s *Server) {
		s.db = db
	}
}

func WithServerAddr(addr string) ServerOption {
	return func(s *Server) {
		s.addr = addr
	}
}

func WithServerLogger(logger Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithServerNotifier(n Notifier) ServerOption {
	return func(s *Server) {
		s.notifier = normalizeNotifier(n)
	}
}

func WithServerActivitySink(sink ActivitySink) ServerOption {
	return func(s *Server) {
		s.activity = normalizeActivitySink(sink)
	}
}

func WithServerProvider(p ExternalIdentityProvider) ServerOption {
	return func(s *Server) {
		s.provider = p
	}
}

func WithServerDebug(debug bool) ServerOption {
	return func(s *Server) {
		s.debug = debug
	}
}

// NewServer builds the subsystem. When no database is provided it opens an
// in-process sqlite database, which is enough for local development.
func NewServer(cfg Config, opts ...ServerOption) (*Server, error) {
	s := &Server{
		config:   cfg,
		logger:   defLogger{},
		notifier: noopNotifier{},
		activity: noopActivitySink{},
		addr:     ":8572",
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.db == nil {
		sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
		if err != nil {
			return nil, err
		}
		s.db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	s.repo = NewRepositoryManager(s.db)

	s.issuer = NewTokenIssuer(cfg, WithTokenLogger(s.logger))

	s.machine = NewUserStateMachine(s.repo.Users(),
		WithStateMachineLogger(s.logger),
		WithStateMachineActivitySink(s.activity),
	)

	s.guard = NewSessionGuard(cfg, s.issuer, s.repo.Users(),
		WithGuardLogger(s.logger),
	)

	s.sweeper = NewSweeper(s.repo, s.machine,
		WithSweeperNotifier(s.notifier),
		WithSweeperActivitySink(s.activity),
		WithSweeperLogger(s.logger),
	)

	s.srv = router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
			AppName:       "ecopulse-accounts",
		}))
	})

	RegisterAccountRoutes(s.srv.Router(),
		WithControllerLogger(s.logger),
		WithControllerRepo(s.repo),
		WithControllerIssuer(s.issuer),
		WithControllerMachine(s.machine),
		WithControllerGuard(s.guard),
		WithControllerNotifier(s.notifier),
		WithControllerActivitySink(s.activity),
		WithControllerProvider(s.provider),
		WithControllerDebug(s.debug),
	)

	return s, nil
}

func (s *Server) Repo() RepositoryManager   { return s.repo }
func (s *Server) Issuer() *TokenIssuer      { return s.issuer }
func (s *Server) Guard() *SessionGuard      { return s.guard }
func (s *Server) Machine() UserStateMachine { return s.machine }
func (s *Server) Sweeper() *Sweeper         { return s.sweeper }

// Migrate applies the embedded schema migrations in lexical order.
func (s *Server) Migrate(ctx context.Context) error {
	source, err := MigrationsSource()
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := fs.ReadFile(source, name)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(raw), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		s.logger.Info("applied migration %s", name)
	}

	return nil
}

// Start applies migrations, launches the inactivity sweeper and serves HTTP.
// It blocks until the listener returns.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.sweepCancel = cancel
	go s.sweeper.Run(sweepCtx)

	s.logger.Info("accounts server listening on %s", s.addr)

	return s.srv.Serve(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	if s.sweepCancel != nil {
		s.sweepCancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- s.srv.Shutdown(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		return context.DeadlineExceeded
	}
}
