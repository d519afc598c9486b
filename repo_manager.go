package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager bundles the package repositories together with
// transaction support. Command handlers take the manager so multi-step
// flows like registration can run inside a single transaction.
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
}

type repoManager struct {
	db    *bun.DB
	users Users
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &repoManager{
		db:    db,
		users: NewUsersRepository(db),
	}
}

func (m repoManager) Validate() error {
	if m.users == nil {
		return errors.New("users repository is not initialized")
	}
	return nil
}

func (m repoManager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m repoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m repoManager) Users() Users {
	return m.users
}
